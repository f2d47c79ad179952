package model

import "time"

// Status
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const UserCollection = "users"

// User is the profile document; the realtime layer only writes Status.
type User struct {
	ID        string    `bson:"_id" json:"_id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email" json:"email"`
	Avatar    string    `bson:"avatar" json:"avatar"`
	Status    string    `bson:"status" json:"status"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (u *User) GetTableName() string {
	return UserCollection
}

// UserRef is the populated projection of a user embedded in outbound payloads.
type UserRef struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

func (u *User) Ref() UserRef {
	if u == nil {
		return UserRef{}
	}
	return UserRef{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}
