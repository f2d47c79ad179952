package model

import "time"

const StoryCollection = "stories"

// Story media type
const (
	StoryImage = "image"
	StoryVideo = "video"
)

type StoryMedia struct {
	URL  string `bson:"url" json:"url"`
	Type string `bson:"type" json:"type"`
	Name string `bson:"name,omitempty" json:"name,omitempty"`
	Size int64  `bson:"size,omitempty" json:"size,omitempty"`
}

type StoryViewer struct {
	User     string    `bson:"user" json:"user"`
	ViewedAt time.Time `bson:"viewedAt" json:"viewedAt"`
}

// Story is a short-lived post. The TTL index removes expired stories lazily,
// so reads also filter on ExpiresAt.
type Story struct {
	ID        string        `bson:"_id" json:"_id"`
	User      string        `bson:"user" json:"user"`
	Media     StoryMedia    `bson:"media" json:"media"`
	Caption   string        `bson:"caption,omitempty" json:"caption,omitempty"`
	Viewers   []StoryViewer `bson:"viewers" json:"viewers"`
	ExpiresAt time.Time     `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`
}

func (s *Story) GetTableName() string {
	return StoryCollection
}

// ActiveAt reports whether the story is still visible at now.
func (s *Story) ActiveAt(now time.Time) bool {
	return s.ExpiresAt.After(now)
}

// StoryAuthor is the populated creator of a story.
type StoryAuthor struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Status   string `json:"status,omitempty"`
}

// StoryView is a story with its creator populated.
type StoryView struct {
	ID        string        `json:"_id"`
	User      StoryAuthor   `json:"user"`
	Media     StoryMedia    `json:"media"`
	Caption   string        `json:"caption,omitempty"`
	Viewers   []StoryViewer `json:"viewers"`
	ExpiresAt time.Time     `json:"expiresAt"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Populate projects s with its creator. withStatus adds the creator's presence,
// which contact feeds show and the caller's own feed does not.
func (s *Story) Populate(author *User, withStatus bool) StoryView {
	a := StoryAuthor{ID: s.User}
	if author != nil {
		a.Username, a.Avatar = author.Username, author.Avatar
		if withStatus {
			a.Status = author.Status
		}
	}
	viewers := s.Viewers
	if viewers == nil {
		viewers = []StoryViewer{}
	}
	return StoryView{
		ID:        s.ID,
		User:      a,
		Media:     s.Media,
		Caption:   s.Caption,
		Viewers:   viewers,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
