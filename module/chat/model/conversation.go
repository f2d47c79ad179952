package model

import (
	"slices"
	"strings"
	"time"
)

const ConversationCollection = "conversations"

// Conversation is a two-party thread.
type Conversation struct {
	ID           string   `bson:"_id" json:"_id"`
	Participants []string `bson:"participants" json:"participants"`
	// PairKey joins the sorted participants; its unique index keeps one conversation per pair.
	PairKey       string     `bson:"pairKey" json:"-"`
	LastMessage   string     `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `bson:"lastMessageAt,omitempty" json:"-"`
	CreatedAt     time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time  `bson:"updatedAt" json:"updatedAt"`
}

func (c *Conversation) GetTableName() string {
	return ConversationCollection
}

// PairKey returns the order-independent key of a participant pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// SplitPairKey is the inverse of PairKey.
func SplitPairKey(key string) (string, string, bool) {
	return strings.Cut(key, ":")
}

func (c *Conversation) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Other returns the participant that is not userID, or "" when userID is not a member.
func (c *Conversation) Other(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return userID
}

// ConversationView is the REST projection with participants and last message populated.
type ConversationView struct {
	ID           string       `json:"_id"`
	Participants []UserRef    `json:"participants"`
	LastMessage  *MessageView `json:"lastMessage"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}
