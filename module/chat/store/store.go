package store

import (
	"context"
	"errors"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Store is the durable document store behind the realtime core. Missing documents
// are reported as errs.ErrNotFound; driver failures as errs.ErrStorage.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	// GetUsers returns the users found among ids, keyed by id.
	GetUsers(ctx context.Context, ids []string) (map[string]*model.User, error)
	SetUserStatus(ctx context.Context, id, status string) error
	// ListUsersExcept returns every user but excludeID, ordered by username.
	ListUsersExcept(ctx context.Context, excludeID string) ([]*model.User, error)

	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// FindOrCreateConversation returns the single conversation of the pair, creating it
	// when absent. Concurrent callers for the same pair observe the same document.
	FindOrCreateConversation(ctx context.Context, a, b string) (conv *model.Conversation, created bool, err error)
	// ListConversations returns the conversations of userID, most recently updated first.
	ListConversations(ctx context.Context, userID string) ([]*model.Conversation, error)
	// AdvanceLastMessage points lastMessage at msg unless a later message is already there.
	AdvanceLastMessage(ctx context.Context, convID string, msg *model.Message) (bool, error)
	// SetLastMessageIf replaces lastMessage only while it still equals expected.
	// A nil latest clears it.
	SetLastMessageIf(ctx context.Context, convID, expected string, latest *model.Message) (bool, error)
	TouchConversation(ctx context.Context, convID string, at time.Time) error

	CreateMessage(ctx context.Context, msg *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	UpdateMessageContent(ctx context.Context, id, content string, at time.Time) (*model.Message, error)
	// DeleteMessage reports whether a document was removed.
	DeleteMessage(ctx context.Context, id string) (bool, error)
	// LatestMessage returns the newest message by (createdAt, id), or nil.
	LatestMessage(ctx context.Context, convID string) (*model.Message, error)
	// ListMessages returns the conversation oldest first.
	ListMessages(ctx context.Context, convID string) ([]*model.Message, error)
	// MarkSeen flags unseen messages not sent by readerID and returns their ids.
	MarkSeen(ctx context.Context, convID, readerID string) ([]string, error)

	CreateStory(ctx context.Context, story *model.Story) error
	// ListActiveStories returns the stories of userIDs that expire after now,
	// oldest first.
	ListActiveStories(ctx context.Context, userIDs []string, now time.Time) ([]*model.Story, error)
}

// maxRecompute bounds the compare-and-set loop of RecomputeLastMessage.
const maxRecompute = 8

// RecomputeLastMessage repairs lastMessage after deletedID was removed. It only acts
// while the conversation still points at a deleted message, so a concurrent send that
// advanced lastMessage is never overwritten.
func RecomputeLastMessage(ctx context.Context, s Store, convID, deletedID string) error {
	expected := deletedID
	for i := 0; i < maxRecompute; i++ {
		latest, err := s.LatestMessage(ctx, convID)
		if err != nil {
			return err
		}
		ok, err := s.SetLastMessageIf(ctx, convID, expected, latest)
		if err != nil || !ok || latest == nil {
			return err
		}
		// latest may have been deleted between the read and the swap
		if _, err = s.GetMessage(ctx, latest.ID); err == nil {
			return nil
		} else if !errors.Is(err, errs.ErrNotFound) {
			return err
		}
		expected = latest.ID
	}
	return errs.ErrStorage.WrapMsg("lastMessage recompute did not settle", "conversationId", convID)
}

// NewID returns a hex object id.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// Now is the store clock truncated to the precision Mongo keeps.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
