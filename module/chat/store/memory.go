package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/errs"
)

// Memory is an in-process Store with the same uniqueness rule as the Mongo one:
// one conversation per participant pair.
type Memory struct {
	mu     sync.RWMutex
	users  map[string]*model.User
	convs  map[string]*model.Conversation
	byPair map[string]string // pairKey -> conversation id
	msgs   map[string]*model.Message
	story  map[string]*model.Story

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]*model.User),
		convs:  make(map[string]*model.Conversation),
		byPair: make(map[string]string),
		msgs:   make(map[string]*model.Message),
		story:  make(map[string]*model.Story),
		now:    Now,
	}
}

// SetClock replaces the timestamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// PutUser inserts or replaces a user.
func (m *Memory) PutUser(u *model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
}

func (m *Memory) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("user not found", "userId", id)
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUsers(_ context.Context, ids []string) (map[string]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*model.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *Memory) SetUserStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return errs.ErrNotFound.WrapMsg("user not found", "userId", id)
	}
	u.Status = status
	u.UpdatedAt = m.now()
	return nil
}

func (m *Memory) ListUsersExcept(_ context.Context, excludeID string) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.User, 0, len(m.users))
	for id, u := range m.users {
		if id == excludeID {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func copyConv(c *model.Conversation) *model.Conversation {
	cp := *c
	cp.Participants = slices.Clone(c.Participants)
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		cp.LastMessageAt = &t
	}
	return &cp
}

func (m *Memory) GetConversation(_ context.Context, id string) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", id)
	}
	return copyConv(c), nil
}

func (m *Memory) FindOrCreateConversation(_ context.Context, a, b string) (*model.Conversation, bool, error) {
	key := model.PairKey(a, b)
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byPair[key]; ok {
		return copyConv(m.convs[id]), false, nil
	}
	now := m.now()
	c := &model.Conversation{
		ID:           NewID(),
		Participants: []string{a, b},
		PairKey:      key,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.convs[c.ID] = c
	m.byPair[key] = c.ID
	return copyConv(c), true, nil
}

func (m *Memory) ListConversations(_ context.Context, userID string) ([]*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Conversation
	for _, c := range m.convs {
		if c.HasParticipant(userID) {
			out = append(out, copyConv(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// later reports whether msg sorts after the conversation's current lastMessage.
func later(c *model.Conversation, msg *model.Message) bool {
	if c.LastMessageAt == nil {
		return true
	}
	if !msg.CreatedAt.Equal(*c.LastMessageAt) {
		return msg.CreatedAt.After(*c.LastMessageAt)
	}
	return msg.ID > c.LastMessage
}

func (m *Memory) AdvanceLastMessage(_ context.Context, convID string, msg *model.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[convID]
	if !ok {
		return false, errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", convID)
	}
	if !later(c, msg) {
		return false, nil
	}
	at := msg.CreatedAt
	c.LastMessage = msg.ID
	c.LastMessageAt = &at
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) SetLastMessageIf(_ context.Context, convID, expected string, latest *model.Message) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[convID]
	if !ok || c.LastMessage != expected {
		return false, nil
	}
	if latest == nil {
		c.LastMessage = ""
		c.LastMessageAt = nil
	} else {
		at := latest.CreatedAt
		c.LastMessage = latest.ID
		c.LastMessageAt = &at
	}
	return true, nil
}

func (m *Memory) TouchConversation(_ context.Context, convID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[convID]
	if !ok {
		return errs.ErrNotFound.WrapMsg("conversation not found", "conversationId", convID)
	}
	c.UpdatedAt = at
	return nil
}

func copyMsg(msg *model.Message) *model.Message {
	cp := *msg
	cp.Attachments = slices.Clone(msg.Attachments)
	return &cp
}

func (m *Memory) CreateMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ID == "" {
		msg.ID = NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = m.now()
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if _, dup := m.msgs[msg.ID]; dup {
		return errs.ErrRecordIsExist.WrapMsg("message exists", "messageId", msg.ID)
	}
	m.msgs[msg.ID] = copyMsg(msg)
	return nil
}

func (m *Memory) GetMessage(_ context.Context, id string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("message not found", "messageId", id)
	}
	return copyMsg(msg), nil
}

func (m *Memory) UpdateMessageContent(_ context.Context, id, content string, at time.Time) (*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("message not found", "messageId", id)
	}
	msg.Content = content
	msg.UpdatedAt = at
	return copyMsg(msg), nil
}

func (m *Memory) DeleteMessage(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.msgs[id]; !ok {
		return false, nil
	}
	delete(m.msgs, id)
	return true, nil
}

func (m *Memory) conversationMessages(convID string) []*model.Message {
	var out []*model.Message
	for _, msg := range m.msgs {
		if msg.Conversation == convID {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (m *Memory) LatestMessage(_ context.Context, convID string) (*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.conversationMessages(convID)
	if len(list) == 0 {
		return nil, nil
	}
	return copyMsg(list[len(list)-1]), nil
}

func (m *Memory) ListMessages(_ context.Context, convID string) ([]*model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.conversationMessages(convID)
	out := make([]*model.Message, len(list))
	for i, msg := range list {
		out[i] = copyMsg(msg)
	}
	return out, nil
}

func (m *Memory) MarkSeen(_ context.Context, convID, readerID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, msg := range m.conversationMessages(convID) {
		if msg.Sender != readerID && !msg.Seen {
			msg.Seen = true
			ids = append(ids, msg.ID)
		}
	}
	return ids, nil
}

func copyStory(st *model.Story) *model.Story {
	cp := *st
	cp.Viewers = slices.Clone(st.Viewers)
	return &cp
}

func (m *Memory) CreateStory(_ context.Context, st *model.Story) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st.ID == "" {
		st.ID = NewID()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = m.now()
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = st.CreatedAt
	}
	if _, dup := m.story[st.ID]; dup {
		return errs.ErrRecordIsExist.WrapMsg("story exists", "storyId", st.ID)
	}
	m.story[st.ID] = copyStory(st)
	return nil
}

func (m *Memory) ListActiveStories(_ context.Context, userIDs []string, now time.Time) ([]*model.Story, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Story
	for _, st := range m.story {
		if slices.Contains(userIDs, st.User) && st.ActiveAt(now) {
			out = append(out, copyStory(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var _ Store = (*Memory)(nil)
