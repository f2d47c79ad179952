package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/module/chat/store"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId"`
	Data  json.RawMessage `json:"data"`
}

type sink struct {
	mu     sync.Mutex
	frames []frame
}

func (s *sink) Send(b []byte) bool {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return true
}

func (s *sink) all() []frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame(nil), s.frames...)
}

func (s *sink) named(event string) []frame {
	var out []frame
	for _, f := range s.all() {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (s *sink) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

type recPublisher struct {
	mu  sync.Mutex
	evs []model.ChatEvent
}

func (p *recPublisher) Publish(_ context.Context, ev model.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return nil
}

func (p *recPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, ev := range p.evs {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	st       store.Store
	mem      *store.Memory
	router   *chat.Router
	disp     *chat.Dispatcher
	pub      *recPublisher
	handlers *Handlers
	sessions map[string]*chat.Session
	sinks    map[string]*sink
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, nil)
}

// newHarnessWith optionally wraps the memory store, e.g. to inject failures.
func newHarnessWith(t *testing.T, wrap func(*store.Memory) store.Store) *harness {
	t.Helper()
	mem := store.NewMemory()
	var clock sync.Mutex
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock.Lock()
		defer clock.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
	mem.SetClock(tick)
	for _, u := range []string{"alice", "bob", "carol"} {
		mem.PutUser(&model.User{ID: u, Username: u, Avatar: u + ".png", Status: model.StatusOffline})
	}
	var st store.Store = mem
	if wrap != nil {
		st = wrap(mem)
	}

	router := chat.NewRouter(nil)
	disp := chat.NewDispatcher(router, nil)
	h := New(st, router, nil)
	h.now = tick
	pub := &recPublisher{}
	h.SetPublisher(pub)
	h.Register(disp)
	return &harness{st: st, mem: mem, router: router, disp: disp, pub: pub, handlers: h,
		sessions: make(map[string]*chat.Session), sinks: make(map[string]*sink)}
}

func (h *harness) connect(t *testing.T, connID, userID string) *sink {
	t.Helper()
	s := &sink{}
	require.NoError(t, h.router.Attach(connID, userID, s))
	h.sessions[connID] = chat.NewSession(connID, userID)
	h.sinks[connID] = s
	return s
}

func (h *harness) do(t *testing.T, connID, event string, data any) error {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return h.disp.Dispatch(context.Background(), h.sessions[connID], &chat.Inbound{Event: event, Data: raw, AckID: "ack-" + event})
}

func (h *harness) reply(t *testing.T, connID, event string, v any) {
	t.Helper()
	acks := h.sinks[connID].named(chat.EventAck)
	for i := len(acks) - 1; i >= 0; i-- {
		if acks[i].AckID == "ack-"+event {
			require.NoError(t, json.Unmarshal(acks[i].Data, v))
			return
		}
	}
	t.Fatalf("no ack for %s on %s", event, connID)
}

func (h *harness) noFramesBut(t *testing.T, allowed ...string) {
	t.Helper()
	ok := map[string]bool{}
	for _, a := range allowed {
		ok[a] = true
	}
	for id, s := range h.sinks {
		for _, f := range s.all() {
			assert.True(t, ok[f.Event], "conn %s got unexpected %s", id, f.Event)
		}
	}
}

func (h *harness) resetSinks() {
	for _, s := range h.sinks {
		s.reset()
	}
}

func (h *harness) firstConversation(t *testing.T) string {
	t.Helper()
	require.NoError(t, h.do(t, "a1", EventSendMessage, SendMessageReq{RecipientID: "bob", Content: "hi"}))
	var rep SendMessageReply
	h.reply(t, "a1", EventSendMessage, &rep)
	require.NotEmpty(t, rep.ConversationID)
	return rep.ConversationID
}

func TestSendMessageCreatesConversationAndNotifiesPersonalRooms(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	b := h.connect(t, "b1", "bob")
	c := h.connect(t, "c1", "carol")

	require.NoError(t, h.do(t, "a1", EventSendMessage, SendMessageReq{RecipientID: "bob", Content: "hi"}))
	var rep SendMessageReply
	h.reply(t, "a1", EventSendMessage, &rep)
	assert.True(t, rep.Created)
	assert.Equal(t, "hi", rep.Message.Content)
	assert.Equal(t, model.UserRef{ID: "alice", Username: "alice", Avatar: "alice.png"}, rep.Message.Sender)

	updates := b.named(EventConversationUpdated)
	require.Len(t, updates, 1)
	var convID string
	require.NoError(t, json.Unmarshal(updates[0].Data, &convID))
	assert.Equal(t, rep.ConversationID, convID)
	assert.Len(t, h.sinks["a1"].named(EventConversationUpdated), 1)
	assert.Empty(t, c.all())

	conv, err := h.st.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Equal(t, rep.Message.ID, conv.LastMessage)
	assert.ElementsMatch(t, []string{"alice", "bob"}, conv.Participants)
	assert.Equal(t, []string{model.ChatEventConvCreated, model.ChatEventMessageCreated}, h.pub.types())
}

func TestPostMessageFansOutLikeSendMessage(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a1", "alice")
	b := h.connect(t, "b1", "bob")
	convID := h.firstConversation(t)
	require.NoError(t, h.do(t, "b1", EventJoinConversation, convID))
	h.resetSinks()

	rep, err := h.handlers.PostMessage(context.Background(), "alice", SendMessageReq{ConversationID: convID, Content: "from rest"})
	require.NoError(t, err)
	assert.False(t, rep.Created)
	assert.Equal(t, convID, rep.ConversationID)

	msgs := b.named(EventNewMessage)
	require.Len(t, msgs, 1)
	var view model.MessageView
	require.NoError(t, json.Unmarshal(msgs[0].Data, &view))
	assert.Equal(t, rep.Message.ID, view.ID)
	assert.Equal(t, "alice", view.Sender.Username)
	assert.Len(t, a.named(EventConversationUpdated), 1)
	assert.Len(t, b.named(EventConversationUpdated), 1)
	assert.Empty(t, a.named(chat.EventAck))

	conv, err := h.st.GetConversation(context.Background(), convID)
	require.NoError(t, err)
	assert.Equal(t, rep.Message.ID, conv.LastMessage)

	h.resetSinks()
	_, err = h.handlers.PostMessage(context.Background(), "carol", SendMessageReq{ConversationID: convID, Content: "x"})
	assert.ErrorIs(t, err, errs.ErrForbidden)
	_, err = h.handlers.PostMessage(context.Background(), "alice", SendMessageReq{ConversationID: convID})
	assert.ErrorIs(t, err, errs.ErrValidation)
	h.noFramesBut(t)
}

func TestSendMessageFanOutOrderAndRoomScope(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a1", "alice")
	b := h.connect(t, "b1", "bob")
	convID := h.firstConversation(t)
	require.NoError(t, h.do(t, "a1", EventJoinConversation, convID))
	require.NoError(t, h.do(t, "b1", EventJoinConversation, convID))
	h.resetSinks()

	require.NoError(t, h.do(t, "b1", EventSendMessage, SendMessageReq{ConversationID: convID, Content: "yo", Attachments: []model.Attachment{{URL: "http://x/y.png"}}}))

	var names []string
	for _, f := range b.all() {
		names = append(names, f.Event)
	}
	assert.Equal(t, []string{EventNewMessage, EventConversationUpdated, chat.EventAck}, names)

	msgs := a.named(EventNewMessage)
	require.Len(t, msgs, 1)
	var view model.MessageView
	require.NoError(t, json.Unmarshal(msgs[0].Data, &view))
	assert.Equal(t, "bob", view.Sender.ID)
	assert.Equal(t, []model.Attachment{{URL: "http://x/y.png", Type: model.AttachImage}}, view.Attachments)
}

func TestSendMessageValidation(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	h.connect(t, "b1", "bob")
	h.connect(t, "c1", "carol")
	convID := h.firstConversation(t)
	h.resetSinks()

	tests := []struct {
		name string
		conn string
		req  any
		want error
	}{
		{"no content no attachments", "a1", SendMessageReq{RecipientID: "bob"}, errs.ErrValidation},
		{"blank content", "a1", SendMessageReq{RecipientID: "bob", Content: "   "}, errs.ErrValidation},
		{"no recipient no conversation", "a1", SendMessageReq{Content: "x"}, errs.ErrValidation},
		{"self", "a1", SendMessageReq{RecipientID: "alice", Content: "x"}, errs.ErrValidation},
		{"bad attachment type", "a1", SendMessageReq{RecipientID: "bob", Attachments: []model.Attachment{{URL: "u", Type: "exe"}}}, errs.ErrValidation},
		{"unknown field", "a1", map[string]any{"recipientId": "bob", "content": "x", "urgent": true}, errs.ErrValidation},
		{"recipient outside conversation", "a1", SendMessageReq{ConversationID: convID, RecipientID: "carol", Content: "x"}, errs.ErrValidation},
		{"sender outside conversation", "c1", SendMessageReq{ConversationID: convID, Content: "x"}, errs.ErrForbidden},
		{"missing conversation", "a1", SendMessageReq{ConversationID: "nope", Content: "x"}, errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, h.do(t, tt.conn, EventSendMessage, tt.req), tt.want)
		})
	}

	msgs, err := h.st.ListMessages(context.Background(), convID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	h.noFramesBut(t)
}

func TestConcurrentFirstContactYieldsOneConversation(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	h.connect(t, "b1", "bob")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.do(t, "a1", EventSendMessage, SendMessageReq{RecipientID: "bob", Content: "a"}))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.do(t, "b1", EventSendMessage, SendMessageReq{RecipientID: "alice", Content: "b"}))
		}()
	}
	wg.Wait()

	convs, err := h.st.ListConversations(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, convs, 1)
	msgs, err := h.st.ListMessages(context.Background(), convs[0].ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 40)
	assert.Equal(t, msgs[len(msgs)-1].ID, convs[0].LastMessage)
}

func TestTypingReachesOthersOnly(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a1", "alice")
	a2 := h.connect(t, "a2", "alice")
	b := h.connect(t, "b1", "bob")
	convID := h.firstConversation(t)
	for _, c := range []string{"a1", "a2", "b1"} {
		require.NoError(t, h.do(t, c, EventJoinConversation, map[string]string{"conversationId": convID}))
	}
	h.resetSinks()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.do(t, "a1", EventTyping, ConversationReq{ConversationID: convID}))
	}()
	go func() {
		defer wg.Done()
		assert.NoError(t, h.do(t, "b1", EventTyping, ConversationReq{ConversationID: convID}))
	}()
	wg.Wait()
	require.NoError(t, h.do(t, "b1", EventStopTyping, ConversationReq{ConversationID: convID}))

	check := func(s *sink, from string) {
		typing := s.named(EventTyping)
		require.Len(t, typing, 1)
		var p TypingPayload
		require.NoError(t, json.Unmarshal(typing[0].Data, &p))
		assert.Equal(t, TypingPayload{UserID: from, ConversationID: convID}, p)
	}
	check(a, "bob")
	check(a2, "bob")
	check(b, "alice")
	assert.Len(t, a.named(EventStopTyping), 1)
	assert.Empty(t, b.named(EventStopTyping))

	assert.ErrorIs(t, h.do(t, "a1", EventTyping, map[string]string{}), errs.ErrValidation)
}

func TestTypingFromOutsiderIsDropped(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	h.connect(t, "b1", "bob")
	h.connect(t, "c1", "carol")
	convID := h.firstConversation(t)
	for _, c := range []string{"a1", "b1"} {
		require.NoError(t, h.do(t, c, EventJoinConversation, map[string]string{"conversationId": convID}))
	}
	h.resetSinks()

	for _, ev := range []string{EventTyping, EventStopTyping} {
		assert.ErrorIs(t, h.do(t, "c1", ev, ConversationReq{ConversationID: convID}), errs.ErrForbidden)
	}
	assert.ErrorIs(t, h.do(t, "c1", EventTyping, ConversationReq{ConversationID: "missing"}), errs.ErrNotFound)
	h.noFramesBut(t)
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	b := h.connect(t, "b1", "bob")
	convID := h.firstConversation(t)
	require.NoError(t, h.do(t, "b1", EventJoinConversation, convID))

	var first SendMessageReply
	h.reply(t, "a1", EventSendMessage, &first)
	require.NoError(t, h.do(t, "a1", EventSendMessage, SendMessageReq{ConversationID: convID, Content: "second"}))
	var second SendMessageReply
	h.reply(t, "a1", EventSendMessage, &second)
	h.resetSinks()

	t.Run("non-author is dropped", func(t *testing.T) {
		err := h.do(t, "b1", EventDeleteMessage, DeleteMessageReq{MessageID: second.Message.ID})
		assert.ErrorIs(t, err, errs.ErrForbidden)
		_, err = h.st.GetMessage(ctx, second.Message.ID)
		assert.NoError(t, err)
		h.noFramesBut(t)
	})

	t.Run("author deletes last message", func(t *testing.T) {
		require.NoError(t, h.do(t, "a1", EventDeleteMessage, DeleteMessageReq{MessageID: second.Message.ID}))
		conv, err := h.st.GetConversation(ctx, convID)
		require.NoError(t, err)
		assert.Equal(t, first.Message.ID, conv.LastMessage)

		del := b.named(EventMessageDeleted)
		require.Len(t, del, 1)
		var p MessageDeleted
		require.NoError(t, json.Unmarshal(del[0].Data, &p))
		assert.Equal(t, MessageDeleted{MessageID: second.Message.ID, ConversationID: convID}, p)
	})

	t.Run("deleting the only message clears lastMessage", func(t *testing.T) {
		require.NoError(t, h.do(t, "a1", EventDeleteMessage, DeleteMessageReq{MessageID: first.Message.ID}))
		conv, err := h.st.GetConversation(ctx, convID)
		require.NoError(t, err)
		assert.Empty(t, conv.LastMessage)
	})

	t.Run("already gone", func(t *testing.T) {
		assert.ErrorIs(t, h.do(t, "a1", EventDeleteMessage, DeleteMessageReq{MessageID: first.Message.ID}), errs.ErrNotFound)
		assert.ErrorIs(t, h.do(t, "a1", EventDeleteMessage, DeleteMessageReq{}), errs.ErrValidation)
	})
}

func TestUpdateMessage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	b := h.connect(t, "b1", "bob")
	convID := h.firstConversation(t)
	require.NoError(t, h.do(t, "b1", EventJoinConversation, convID))
	var sent SendMessageReply
	h.reply(t, "a1", EventSendMessage, &sent)
	before, err := h.st.GetConversation(ctx, convID)
	require.NoError(t, err)
	h.resetSinks()

	assert.ErrorIs(t, h.do(t, "b1", EventUpdateMessage, UpdateMessageReq{MessageID: sent.Message.ID, Content: "hacked"}), errs.ErrForbidden)
	assert.ErrorIs(t, h.do(t, "a1", EventUpdateMessage, UpdateMessageReq{MessageID: sent.Message.ID, Content: " "}), errs.ErrValidation)
	h.noFramesBut(t)

	require.NoError(t, h.do(t, "a1", EventUpdateMessage, UpdateMessageReq{MessageID: sent.Message.ID, Content: "edited"}))
	ups := b.named(EventMessageUpdated)
	require.Len(t, ups, 1)
	var view model.MessageView
	require.NoError(t, json.Unmarshal(ups[0].Data, &view))
	assert.Equal(t, "edited", view.Content)
	assert.Equal(t, "alice", view.Sender.Username)
	assert.True(t, view.UpdatedAt.After(view.CreatedAt))

	after, err := h.st.GetConversation(ctx, convID)
	require.NoError(t, err)
	assert.True(t, after.UpdatedAt.After(before.UpdatedAt), "editing the last message touches the conversation")

	// attachments allow empty content
	require.NoError(t, h.do(t, "a1", EventSendMessage, SendMessageReq{ConversationID: convID, Attachments: []model.Attachment{{URL: "f.pdf", Type: model.AttachPDF}}}))
	var withFile SendMessageReply
	h.reply(t, "a1", EventSendMessage, &withFile)
	assert.NoError(t, h.do(t, "a1", EventUpdateMessage, UpdateMessageReq{MessageID: withFile.Message.ID, Content: ""}))
}

func TestMarkAsReadIdempotent(t *testing.T) {
	h := newHarness(t)
	a := h.connect(t, "a1", "alice")
	b := h.connect(t, "b1", "bob")
	h.connect(t, "c1", "carol")
	convID := h.firstConversation(t)
	require.NoError(t, h.do(t, "a1", EventSendMessage, SendMessageReq{ConversationID: convID, Content: "two"}))
	require.NoError(t, h.do(t, "b1", EventSendMessage, SendMessageReq{ConversationID: convID, Content: "reply"}))
	h.resetSinks()

	require.NoError(t, h.do(t, "b1", EventMarkAsRead, convID))
	for _, s := range []*sink{a, b} {
		reads := s.named(EventMessagesRead)
		require.Len(t, reads, 1)
		var p MessagesRead
		require.NoError(t, json.Unmarshal(reads[0].Data, &p))
		assert.Equal(t, "bob", p.ReaderID)
		assert.Len(t, p.SeenIDs, 2)
		require.Len(t, p.Messages, 3)
		for _, m := range p.Messages {
			assert.Equal(t, m.Sender.ID == "alice", m.Seen)
		}
	}
	assert.Empty(t, h.sinks["c1"].all())

	h.resetSinks()
	require.NoError(t, h.do(t, "b1", EventMarkAsRead, map[string]string{"conversationId": convID}))
	var again MessagesRead
	h.reply(t, "b1", EventMarkAsRead, &again)
	assert.NotNil(t, again.SeenIDs)
	assert.Empty(t, again.SeenIDs)

	assert.ErrorIs(t, h.do(t, "c1", EventMarkAsRead, convID), errs.ErrForbidden)
	assert.ErrorIs(t, h.do(t, "b1", EventMarkAsRead, ""), errs.ErrValidation)
	assert.Equal(t, 1, countType(h.pub.types(), model.ChatEventMessagesRead))
}

func countType(types []string, want string) int {
	n := 0
	for _, t := range types {
		if t == want {
			n++
		}
	}
	return n
}

func TestJoinLeaveConversation(t *testing.T) {
	h := newHarness(t)
	h.connect(t, "a1", "alice")
	h.connect(t, "b1", "bob")
	h.connect(t, "c1", "carol")
	convID := h.firstConversation(t)
	room := chat.ConversationRoom(convID)

	require.NoError(t, h.do(t, "a1", EventJoinConversation, convID))
	assert.True(t, h.router.InRoom("a1", room))
	assert.ErrorIs(t, h.do(t, "c1", EventJoinConversation, convID), errs.ErrForbidden)
	assert.False(t, h.router.InRoom("c1", room))

	require.NoError(t, h.do(t, "a1", EventLeaveConversation, convID))
	assert.False(t, h.router.InRoom("a1", room))
	assert.ErrorIs(t, h.do(t, "a1", EventJoinConversation, 42), errs.ErrValidation)
}

// failingStore fails message writes.
type failingStore struct {
	*store.Memory
}

func (f failingStore) CreateMessage(context.Context, *model.Message) error {
	return errs.ErrStorage.WrapMsg("insert failed")
}

func TestStorageFailureBroadcastsNothing(t *testing.T) {
	h := newHarnessWith(t, func(m *store.Memory) store.Store { return failingStore{m} })
	h.connect(t, "a1", "alice")
	h.connect(t, "b1", "bob")

	err := h.do(t, "a1", EventSendMessage, SendMessageReq{RecipientID: "bob", Content: "hi"})
	assert.ErrorIs(t, err, errs.ErrStorage)
	h.noFramesBut(t)
	assert.NotContains(t, h.pub.types(), model.ChatEventMessageCreated)
}
