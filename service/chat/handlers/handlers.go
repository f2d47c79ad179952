package handlers

import (
	"context"
	"errors"
	"time"

	"PPRealtime/module/chat/model"
	"PPRealtime/module/chat/store"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"go.uber.org/zap"
)

// Rooms is the part of the router handlers use: membership, plus delivery for
// messages that arrive outside a realtime connection.
type Rooms interface {
	Join(connID, room string) error
	Leave(connID, room string)
	Emit(b chat.Broadcast) error
}

// Publisher records committed mutations, e.g. on a Kafka topic.
type Publisher interface {
	Publish(ctx context.Context, ev model.ChatEvent) error
}

// Handlers implements the client event table on top of the store.
type Handlers struct {
	store  store.Store
	rooms  Rooms
	events Publisher
	log    *zap.Logger
	now    func() time.Time
}

func New(st store.Store, rooms Rooms, log *zap.Logger) *Handlers {
	safe.MustNotNil(st, "store")
	safe.MustNotNil(rooms, "rooms")
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{store: st, rooms: rooms, log: log.Named("handlers"), now: store.Now}
}

// SetPublisher installs the optional event log.
func (h *Handlers) SetPublisher(p Publisher) { h.events = p }

// Register fills the dispatch table.
func (h *Handlers) Register(d *chat.Dispatcher) {
	d.Register(EventSendMessage, h.SendMessage)
	d.Register(EventDeleteMessage, h.DeleteMessage)
	d.Register(EventUpdateMessage, h.UpdateMessage)
	d.Register(EventTyping, h.typingRelay(EventTyping))
	d.Register(EventStopTyping, h.typingRelay(EventStopTyping))
	d.Register(EventMarkAsRead, h.MarkAsRead)
	d.Register(EventJoinConversation, h.JoinConversation)
	d.Register(EventLeaveConversation, h.LeaveConversation)
}

func (h *Handlers) publish(ctx context.Context, ev model.ChatEvent) {
	if h.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = h.now()
	}
	if err := h.events.Publish(ctx, ev); err != nil {
		h.log.Warn("publish event failed", zap.String("type", ev.Type), zap.String("conversationId", ev.ConversationID), zap.Error(err))
	}
}

// populate attaches sender profiles. Missing or unreadable profiles fall back
// to the bare id.
func (h *Handlers) populate(ctx context.Context, msgs ...*model.Message) []model.MessageView {
	ids := make([]string, 0, 2)
	seen := make(map[string]bool, 2)
	for _, m := range msgs {
		if !seen[m.Sender] {
			seen[m.Sender] = true
			ids = append(ids, m.Sender)
		}
	}
	users, err := h.store.GetUsers(ctx, ids)
	if err != nil {
		h.log.Warn("populate senders failed", zap.Strings("userIds", ids), zap.Error(err))
		users = nil
	}
	out := make([]model.MessageView, len(msgs))
	for i, m := range msgs {
		out[i] = m.Populate(users[m.Sender])
	}
	return out
}

// participantConversation loads convID and checks userID belongs to it.
func (h *Handlers) participantConversation(ctx context.Context, convID, userID string) (*model.Conversation, error) {
	conv, err := h.store.GetConversation(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, errs.ErrForbidden.WrapMsg("not a participant", "conversationId", convID, "userId", userID)
	}
	return conv, nil
}

// ownMessage loads messageID and checks userID authored it.
func (h *Handlers) ownMessage(ctx context.Context, messageID, userID string) (*model.Message, error) {
	msg, err := h.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Sender != userID {
		return nil, errs.ErrForbidden.WrapMsg("not the author", "messageId", messageID, "userId", userID)
	}
	return msg, nil
}

func isNotFound(err error) bool { return errors.Is(err, errs.ErrNotFound) }
