package handlers

import (
	"context"
	"encoding/json"

	"PPRealtime/module/chat/model"
	"PPRealtime/service/chat"
)

// typingRelay forwards typing/stopTyping to the other members of the room.
// Only participants may signal; nothing is persisted.
func (h *Handlers) typingRelay(event string) chat.HandlerFunc {
	return func(ctx context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
		req, err := decodeStrict[ConversationReq](data)
		if err != nil {
			return chat.Outcome{}, err
		}
		if err := required("conversationId", req.ConversationID); err != nil {
			return chat.Outcome{}, err
		}
		if _, err := h.participantConversation(ctx, req.ConversationID, s.UserID); err != nil {
			return chat.Outcome{}, err
		}
		payload := TypingPayload{UserID: s.UserID, ConversationID: req.ConversationID}
		return chat.Outcome{}.Emit(
			chat.ToRoom(chat.ConversationRoom(req.ConversationID), event, payload).ExcludingUser(s.UserID),
		), nil
	}
}

// MarkAsRead flags the other participant's unseen messages and sends the
// refreshed list to every participant's personal room.
func (h *Handlers) MarkAsRead(ctx context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
	convID, err := decodeConversationID(data)
	if err != nil {
		return chat.Outcome{}, err
	}
	conv, err := h.participantConversation(ctx, convID, s.UserID)
	if err != nil {
		return chat.Outcome{}, err
	}
	seen, err := h.store.MarkSeen(ctx, conv.ID, s.UserID)
	if err != nil {
		return chat.Outcome{}, err
	}
	msgs, err := h.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return chat.Outcome{}, err
	}
	if seen == nil {
		seen = []string{}
	}
	if len(seen) > 0 {
		h.publish(ctx, model.ChatEvent{Type: model.ChatEventMessagesRead, ConversationID: conv.ID, UserID: s.UserID, SeenIDs: seen})
	}

	payload := MessagesRead{
		ConversationID: conv.ID,
		ReaderID:       s.UserID,
		SeenIDs:        seen,
		Messages:       h.populate(ctx, msgs...),
	}
	out := chat.Outcome{Reply: payload}
	notified := make(map[string]bool, len(conv.Participants))
	for _, p := range conv.Participants {
		if notified[p] {
			continue
		}
		notified[p] = true
		out = out.Emit(chat.ToUser(p, EventMessagesRead, payload))
	}
	return out, nil
}

// JoinConversation subscribes the connection to the conversation room.
func (h *Handlers) JoinConversation(ctx context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
	convID, err := decodeConversationID(data)
	if err != nil {
		return chat.Outcome{}, err
	}
	if _, err := h.participantConversation(ctx, convID, s.UserID); err != nil {
		return chat.Outcome{}, err
	}
	if err := h.rooms.Join(s.ConnID, chat.ConversationRoom(convID)); err != nil {
		return chat.Outcome{}, err
	}
	return chat.Outcome{Reply: ConversationReq{ConversationID: convID}}, nil
}

func (h *Handlers) LeaveConversation(_ context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
	convID, err := decodeConversationID(data)
	if err != nil {
		return chat.Outcome{}, err
	}
	h.rooms.Leave(s.ConnID, chat.ConversationRoom(convID))
	return chat.Outcome{Reply: ConversationReq{ConversationID: convID}}, nil
}
