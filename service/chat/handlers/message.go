package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"PPRealtime/module/chat/model"
	"PPRealtime/module/chat/store"
	"PPRealtime/service/chat"
	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

// SendMessage stores a message, creating the pair conversation on first contact,
// and fans it out to the conversation room and both personal rooms.
func (h *Handlers) SendMessage(ctx context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
	req, err := decodeStrict[SendMessageReq](data)
	if err != nil {
		return chat.Outcome{}, err
	}
	return h.send(ctx, s.UserID, req)
}

// PostMessage is sendMessage for callers outside a realtime connection, such as
// the REST API. The fan-out is applied before it returns.
func (h *Handlers) PostMessage(ctx context.Context, senderID string, req SendMessageReq) (*SendMessageReply, error) {
	out, err := h.send(ctx, senderID, req)
	if err != nil {
		return nil, err
	}
	for _, b := range out.Broadcasts {
		if err := h.rooms.Emit(b); err != nil {
			h.log.Error("broadcast failed", zap.String("event", b.Event), zap.String("key", b.Key), zap.String("userId", senderID), zap.Error(err))
		}
	}
	reply := out.Reply.(SendMessageReply)
	return &reply, nil
}

func (h *Handlers) send(ctx context.Context, senderID string, req SendMessageReq) (chat.Outcome, error) {
	if strings.TrimSpace(req.Content) == "" && len(req.Attachments) == 0 {
		return chat.Outcome{}, errs.ErrValidation.WrapMsg("content or attachments required")
	}
	atts, err := model.NormalizeAttachments(req.Attachments)
	if err != nil {
		return chat.Outcome{}, err
	}

	var (
		conv      *model.Conversation
		created   bool
		recipient string
	)
	if req.ConversationID != "" {
		conv, err = h.participantConversation(ctx, req.ConversationID, senderID)
		if err != nil {
			return chat.Outcome{}, err
		}
		if req.RecipientID != "" && !conv.HasParticipant(req.RecipientID) {
			return chat.Outcome{}, errs.ErrValidation.WrapMsg("recipient is not in the conversation",
				"conversationId", conv.ID, "recipientId", req.RecipientID)
		}
		recipient = conv.Other(senderID)
	} else {
		if err := required("recipientId", req.RecipientID); err != nil {
			return chat.Outcome{}, err
		}
		if req.RecipientID == senderID {
			return chat.Outcome{}, errs.ErrValidation.WrapMsg("recipient must differ from sender")
		}
		conv, created, err = h.store.FindOrCreateConversation(ctx, senderID, req.RecipientID)
		if err != nil {
			return chat.Outcome{}, err
		}
		recipient = req.RecipientID
	}

	now := h.now()
	msg := &model.Message{
		ID:           store.NewID(),
		Conversation: conv.ID,
		Sender:       senderID,
		Content:      req.Content,
		Attachments:  atts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		return chat.Outcome{}, err
	}
	if _, err := h.store.AdvanceLastMessage(ctx, conv.ID, msg); err != nil {
		return chat.Outcome{}, err
	}

	view := h.populate(ctx, msg)[0]
	if created {
		h.publish(ctx, model.ChatEvent{Type: model.ChatEventConvCreated, ConversationID: conv.ID, UserID: senderID, At: now})
	}
	h.publish(ctx, model.ChatEvent{Type: model.ChatEventMessageCreated, ConversationID: conv.ID, MessageID: msg.ID, UserID: senderID, Message: msg, At: now})

	out := chat.Outcome{Reply: SendMessageReply{ConversationID: conv.ID, Created: created, Message: view}}
	return out.Emit(
		chat.ToRoom(chat.ConversationRoom(conv.ID), EventNewMessage, view),
		chat.ToUser(senderID, EventConversationUpdated, conv.ID),
		chat.ToUser(recipient, EventConversationUpdated, conv.ID),
	), nil
}

// DeleteMessage removes the requester's own message and repairs lastMessage.
func (h *Handlers) DeleteMessage(ctx context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
	req, err := decodeStrict[DeleteMessageReq](data)
	if err != nil {
		return chat.Outcome{}, err
	}
	if err := required("messageId", req.MessageID); err != nil {
		return chat.Outcome{}, err
	}
	msg, err := h.ownMessage(ctx, req.MessageID, s.UserID)
	if err != nil {
		return chat.Outcome{}, err
	}
	deleted, err := h.store.DeleteMessage(ctx, msg.ID)
	if err != nil {
		return chat.Outcome{}, err
	}
	if !deleted {
		return chat.Outcome{}, errs.ErrNotFound.WrapMsg("message already deleted", "messageId", msg.ID)
	}
	if err := store.RecomputeLastMessage(ctx, h.store, msg.Conversation, msg.ID); err != nil {
		return chat.Outcome{}, err
	}

	h.publish(ctx, model.ChatEvent{Type: model.ChatEventMessageDeleted, ConversationID: msg.Conversation, MessageID: msg.ID, UserID: s.UserID})

	payload := MessageDeleted{MessageID: msg.ID, ConversationID: msg.Conversation}
	return chat.Outcome{Reply: payload}.Emit(
		chat.ToRoom(chat.ConversationRoom(msg.Conversation), EventMessageDeleted, payload),
	), nil
}

// UpdateMessage edits the content of the requester's own message.
func (h *Handlers) UpdateMessage(ctx context.Context, s *chat.Session, data json.RawMessage) (chat.Outcome, error) {
	req, err := decodeStrict[UpdateMessageReq](data)
	if err != nil {
		return chat.Outcome{}, err
	}
	if err := required("messageId", req.MessageID); err != nil {
		return chat.Outcome{}, err
	}
	msg, err := h.ownMessage(ctx, req.MessageID, s.UserID)
	if err != nil {
		return chat.Outcome{}, err
	}
	if strings.TrimSpace(req.Content) == "" && len(msg.Attachments) == 0 {
		return chat.Outcome{}, errs.ErrValidation.WrapMsg("content required for a message without attachments", "messageId", msg.ID)
	}

	now := h.now()
	updated, err := h.store.UpdateMessageContent(ctx, msg.ID, req.Content, now)
	if err != nil {
		return chat.Outcome{}, err
	}
	conv, err := h.store.GetConversation(ctx, msg.Conversation)
	switch {
	case err == nil && conv.LastMessage == msg.ID:
		if err := h.store.TouchConversation(ctx, conv.ID, now); err != nil {
			return chat.Outcome{}, err
		}
	case err != nil && !isNotFound(err):
		return chat.Outcome{}, err
	}

	view := h.populate(ctx, updated)[0]
	h.publish(ctx, model.ChatEvent{Type: model.ChatEventMessageUpdated, ConversationID: msg.Conversation, MessageID: msg.ID, UserID: s.UserID, Message: updated, At: now})

	return chat.Outcome{Reply: view}.Emit(
		chat.ToRoom(chat.ConversationRoom(msg.Conversation), EventMessageUpdated, view),
	), nil
}
