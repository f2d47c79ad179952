package handlers

import (
	"bytes"
	"encoding/json"
	"strings"

	"PPRealtime/module/chat/model"
	"PPRealtime/tools/decode"
	"PPRealtime/tools/errs"
)

// Client events
const (
	EventSendMessage       = "sendMessage"
	EventDeleteMessage     = "deleteMessage"
	EventUpdateMessage     = "updateMessage"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventMarkAsRead        = "markAsRead"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
)

// Server events
const (
	EventNewMessage          = "newMessage"
	EventConversationUpdated = "conversationUpdated"
	EventMessageDeleted      = "messageDeleted"
	EventMessageUpdated      = "messageUpdated"
	EventMessagesRead        = "messagesRead"
)

type SendMessageReq struct {
	ConversationID string             `json:"conversationId"`
	RecipientID    string             `json:"recipientId"`
	Content        string             `json:"content"`
	Attachments    []model.Attachment `json:"attachments"`
}

type SendMessageReply struct {
	ConversationID string            `json:"conversationId"`
	Created        bool              `json:"created"`
	Message        model.MessageView `json:"message"`
}

type DeleteMessageReq struct {
	MessageID string `json:"messageId"`
}

type UpdateMessageReq struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type ConversationReq struct {
	ConversationID string `json:"conversationId"`
}

type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
}

type TypingPayload struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type MessagesRead struct {
	ConversationID string              `json:"conversationId"`
	ReaderID       string              `json:"readerId"`
	SeenIDs        []string            `json:"seenIds"`
	Messages       []model.MessageView `json:"messages"`
}

// decodeStrict binds data onto T and rejects unknown fields.
func decodeStrict[T any](data json.RawMessage) (T, error) {
	v, err := decode.DecodeJSON[T](data, decode.Strict())
	if err != nil {
		return v, errs.ErrValidation.Wrap(err)
	}
	return v, nil
}

// decodeConversationID accepts a bare id string or {"conversationId": id}.
func decodeConversationID(data json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(data)
	var id string
	if len(trimmed) > 0 && trimmed[0] == '"' {
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", errs.ErrValidation.Wrap(err)
		}
	} else {
		req, err := decodeStrict[ConversationReq](data)
		if err != nil {
			return "", err
		}
		id = req.ConversationID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errs.ErrValidation.WrapMsg("conversationId is required")
	}
	return id, nil
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return errs.ErrValidation.WrapMsg(field + " is required")
	}
	return nil
}
