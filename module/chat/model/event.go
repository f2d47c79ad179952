package model

import "time"

// Chat event types written to the domain event log.
const (
	ChatEventMessageCreated = "message.created"
	ChatEventMessageUpdated = "message.updated"
	ChatEventMessageDeleted = "message.deleted"
	ChatEventMessagesRead   = "messages.read"
	ChatEventConvCreated    = "conversation.created"
)

// ChatEvent records a committed mutation.
type ChatEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId,omitempty"`
	UserID         string    `json:"userId"`
	SeenIDs        []string  `json:"seenIds,omitempty"`
	Message        *Message  `json:"message,omitempty"`
	At             time.Time `json:"at"`
}
