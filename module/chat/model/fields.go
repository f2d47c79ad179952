package model

// bson field names
const (
	FieldID        = "_id"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"

	UserFieldStatus = "status"

	ConversationFieldParticipants  = "participants"
	ConversationFieldPairKey       = "pairKey"
	ConversationFieldLastMessage   = "lastMessage"
	ConversationFieldLastMessageAt = "lastMessageAt"

	MessageFieldConversation = "conversation"
	MessageFieldSender       = "sender"
	MessageFieldContent      = "content"
	MessageFieldSeen         = "seen"

	StoryFieldUser      = "user"
	StoryFieldExpiresAt = "expiresAt"
)
