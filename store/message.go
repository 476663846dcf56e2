package store

type MessageRole string

const (
	MessageRoleUser      MessageRole = "USER"
	MessageRoleAssistant MessageRole = "ASSISTANT"
)

// MessageStatus is the lifecycle status of an assistant message.
// User messages are created COMPLETED and never transition.
type MessageStatus string

const (
	MessageStatusStreaming MessageStatus = "STREAMING"
	MessageStatusCompleted MessageStatus = "COMPLETED"
	MessageStatusError     MessageStatus = "ERROR"
	MessageStatusStopped   MessageStatus = "STOPPED"
)

// IsTerminal reports whether the status ends a generation.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageStatusCompleted || s == MessageStatusError || s == MessageStatusStopped
}

// Message is one turn (user or assistant) within a conversation.
// Assistant message content grows append-only while STREAMING, then freezes.
type Message struct {
	ID             int32
	UID            string
	ConversationID int32
	Role           MessageRole
	Content        string
	// Model is the model identifier used to produce the message.
	// For user messages it records the model requested for the reply.
	Model     string
	Status    MessageStatus
	CreatedTs int64
	UpdatedTs int64
}

type FindMessage struct {
	ID             *int32
	UID            *string
	ConversationID *int32
	Status         *MessageStatus
}

type UpdateMessage struct {
	ID        int32
	Content   *string
	Status    *MessageStatus
	UpdatedTs *int64
}

type DeleteMessage struct {
	ID             *int32
	ConversationID *int32
}
