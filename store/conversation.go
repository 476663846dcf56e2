package store

// Visibility controls who can read a conversation.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityPublic  Visibility = "PUBLIC"
)

// Conversation is a thread of messages owned by one user.
type Conversation struct {
	ID         int32
	UID        string
	CreatorID  int32
	Title      string
	Visibility Visibility
	CreatedTs  int64
	UpdatedTs  int64
}

type FindConversation struct {
	ID         *int32
	UID        *string
	CreatorID  *int32
	Visibility *Visibility
	Limit      *int
}

type UpdateConversation struct {
	ID         int32
	Title      *string
	Visibility *Visibility
	UpdatedTs  *int64
}

type DeleteConversation struct {
	ID int32
}
