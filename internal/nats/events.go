package nats

import "time"

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// StreamConversations carries conversation lifecycle events.
const StreamConversations = "RSM_CONVERSATIONS"

// Subject constants.
const (
	SubjectConversationAppended = "rsm.conversations.appended"
	SubjectConversationIndexed  = "rsm.conversations.indexed"
)

// ConversationAppended is published after messages are appended to a session.
// Messages [FirstIndex, Length) are new.
type ConversationAppended struct {
	OrganizationID int64     `json:"organization_id"`
	SessionID      string    `json:"session_id"`
	FirstIndex     int       `json:"first_index"`
	Length         int       `json:"length"`
	AppendedAt     time.Time `json:"appended_at"`
}

// ConversationIndexed is published once messages up to IndexedUpTo are searchable.
type ConversationIndexed struct {
	OrganizationID int64     `json:"organization_id"`
	SessionID      string    `json:"session_id"`
	IndexedUpTo    int       `json:"indexed_up_to"`
	Chunks         int       `json:"chunks"`
	IndexedAt      time.Time `json:"indexed_at"`
}
