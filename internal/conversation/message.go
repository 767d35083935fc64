// Package conversation persists chat sessions as append-only message logs
// in each organization's database.
package conversation

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Accepted timestamp layouts, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Message is one turn of a conversation. Its position in the session log is
// its message index. Timestamp is optional free text as stored by clients;
// the service stamps RFC 3339 when it is missing.
type Message struct {
	Role      Role   `json:"role" validate:"required,oneof=user assistant"`
	Content   string `json:"content" validate:"required"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Time parses Timestamp. Empty or unparseable values yield the zero time.
func (m Message) Time() time.Time {
	if m.Timestamp == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// AppendRequest is the body of the append endpoint.
type AppendRequest struct {
	Messages []Message `json:"messages" validate:"required,min=1,max=100,dive"`
}
