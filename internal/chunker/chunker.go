// Package chunker turns conversation messages into vector store documents.
package chunker

import (
	"fmt"
	"strings"

	"github.com/rsm-platform/rsm/internal/conversation"
	"github.com/rsm-platform/rsm/internal/vectorstore"
)

// Chunker splits messages into windows of at most Size whitespace tokens,
// consecutive windows sharing Overlap tokens.
type Chunker struct {
	size    int
	overlap int
}

func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Messages chunks msgs, whose first element sits at firstIndex in the
// session log. Messages with blank content produce no documents.
func (c *Chunker) Messages(organizationID int64, sessionID string, firstIndex int, msgs []conversation.Message) []vectorstore.Document {
	var docs []vectorstore.Document
	for i, m := range msgs {
		index := firstIndex + i
		for part, text := range c.split(m.Content) {
			docs = append(docs, vectorstore.Document{
				ID:      vectorstore.DocumentID(organizationID, sessionID, index, part),
				Content: string(m.Role) + ": " + text,
				Metadata: vectorstore.Metadata{
					OrganizationID: organizationID,
					SessionID:      sessionID,
					MessageIndex:   index,
					Role:           string(m.Role),
					Timestamp:      m.Time(),
				},
			})
		}
	}
	return docs
}

func (c *Chunker) split(content string) []string {
	tokens := strings.Fields(content)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.size {
		return []string{strings.Join(tokens, " ")}
	}

	step := c.size - c.overlap
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := min(start+c.size, len(tokens))
		out = append(out, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return out
}
