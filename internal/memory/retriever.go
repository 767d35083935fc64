// Package memory assembles the conversational context handed to the language
// model: a window of recent messages, plus older messages recalled by
// similarity search when the user refers back to earlier exchanges.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/rsm-platform/rsm/internal/conversation"
	"github.com/rsm-platform/rsm/internal/metrics"
	"github.com/rsm-platform/rsm/internal/vectorstore"
)

// ErrInvalidRequest is returned for a request missing its organization,
// session or message.
var ErrInvalidRequest = errors.New("memory: invalid request")

// HistoryLoader reads a session's full message log.
type HistoryLoader interface {
	Messages(ctx context.Context, organizationID int64, sessionID string) ([]conversation.Message, error)
}

// ChunkRetriever runs the similarity search.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, filter vectorstore.Filter, k int) ([]vectorstore.Chunk, error)
}

type Request struct {
	OrganizationID int64
	SessionID      string
	// Message is the user's new utterance.
	Message string
}

// Context is the assembled conversation context. Messages are in
// chronological order and Indexes holds the log position of each one.
type Context struct {
	Messages   []conversation.Message `json:"messages"`
	Indexes    []int                  `json:"indexes"`
	Triggered  bool                   `json:"triggered"`
	Categories []string               `json:"categories,omitempty"`
	Historical int                    `json:"historical"`
	Degraded   bool                   `json:"degraded"`
}

type Retriever struct {
	cfg     Config
	history HistoryLoader
	chunks  ChunkRetriever
}

// NewRetriever builds a Retriever. chunks may be nil, which disables
// historical retrieval.
func NewRetriever(cfg Config, history HistoryLoader, chunks ChunkRetriever) *Retriever {
	return &Retriever{cfg: cfg, history: history, chunks: chunks}
}

// RetrieveContext returns the context for req. It only fails when the request
// is invalid or the history cannot be loaded; a failed similarity search
// degrades to the recent window.
func (r *Retriever) RetrieveContext(ctx context.Context, req Request) (*Context, error) {
	if req.OrganizationID <= 0 || req.SessionID == "" || strings.TrimSpace(req.Message) == "" {
		return nil, ErrInvalidRequest
	}

	msgs, err := r.history.Messages(ctx, req.OrganizationID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	total := len(msgs)
	start := max(0, total-r.cfg.RecentWindow)
	out := &Context{
		Messages: append([]conversation.Message{}, msgs[start:]...),
		Indexes:  indexRange(start, total),
	}
	if total == 0 {
		metrics.RetrievalsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return out, nil
	}

	out.Categories = r.cfg.Triggers.Categories(req.Message)
	out.Triggered = len(out.Categories) > 0
	if !out.Triggered || r.chunks == nil {
		metrics.RetrievalsTotal.WithLabelValues(metrics.OutcomeSkipped).Inc()
		return out, nil
	}

	chunks, err := r.search(ctx, req)
	if err != nil {
		slog.Warn("memory retrieval failed, using recent window only",
			"error", err, "org_id", req.OrganizationID, "session_id", req.SessionID)
		out.Degraded = true
		metrics.RetrievalsTotal.WithLabelValues(metrics.OutcomeDegraded).Inc()
		return out, nil
	}

	older := r.olderIndexes(req, chunks, start, total)
	if len(older) > 0 {
		merged := make([]conversation.Message, 0, len(older)+len(out.Messages))
		for _, i := range older {
			merged = append(merged, msgs[i])
		}
		out.Messages = append(merged, out.Messages...)
		out.Indexes = append(older, out.Indexes...)
	}
	out.Historical = len(older)

	metrics.RetrievalsTotal.WithLabelValues(metrics.OutcomeRetrieved).Inc()
	metrics.HistoricalMessages.Observe(float64(out.Historical))
	slog.Debug("memory context assembled",
		"org_id", req.OrganizationID, "session_id", req.SessionID,
		"categories", out.Categories, "historical", out.Historical, "recent", total-start)
	return out, nil
}

// search runs one bounded similarity search. A panic in the backend is
// reported as an error.
func (r *Retriever) search(ctx context.Context, req Request) (chunks []vectorstore.Chunk, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RetrievalTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			chunks, err = nil, fmt.Errorf("vector store panic: %v", p)
		}
	}()

	started := time.Now()
	defer func() { metrics.RetrievalDuration.Observe(time.Since(started).Seconds()) }()

	filter := vectorstore.Filter{OrganizationID: req.OrganizationID, SessionID: req.SessionID}
	return r.chunks.Retrieve(ctx, req.Message, filter, r.cfg.TopK)
}

// olderIndexes maps chunks to distinct message indexes before the recent
// window, ascending.
func (r *Retriever) olderIndexes(req Request, chunks []vectorstore.Chunk, windowStart, total int) []int {
	seen := make(map[int]bool, len(chunks))
	var older []int
	for _, c := range chunks {
		md := c.Metadata
		switch {
		case md.OrganizationID != req.OrganizationID:
			slog.Error("memory: dropping chunk of another organization",
				"chunk_id", c.ID, "org_id", req.OrganizationID, "chunk_org_id", md.OrganizationID)
			continue
		case md.SessionID != req.SessionID:
			slog.Warn("memory: dropping chunk of another session",
				"chunk_id", c.ID, "session_id", req.SessionID, "chunk_session_id", md.SessionID)
			continue
		case md.MessageIndex < 0 || md.MessageIndex >= total:
			slog.Warn("memory: dropping chunk with out of range index",
				"chunk_id", c.ID, "index", md.MessageIndex, "total", total)
			continue
		case md.MessageIndex >= windowStart:
			continue
		case seen[md.MessageIndex]:
			continue
		}
		seen[md.MessageIndex] = true
		older = append(older, md.MessageIndex)
	}
	slices.Sort(older)
	return older
}

func indexRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
