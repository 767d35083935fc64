// Package indexer keeps the vector store in step with conversation logs. It
// consumes append events and embeds every message not yet indexed.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/rsm-platform/rsm/internal/chunker"
	"github.com/rsm-platform/rsm/internal/conversation"
	"github.com/rsm-platform/rsm/internal/metrics"
	inats "github.com/rsm-platform/rsm/internal/nats"
	"github.com/rsm-platform/rsm/internal/vectorstore"
)

// ConsumerName is the durable JetStream consumer of append events.
const ConsumerName = "memory-indexer"

const watermarkTTL = 30 * 24 * time.Hour

// errMalformed marks events that can never succeed and must not be redelivered.
var errMalformed = errors.New("indexer: malformed event")

// HistoryLoader reads a session log.
type HistoryLoader interface {
	Messages(ctx context.Context, organizationID int64, sessionID string) ([]conversation.Message, error)
}

// DocumentWriter embeds and stores documents.
type DocumentWriter interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) (int, error)
}

// Publisher announces indexing progress.
type Publisher interface {
	PublishConversationIndexed(ctx context.Context, evt inats.ConversationIndexed) error
}

type Indexer struct {
	history   HistoryLoader
	writer    DocumentWriter
	chunker   *chunker.Chunker
	redis     redis.Cmdable
	publisher Publisher
	now       func() time.Time
}

// New builds an Indexer. publisher may be nil.
func New(history HistoryLoader, writer DocumentWriter, c *chunker.Chunker, rdb redis.Cmdable, publisher Publisher) *Indexer {
	return &Indexer{
		history:   history,
		writer:    writer,
		chunker:   c,
		redis:     rdb,
		publisher: publisher,
		now:       time.Now,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (ix *Indexer) Start(ctx context.Context, consumerMgr *inats.ConsumerManager) error {
	consumer, err := consumerMgr.EnsureConsumer(ctx, inats.StreamConversations, ConsumerName, inats.SubjectConversationAppended)
	if err != nil {
		return err
	}

	slog.Info("indexer started", "consumer", ConsumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("indexer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			ix.handleMsg(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (ix *Indexer) handleMsg(ctx context.Context, msg jetstream.Msg) {
	err := ix.handle(ctx, msg.Data())
	switch {
	case err == nil:
		_ = msg.Ack()
	case errors.Is(err, errMalformed):
		slog.Error("indexer: dropping event", "error", err)
		_ = msg.Ack()
	default:
		slog.Error("indexer: indexing conversation", "error", err)
		_ = msg.Nak()
	}
}

func (ix *Indexer) handle(ctx context.Context, data []byte) error {
	var evt inats.ConversationAppended
	if err := json.Unmarshal(data, &evt); err != nil {
		metrics.IndexingFailuresTotal.WithLabelValues("decode").Inc()
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if evt.OrganizationID <= 0 || evt.SessionID == "" {
		metrics.IndexingFailuresTotal.WithLabelValues("decode").Inc()
		return fmt.Errorf("%w: missing organization or session", errMalformed)
	}
	return ix.IndexSession(ctx, evt.OrganizationID, evt.SessionID)
}

// IndexSession embeds every message of a session past its watermark and
// advances the watermark. Re-indexing a message overwrites its documents.
func (ix *Indexer) IndexSession(ctx context.Context, organizationID int64, sessionID string) error {
	log := slog.With("organization_id", organizationID, "session_id", sessionID)

	msgs, err := ix.history.Messages(ctx, organizationID, sessionID)
	if err != nil {
		metrics.IndexingFailuresTotal.WithLabelValues("load").Inc()
		return fmt.Errorf("loading session log: %w", err)
	}

	key := WatermarkKey(organizationID, sessionID)
	from, err := ix.watermark(ctx, key)
	if err != nil {
		metrics.IndexingFailuresTotal.WithLabelValues("watermark").Inc()
		return err
	}
	if from >= len(msgs) {
		log.Debug("indexer: session already indexed", "indexed_up_to", from)
		return nil
	}

	docs := ix.chunker.Messages(organizationID, sessionID, from, msgs[from:])
	n, err := ix.writer.AddDocuments(ctx, docs)
	if err != nil {
		metrics.IndexingFailuresTotal.WithLabelValues("store").Inc()
		return fmt.Errorf("storing %d chunks: %w", len(docs), err)
	}
	metrics.ChunksIndexedTotal.Add(float64(n))

	if err := ix.redis.Set(ctx, key, len(msgs), watermarkTTL).Err(); err != nil {
		// The chunks are stored; the next event re-embeds them under the same ids.
		metrics.IndexingFailuresTotal.WithLabelValues("watermark").Inc()
		return fmt.Errorf("advancing watermark: %w", err)
	}

	log.Info("indexer: session indexed", "from", from, "indexed_up_to", len(msgs), "chunks", n)

	if ix.publisher != nil {
		evt := inats.ConversationIndexed{
			OrganizationID: organizationID,
			SessionID:      sessionID,
			IndexedUpTo:    len(msgs),
			Chunks:         n,
			IndexedAt:      ix.now().UTC(),
		}
		if err := ix.publisher.PublishConversationIndexed(ctx, evt); err != nil {
			log.Warn("indexer: publishing indexed event", "error", err)
		}
	}
	return nil
}

func (ix *Indexer) watermark(ctx context.Context, key string) (int, error) {
	v, err := ix.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark: %w", err)
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		slog.Warn("indexer: discarding corrupt watermark", "key", key, "value", v)
		return 0, nil
	}
	return n, nil
}

// WatermarkKey is the Redis key holding how many messages of a session are indexed.
func WatermarkKey(organizationID int64, sessionID string) string {
	return fmt.Sprintf("memory:indexed:%d:%s", organizationID, sessionID)
}
