package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedStore is a read-through Redis cache in front of another Store.
// Redis failures never fail a call; the underlying store answers instead.
type CachedStore struct {
	next   Store
	client redis.Cmdable
	ttl    time.Duration
}

func NewCachedStore(next Store, client redis.Cmdable, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedStore{next: next, client: client, ttl: ttl}
}

func convKey(organizationID int64, sessionID string) string {
	return fmt.Sprintf("conv:%d:%s", organizationID, sessionID)
}

func (s *CachedStore) Messages(ctx context.Context, organizationID int64, sessionID string) ([]Message, error) {
	key := convKey(organizationID, sessionID)

	if msgs, ok := s.cached(ctx, key); ok {
		return msgs, nil
	}

	msgs, err := s.next.Messages(ctx, organizationID, sessionID)
	if err != nil || len(msgs) == 0 {
		return msgs, err
	}
	s.fill(ctx, key, msgs)
	return msgs, nil
}

func (s *CachedStore) Append(ctx context.Context, organizationID int64, sessionID string, msgs ...Message) (int, error) {
	n, err := s.next.Append(ctx, organizationID, sessionID, msgs...)
	if err != nil {
		return 0, err
	}
	key := convKey(organizationID, sessionID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		slog.Warn("conversation cache: invalidation failed", "error", err, "key", key)
	}
	return n, nil
}

func (s *CachedStore) cached(ctx context.Context, key string) ([]Message, bool) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		slog.Warn("conversation cache: read failed", "error", err, "key", key)
		return nil, false
	}
	if len(vals) == 0 {
		return nil, false
	}

	msgs := make([]Message, 0, len(vals))
	for _, v := range vals {
		var m Message
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			// A partial log would shift message indexes, so drop the entry.
			slog.Warn("conversation cache: malformed entry", "error", err, "key", key)
			s.client.Del(ctx, key)
			return nil, false
		}
		msgs = append(msgs, m)
	}
	return msgs, true
}

func (s *CachedStore) fill(ctx context.Context, key string, msgs []Message) {
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			return
		}
		values = append(values, string(data))
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("conversation cache: fill failed", "error", err, "key", key)
	}
}
