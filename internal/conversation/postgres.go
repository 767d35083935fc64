package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolResolver returns the database pool of an organization.
type PoolResolver interface {
	Pool(ctx context.Context, organizationID int64) (*pgxpool.Pool, error)
}

// PostgresStore keeps each session as a JSONB array in the organization's
// ai_conversations table.
type PostgresStore struct {
	pools PoolResolver
}

func NewPostgresStore(pools PoolResolver) *PostgresStore {
	return &PostgresStore{pools: pools}
}

func (s *PostgresStore) Messages(ctx context.Context, organizationID int64, sessionID string) ([]Message, error) {
	pool, err := s.pools.Pool(ctx, organizationID)
	if err != nil {
		return nil, err
	}

	var raw []byte
	err = pool.QueryRow(ctx,
		`SELECT messages FROM ai_conversations WHERE session_id = $1`,
		sessionID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading conversation %s: %w", sessionID, err)
	}

	var msgs []Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decoding conversation %s: %w", sessionID, err)
	}
	return msgs, nil
}

func (s *PostgresStore) Append(ctx context.Context, organizationID int64, sessionID string, msgs ...Message) (int, error) {
	pool, err := s.pools.Pool(ctx, organizationID)
	if err != nil {
		return 0, err
	}

	payload, err := json.Marshal(msgs)
	if err != nil {
		return 0, fmt.Errorf("encoding messages: %w", err)
	}

	// The row lock taken by the upsert serializes concurrent appends.
	var length int
	err = pool.QueryRow(ctx,
		`INSERT INTO ai_conversations (session_id, messages)
		 VALUES ($1, $2::jsonb)
		 ON CONFLICT (session_id) DO UPDATE
		 SET messages = ai_conversations.messages || EXCLUDED.messages,
		     updated_at = NOW()
		 RETURNING jsonb_array_length(messages)`,
		sessionID, payload,
	).Scan(&length)
	if err != nil {
		return 0, fmt.Errorf("appending to conversation %s: %w", sessionID, err)
	}
	return length, nil
}
