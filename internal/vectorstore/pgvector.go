package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// PgVectorIndex stores chunks in the memory_chunks table of the master database.
type PgVectorIndex struct {
	pool *pgxpool.Pool
}

func NewPgVectorIndex(pool *pgxpool.Pool) *PgVectorIndex {
	return &PgVectorIndex{pool: pool}
}

const upsertChunkSQL = `
INSERT INTO memory_chunks (id, organization_id, session_id, message_index, role, content, embedding, embedding_model, message_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    content         = EXCLUDED.content,
    embedding       = EXCLUDED.embedding,
    embedding_model = EXCLUDED.embedding_model,
    role            = EXCLUDED.role,
    message_at      = EXCLUDED.message_at`

func (p *PgVectorIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return fmt.Errorf("chunk id %q: %w", r.ID, err)
		}
		var messageAt *time.Time
		if !r.Metadata.Timestamp.IsZero() {
			ts := r.Metadata.Timestamp
			messageAt = &ts
		}
		batch.Queue(upsertChunkSQL,
			id, r.Metadata.OrganizationID, r.Metadata.SessionID, r.Metadata.MessageIndex,
			r.Metadata.Role, r.Content, pgvector.NewVector(r.Embedding), r.Metadata.EmbeddingModel, messageAt,
		)
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upserting memory chunk: %w", err)
		}
	}
	return nil
}

func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, filter Filter, k int) ([]Chunk, error) {
	if filter.OrganizationID <= 0 {
		return nil, ErrMissingTenant
	}

	rows, err := p.pool.Query(ctx,
		`SELECT id, organization_id, session_id, message_index, role, content, embedding_model, message_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM memory_chunks
		 WHERE organization_id = $2
		   AND ($3 = '' OR session_id = $3)
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(vector), filter.OrganizationID, filter.SessionID, k,
	)
	if err != nil {
		return nil, fmt.Errorf("searching memory chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var (
			c         Chunk
			id        uuid.UUID
			messageAt *time.Time
			score     float64
		)
		if err := rows.Scan(&id, &c.Metadata.OrganizationID, &c.Metadata.SessionID, &c.Metadata.MessageIndex,
			&c.Metadata.Role, &c.Content, &c.Metadata.EmbeddingModel, &messageAt, &score); err != nil {
			return nil, fmt.Errorf("scanning memory chunk: %w", err)
		}
		c.ID = id.String()
		c.Score = float32(score)
		if messageAt != nil {
			c.Metadata.Timestamp = *messageAt
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DeleteSession removes every chunk of a session.
func (p *PgVectorIndex) DeleteSession(ctx context.Context, organizationID int64, sessionID string) (int64, error) {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM memory_chunks WHERE organization_id = $1 AND session_id = $2`,
		organizationID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting session chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}
