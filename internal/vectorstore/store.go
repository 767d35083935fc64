// Package vectorstore stores embedded conversation chunks and retrieves the
// ones most similar to a query, always scoped to one organization.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rsm-platform/rsm/internal/embedding"
)

// ErrMissingTenant is returned when a write or query carries no organization.
var ErrMissingTenant = errors.New("vectorstore: organization id is required")

// Metadata tags every chunk. OrganizationID is mandatory.
type Metadata struct {
	OrganizationID int64     `json:"organization_id"`
	SessionID      string    `json:"session_id"`
	MessageIndex   int       `json:"message_index"`
	Role           string    `json:"role,omitempty"`
	Timestamp      time.Time `json:"timestamp,omitzero"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`
}

// Document is a piece of text waiting to be embedded and indexed.
type Document struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Record is a Document with its embedding.
type Record struct {
	Document
	Embedding []float32
}

// Chunk is a search hit. Higher Score means more similar.
type Chunk struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
	Score    float32  `json:"score"`
}

// Filter restricts a search. SessionID is optional.
type Filter struct {
	OrganizationID int64
	SessionID      string
}

// Index is a vector index backend.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, vector []float32, filter Filter, k int) ([]Chunk, error)
}

// Store combines an embedder with an index.
type Store struct {
	embedder embedding.Embedder
	index    Index
}

func NewStore(embedder embedding.Embedder, index Index) *Store {
	return &Store{embedder: embedder, index: index}
}

// AddDocuments embeds docs in one batch and writes them to the index.
// It returns the number of documents written.
func (s *Store) AddDocuments(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		if d.Metadata.OrganizationID <= 0 {
			return 0, fmt.Errorf("document %q: %w", d.ID, ErrMissingTenant)
		}
		texts[i] = d.Content
	}

	vecs, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding documents: %w", err)
	}

	records := make([]Record, len(docs))
	for i, d := range docs {
		if d.Metadata.EmbeddingModel == "" {
			d.Metadata.EmbeddingModel = s.embedder.Model()
		}
		records[i] = Record{Document: d, Embedding: vecs[i]}
	}

	if err := s.index.Upsert(ctx, records); err != nil {
		return 0, fmt.Errorf("upserting documents: %w", err)
	}
	return len(records), nil
}

// Retrieve returns up to k chunks most similar to query within filter.
func (s *Store) Retrieve(ctx context.Context, query string, filter Filter, k int) ([]Chunk, error) {
	if filter.OrganizationID <= 0 {
		return nil, ErrMissingTenant
	}
	if k <= 0 {
		return nil, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	chunks, err := s.index.Search(ctx, vec, filter, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if c.Metadata.OrganizationID != filter.OrganizationID {
			slog.Error("vector index returned chunk of another organization",
				"chunk_id", c.ID, "want_org", filter.OrganizationID, "got_org", c.Metadata.OrganizationID)
			continue
		}
		kept = append(kept, c)
	}
	return kept, nil
}
