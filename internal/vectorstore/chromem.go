package vectorstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const (
	metaOrganization = "organizationId"
	metaSession      = "sessionId"
	metaIndex        = "messageIndex"
	metaRole         = "role"
	metaTimestamp    = "timestamp"
	metaModel        = "embeddingModel"
)

// ChromemIndex is an in-process index. Each organization gets its own
// collection, and queries also filter on organization metadata.
type ChromemIndex struct {
	db          *chromem.DB
	collections map[int64]*chromem.Collection
	mu          sync.RWMutex
}

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[int64]*chromem.Collection),
	}
}

func (c *ChromemIndex) collection(orgID int64) (*chromem.Collection, error) {
	c.mu.RLock()
	col, ok := c.collections[orgID]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if col, ok := c.collections[orgID]; ok {
		return col, nil
	}

	// Embeddings are always supplied, so no embedding func is configured.
	col, err := c.db.GetOrCreateCollection(fmt.Sprintf("chatbot_memory_org_%d", orgID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	c.collections[orgID] = col
	return col, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, records []Record) error {
	for _, r := range records {
		if r.Metadata.OrganizationID <= 0 {
			return ErrMissingTenant
		}
		col, err := c.collection(r.Metadata.OrganizationID)
		if err != nil {
			return err
		}
		doc := chromem.Document{
			ID:        r.ID,
			Content:   r.Content,
			Embedding: r.Embedding,
			Metadata:  encodeMetadata(r.Metadata),
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return fmt.Errorf("adding document %s: %w", r.ID, err)
		}
	}
	return nil
}

func (c *ChromemIndex) Search(ctx context.Context, vector []float32, filter Filter, k int) ([]Chunk, error) {
	if filter.OrganizationID <= 0 {
		return nil, ErrMissingTenant
	}
	col, err := c.collection(filter.OrganizationID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults larger than the collection.
	n := min(k, col.Count())
	if n == 0 {
		return nil, nil
	}

	where := map[string]string{metaOrganization: strconv.FormatInt(filter.OrganizationID, 10)}
	if filter.SessionID != "" {
		where[metaSession] = filter.SessionID
	}

	results, err := col.QueryEmbedding(ctx, vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, res := range results {
		md, err := decodeMetadata(res.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", res.ID, err)
		}
		chunks = append(chunks, Chunk{ID: res.ID, Content: res.Content, Metadata: md, Score: res.Similarity})
	}
	return chunks, nil
}

func encodeMetadata(m Metadata) map[string]string {
	out := map[string]string{
		metaOrganization: strconv.FormatInt(m.OrganizationID, 10),
		metaSession:      m.SessionID,
		metaIndex:        strconv.Itoa(m.MessageIndex),
		metaRole:         m.Role,
		metaModel:        m.EmbeddingModel,
	}
	if !m.Timestamp.IsZero() {
		out[metaTimestamp] = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func decodeMetadata(raw map[string]string) (Metadata, error) {
	org, err := strconv.ParseInt(raw[metaOrganization], 10, 64)
	if err != nil {
		return Metadata{}, fmt.Errorf("parsing %s: %w", metaOrganization, err)
	}
	idx, err := strconv.Atoi(raw[metaIndex])
	if err != nil {
		return Metadata{}, fmt.Errorf("parsing %s: %w", metaIndex, err)
	}
	md := Metadata{
		OrganizationID: org,
		SessionID:      raw[metaSession],
		MessageIndex:   idx,
		Role:           raw[metaRole],
		EmbeddingModel: raw[metaModel],
	}
	if ts := raw[metaTimestamp]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			md.Timestamp = t
		}
	}
	return md, nil
}
