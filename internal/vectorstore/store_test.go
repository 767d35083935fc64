package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsm-platform/rsm/internal/embedding"
)

type fakeIndex struct {
	upserted []Record
	filters  []Filter
	chunks   []Chunk
	err      error
}

func (f *fakeIndex) Upsert(_ context.Context, records []Record) error {
	f.upserted = append(f.upserted, records...)
	return f.err
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, filter Filter, _ int) ([]Chunk, error) {
	f.filters = append(f.filters, filter)
	return f.chunks, f.err
}

func TestStore_RejectsMissingTenant(t *testing.T) {
	idx := &fakeIndex{}
	s := NewStore(embedding.NewHashEmbedder(8), idx)
	ctx := context.Background()

	_, err := s.Retrieve(ctx, "q", Filter{SessionID: "s"}, 5)
	assert.ErrorIs(t, err, ErrMissingTenant)

	_, err = s.AddDocuments(ctx, []Document{{ID: "x", Content: "c"}})
	assert.ErrorIs(t, err, ErrMissingTenant)

	assert.Empty(t, idx.filters)
	assert.Empty(t, idx.upserted)
}

func TestStore_DropsForeignChunks(t *testing.T) {
	idx := &fakeIndex{chunks: []Chunk{
		{ID: "a", Metadata: Metadata{OrganizationID: 7, MessageIndex: 1}},
		{ID: "b", Metadata: Metadata{OrganizationID: 8, MessageIndex: 2}},
	}}
	s := NewStore(embedding.NewHashEmbedder(8), idx)

	chunks, err := s.Retrieve(context.Background(), "q", Filter{OrganizationID: 7}, 5)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a", chunks[0].ID)
	assert.Equal(t, []Filter{{OrganizationID: 7}}, idx.filters)
}

func TestStore_AddDocumentsStampsModel(t *testing.T) {
	idx := &fakeIndex{}
	s := NewStore(embedding.NewHashEmbedder(8), idx)

	n, err := s.AddDocuments(context.Background(), []Document{
		{ID: "1", Content: "user: a", Metadata: Metadata{OrganizationID: 1}},
		{ID: "2", Content: "user: b", Metadata: Metadata{OrganizationID: 1, EmbeddingModel: "custom"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, idx.upserted, 2)
	assert.Equal(t, "hash", idx.upserted[0].Metadata.EmbeddingModel)
	assert.Equal(t, "custom", idx.upserted[1].Metadata.EmbeddingModel)
	assert.Len(t, idx.upserted[0].Embedding, 8)
}

func TestStore_IndexErrorIsWrapped(t *testing.T) {
	boom := errors.New("boom")
	s := NewStore(embedding.NewHashEmbedder(8), &fakeIndex{err: boom})

	_, err := s.Retrieve(context.Background(), "q", Filter{OrganizationID: 1}, 5)
	assert.ErrorIs(t, err, boom)
}
