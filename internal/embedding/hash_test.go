package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder_DeterministicUnitVectors(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := h.Embed(ctx, "Le premier client")
	require.NoError(t, err)
	b, err := h.Embed(ctx, "le PREMIER client")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(cosine(a, a)), 1e-5)
}

func TestHashEmbedder_SharedWordsAreCloser(t *testing.T) {
	h := NewHashEmbedder(256)
	ctx := context.Background()

	q, _ := h.Embed(ctx, "session d'enregistrement avec Marie")
	near, _ := h.Embed(ctx, "Marie veut une session d'enregistrement")
	far, _ := h.Embed(ctx, "facture impayée du mois dernier")

	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}
