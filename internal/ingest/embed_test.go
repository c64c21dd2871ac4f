package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grant-search/internal/models"
)

func TestEmbedGrants(t *testing.T) {
	grants := []models.Grant{
		{ID: "g1", Description: "line one\nline two"},
		{ID: "g2", Description: "   "},
		{ID: "g3", Description: "already embedded"},
		{ID: "g4", Description: "flaky"},
	}
	existing := models.EmbeddingTable{"g3": {9, 9}}
	emb := &textEmbedder{fail: map[string]int{"flaky": 1}}

	res, err := EmbedGrants(t.Context(), emb, grants, existing, EmbedOptions{Workers: 2, BaseDelay: time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)
	require.Len(t, res.Vectors, 2)
	// newlines collapse before embedding
	assert.Equal(t, []float32{float32(len("line one line two")), 1}, res.Vectors["g1"])
	assert.Contains(t, res.Vectors, "g4")
	assert.NotContains(t, res.Vectors, "g3")
	assert.Equal(t, 3, emb.calls)
}

func TestEmbedGrantsForceAndFailures(t *testing.T) {
	grants := []models.Grant{
		{ID: "g1", Description: "ok"},
		{ID: "g2", Description: "broken"},
	}
	existing := models.EmbeddingTable{"g1": {1}}
	emb := &textEmbedder{fail: map[string]int{"broken": -1}}

	res, err := EmbedGrants(t.Context(), emb, grants, existing,
		EmbedOptions{Force: true, MaxRetries: 2, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Contains(t, res.Vectors, "g1")
	assert.NotContains(t, res.Vectors, "g2")
	assert.Equal(t, 3, emb.calls)
}

func TestEmbedGrantsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := EmbedGrants(ctx, &textEmbedder{}, []models.Grant{{ID: "g1", Description: "x"}}, nil, EmbedOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
