package retrieval

import (
	"context"

	"github.com/david/grant-search/internal/models"
)

// Embedder turns query text into a vector. Implementations report failures
// as errors, never as a zero-length vector with a nil error.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingSource loads the full embedding table. The returned table is
// treated as read-only.
type EmbeddingSource interface {
	LoadEmbeddings(ctx context.Context) (models.EmbeddingTable, error)
}

// GrantSource loads the grant collection.
type GrantSource interface {
	LoadGrants(ctx context.Context) (models.GrantCollection, error)
}
