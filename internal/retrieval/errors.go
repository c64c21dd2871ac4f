package retrieval

import "errors"

var (
	// ErrSearchUnavailable marks a search that could not run because the
	// embedder or the embedding store failed. It is distinct from a search
	// that ran and matched nothing.
	ErrSearchUnavailable = errors.New("search temporarily unavailable")

	// ErrEmptyEmbedding is returned when the embedder answers without a vector.
	ErrEmptyEmbedding = errors.New("embedder returned an empty vector")

	// ErrNonFiniteEmbedding is returned when the query vector holds NaN or Inf.
	ErrNonFiniteEmbedding = errors.New("embedder returned a non-finite vector")

	ErrEmbedderRequired        = errors.New("embedder is required")
	ErrEmbeddingSourceRequired = errors.New("embedding source is required")
	ErrGrantSourceRequired     = errors.New("grant source is required")
	ErrRankerRequired          = errors.New("ranker is required")
)
