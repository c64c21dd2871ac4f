package ai

import (
	"context"
	"log/slog"
)

// VectorCache stores embeddings keyed by model and text.
type VectorCache interface {
	Get(model, text string) ([]float32, bool, error)
	Put(model, text string, vec []float32) error
}

// CachingEmbedder consults a VectorCache before calling the wrapped
// embedder. Cache failures are logged and never fail the call.
type CachingEmbedder struct {
	next   ModelEmbedder
	cache  VectorCache
	logger *slog.Logger
}

func NewCachingEmbedder(next ModelEmbedder, cache VectorCache, logger *slog.Logger) *CachingEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingEmbedder{next: next, cache: cache, logger: logger}
}

func (c *CachingEmbedder) Model() string { return c.next.Model() }

// Unwrap returns the embedder behind the cache.
func (c *CachingEmbedder) Unwrap() ModelEmbedder { return c.next }

func (c *CachingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	model := c.next.Model()
	if vec, ok, err := c.cache.Get(model, text); err != nil {
		c.logger.Warn("embedding cache read failed", "err", err)
	} else if ok {
		return vec, nil
	}

	vec, err := c.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(model, text, vec); err != nil {
		c.logger.Warn("embedding cache write failed", "err", err)
	}
	return vec, nil
}
