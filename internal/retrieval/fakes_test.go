package retrieval

import (
	"context"
	"sync/atomic"

	"github.com/david/grant-search/internal/models"
)

// fakeEmbedder returns a fixed vector unless EmbedFunc is set.
type fakeEmbedder struct {
	Vector    []float32
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     atomic.Int32
}

func (f *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.EmbedFunc != nil {
		return f.EmbedFunc(ctx, text)
	}
	return f.Vector, nil
}

type fakeEmbeddingSource struct {
	Table    models.EmbeddingTable
	Err      error
	LoadFunc func(ctx context.Context) (models.EmbeddingTable, error)
	calls    atomic.Int32
}

func (f *fakeEmbeddingSource) LoadEmbeddings(ctx context.Context) (models.EmbeddingTable, error) {
	f.calls.Add(1)
	if f.LoadFunc != nil {
		return f.LoadFunc(ctx)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Table, nil
}

type fakeGrantSource struct {
	Grants models.GrantCollection
	Err    error
	calls  atomic.Int32
}

func (f *fakeGrantSource) LoadGrants(ctx context.Context) (models.GrantCollection, error) {
	f.calls.Add(1)
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Grants, nil
}
