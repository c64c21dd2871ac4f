package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/david/grant-search/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultNumResults is the number of ids returned when the caller does not
// ask for a specific count.
const DefaultNumResults = 10

// ScoredGrant is a grant id with its cosine similarity to the query.
type ScoredGrant struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Ranker orders grants by semantic similarity to a free-text query.
// It holds no mutable state and is safe for concurrent use.
type Ranker struct {
	embedder Embedder
	source   EmbeddingSource
	logger   *slog.Logger
}

// NewRanker creates a ranker backed by the given embedder and embedding store.
func NewRanker(embedder Embedder, source EmbeddingSource, opts ...Option) (*Ranker, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if source == nil {
		return nil, ErrEmbeddingSourceRequired
	}
	s := applyOptions(opts)
	return &Ranker{
		embedder: embedder,
		source:   source,
		logger:   s.logger,
	}, nil
}

// RankGrantsByQuery returns up to numResults grant ids ordered by descending
// similarity to query.
//
// When the embedder or the embedding store fails the result is empty and the
// error wraps ErrSearchUnavailable. A successful search that scores nothing
// returns an empty slice and a nil error.
func (r *Ranker) RankGrantsByQuery(ctx context.Context, query string, numResults int) ([]string, error) {
	scored, err := r.RankScored(ctx, query, numResults)
	ids := make([]string, 0, len(scored))
	for _, sg := range scored {
		ids = append(ids, sg.ID)
	}
	return ids, err
}

// RankScored is RankGrantsByQuery with the similarity of every returned id.
func (r *Ranker) RankScored(ctx context.Context, query string, numResults int) ([]ScoredGrant, error) {
	if numResults <= 0 {
		return []ScoredGrant{}, nil
	}

	// The two collaborator calls are independent reads.
	var (
		queryVec []float32
		table    models.EmbeddingTable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := r.embedder.GenerateEmbedding(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		if len(vec) == 0 {
			return ErrEmptyEmbedding
		}
		for _, v := range vec {
			if !finite(float64(v)) {
				return ErrNonFiniteEmbedding
			}
		}
		queryVec = vec
		return nil
	})
	g.Go(func() error {
		t, err := r.source.LoadEmbeddings(gctx)
		if err != nil {
			return fmt.Errorf("load embeddings: %w", err)
		}
		table = t
		return nil
	})
	if err := g.Wait(); err != nil {
		r.logger.Error("similarity search unavailable", "query", query, "err", err)
		return []ScoredGrant{}, fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
	}

	scored, skipped := ScoreTable(queryVec, table)
	if skipped > 0 {
		r.logger.Debug("embeddings with mismatched dimension scored as zero",
			"count", skipped, "dimension", len(queryVec))
	}
	if len(scored) > numResults {
		scored = scored[:numResults]
	}
	r.logger.Debug("similarity search complete", "query", query, "count", len(scored))
	return scored, nil
}

// ScoreTable scores every table entry against query and returns them sorted
// by descending score, ties broken by ascending id. skipped counts entries
// whose dimension differs from the query; they are kept with a score of 0.
func ScoreTable(query []float32, table models.EmbeddingTable) (scored []ScoredGrant, skipped int) {
	scored = make([]ScoredGrant, 0, len(table))
	for id, vec := range table {
		if len(vec) != len(query) {
			skipped++
		}
		scored = append(scored, ScoredGrant{ID: id, Score: CosineSimilarity(query, vec)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID
	})
	return scored, skipped
}
