package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/retrieval"
)

// EmbedOptions tunes EmbedGrants. Zero values take defaults.
type EmbedOptions struct {
	Workers    int
	MaxRetries int
	BaseDelay  time.Duration
	// Force re-embeds grants that already have a vector.
	Force  bool
	Logger *slog.Logger
}

func (o EmbedOptions) withDefaults() EmbedOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 500 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// EmbedResult reports what EmbedGrants did.
type EmbedResult struct {
	Vectors models.EmbeddingTable
	Skipped int
	Failed  int
}

// embeddingText is the description with newlines collapsed to spaces.
func embeddingText(g models.Grant) string {
	return strings.Join(strings.Fields(g.Description), " ")
}

// EmbedGrants embeds each grant's description on a worker pool. Grants
// without a description are skipped, as are grants already in existing
// unless opts.Force is set. Result.Vectors holds only the new vectors.
func EmbedGrants(ctx context.Context, emb retrieval.Embedder, grants []models.Grant, existing models.EmbeddingTable, opts EmbedOptions) (EmbedResult, error) {
	opts = opts.withDefaults()
	res := EmbedResult{Vectors: make(models.EmbeddingTable)}

	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return res, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, g := range grants {
		if _, ok := existing[g.ID]; ok && !opts.Force {
			continue
		}
		text := embeddingText(g)
		if text == "" {
			opts.Logger.Warn("grant has no description, skipping", "grant_id", g.ID, "title", g.Title)
			res.Skipped++
			continue
		}

		id := g.ID
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			var vec []float32
			err := RetryWithBackoff(ctx, func() error {
				v, err := emb.GenerateEmbedding(ctx, text)
				if err != nil {
					return err
				}
				vec = v
				return nil
			}, opts.MaxRetries, opts.BaseDelay)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				opts.Logger.Error("embedding failed", "grant_id", id, "err", err)
				res.Failed++
				return
			}
			res.Vectors[id] = vec
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			res.Failed++
			mu.Unlock()
			opts.Logger.Error("submit embedding task", "grant_id", id, "err", submitErr)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}
