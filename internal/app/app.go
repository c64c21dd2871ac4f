// Package app wires the configured store, embedder, search session and
// ingest pipeline for the server and CLI binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/david/grant-search/internal/ai"
	"github.com/david/grant-search/internal/auth"
	"github.com/david/grant-search/internal/config"
	"github.com/david/grant-search/internal/db"
	"github.com/david/grant-search/internal/embedcache"
	"github.com/david/grant-search/internal/ingest"
	"github.com/david/grant-search/internal/retrieval"
	"github.com/david/grant-search/internal/storage"
)

type App struct {
	Config   *config.Config
	Store    storage.Store
	Embedder ai.ModelEmbedder
	Cache    *retrieval.EmbeddingCache
	Ranker   *retrieval.Ranker
	Registry *ingest.Registry
	Logger   *slog.Logger

	queryCache *embedcache.Cache
}

// Open connects the store and builds the embedder. Postgres migrations run
// when migrate is set.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	emb, err := ai.NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	a.Embedder = emb
	if cfg.Cache.QueryCacheDir != "" {
		qc, err := embedcache.Open(cfg.Cache.QueryCacheDir,
			embedcache.WithLogger(logger), embedcache.WithTTL(cfg.Cache.QueryCacheTTL()))
		if err != nil {
			return nil, err
		}
		a.queryCache = qc
		a.Embedder = ai.NewCachingEmbedder(emb, qc, logger)
	}

	store, err := storage.Open(ctx, cfg.Store, emb.Model(), migrate)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store

	a.Cache, err = retrieval.NewEmbeddingCache(store, cfg.Cache.EmbeddingTTL(), retrieval.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Ranker, err = retrieval.NewRanker(a.Embedder, a.Cache, retrieval.WithLogger(logger))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry, err = ingest.LoadRegistry(cfg.Ingest.SourcesPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	for i := range a.Registry.Sources {
		ApplyFetchDefaults(&a.Registry.Sources[i], cfg.Ingest)
	}
	return a, nil
}

// ApplyFetchDefaults fills unset per-source fetch settings from the global
// ingest configuration.
func ApplyFetchDefaults(src *ingest.SourceConfig, cfg config.IngestConfig) {
	if src.Fetch.RateLimitRPS <= 0 {
		src.Fetch.RateLimitRPS = cfg.RateLimitRPS
	}
	if src.Fetch.MaxRetries <= 0 {
		src.Fetch.MaxRetries = cfg.MaxRetries
	}
}

// Session loads the grant collection into a search session.
func (a *App) Session(ctx context.Context) (*retrieval.Session, error) {
	return retrieval.NewSession(ctx, a.Store, a.Ranker, a.Cache, retrieval.WithLogger(a.Logger))
}

// Pipeline builds an ingest pipeline over reg, or the loaded registry when
// reg is nil. Model extraction is enabled for Ollama setups.
func (a *App) Pipeline(reg *ingest.Registry) *ingest.Pipeline {
	if reg == nil {
		reg = a.Registry
	}
	opts := []ingest.PipelineOption{
		ingest.WithPipelineLogger(a.Logger),
		ingest.WithEmbedOptions(ingest.EmbedOptions{
			Workers:    a.Config.Ingest.Workers,
			MaxRetries: a.Config.Ingest.MaxRetries,
		}),
	}
	if a.Config.Embedder.Provider == config.ProviderOllama && a.Config.Embedder.GenModel != "" {
		opts = append(opts, ingest.WithCompleter(ai.NewCompleter(a.Config.Embedder)))
	}
	// Ingest bypasses the query cache; descriptions are embedded once.
	var emb retrieval.Embedder = a.Embedder
	if ce, ok := a.Embedder.(*ai.CachingEmbedder); ok {
		emb = ce.Unwrap()
	}
	return ingest.NewPipeline(a.Store, emb, reg, opts...)
}

// Auth returns the account service when the store keeps users, or nil.
func (a *App) Auth() (*auth.Service, error) {
	pg, ok := a.Store.(*db.Store)
	if !ok {
		return nil, nil
	}
	return auth.NewService(pg, nil)
}

func (a *App) Close() error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.queryCache != nil {
		errs = append(errs, a.queryCache.Close())
	}
	return errors.Join(errs...)
}
