// Package storage opens the configured grant store.
package storage

import (
	"context"
	"fmt"

	"github.com/david/grant-search/internal/config"
	"github.com/david/grant-search/internal/db"
	"github.com/david/grant-search/internal/filestore"
	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/retrieval"
	"github.com/david/grant-search/internal/sqlitestore"
)

// Writer persists grants and embeddings.
type Writer interface {
	UpsertGrants(ctx context.Context, sourceID string, grants []models.Grant) (int, error)
	UpsertEmbeddings(ctx context.Context, table models.EmbeddingTable) error
}

// Store is implemented by every backend.
type Store interface {
	retrieval.GrantSource
	retrieval.EmbeddingSource
	Writer
	GetGrant(ctx context.Context, id string) (*models.Grant, error)
	GrantsMissingEmbeddings(ctx context.Context) ([]models.Grant, error)
	GetStats(ctx context.Context) (*models.Stats, error)
	Close() error
}

// RunRecorder is implemented by backends that keep ingest run history.
type RunRecorder interface {
	StartRun(ctx context.Context, sourceID string) (string, error)
	FinishRun(ctx context.Context, runID string, counts models.RunCounts, runErr error) error
	RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error)
}

var (
	_ Store       = (*db.Store)(nil)
	_ Store       = (*sqlitestore.Store)(nil)
	_ Store       = (*filestore.Store)(nil)
	_ RunRecorder = (*db.Store)(nil)
	_ RunRecorder = (*sqlitestore.Store)(nil)
)

// Open returns the backend named by cfg.Driver. model tags stored vectors.
// Postgres migrations are applied when migrate is set.
func Open(ctx context.Context, cfg config.StoreConfig, model string, migrate bool) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := db.ApplyMigrations(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		return db.NewStore(pool).WithModel(model), nil
	case config.DriverSQLite:
		s, err := sqlitestore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s.WithModel(model), nil
	case config.DriverFile:
		return filestore.New(cfg.GrantsPath, cfg.EmbeddingsPath), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
