package retrieval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/david/grant-search/internal/models"
)

// EmbeddingCache keeps the last embedding table loaded from a source and
// serves it until it is invalidated or older than the TTL. A TTL of zero
// means entries never expire on their own.
//
// The cached table is handed out as-is and must not be modified by callers.
type EmbeddingCache struct {
	source EmbeddingSource
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	table    models.EmbeddingTable
	loadedAt time.Time
}

var _ EmbeddingSource = (*EmbeddingCache)(nil)

func NewEmbeddingCache(source EmbeddingSource, ttl time.Duration, opts ...Option) (*EmbeddingCache, error) {
	if source == nil {
		return nil, ErrEmbeddingSourceRequired
	}
	s := applyOptions(opts)
	return &EmbeddingCache{
		source: source,
		ttl:    ttl,
		now:    s.now,
		logger: s.logger,
	}, nil
}

// LoadEmbeddings returns the cached table, loading it from the source when
// nothing is cached or the cached copy has expired. Failed loads are not
// cached. Concurrent callers share a single load.
func (c *EmbeddingCache) LoadEmbeddings(ctx context.Context) (models.EmbeddingTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil && !c.expiredLocked() {
		return c.table, nil
	}

	table, err := c.source.LoadEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if table == nil {
		table = models.EmbeddingTable{}
	}
	c.table = table
	c.loadedAt = c.now()
	c.logger.Info("embedding table loaded", "count", len(table), "dimension", table.Dimension())
	return table, nil
}

// Invalidate drops the cached table; the next load goes to the source.
func (c *EmbeddingCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = nil
	c.loadedAt = time.Time{}
}

// Cached reports whether a table is currently held.
func (c *EmbeddingCache) Cached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.table != nil && !c.expiredLocked()
}

func (c *EmbeddingCache) expiredLocked() bool {
	return c.ttl > 0 && c.now().Sub(c.loadedAt) >= c.ttl
}
