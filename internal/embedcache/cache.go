// Package embedcache keeps query embeddings in badger so repeated queries
// skip the embedding service.
package embedcache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/david/grant-search/internal/vecblob"
)

const keyPrefix = "emb:"

type Cache struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

type Option func(*Cache)

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTTL sets the entry lifetime. Zero keeps entries forever.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// Open opens a cache rooted at dir. An empty dir gives an in-memory cache.
func Open(dir string, opts ...Option) (*Cache, error) {
	c := &Cache{logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}

	var bopts badger.Options
	if dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		bopts = badger.DefaultOptions(dir)
	}
	bopts.Logger = &loggerAdapter{logger: c.logger}
	bopts.Compression = options.None

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	c.db = db
	return c, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Key derives the cache key for text embedded with model.
func Key(model, text string) []byte {
	sum := sha1.Sum([]byte(model + "|" + text))
	return []byte(keyPrefix + hex.EncodeToString(sum[:]))
}

// Get returns the cached vector and true, or false on a miss.
func (c *Cache) Get(model, text string) ([]float32, bool, error) {
	var vec []float32
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(Key(model, text))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		vec, err = vecblob.Decode(raw)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached embedding: %w", err)
	}
	return vec, len(vec) > 0, nil
}

func (c *Cache) Put(model, text string, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	err := c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(Key(model, text), vecblob.Encode(vec))
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("write cached embedding: %w", err)
	}
	return nil
}

// Purge drops every cached embedding.
func (c *Cache) Purge() error {
	return c.db.DropPrefix([]byte(keyPrefix))
}

type loggerAdapter struct {
	logger *slog.Logger
}

func (l *loggerAdapter) Errorf(msg string, args ...any) { l.logger.Error(fmt.Sprintf(msg, args...)) }
func (l *loggerAdapter) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}
func (l *loggerAdapter) Infof(msg string, args ...any)  { l.logger.Debug(fmt.Sprintf(msg, args...)) }
func (l *loggerAdapter) Debugf(msg string, args ...any) { l.logger.Debug(fmt.Sprintf(msg, args...)) }
