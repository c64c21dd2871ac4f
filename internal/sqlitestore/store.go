// Package sqlitestore keeps grants and their embeddings in a local SQLite
// file. Vectors are stored as little-endian float32 blobs.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/vecblob"
)

const schema = `
CREATE TABLE IF NOT EXISTS grants (
	id                    TEXT PRIMARY KEY,
	title                 TEXT NOT NULL,
	description           TEXT NOT NULL DEFAULT '',
	amount_min            REAL,
	amount_max            REAL,
	url                   TEXT NOT NULL DEFAULT '',
	eligibility           TEXT NOT NULL DEFAULT '[]',
	deadline              TEXT NOT NULL,
	next_cycle_start_date TEXT,
	source_id             TEXT NOT NULL DEFAULT 'manual',
	updated_at            TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS grant_embeddings (
	grant_id   TEXT PRIMARY KEY,
	model      TEXT NOT NULL DEFAULT '',
	dim        INTEGER NOT NULL,
	embedding  BLOB NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ingest_runs (
	run_id       TEXT PRIMARY KEY,
	source_id    TEXT NOT NULL,
	status       TEXT NOT NULL,
	items_found  INTEGER NOT NULL DEFAULT 0,
	items_saved  INTEGER NOT NULL DEFAULT 0,
	embedded     INTEGER NOT NULL DEFAULT 0,
	errors       INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	completed_at TEXT
);
`

// Fixed-width UTC timestamps so that text comparison orders chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db    *sql.DB
	model string
	now   func() time.Time
}

// Open opens (creating if needed) the database at dsn and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps modernc happy with concurrent upserts
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) WithModel(model string) *Store {
	s.model = model
	return s
}

func (s *Store) Close() error { return s.db.Close() }

const grantCols = `id, title, description, amount_min, amount_max, url, eligibility, deadline, next_cycle_start_date`

func scanGrant(scan func(dest ...any) error) (models.Grant, error) {
	var (
		g          models.Grant
		amin, amax sql.NullFloat64
		eligRaw    string
		deadline   string
		nextCycle  sql.NullString
	)
	if err := scan(&g.ID, &g.Title, &g.Description, &amin, &amax, &g.URL, &eligRaw, &deadline, &nextCycle); err != nil {
		return g, err
	}
	if amin.Valid {
		g.AmountMin = models.Float64Ptr(amin.Float64)
	}
	if amax.Valid {
		g.AmountMax = models.Float64Ptr(amax.Float64)
	}
	g.Eligibility = []string{}
	if eligRaw != "" {
		if err := json.Unmarshal([]byte(eligRaw), &g.Eligibility); err != nil {
			return g, fmt.Errorf("decode eligibility for %s: %w", g.ID, err)
		}
	}
	d, err := time.Parse(timeLayout, deadline)
	if err != nil {
		return g, fmt.Errorf("decode deadline for %s: %w", g.ID, err)
	}
	g.Deadline = d
	if nextCycle.Valid && nextCycle.String != "" {
		t, err := time.Parse(timeLayout, nextCycle.String)
		if err != nil {
			return g, fmt.Errorf("decode next cycle for %s: %w", g.ID, err)
		}
		g.NextCycleStartDate = &t
	}
	return g, nil
}

func (s *Store) LoadGrants(ctx context.Context) (models.GrantCollection, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+grantCols+" FROM grants")
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	out := make(models.GrantCollection)
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out[g.ID] = g
	}
	return out, rows.Err()
}

func (s *Store) GetGrant(ctx context.Context, id string) (*models.Grant, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+grantCols+" FROM grants WHERE id = ?", id)
	g, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) LoadEmbeddings(ctx context.Context) (models.EmbeddingTable, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT grant_id, embedding FROM grant_embeddings")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(models.EmbeddingTable)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := vecblob.Decode(blob)
		if err != nil {
			slog.Warn("skipping embedding", "grant_id", id, "err", err)
			continue
		}
		out[id] = vec
	}
	return out, rows.Err()
}

func (s *Store) UpsertGrants(ctx context.Context, sourceID string, grants []models.Grant) (int, error) {
	if sourceID == "" {
		sourceID = "manual"
	}
	now := s.now().UTC().Format(timeLayout)
	n := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO grants (`+grantCols+`, source_id, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				amount_min = excluded.amount_min,
				amount_max = excluded.amount_max,
				url = excluded.url,
				eligibility = excluded.eligibility,
				deadline = excluded.deadline,
				next_cycle_start_date = excluded.next_cycle_start_date,
				source_id = excluded.source_id,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, g := range grants {
			elig := g.Eligibility
			if elig == nil {
				elig = []string{}
			}
			eligRaw, err := json.Marshal(elig)
			if err != nil {
				return err
			}
			var next any
			if g.NextCycleStartDate != nil {
				next = g.NextCycleStartDate.UTC().Format(timeLayout)
			}
			if _, err := stmt.ExecContext(ctx, g.ID, g.Title, g.Description, g.AmountMin, g.AmountMax,
				g.URL, string(eligRaw), g.Deadline.UTC().Format(timeLayout), next, sourceID, now); err != nil {
				return fmt.Errorf("upsert grant %s: %w", g.ID, err)
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) UpsertEmbeddings(ctx context.Context, table models.EmbeddingTable) error {
	now := s.now().UTC().Format(timeLayout)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO grant_embeddings (grant_id, model, dim, embedding, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(grant_id) DO UPDATE SET
				model = excluded.model,
				dim = excluded.dim,
				embedding = excluded.embedding,
				updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for id, vec := range table {
			if len(vec) == 0 {
				continue
			}
			if _, err := stmt.ExecContext(ctx, id, s.model, len(vec), vecblob.Encode(vec), now); err != nil {
				return fmt.Errorf("upsert embedding %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *Store) GrantsMissingEmbeddings(ctx context.Context) ([]models.Grant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+grantCols+` FROM grants
		WHERE id NOT IN (SELECT grant_id FROM grant_embeddings)
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Grant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetStats(ctx context.Context) (*models.Stats, error) {
	now := s.now()
	st := &models.Stats{GeneratedAt: now}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM grants),
			(SELECT COUNT(*) FROM grant_embeddings),
			(SELECT COUNT(*) FROM grants WHERE id NOT IN (SELECT grant_id FROM grant_embeddings)),
			(SELECT COALESCE(MAX(dim), 0) FROM grant_embeddings),
			(SELECT COUNT(*) FROM grants WHERE amount_min IS NOT NULL OR amount_max IS NOT NULL),
			(SELECT COUNT(*) FROM grants WHERE deadline > ?)`,
		now.UTC().Format(timeLayout),
	).Scan(&st.Grants, &st.Embeddings, &st.MissingVectors, &st.Dimension, &st.WithAmount, &st.UpcomingDeadline)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func (s *Store) StartRun(ctx context.Context, sourceID string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO ingest_runs (run_id, source_id, status, started_at) VALUES (?, ?, ?, ?)",
		runID, sourceID, models.RunRunning, s.now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return runID, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, counts models.RunCounts, runErr error) error {
	status, lastError := models.RunCompleted, ""
	if runErr != nil {
		status, lastError = models.RunFailed, runErr.Error()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingest_runs SET status = ?, items_found = ?, items_saved = ?, embedded = ?,
			errors = ?, last_error = ?, completed_at = ?
		WHERE run_id = ?`,
		status, counts.ItemsFound, counts.ItemsSaved, counts.Embedded, counts.Errors, lastError,
		s.now().UTC().Format(timeLayout), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, source_id, status, items_found, items_saved, embedded, errors, last_error, started_at, completed_at
		FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.IngestRun
	for rows.Next() {
		var r models.IngestRun
		var started string
		var completed sql.NullString
		if err := rows.Scan(&r.RunID, &r.SourceID, &r.Status, &r.ItemsFound, &r.ItemsSaved,
			&r.Embedded, &r.Errors, &r.LastError, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, err
		}
		if completed.Valid {
			t, err := time.Parse(timeLayout, completed.String)
			if err != nil {
				return nil, err
			}
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
