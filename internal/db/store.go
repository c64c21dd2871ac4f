package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/grant-search/internal/models"
)

type Store struct {
	pool  *pgxpool.Pool
	model string
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithModel tags embeddings written by this store with the model name.
func (s *Store) WithModel(model string) *Store {
	s.model = model
	return s
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

const grantCols = `id, title, description, amount_min, amount_max, url, eligibility, deadline, next_cycle_start_date`

func scanGrant(scan func(dest ...any) error) (models.Grant, error) {
	var g models.Grant
	var eligibility []string
	err := scan(
		&g.ID, &g.Title, &g.Description, &g.AmountMin, &g.AmountMax,
		&g.URL, &eligibility, &g.Deadline, &g.NextCycleStartDate,
	)
	if err != nil {
		return g, err
	}
	if eligibility == nil {
		eligibility = []string{}
	}
	g.Eligibility = eligibility
	return g, nil
}

func (s *Store) LoadGrants(ctx context.Context) (models.GrantCollection, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+grantCols+" FROM grants")
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	out := make(models.GrantCollection)
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return out, nil
}

func (s *Store) GetGrant(ctx context.Context, id string) (*models.Grant, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+grantCols+" FROM grants WHERE id = $1", id)
	g, err := scanGrant(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrGrantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get grant %s: %w", id, err)
	}
	return &g, nil
}

func (s *Store) LoadEmbeddings(ctx context.Context) (models.EmbeddingTable, error) {
	rows, err := s.pool.Query(ctx, "SELECT grant_id, embedding FROM grant_embeddings")
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	out := make(models.EmbeddingTable)
	for rows.Next() {
		var id string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		out[id] = vec.Slice()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

const upsertGrantSQL = `
	INSERT INTO grants (` + grantCols + `, source_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		description = EXCLUDED.description,
		amount_min = EXCLUDED.amount_min,
		amount_max = EXCLUDED.amount_max,
		url = EXCLUDED.url,
		eligibility = EXCLUDED.eligibility,
		deadline = EXCLUDED.deadline,
		next_cycle_start_date = EXCLUDED.next_cycle_start_date,
		source_id = EXCLUDED.source_id,
		updated_at = NOW()`

func grantArgs(g models.Grant, sourceID string) []any {
	elig := g.Eligibility
	if elig == nil {
		elig = []string{}
	}
	if sourceID == "" {
		sourceID = "manual"
	}
	return []any{g.ID, g.Title, g.Description, g.AmountMin, g.AmountMax, g.URL, elig, g.Deadline, g.NextCycleStartDate, sourceID}
}

// UpsertGrants writes grants in one transaction and returns how many were
// written.
func (s *Store) UpsertGrants(ctx context.Context, sourceID string, grants []models.Grant) (int, error) {
	if len(grants) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, g := range grants {
		batch.Queue(upsertGrantSQL, grantArgs(g, sourceID)...)
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("upsert grants: %w", err)
	}
	return len(grants), nil
}

const upsertEmbeddingSQL = `
	INSERT INTO grant_embeddings (grant_id, model, embedding)
	VALUES ($1, $2, $3)
	ON CONFLICT (grant_id) DO UPDATE SET
		model = EXCLUDED.model,
		embedding = EXCLUDED.embedding,
		updated_at = NOW()`

func (s *Store) UpsertEmbeddings(ctx context.Context, table models.EmbeddingTable) error {
	if len(table) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for id, vec := range table {
		if len(vec) == 0 {
			continue
		}
		batch.Queue(upsertEmbeddingSQL, id, s.model, pgvector.NewVector(vec))
	}
	if err := s.sendBatch(ctx, batch); err != nil {
		return fmt.Errorf("upsert embeddings: %w", err)
	}
	return nil
}

func (s *Store) sendBatch(ctx context.Context, batch *pgx.Batch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GrantsMissingEmbeddings returns grants that have no stored vector.
func (s *Store) GrantsMissingEmbeddings(ctx context.Context) ([]models.Grant, error) {
	cols := "g." + strings.ReplaceAll(grantCols, ", ", ", g.")
	rows, err := s.pool.Query(ctx, `
		SELECT `+cols+`
		FROM grants g
		LEFT JOIN grant_embeddings e ON e.grant_id = g.id
		WHERE e.grant_id IS NULL
		ORDER BY g.id`)
	if err != nil {
		return nil, fmt.Errorf("query missing embeddings: %w", err)
	}
	defer rows.Close()

	var out []models.Grant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) GetStats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{GeneratedAt: time.Now()}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM grants),
			(SELECT COUNT(*) FROM grant_embeddings),
			(SELECT COUNT(*) FROM grants g WHERE NOT EXISTS (SELECT 1 FROM grant_embeddings e WHERE e.grant_id = g.id)),
			(SELECT COALESCE(MAX(vector_dims(embedding)), 0) FROM grant_embeddings),
			(SELECT COUNT(*) FROM grants WHERE amount_min IS NOT NULL OR amount_max IS NOT NULL),
			(SELECT COUNT(*) FROM grants WHERE deadline > NOW())
	`).Scan(&st.Grants, &st.Embeddings, &st.MissingVectors, &st.Dimension, &st.WithAmount, &st.UpcomingDeadline)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

// Ingest runs

func (s *Store) StartRun(ctx context.Context, sourceID string) (string, error) {
	runID := uuid.New()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO ingest_runs (run_id, source_id, status) VALUES ($1, $2, $3)",
		runID, sourceID, models.RunRunning)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return runID.String(), nil
}

// FinishRun closes a run. A non-nil runErr marks it failed.
func (s *Store) FinishRun(ctx context.Context, runID string, counts models.RunCounts, runErr error) error {
	status := models.RunCompleted
	var lastError *string
	if runErr != nil {
		status = models.RunFailed
		msg := runErr.Error()
		lastError = &msg
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_runs SET
			status = $2, items_found = $3, items_saved = $4, embedded = $5,
			errors = $6, last_error = $7, completed_at = NOW()
		WHERE run_id = $1`,
		runID, status, counts.ItemsFound, counts.ItemsSaved, counts.Embedded, counts.Errors, lastError)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.IngestRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id::text, source_id, status, items_found, items_saved, embedded, errors,
		       COALESCE(last_error, ''), started_at, completed_at
		FROM ingest_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []models.IngestRun
	for rows.Next() {
		var r models.IngestRun
		if err := rows.Scan(&r.RunID, &r.SourceID, &r.Status, &r.ItemsFound, &r.ItemsSaved,
			&r.Embedded, &r.Errors, &r.LastError, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
