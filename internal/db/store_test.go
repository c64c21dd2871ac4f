package db

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grant-search/internal/models"
)

func TestMigrationNamesOrdered(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_grants.sql", names[0])
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestMigrationsCreateTables(t *testing.T) {
	var all strings.Builder
	names, err := migrationNames()
	require.NoError(t, err)
	for _, n := range names {
		b, err := migrationsFS.ReadFile("migrations/" + n)
		require.NoError(t, err)
		all.Write(b)
	}
	for _, table := range []string{"grants", "grant_embeddings", "users", "saved_grants", "ingest_runs"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}

func TestScanGrant(t *testing.T) {
	deadline := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	ceiling := 500.0
	scan := func(dest ...any) error {
		require.Len(t, dest, 9)
		*dest[0].(*string) = "g1"
		*dest[1].(*string) = "Seed"
		*dest[2].(*string) = "desc"
		*dest[4].(**float64) = &ceiling
		*dest[5].(*string) = "https://example.org"
		*dest[7].(*time.Time) = deadline
		return nil
	}
	g, err := scanGrant(scan)
	require.NoError(t, err)
	assert.Equal(t, "g1", g.ID)
	assert.Nil(t, g.AmountMin)
	assert.Equal(t, 500.0, *g.AmountMax)
	assert.Equal(t, deadline, g.Deadline)
	assert.NotNil(t, g.Eligibility, "a NULL array comes back empty")
}

func TestScanGrantError(t *testing.T) {
	_, err := scanGrant(func(dest ...any) error { return errors.New("boom") })
	assert.Error(t, err)
}

func TestGrantArgsDefaults(t *testing.T) {
	args := grantArgs(models.Grant{ID: "g1"}, "")
	require.Len(t, args, 10)
	assert.Equal(t, []string{}, args[6])
	assert.Equal(t, "manual", args[9])
}

// TestStoreRoundTrip needs a Postgres with pgvector; set TEST_DATABASE_URL.
func TestStoreRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, ApplyMigrations(ctx, pool))
	require.NoError(t, ApplyMigrations(ctx, pool), "migrations are idempotent")

	s := NewStore(pool).WithModel("test")
	g := models.Grant{
		ID:          "test-g1",
		Title:       "Round trip",
		AmountMax:   models.Float64Ptr(100),
		Eligibility: []string{"PhD"},
		Deadline:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	n, err := s.UpsertGrants(ctx, "test", []models.Grant{g})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), "DELETE FROM grants WHERE id = $1", g.ID) })

	got, err := s.GetGrant(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Title, got.Title)
	assert.True(t, got.Deadline.Equal(g.Deadline))

	_, err = s.GetGrant(ctx, "does-not-exist")
	assert.ErrorIs(t, err, models.ErrGrantNotFound)

	require.NoError(t, s.UpsertEmbeddings(ctx, models.EmbeddingTable{g.ID: {1, 0, 0}}))
	table, err := s.LoadEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, table[g.ID])

	runID, err := s.StartRun(ctx, "test")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, runID, models.RunCounts{ItemsFound: 1, ItemsSaved: 1}, nil))
	runs, err := s.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
}
