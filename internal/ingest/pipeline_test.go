package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/sqlitestore"
)

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(t.Context(), filepath.Join(t.TempDir(), "grants.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s.WithModel("test-embed")
}

func nihSource(baseURL string) SourceConfig {
	return SourceConfig{
		ID:          "nih",
		Strategy:    StrategyNIH,
		BaseURL:     baseURL,
		OrgNames:    []string{"STANFORD UNIVERSITY"},
		PageSize:    2,
		StartID:     15,
		Eligibility: []string{"Undergraduate", "Masters Student", "Coterm", "PhD"},
		Fetch:       FetchConfig{RateLimitRPS: 1000, TimeoutSeconds: 5, MaxRetries: 1},
	}
}

func newTestPipeline(t *testing.T, store *sqlitestore.Store, emb *textEmbedder, sources ...SourceConfig) *Pipeline {
	return NewPipeline(store, emb, &Registry{Sources: sources},
		WithAllowPrivate(true),
		WithClock(func() time.Time { return testNow }),
		WithEmbedOptions(EmbedOptions{Workers: 2, BaseDelay: time.Millisecond}),
	)
}

func TestPipelineRunNIH(t *testing.T) {
	srv, _ := nihServer(t, 5)
	store := newTestStore(t)
	emb := &textEmbedder{}
	p := newTestPipeline(t, store, emb, nihSource(srv.URL))

	stats, err := p.Run(t.Context(), "nih")
	require.NoError(t, err)
	assert.Equal(t, Stats{Found: 5, Saved: 5, Embedded: 5}, stats)

	grants, err := store.LoadGrants(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{"g15", "g16", "g17", "g18", "g19"}, grants.IDs())
	g := grants["g15"]
	assert.Equal(t, "Project A", g.Title)
	assert.Equal(t, 1000.0, *g.AmountMin)
	assert.Equal(t, 1000.0, *g.AmountMax)
	assert.Equal(t, []string{"Undergraduate", "Masters Student", "Coterm", "PhD"}, g.Eligibility)

	table, err := store.LoadEmbeddings(t.Context())
	require.NoError(t, err)
	assert.Len(t, table, 5)

	// A second run updates in place and skips grants that already have vectors.
	stats, err = p.Run(t.Context(), "nih")
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Saved)
	assert.Equal(t, 0, stats.Embedded)
	grants, err = store.LoadGrants(t.Context())
	require.NoError(t, err)
	assert.Len(t, grants, 5)

	runs, err := store.RecentRuns(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	for _, r := range runs {
		assert.Equal(t, models.RunCompleted, r.Status)
		assert.Equal(t, "nih", r.SourceID)
	}
}

func TestPipelineRunListing(t *testing.T) {
	srv := listingServer(t)
	store := newTestStore(t)
	p := newTestPipeline(t, store, &textEmbedder{}, listingSource(srv.URL))

	stats, err := p.Run(t.Context(), "vpue")
	require.NoError(t, err)
	// beta and gamma have no deadline without model extraction
	assert.Equal(t, Stats{Found: 3, Saved: 1, Skipped: 2, Embedded: 1}, stats)

	grants, err := store.LoadGrants(t.Context())
	require.NoError(t, err)
	require.Len(t, grants, 1)
	g := grants["g1"]
	assert.Equal(t, "Alpha Grant", g.Title)
	assert.Equal(t, time.Date(2026, 4, 10, 23, 59, 59, 999999999, time.UTC), g.Deadline.UTC())
	require.NotNil(t, g.AmountMax)
	assert.Equal(t, 2000.0, *g.AmountMax)
}

func TestPipelineRunFailures(t *testing.T) {
	store := newTestStore(t)
	p := newTestPipeline(t, store, &textEmbedder{}, nihSource("http://127.0.0.1:1/search"))

	_, err := p.Run(t.Context(), "missing")
	assert.ErrorIs(t, err, ErrUnknownSource)

	stats, err := p.Run(t.Context(), "nih")
	require.Error(t, err)
	assert.Equal(t, 1, stats.Errors)

	runs, err := store.RecentRuns(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].LastError)
}

func TestPipelineEmbedMissing(t *testing.T) {
	store := newTestStore(t)
	deadline := testNow.Add(24 * time.Hour)
	_, err := store.UpsertGrants(t.Context(), "manual", []models.Grant{
		{ID: "g1", Title: "One", Description: "first", Deadline: deadline},
		{ID: "g2", Title: "Two", Description: "second", Deadline: deadline},
		{ID: "g3", Title: "Three", Deadline: deadline},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertEmbeddings(t.Context(), models.EmbeddingTable{"g1": {5, 1}}))

	emb := &textEmbedder{}
	p := newTestPipeline(t, store, emb)

	res, err := p.EmbedMissing(t.Context(), false)
	require.NoError(t, err)
	assert.Len(t, res.Vectors, 1)
	assert.Contains(t, res.Vectors, "g2")
	assert.Equal(t, 1, res.Skipped)

	res, err = p.EmbedMissing(t.Context(), true)
	require.NoError(t, err)
	assert.Len(t, res.Vectors, 2)
	assert.Equal(t, 3, emb.calls)

	table, err := store.LoadEmbeddings(t.Context())
	require.NoError(t, err)
	assert.Len(t, table, 2)
}

func TestPipelineEmbedMissingWithoutEmbedder(t *testing.T) {
	p := NewPipeline(newTestStore(t), nil, &Registry{})
	_, err := p.EmbedMissing(t.Context(), false)
	assert.Error(t, err)
}

func TestPipelineHasSource(t *testing.T) {
	p := NewPipeline(newTestStore(t), nil, &Registry{Sources: []SourceConfig{nihSource("http://127.0.0.1:1")}})
	assert.True(t, p.HasSource("nih"))
	assert.False(t, p.HasSource("unknown"))

	_, err := p.Run(t.Context(), "unknown")
	assert.ErrorIs(t, err, ErrUnknownSource)
}
