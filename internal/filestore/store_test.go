package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/retrieval"
)

type fixedEmbedder []float32

func (f fixedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f, nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadGrantsLenientDates(t *testing.T) {
	dir := t.TempDir()
	grants := writeFile(t, dir, "database.json", `{
		"g1": {"id":"g1","title":"A","description":"d","amountMin":null,"amountMax":2000,
		       "url":"u","eligibility":["PhD"],"deadline":"2026-06-30T00:00:00","nextCycleStartDate":null},
		"g2": {"title":"B","amountMin":10,"amountMax":20,"eligibility":null,
		       "deadline":"2026-01-15","nextCycleStartDate":"2026-09-01T00:00:00Z"},
		"g3": {"id":"g3","title":"C","deadline":"2026-01-15","nextCycleStartDate":""}
	}`)
	s := New(grants, filepath.Join(dir, "embeddings.json"))

	got, err := s.LoadGrants(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Nil(t, got["g1"].AmountMin)
	assert.Equal(t, 2000.0, *got["g1"].AmountMax)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), got["g1"].Deadline)

	assert.Equal(t, "g2", got["g2"].ID, "id falls back to the map key")
	assert.Equal(t, []string{}, got["g2"].Eligibility)
	require.NotNil(t, got["g2"].NextCycleStartDate)

	assert.Nil(t, got["g3"].NextCycleStartDate, "blank next cycle means none")
}

func TestLoadGrantsSkipsBadDeadline(t *testing.T) {
	dir := t.TempDir()
	grants := writeFile(t, dir, "database.json", `{
		"g1": {"title":"A","deadline":"2026-06-30"},
		"g2": {"title":"B","deadline":""},
		"g3": {"title":"C","deadline":"soon"}
	}`)
	got, err := New(grants, "").LoadGrants(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got["g1"].Title)
}

func TestLoadGrantsKeyedByMapKey(t *testing.T) {
	dir := t.TempDir()
	grants := writeFile(t, dir, "database.json", `{
		"g1": {"id":"g1","title":"A","deadline":"2026-06-30"},
		"g2": {"id":"g1","title":"B","deadline":"2026-06-30"}
	}`)
	got, err := New(grants, "").LoadGrants(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got["g1"].Title)
	assert.Equal(t, "B", got["g2"].Title)
	assert.Equal(t, "g2", got["g2"].ID)
}

func TestLoadEmbeddingsBothShapes(t *testing.T) {
	dir := t.TempDir()
	emb := writeFile(t, dir, "embeddings.json", `{
		"g1": [1, 0, 0],
		"g2": {"vector": [0, 1, 0]}
	}`)
	s := New("", emb)

	table, err := s.LoadEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.EmbeddingTable{"g1": {1, 0, 0}, "g2": {0, 1, 0}}, table)
}

func TestLoadEmbeddingsSkipsMalformedEntry(t *testing.T) {
	dir := t.TempDir()
	emb := writeFile(t, dir, "embeddings.json", `{
		"g1": [1, 0],
		"g2": {"vector": [0, 1]},
		"g3": "not-a-vector",
		"g4": [1, "x"]
	}`)
	s := New("", emb)

	table, err := s.LoadEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.EmbeddingTable{"g1": {1, 0}, "g2": {0, 1}}, table)

	ranker, err := retrieval.NewRanker(fixedEmbedder{0, 1}, s)
	require.NoError(t, err)
	ids, err := ranker.RankGrantsByQuery(context.Background(), "bridges", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"g2", "g1"}, ids)
}

func TestLoadEmbeddingsMalformedDocument(t *testing.T) {
	emb := writeFile(t, t.TempDir(), "embeddings.json", `[1, 2, 3]`)
	_, err := New("", emb).LoadEmbeddings(context.Background())
	assert.Error(t, err)
}

func TestLoadEmbeddingsMissingFile(t *testing.T) {
	s := New("", filepath.Join(t.TempDir(), "none.json"))
	table, err := s.LoadEmbeddings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestLoadGrantsMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "database.json"), "")
	grants, err := s.LoadGrants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestUpsertAndMissing(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := New(filepath.Join(dir, "database.json"), filepath.Join(dir, "embeddings.json"))

	deadline := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := s.UpsertGrants(ctx, "nih", []models.Grant{
		{ID: "g15", Title: "A", Deadline: deadline, AmountMin: models.Float64Ptr(5), AmountMax: models.Float64Ptr(5)},
		{ID: "g16", Title: "B", Deadline: deadline},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.UpsertEmbeddings(ctx, models.EmbeddingTable{"g15": {1, 2}}))

	missing, err := s.GrantsMissingEmbeddings(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)
	assert.Equal(t, "g16", missing[0].ID)

	got, err := s.GetGrant(ctx, "g15")
	require.NoError(t, err)
	assert.True(t, got.Deadline.Equal(deadline))
	assert.Equal(t, 5.0, *got.AmountMin)

	_, err = s.GetGrant(ctx, "nope")
	assert.ErrorIs(t, err, models.ErrGrantNotFound)

	st, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Grants)
	assert.Equal(t, 1, st.Embeddings)
	assert.Equal(t, 2, st.Dimension)
}
