package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/sqlitestore"
)

// writeConfig seeds a sqlite store and returns a config pointing at it.
// The embedder URL is unreachable.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "grants.db")

	store, err := sqlitestore.Open(t.Context(), dbPath)
	require.NoError(t, err)
	deadline := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = store.UpsertGrants(t.Context(), "seed", []models.Grant{
		{ID: "g1", Title: "Small Seed Grant", Description: "seed", AmountMin: models.Float64Ptr(500), URL: "https://example.org/1", Deadline: deadline},
		{ID: "g2", Title: "Large Research Award", Description: "research", AmountMin: models.Float64Ptr(25000), AmountMax: models.Float64Ptr(50000), URL: "https://example.org/2", Deadline: deadline},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := fmt.Sprintf(`store:
  driver: sqlite
  dsn: %s
embedder:
  provider: ollama
  base_url: http://127.0.0.1:1
  model: test-embed
  timeout_seconds: 1
`, dbPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &errOut
	a.ExitErrHandler = func(*cli.Context, error) {}
	err := a.Run(append([]string{"grantctl"}, args...))
	return out.String(), errOut.String(), err
}

func TestFilterCommand(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := run(t, "--config", cfg, "filter", "--min-amount", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "Large Research Award")
	assert.Contains(t, out, "$25000 - $50000")
	assert.NotContains(t, out, "Small Seed Grant")

	_, _, err = run(t, "--config", cfg, "filter", "--sort-by", "Title")
	assert.Error(t, err)
}

func TestSearchCommandUnavailable(t *testing.T) {
	cfg := writeConfig(t)

	out, errOut, err := run(t, "--config", cfg, "search", "research", "funding")
	require.Error(t, err)
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitCode())
	assert.Contains(t, errOut, "temporarily unavailable")
	assert.Contains(t, out, "Small Seed Grant")
}

func TestSearchCommandNeedsQuery(t *testing.T) {
	_, _, err := run(t, "search")
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 2, exit.ExitCode())
}

func TestRunsCommandEmpty(t *testing.T) {
	cfg := writeConfig(t)
	out, _, err := run(t, "--config", cfg, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "SOURCE")
}

func TestSourcesCommand(t *testing.T) {
	out, _, err := run(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "nih_stanford")
}

func TestInvalidLogLevel(t *testing.T) {
	_, _, err := run(t, "--log-level", "verbose", "sources")
	assert.ErrorContains(t, err, "invalid log level")
}
