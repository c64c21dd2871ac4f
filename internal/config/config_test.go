package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFileExpandsEnv(t *testing.T) {
	t.Setenv("GRANTS_DIR", "/data")
	t.Setenv("DATABASE_URL", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: file
  grants_path: ${GRANTS_DIR}/database.json
  embeddings_path: ${GRANTS_DIR}/embeddings.json
embedder:
  provider: openai
  model: text-embedding-3-small
search:
  default_results: 5
  max_results: 50
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverFile, cfg.Store.Driver)
	assert.Equal(t, "/data/database.json", cfg.Store.GrantsPath)
	assert.Equal(t, ProviderOpenAI, cfg.Embedder.Provider)
	assert.Equal(t, 5, cfg.Search.DefaultResults)
	// untouched sections keep their defaults
	assert.Equal(t, 4, cfg.Ingest.Workers)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PORT":                  "9000",
		"CORS_ORIGINS":          "http://a.test, http://b.test",
		"DATABASE_URL":          "postgres://x",
		"OLLAMA_HOST":           "http://ollama:11434",
		"EMBEDDING_TTL_SECONDS": "30",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "postgres://x", cfg.Store.DSN)
	assert.Equal(t, "http://ollama:11434", cfg.Embedder.BaseURL)
	assert.Equal(t, 30, cfg.Cache.EmbeddingTTLSeconds)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "mongo" }},
		{"sqlite without dsn", func(c *Config) { c.Store.Driver = DriverSQLite; c.Store.DSN = "" }},
		{"file without paths", func(c *Config) { c.Store.Driver = DriverFile }},
		{"unknown provider", func(c *Config) { c.Embedder.Provider = "cohere" }},
		{"negative timeout", func(c *Config) { c.Embedder.TimeoutSeconds = -1 }},
		{"zero results", func(c *Config) { c.Search.DefaultResults = 0 }},
		{"max below default", func(c *Config) { c.Search.MaxResults = 1 }},
		{"no workers", func(c *Config) { c.Ingest.Workers = 0 }},
		{"bad sort", func(c *Config) { c.Search.DefaultSortBy = "popularity" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
