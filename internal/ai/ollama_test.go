package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerateEmbedding(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    []float32
		wantErr error
	}{
		{"ok", http.StatusOK, `{"embedding":[0.1,0.2]}`, []float32{0.1, 0.2}, nil},
		{"empty vector", http.StatusOK, `{"embedding":[]}`, nil, ErrEmptyEmbedding},
		{"server error", http.StatusInternalServerError, ``, nil, nil},
		{"bad json", http.StatusOK, `{`, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq embeddingRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/embeddings", r.URL.Path)
				_ = json.NewDecoder(r.Body).Decode(&gotReq)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewOllamaClient(srv.URL, "test-model", "")
			vec, err := c.GenerateEmbedding(context.Background(), "hello")

			assert.Equal(t, "test-model", gotReq.Model)
			assert.Equal(t, "hello", gotReq.Prompt)
			if tt.want != nil {
				require.NoError(t, err)
				assert.Equal(t, tt.want, vec)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestOllamaGenerateCompletionJSONMode(t *testing.T) {
	var gotReq generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"response":"{}","done":true}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, "", "gen")
	out, err := c.GenerateCompletion(context.Background(), "p", true)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
	assert.Equal(t, "json", gotReq.Format)
	assert.Equal(t, "gen", gotReq.Model)
	assert.False(t, gotReq.Stream)
}

func TestNewOllamaClientDefaults(t *testing.T) {
	c := NewOllamaClient("", "", "")
	assert.Equal(t, "http://localhost:11434", c.BaseURL)
	assert.Equal(t, "nomic-embed-text", c.Model())
}
