package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

type MockFetcher struct {
	Data map[string][]byte
}

func (m *MockFetcher) Fetch(ctx context.Context, url string) (*FetchedDocument, error) {
	content, ok := m.Data[url]
	if !ok {
		return nil, fmt.Errorf("mock 404: %s", url)
	}
	return &FetchedDocument{
		URL:        url,
		StatusCode: 200,
		Body:       io.NopCloser(bytes.NewReader(content)),
		Headers:    make(http.Header),
		FetchedAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}, nil
}

// textEmbedder maps text to a vector derived from its length.
type textEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  map[string]int // text -> remaining failures
}

func (e *textEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if n := e.fail[text]; n != 0 {
		if n > 0 {
			e.fail[text] = n - 1
		}
		return nil, fmt.Errorf("embedder unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

func ptr(v float64) *float64 { return &v }
