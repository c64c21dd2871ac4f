package ingest

import (
	"context"
	"io"
	"net/http"
	"time"
)

// RawGrant is what a source yields before normalisation.
type RawGrant struct {
	Title              string
	URL                string
	Description        string
	RawAmount          string
	RawDeadline        string
	RawNextCycle       string
	DeadlineCandidates []string // RFC 3339
	Eligibility        []string
	AmountMin          *float64 // set when the source is structured
	AmountMax          *float64
	DateLocales        []string
}

// FetchedDocument represents a raw document fetched from a URL.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     http.Header
}

// Fetcher retrieves a document by URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// Stats counts what a run found and kept.
type Stats struct {
	Found    int `json:"found"`
	Saved    int `json:"saved"`
	Skipped  int `json:"skipped"`
	Embedded int `json:"embedded"`
	Errors   int `json:"errors"`
}
