package models

import (
	"errors"
	"time"
)

var ErrGrantNotFound = errors.New("grant not found")

// Ingest run states.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// IngestRun records one execution of an ingest source.
type IngestRun struct {
	RunID       string     `json:"run_id"`
	SourceID    string     `json:"source_id"`
	Status      string     `json:"status"`
	ItemsFound  int        `json:"items_found"`
	ItemsSaved  int        `json:"items_saved"`
	Embedded    int        `json:"embedded"`
	Errors      int        `json:"errors"`
	LastError   string     `json:"last_error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RunCounts are the totals written when a run finishes.
type RunCounts struct {
	ItemsFound int
	ItemsSaved int
	Embedded   int
	Errors     int
}

// Stats summarises a store's contents.
type Stats struct {
	Grants           int       `json:"grants"`
	Embeddings       int       `json:"embeddings"`
	MissingVectors   int       `json:"missing_embeddings"`
	Dimension        int       `json:"dimension"`
	WithAmount       int       `json:"with_amount"`
	UpcomingDeadline int       `json:"upcoming_deadline"`
	GeneratedAt      time.Time `json:"generated_at"`
}

// ComputeStats derives Stats from an in-memory snapshot.
func ComputeStats(grants GrantCollection, table EmbeddingTable, now time.Time) Stats {
	st := Stats{
		Grants:      len(grants),
		Dimension:   table.Dimension(),
		GeneratedAt: now,
	}
	for id, g := range grants {
		if len(table[id]) > 0 {
			st.Embeddings++
		} else {
			st.MissingVectors++
		}
		if g.AmountMin != nil || g.AmountMax != nil {
			st.WithAmount++
		}
		if g.Deadline.After(now) {
			st.UpcomingDeadline++
		}
	}
	return st
}
