// Package filestore reads and writes the flat database.json and
// embeddings.json files used by the offline pipeline.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/david/grant-search/internal/models"
)

type Store struct {
	grantsPath     string
	embeddingsPath string

	mu sync.Mutex // serialises writes
}

func New(grantsPath, embeddingsPath string) *Store {
	return &Store{grantsPath: grantsPath, embeddingsPath: embeddingsPath}
}

func (s *Store) Close() error { return nil }

// fileGrant mirrors a database.json entry. Dates are kept as text so that
// date-only and zone-less values load.
type fileGrant struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AmountMin          *float64 `json:"amountMin"`
	AmountMax          *float64 `json:"amountMax"`
	URL                string   `json:"url"`
	Eligibility        []string `json:"eligibility"`
	Deadline           string   `json:"deadline"`
	NextCycleStartDate *string  `json:"nextCycleStartDate"`
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

func (fg fileGrant) toGrant(id string) (models.Grant, error) {
	g := models.Grant{
		ID:          id,
		Title:       fg.Title,
		Description: fg.Description,
		AmountMin:   fg.AmountMin,
		AmountMax:   fg.AmountMax,
		URL:         fg.URL,
		Eligibility: fg.Eligibility,
	}
	if g.Eligibility == nil {
		g.Eligibility = []string{}
	}
	d, err := parseDate(fg.Deadline)
	if err != nil {
		return g, fmt.Errorf("grant %s deadline: %w", id, err)
	}
	g.Deadline = d
	if fg.NextCycleStartDate != nil && strings.TrimSpace(*fg.NextCycleStartDate) != "" {
		t, err := parseDate(*fg.NextCycleStartDate)
		if err != nil {
			return g, fmt.Errorf("grant %s next cycle: %w", id, err)
		}
		g.NextCycleStartDate = &t
	}
	return g, nil
}

// LoadGrants reads database.json. A missing file is an empty collection.
// Records with unreadable dates are logged and skipped. The map key is the
// grant id.
func (s *Store) LoadGrants(ctx context.Context) (models.GrantCollection, error) {
	raw, err := os.ReadFile(s.grantsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return models.GrantCollection{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read grants file: %w", err)
	}
	var entries map[string]fileGrant
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode grants file %s: %w", s.grantsPath, err)
	}

	out := make(models.GrantCollection, len(entries))
	for key, fg := range entries {
		if fg.ID != "" && fg.ID != key {
			slog.Warn("grant id differs from its key", "grant_id", key, "id", fg.ID)
		}
		g, err := fg.toGrant(key)
		if err != nil {
			slog.Warn("skipping grant", "grant_id", key, "err", err)
			continue
		}
		out[key] = g
	}
	return out, nil
}

func (s *Store) GetGrant(ctx context.Context, id string) (*models.Grant, error) {
	grants, err := s.LoadGrants(ctx)
	if err != nil {
		return nil, err
	}
	g, ok := grants[id]
	if !ok {
		return nil, models.ErrGrantNotFound
	}
	return &g, nil
}

// LoadEmbeddings accepts entries that are either a bare number array or an
// object with a "vector" array. A missing file is an empty table. Entries
// that do not decode are logged and left out.
func (s *Store) LoadEmbeddings(ctx context.Context) (models.EmbeddingTable, error) {
	raw, err := os.ReadFile(s.embeddingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return models.EmbeddingTable{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read embeddings file: %w", err)
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode embeddings file %s: %w", s.embeddingsPath, err)
	}

	out := make(models.EmbeddingTable, len(entries))
	for id, msg := range entries {
		vec, err := decodeVector(msg)
		if err != nil {
			slog.Warn("skipping embedding", "grant_id", id, "err", err)
			continue
		}
		out[id] = vec
	}
	return out, nil
}

func decodeVector(msg json.RawMessage) ([]float32, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) > 0 && msg[0] == '{' {
		var wrapped struct {
			Vector []float32 `json:"vector"`
		}
		if err := json.Unmarshal(msg, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Vector, nil
	}
	var vec []float32
	if err := json.Unmarshal(msg, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

// UpsertGrants merges grants into database.json.
func (s *Store) UpsertGrants(ctx context.Context, sourceID string, grants []models.Grant) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.LoadGrants(ctx)
	if err != nil {
		return 0, err
	}
	for _, g := range grants {
		existing[g.ID] = g
	}
	if err := s.SaveGrants(existing); err != nil {
		return 0, err
	}
	return len(grants), nil
}

// UpsertEmbeddings merges vectors into embeddings.json.
func (s *Store) UpsertEmbeddings(ctx context.Context, table models.EmbeddingTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.LoadEmbeddings(ctx)
	if err != nil {
		return err
	}
	for id, vec := range table {
		if len(vec) > 0 {
			existing[id] = vec
		}
	}
	return s.SaveEmbeddings(existing)
}

func (s *Store) GrantsMissingEmbeddings(ctx context.Context) ([]models.Grant, error) {
	grants, err := s.LoadGrants(ctx)
	if err != nil {
		return nil, err
	}
	table, err := s.LoadEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Grant
	for _, g := range grants.Values() {
		if len(table[g.ID]) == 0 {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) GetStats(ctx context.Context) (*models.Stats, error) {
	grants, err := s.LoadGrants(ctx)
	if err != nil {
		return nil, err
	}
	table, err := s.LoadEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	st := models.ComputeStats(grants, table, time.Now())
	return &st, nil
}

// SaveGrants rewrites database.json with the given collection.
func (s *Store) SaveGrants(grants models.GrantCollection) error {
	out := make(map[string]fileGrant, len(grants))
	for id, g := range grants {
		fg := fileGrant{
			ID:          g.ID,
			Title:       g.Title,
			Description: g.Description,
			AmountMin:   g.AmountMin,
			AmountMax:   g.AmountMax,
			URL:         g.URL,
			Eligibility: g.Eligibility,
			Deadline:    g.Deadline.Format(time.RFC3339),
		}
		if fg.Eligibility == nil {
			fg.Eligibility = []string{}
		}
		if g.NextCycleStartDate != nil {
			v := g.NextCycleStartDate.Format(time.RFC3339)
			fg.NextCycleStartDate = &v
		}
		out[id] = fg
	}
	return writeJSON(s.grantsPath, out)
}

// SaveEmbeddings rewrites embeddings.json as bare arrays keyed by grant id.
func (s *Store) SaveEmbeddings(table models.EmbeddingTable) error {
	return writeJSON(s.embeddingsPath, table)
}

// writeJSON writes through a temp file and rename so readers never see a
// partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
