package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/david/grant-search/internal/models"
)

// Status tells a caller how to present a search outcome.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNoMatches   Status = "no_matches"
	StatusUnavailable Status = "unavailable"
)

// SearchRequest is one user interaction: optional query text plus the
// attribute criteria currently selected.
type SearchRequest struct {
	Query      string
	NumResults int
	Criteria   models.FilterCriteria
}

// RankedGrant is a grant resolved from a ranked id.
type RankedGrant struct {
	models.Grant
	Score float64 `json:"score"`
}

// SearchResult carries the two refinements side by side. Filtered is the
// attribute-filtered collection; Ranked is the semantic ranking and is only
// populated when the request has query text.
type SearchResult struct {
	Status   Status         `json:"status"`
	Query    string         `json:"query,omitempty"`
	Filtered []models.Grant `json:"filtered"`
	Ranked   []RankedGrant  `json:"ranked"`
}

// Session owns the grant collection snapshot used to answer searches.
// Reload swaps in a new snapshot; snapshots themselves are never modified.
type Session struct {
	source GrantSource
	ranker *Ranker
	cache  *EmbeddingCache
	logger *slog.Logger

	grants atomic.Pointer[models.GrantCollection]
}

// NewSession loads the grant collection and returns a ready session. cache
// may be nil; when set, Reload also invalidates it.
func NewSession(ctx context.Context, source GrantSource, ranker *Ranker, cache *EmbeddingCache, opts ...Option) (*Session, error) {
	if source == nil {
		return nil, ErrGrantSourceRequired
	}
	if ranker == nil {
		return nil, ErrRankerRequired
	}
	s := applyOptions(opts)
	sess := &Session{
		source: source,
		ranker: ranker,
		cache:  cache,
		logger: s.logger,
	}
	if err := sess.Reload(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Reload fetches a fresh grant collection and drops any cached embeddings.
// On failure the previous snapshot stays in place.
func (s *Session) Reload(ctx context.Context) error {
	grants, err := s.source.LoadGrants(ctx)
	if err != nil {
		return fmt.Errorf("load grants: %w", err)
	}
	if grants == nil {
		grants = models.GrantCollection{}
	}
	s.grants.Store(&grants)
	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.Info("grant collection loaded", "count", len(grants))
	return nil
}

// Grants returns the current snapshot.
func (s *Session) Grants() models.GrantCollection {
	if p := s.grants.Load(); p != nil {
		return *p
	}
	return models.GrantCollection{}
}

// Grant looks up a single grant by id.
func (s *Session) Grant(id string) (models.Grant, bool) {
	g, ok := s.Grants()[id]
	return g, ok
}

// Filter applies criteria to the whole collection.
func (s *Session) Filter(criteria models.FilterCriteria) []models.Grant {
	return FilterGrants(s.Grants().Values(), criteria)
}

// Search runs the attribute filter and, when the request has query text,
// the semantic ranker. The two are independent: neither narrows the other.
//
// If ranking fails the result still carries the filtered grants, its status
// is StatusUnavailable, and the error wraps ErrSearchUnavailable.
func (s *Session) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	grants := s.Grants()
	res := &SearchResult{
		Query:    strings.TrimSpace(req.Query),
		Filtered: FilterGrants(grants.Values(), req.Criteria),
		Ranked:   []RankedGrant{},
	}

	if res.Query == "" {
		res.Status = statusFor(len(res.Filtered))
		return res, nil
	}

	n := req.NumResults
	if n == 0 {
		n = DefaultNumResults
	}
	scored, err := s.ranker.RankScored(ctx, res.Query, n)
	if err != nil {
		res.Status = StatusUnavailable
		if !errors.Is(err, ErrSearchUnavailable) {
			err = fmt.Errorf("%w: %w", ErrSearchUnavailable, err)
		}
		return res, err
	}

	for _, sg := range scored {
		g, ok := grants[sg.ID]
		if !ok {
			s.logger.Debug("ranked id has no grant record", "grant_id", sg.ID)
			continue
		}
		res.Ranked = append(res.Ranked, RankedGrant{Grant: g, Score: sg.Score})
	}
	res.Status = statusFor(len(res.Ranked))
	return res, nil
}

func statusFor(n int) Status {
	if n == 0 {
		return StatusNoMatches
	}
	return StatusOK
}
