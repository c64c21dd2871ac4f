package models

import (
	"math"
	"sort"
	"time"
)

// Grant is a single funding opportunity. Amount bounds and the next cycle
// start are optional; Deadline is always set.
type Grant struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	AmountMin          *float64   `json:"amountMin"`
	AmountMax          *float64   `json:"amountMax"`
	URL                string     `json:"url"`
	Eligibility        []string   `json:"eligibility"`
	Deadline           time.Time  `json:"deadline"`
	NextCycleStartDate *time.Time `json:"nextCycleStartDate"`
}

// EffectiveAmount is the value used when sorting by amount: the minimum if
// known, otherwise the maximum, otherwise negative infinity so that grants
// with no amount always land at the same end.
func (g Grant) EffectiveAmount() float64 {
	if g.AmountMin != nil {
		return *g.AmountMin
	}
	if g.AmountMax != nil {
		return *g.AmountMax
	}
	return math.Inf(-1)
}

// GrantCollection maps grant ids to grants. Iteration order carries no meaning.
type GrantCollection map[string]Grant

// Values returns the grants ordered by id.
func (c GrantCollection) Values() []Grant {
	ids := c.IDs()
	out := make([]Grant, 0, len(ids))
	for _, id := range ids {
		out = append(out, c[id])
	}
	return out
}

// IDs returns the collection keys in lexical order.
func (c GrantCollection) IDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Lookup resolves ids against the collection, skipping unknown ones and
// keeping the order of ids.
func (c GrantCollection) Lookup(ids []string) []Grant {
	out := make([]Grant, 0, len(ids))
	for _, id := range ids {
		if g, ok := c[id]; ok {
			out = append(out, g)
		}
	}
	return out
}

// EmbeddingTable maps grant ids to embedding vectors. It does not have to
// cover every grant in a collection.
type EmbeddingTable map[string][]float32

// Dimension returns the most common vector length in the table, or 0 when
// the table is empty.
func (t EmbeddingTable) Dimension() int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, vec := range t {
		n := len(vec)
		counts[n]++
		if counts[n] > bestCount || (counts[n] == bestCount && n > best) {
			best, bestCount = n, counts[n]
		}
	}
	return best
}

func Float64Ptr(v float64) *float64 {
	return &v
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
