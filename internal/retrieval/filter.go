package retrieval

import (
	"cmp"
	"sort"

	"github.com/david/grant-search/internal/models"
)

// FilterGrants applies the amount threshold and sorts the survivors.
//
// A grant passes the threshold only when its maximum amount is known and at
// least the requested minimum; an unknown maximum cannot be shown to meet a
// floor. Position and representing-VSO selections are accepted but do not
// narrow the result: grants carry no attribute to match them against.
//
// The sort is stable, so grants that compare equal keep their input order.
// The input slice and criteria are not modified.
func FilterGrants(grants []models.Grant, criteria models.FilterCriteria) []models.Grant {
	out := make([]models.Grant, 0, len(grants))
	for _, g := range grants {
		if !passesAmount(g, criteria.MinAmount) {
			continue
		}
		if !passesPositions(g, criteria.Positions) || !passesVSOs(g, criteria.RepresentingVSOs) {
			continue
		}
		out = append(out, g)
	}

	less := lessFunc(out, criteria.SortBy, criteria.SortOrder)
	sort.SliceStable(out, less)
	return out
}

func passesAmount(g models.Grant, minAmount *float64) bool {
	if minAmount == nil {
		return true
	}
	return g.AmountMax != nil && *g.AmountMax >= *minAmount
}

// passesPositions is inert until grants record which positions they accept.
func passesPositions(_ models.Grant, _ []models.AcademicPosition) bool {
	return true
}

// passesVSOs is inert for the same reason as passesPositions.
func passesVSOs(_ models.Grant, _ []models.RepresentingVSO) bool {
	return true
}

func lessFunc(gs []models.Grant, by models.SortBy, order models.SortOrder) func(i, j int) bool {
	var compare func(a, b models.Grant) int
	switch by {
	case models.SortByDeadline:
		compare = func(a, b models.Grant) int { return a.Deadline.Compare(b.Deadline) }
	default:
		compare = func(a, b models.Grant) int { return cmp.Compare(a.EffectiveAmount(), b.EffectiveAmount()) }
	}

	if order == models.SortAscending {
		return func(i, j int) bool { return compare(gs[i], gs[j]) < 0 }
	}
	return func(i, j int) bool { return compare(gs[i], gs[j]) > 0 }
}
