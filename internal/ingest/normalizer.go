package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/grant-search/internal/models"
)

var ErrNoDeadline = errors.New("grant has no parseable deadline")

var stripPolicy = bluemonday.StrictPolicy()

// TruncateText cuts a string to maxLen bytes, appending an ellipsis if
// truncated.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	if maxLen > 3 {
		return text[:maxLen-3] + "..."
	}
	return text[:maxLen]
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return normalizeSpace(stripPolicy.Sanitize(html))
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeSpace(doc.Text())
}

// sanitizeText strips any markup left in scraped text.
func sanitizeText(s string) string {
	return normalizeSpace(stripPolicy.Sanitize(s))
}

// GrantFromRaw normalises a scraped grant. The deadline is the parsed raw
// deadline, else the earliest candidate on or after now, else the latest
// candidate. Grants without any deadline are rejected.
func GrantFromRaw(raw RawGrant, id string, defaultEligibility []string, now time.Time) (models.Grant, error) {
	g := models.Grant{
		ID:          id,
		Title:       sanitizeText(raw.Title),
		Description: sanitizeText(raw.Description),
		URL:         strings.TrimSpace(raw.URL),
		AmountMin:   raw.AmountMin,
		AmountMax:   raw.AmountMax,
	}
	if g.Title == "" {
		return g, fmt.Errorf("grant at %s has no title", raw.URL)
	}

	if g.AmountMin == nil && g.AmountMax == nil && raw.RawAmount != "" {
		g.AmountMin, g.AmountMax = parseAmountRange(raw.RawAmount)
	}

	g.Eligibility = mergeUniqueFold(nil, raw.Eligibility)
	if len(g.Eligibility) == 0 {
		g.Eligibility = mergeUniqueFold([]string{}, defaultEligibility)
	}

	locales := raw.DateLocales
	if len(locales) == 0 {
		locales = []string{"en"}
	}
	deadline, ok := pickDeadline(raw, locales, now)
	if !ok {
		return g, fmt.Errorf("%w: %s", ErrNoDeadline, g.Title)
	}
	g.Deadline = deadline

	if raw.RawNextCycle != "" {
		if t, err := parseDateRobust(raw.RawNextCycle, locales); err == nil {
			g.NextCycleStartDate = &t
		}
	}
	return g, nil
}

func pickDeadline(raw RawGrant, locales []string, now time.Time) (time.Time, bool) {
	if raw.RawDeadline != "" {
		if t, err := parseDateRobust(raw.RawDeadline, locales); err == nil {
			return t, true
		}
	}

	var upcoming, latest time.Time
	for _, c := range raw.DeadlineCandidates {
		t, err := time.Parse(time.RFC3339, c)
		if err != nil {
			continue
		}
		if !t.Before(now) && (upcoming.IsZero() || t.Before(upcoming)) {
			upcoming = t
		}
		if t.After(latest) {
			latest = t
		}
	}
	if !upcoming.IsZero() {
		return upcoming, true
	}
	if !latest.IsZero() {
		return latest, true
	}
	return time.Time{}, false
}
