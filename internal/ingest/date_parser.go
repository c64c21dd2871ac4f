package ingest

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var spanishMonths = map[string]string{
	"enero": "January", "febrero": "February", "marzo": "March", "abril": "April",
	"mayo": "May", "junio": "June", "julio": "July", "agosto": "August",
	"septiembre": "September", "octubre": "October", "noviembre": "November", "diciembre": "December",
}

// Layouts tried in order. Entries without a clock are end-of-day deadlines.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3 PM",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006 3:04 PM",
	"2 January 2006 3 PM",
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	"01/02/2006 3 PM",
	"1/2/2006",
	"01/02/2006",
}

var (
	isoDateRegex     = regexp.MustCompile(`\b(20\d{2})-(\d{2})-(\d{2})\b`)
	slashDateRegex   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2})\b`)
	monthFirstRegex  = regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Sept|Oct|Nov|Dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(20\d{2})\b`)
	dayFirstRegex    = regexp.MustCompile(`\b(\d{1,2})\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(20\d{2})\b`)
	spanishDateRegex = regexp.MustCompile(`(?i)\b(\d{1,2})\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s+(?:de|del)\s+(20\d{2})\b`)
)

var datePrefixes = []string{
	"closing date:", "deadline:", "application deadline:", "due date:", "due:",
	"expires:", "ends:", "applications due", "fecha límite:", "fecha de cierre:", "cierre:",
}

// parseDateRobust parses a deadline in any of the supported layouts, then
// falls back to finding a date inside surrounding text. Spanish month names
// are recognised when locales include "es".
func parseDateRobust(text string, locales []string) (time.Time, error) {
	text = normalizeDateText(text)

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			if hasClock(layout) {
				return t, nil
			}
			return toEndOfDay(t), nil
		}
	}

	if t, ok := findDateInText(text); ok {
		return toEndOfDay(t), nil
	}
	for _, loc := range locales {
		if strings.HasPrefix(loc, "es") {
			if t, ok := findSpanishDate(text); ok {
				return toEndOfDay(t), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", text)
}

func hasClock(layout string) bool {
	return strings.Contains(layout, "15") || strings.Contains(layout, "3 PM") || strings.Contains(layout, "3:04")
}

// toEndOfDay sets the time to 23:59:59.999999999 UTC
func toEndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999999, time.UTC)
}

func normalizeDateText(s string) string {
	lower := strings.ToLower(s)
	for _, p := range datePrefixes {
		if idx := strings.Index(lower, p); idx != -1 {
			s = s[idx+len(p):]
			lower = lower[idx+len(p):]
		}
	}
	r := strings.NewReplacer("a.m.", "AM", "p.m.", "PM", " am", " AM", " pm", " PM")
	return normalizeSpace(r.Replace(s))
}

func findDateInText(text string) (time.Time, bool) {
	if m := isoDateRegex.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}
	if m := slashDateRegex.FindStringSubmatch(text); m != nil {
		// month first, then day first when the month is out of range
		if t, err := time.Parse("1/2/2006", m[1]+"/"+m[2]+"/"+m[3]); err == nil {
			return t, true
		}
		if t, err := time.Parse("1/2/2006", m[2]+"/"+m[1]+"/"+m[3]); err == nil {
			return t, true
		}
	}
	if m := monthFirstRegex.FindStringSubmatch(text); m != nil {
		month := m[1]
		if month == "Sept" {
			month = "Sep"
		}
		for _, layout := range []string{"January 2 2006", "Jan 2 2006"} {
			if t, err := time.Parse(layout, month+" "+m[2]+" "+m[3]); err == nil {
				return t, true
			}
		}
	}
	if m := dayFirstRegex.FindStringSubmatch(text); m != nil {
		for _, layout := range []string{"2 January 2006", "2 Jan 2006"} {
			if t, err := time.Parse(layout, m[1]+" "+m[2]+" "+m[3]); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func findSpanishDate(text string) (time.Time, bool) {
	m := spanishDateRegex.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := spanishMonths[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse("2 January 2006", m[1]+" "+month+" "+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
