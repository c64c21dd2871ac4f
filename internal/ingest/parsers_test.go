package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountRange(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		min, max *float64
	}{
		{"single figure is a ceiling", "Awards of up to $5,000", nil, ptr(5000)},
		{"range", "$1,000 - $2,500 per project", ptr(1000), ptr(2500)},
		{"k suffix", "between 2.5k and 10k", ptr(2500), ptr(10000)},
		{"million", "$2 million total", nil, ptr(2_000_000)},
		{"floor", "minimum award $500", ptr(500), nil},
		{"years are not money", "Apply by May 2026 for the 3 week program", nil, nil},
		{"usd text", "1500 USD stipend", nil, ptr(1500)},
		{"repeated figure", "$750 or $750", nil, ptr(750)},
		{"empty", "", nil, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi := parseAmountRange(tc.text)
			assert.Equal(t, tc.min, lo)
			assert.Equal(t, tc.max, hi)
		})
	}
}

func TestParseDateRobust(t *testing.T) {
	eod := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 23, 59, 59, 999999999, time.UTC)
	}
	tests := []struct {
		text    string
		locales []string
		want    time.Time
	}{
		{"2026-04-01", nil, eod(2026, 4, 1)},
		{"Deadline: March 15, 2026", nil, eod(2026, 3, 15)},
		{"2026-06-30T00:00:00", nil, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)},
		{"2026-06-30T17:00:00Z", nil, time.Date(2026, 6, 30, 17, 0, 0, 0, time.UTC)},
		{"Applications close Sept 5, 2026 at noon", nil, eod(2026, 9, 5)},
		{"Apply by 3/15/2026", nil, eod(2026, 3, 15)},
		{"due 25/12/2026", nil, eod(2026, 12, 25)},
		{"Fecha límite: 15 de marzo de 2026", []string{"es"}, eod(2026, 3, 15)},
		{"12 January 2027", nil, eod(2027, 1, 12)},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			got, err := parseDateRobust(tc.text, tc.locales)
			require.NoError(t, err)
			assert.True(t, tc.want.Equal(got), "got %s want %s", got, tc.want)
		})
	}
}

func TestParseDateRobustRejectsText(t *testing.T) {
	_, err := parseDateRobust("rolling basis", []string{"en"})
	assert.Error(t, err)

	// Spanish needs the locale.
	_, err = parseDateRobust("15 de marzo de 2026", []string{"en"})
	assert.Error(t, err)
}

func TestParseDateCandidatesFromText(t *testing.T) {
	text := "Round 2 closes 2026-05-01. Round 1 closed March 1, 2026. Again: 2026-05-01."
	got := parseDateCandidatesFromText(text)
	assert.Equal(t, []string{"2026-03-01T23:59:59Z", "2026-05-01T23:59:59Z"}, got)
	assert.Empty(t, parseDateCandidatesFromText("no dates here"))
}

func TestIsPDFLink(t *testing.T) {
	assert.True(t, isPDFLink("https://x.edu/call.PDF"))
	assert.True(t, isPDFLink("https://x.edu/call.pdf?v=2#page=3"))
	assert.False(t, isPDFLink("https://x.edu/pdf/guide"))
}

func TestExtractPDFTextRejectsGarbage(t *testing.T) {
	_, err := extractPDFText([]byte("not a pdf"))
	assert.Error(t, err)
}

func TestSplitAndCleanList(t *testing.T) {
	got := splitAndCleanList("1. Undergraduate\n- PhD; phd\n• Coterm\n\n")
	assert.Equal(t, []string{"Undergraduate", "PhD", "Coterm"}, got)
}

func TestCanonicalizeURL(t *testing.T) {
	got := CanonicalizeURL("https://Example.EDU/grants/a?utm_source=x&id=4&fbclid=z#apply")
	assert.Equal(t, "https://example.edu/grants/a?id=4", got)
}

func TestHTMLToText(t *testing.T) {
	got := HTMLToText("<div><script>var x=1;</script><p>Funds <b>student</b>\n research</p></div>")
	assert.Equal(t, "Funds student research", got)
}

func TestTruncateText(t *testing.T) {
	assert.Equal(t, "abc", TruncateText("abc", 5))
	assert.Equal(t, "ab...", TruncateText("abcdefgh", 5))
}
