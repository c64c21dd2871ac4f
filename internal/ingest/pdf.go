package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	rpdf "rsc.io/pdf"
)

// maxPDFBytes caps how much of a linked PDF is read.
const maxPDFBytes = 20 << 20

var dateSnippetRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+de\s+(enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|octubre|noviembre|diciembre)\s+(de|del)\s+20\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}\s+(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}\b`),
	regexp.MustCompile(`\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\.?\s+\d{1,2}(st|nd|rd|th)?,?\s+20\d{2}\b`),
}

func extractPDFText(content []byte) (text string, err error) {
	// rsc.io/pdf panics on some malformed files
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// parseDateCandidatesFromText returns every distinct date found in text as
// RFC 3339 end-of-day UTC, earliest first.
func parseDateCandidatesFromText(text string) []string {
	locales := []string{"en", "es"}
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, expr := range dateSnippetRegexes {
		for _, token := range expr.FindAllString(text, -1) {
			t, err := parseDateRobust(token, locales)
			if err != nil || seen[t] {
				continue
			}
			seen[t] = true
			dates = append(dates, t)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]string, len(dates))
	for i, t := range dates {
		out[i] = t.UTC().Format(time.RFC3339)
	}
	return out
}

func isPDFLink(link string) bool {
	l := strings.ToLower(link)
	if i := strings.IndexAny(l, "?#"); i >= 0 {
		l = l[:i]
	}
	return strings.HasSuffix(l, ".pdf")
}

// extractDeadlinesFromPDF downloads a PDF and returns the date candidates
// in its text along with the text itself.
func extractDeadlinesFromPDF(ctx context.Context, fetcher Fetcher, pdfURL string) ([]string, string, error) {
	doc, err := fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return nil, "", err
	}
	defer doc.Body.Close()

	content, err := io.ReadAll(io.LimitReader(doc.Body, maxPDFBytes))
	if err != nil {
		return nil, "", fmt.Errorf("pdf read failed: %w", err)
	}

	text, err := extractPDFText(content)
	if err != nil {
		return nil, "", fmt.Errorf("pdf text extraction failed: %w", err)
	}
	return parseDateCandidatesFromText(text), text, nil
}
