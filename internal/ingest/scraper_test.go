package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage1 = `<html><body>
<div class="views-row"><h3>Alpha Grant</h3><a href="/alpha">More</a><div class="field--name-body">Alpha summary</div></div>
<div class="views-row"><h3>Beta Grant</h3><a href="/beta?utm_source=news">More</a></div>
<div class="views-row"><h3></h3><a href="/untitled">More</a></div>
<ul><li class="pager__item--next"><a href="/list?page=2">Next</a></li></ul>
</body></html>`

const listingPage2 = `<html><body>
<div class="views-row"><h3>Gamma Grant</h3><a href="/gamma.pdf">Call (PDF)</a></div>
<div class="views-row"><h3>Alpha Grant</h3><a href="/alpha#apply">Again</a></div>
<ul><li class="pager__item--next"><a href="/list">Back to start</a></li></ul>
</body></html>`

const alphaDetail = `<html><body><main>
<div class="field--name-body"><p>Alpha funds   summer research.</p><script>track()</script></div>
<div class="field--name-field-deadline">Deadline: April 10, 2026</div>
<div class="field--name-field-amount">Up to $2,000</div>
<div class="field--name-field-eligibility"><ul><li>Undergraduate</li><li>Coterm</li></ul></div>
</main></body></html>`

const betaDetail = `<html><body><main><div class="field--name-body">Beta funds travel. Ask the office for dates.</div></main></body></html>`

func listingServer(t *testing.T) *httptest.Server {
	t.Helper()
	pages := map[string]string{
		"/list":  listingPage1,
		"/alpha": alphaDetail,
		"/beta":  betaDetail,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := pages[r.URL.Path]
		if r.URL.Path == "/list" && r.URL.Query().Get("page") == "2" {
			body, ok = listingPage2, true
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func listingSource(baseURL string) SourceConfig {
	return SourceConfig{
		ID:          "vpue",
		Name:        "Test listing",
		Strategy:    StrategyListing,
		BaseURL:     baseURL + "/list",
		MaxPages:    5,
		Eligibility: []string{"Undergraduate"},
		Fetch:       FetchConfig{RateLimitRPS: 1000, TimeoutSeconds: 5},
		Selectors: SelectorConfig{
			Container: ".views-row",
			Link:      "a",
			Title:     "h3",
			Content:   ".field--name-body",
		},
		Pagination: PaginationConfig{Next: "li.pager__item--next a"},
		Detail: DetailConfig{
			Enabled: true,
			Selectors: DetailSelectorConfig{
				Container:   "main",
				Description: ".field--name-body",
				Deadline:    ".field--name-field-deadline",
				Amount:      ".field--name-field-amount",
				Eligibility: ".field--name-field-eligibility",
			},
		},
	}
}

// fakeCompleter answers extraction prompts with response and eligibility
// prompts with the classify entry whose key appears in the prompt.
type fakeCompleter struct {
	response      string
	classify      map[string]string
	calls         int
	classifyCalls int
}

func (f *fakeCompleter) GenerateCompletion(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	if strings.Contains(prompt, "AVAILABLE POSITIONS") {
		f.classifyCalls++
		for key, resp := range f.classify {
			if strings.Contains(prompt, key) {
				return resp, nil
			}
		}
		return `{"positions":[]}`, nil
	}
	f.calls++
	return f.response, nil
}

func TestListingScraper(t *testing.T) {
	srv := listingServer(t)
	completer := &fakeCompleter{
		response: `{"title":"Beta Grant","deadline_iso":"2026-05-20","eligibility":["PhD"],"amount_max":1500}`,
		classify: map[string]string{"Alpha Grant": `{"positions":["coterm","Undergraduate","Astronaut"]}`},
	}
	s := NewListingScraper(listingSource(srv.URL), &MockFetcher{}, completer)

	raws, err := s.Scrape(t.Context())
	require.NoError(t, err)
	require.Len(t, raws, 3)

	byTitle := make(map[string]RawGrant)
	for _, r := range raws {
		byTitle[r.Title] = r
	}

	alpha := byTitle["Alpha Grant"]
	assert.Equal(t, srv.URL+"/alpha", alpha.URL)
	assert.Equal(t, "Alpha funds summer research.", alpha.Description)
	assert.Equal(t, "Deadline: April 10, 2026", alpha.RawDeadline)
	assert.Equal(t, "Up to $2,000", alpha.RawAmount)
	assert.Equal(t, []string{"Coterm", "Undergraduate"}, alpha.Eligibility)

	beta := byTitle["Beta Grant"]
	assert.Equal(t, srv.URL+"/beta", beta.URL)
	assert.Equal(t, "2026-05-20", beta.RawDeadline)
	assert.Equal(t, []string{"PhD"}, beta.Eligibility)
	require.NotNil(t, beta.AmountMax)
	assert.Equal(t, 1500.0, *beta.AmountMax)
	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, 2, completer.classifyCalls)

	gamma := byTitle["Gamma Grant"]
	assert.Equal(t, srv.URL+"/gamma.pdf", gamma.URL)
	assert.Empty(t, gamma.DeadlineCandidates)
}

func TestListingScraperRequiresContainer(t *testing.T) {
	cfg := listingSource("http://example.edu")
	cfg.Selectors.Container = ""
	_, err := NewListingScraper(cfg, nil, nil).Scrape(t.Context())
	assert.Error(t, err)
}

func TestListingScraperFirstPageFailure(t *testing.T) {
	srv := listingServer(t)
	cfg := listingSource(srv.URL)
	cfg.BaseURL = srv.URL + "/missing"
	_, err := NewListingScraper(cfg, nil, nil).Scrape(t.Context())
	assert.Error(t, err)
}

func TestListingScraperPDFDeadlines(t *testing.T) {
	raw := &RawGrant{Title: "Gamma", URL: "https://x.edu/gamma.pdf"}
	s := NewListingScraper(SourceConfig{ID: "x"}, &MockFetcher{Data: map[string][]byte{
		"https://x.edu/gamma.pdf": []byte("%PDF-1.4 truncated"),
	}}, nil)
	err := s.enrichFromPDF(t.Context(), raw, raw.URL)
	assert.Error(t, err)
	assert.Empty(t, raw.DeadlineCandidates)
}
