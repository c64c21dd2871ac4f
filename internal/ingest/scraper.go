package ingest

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/david/grant-search/internal/ai"
)

const (
	scraperUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxDescriptionLen  = 8000
	maxExtractTextSize = 12000
)

// listItem is one entry on a listing page.
type listItem struct {
	Title   string
	URL     string
	Summary string
}

// ListingScraper walks a paginated listing page with colly and enriches
// each entry from its detail page or PDF.
type ListingScraper struct {
	cfg       SourceConfig
	fetcher   Fetcher
	completer ai.Completer
}

// NewListingScraper builds a scraper for an html_listing source. fetcher
// downloads PDFs; completer, when non-nil, extracts fields from detail
// pages that yield no deadline.
func NewListingScraper(cfg SourceConfig, fetcher Fetcher, completer ai.Completer) *ListingScraper {
	return &ListingScraper{cfg: cfg, fetcher: fetcher, completer: completer}
}

func (s *ListingScraper) newCollector() (*colly.Collector, error) {
	u, err := url.Parse(s.cfg.BaseURL)
	if err != nil || u.Hostname() == "" {
		return nil, fmt.Errorf("invalid base URL %q", s.cfg.BaseURL)
	}

	delay := time.Second
	if s.cfg.Fetch.RateLimitRPS > 0 {
		delay = time.Duration(float64(time.Second) / s.cfg.Fetch.RateLimitRPS)
	}
	timeout := 30 * time.Second
	if s.cfg.Fetch.TimeoutSeconds > 0 {
		timeout = time.Duration(s.cfg.Fetch.TimeoutSeconds) * time.Second
	}

	c := colly.NewCollector(
		colly.AllowedDomains(u.Hostname()),
		colly.UserAgent(scraperUserAgent),
		colly.DetectCharset(),
	)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       delay,
		RandomDelay: delay / 2,
	}); err != nil {
		return nil, err
	}
	c.SetRequestTimeout(timeout)
	return c, nil
}

// Scrape returns the raw grants found on up to MaxPages listing pages.
func (s *ListingScraper) Scrape(ctx context.Context) ([]RawGrant, error) {
	items, err := s.scrapeListing(ctx)
	if err != nil {
		return nil, err
	}

	detail, err := s.newCollector()
	if err != nil {
		return nil, err
	}

	raws := make([]RawGrant, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return raws, err
		}
		raw := RawGrant{
			Title:       item.Title,
			URL:         item.URL,
			Description: item.Summary,
			DateLocales: s.cfg.Detail.DateLocales,
		}
		if s.cfg.Detail.Enabled {
			if err := s.enrich(ctx, &raw, detail); err != nil {
				log.Printf("[%s] Detail fetch failed for %s: %v", s.cfg.ID, raw.URL, err)
			}
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func (s *ListingScraper) scrapeListing(ctx context.Context) ([]listItem, error) {
	sel := s.cfg.Selectors
	if sel.Container == "" {
		return nil, fmt.Errorf("source %s: selector 'container' is required", s.cfg.ID)
	}
	linkAttr := sel.LinkAttr
	if linkAttr == "" {
		linkAttr = "href"
	}
	maxPages := s.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	collector, err := s.newCollector()
	if err != nil {
		return nil, err
	}

	var (
		items    []listItem
		seen     = make(map[string]bool)
		nextPage string
	)
	collector.OnHTML(sel.Container, func(e *colly.HTMLElement) {
		title := normalizeSpace(e.ChildText(sel.Title))
		var link string
		if sel.Link == "" || sel.Link == "." {
			link = strings.TrimSpace(e.Attr(linkAttr))
		} else {
			link = strings.TrimSpace(e.ChildAttr(sel.Link, linkAttr))
		}
		if title == "" || link == "" {
			return
		}
		full := CanonicalizeURL(e.Request.AbsoluteURL(link))
		if full == "" || seen[full] {
			return
		}
		seen[full] = true

		var summary string
		if sel.Content != "" {
			summary = normalizeSpace(e.ChildText(sel.Content))
		}
		items = append(items, listItem{Title: title, URL: full, Summary: summary})
	})
	if s.cfg.Pagination.Next != "" {
		collector.OnHTML(s.cfg.Pagination.Next, func(e *colly.HTMLElement) {
			nextPage = e.Request.AbsoluteURL(e.Attr("href"))
		})
	}
	collector.OnRequest(func(r *colly.Request) {
		log.Printf("[%s] Visiting: %s", s.cfg.ID, r.URL.String())
	})
	collector.OnError(func(r *colly.Response, err error) {
		log.Printf("[%s] Error fetching %s: %v", s.cfg.ID, r.Request.URL, err)
	})

	visited := make(map[string]bool)
	current := s.cfg.BaseURL
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		canon := CanonicalizeURL(current)
		if visited[canon] {
			log.Printf("[%s] Pagination cycle detected at %s. Stopping.", s.cfg.ID, canon)
			break
		}
		visited[canon] = true

		nextPage = ""
		if err := collector.Visit(current); err != nil {
			if page == 1 {
				return nil, fmt.Errorf("fetch listing %s: %w", current, err)
			}
			log.Printf("[%s] Fetch error on page %d: %v", s.cfg.ID, page, err)
			break
		}
		collector.Wait()

		if nextPage == "" {
			break
		}
		current = nextPage
	}
	return items, nil
}

// enrich fills raw from its detail page, or from the PDF it links to.
func (s *ListingScraper) enrich(ctx context.Context, raw *RawGrant, c *colly.Collector) error {
	if isPDFLink(raw.URL) {
		return s.enrichFromPDF(ctx, raw, raw.URL)
	}

	var (
		body     []byte
		visitErr error
	)
	clone := c.Clone()
	clone.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	clone.OnError(func(r *colly.Response, err error) {
		visitErr = err
	})
	if err := clone.Visit(raw.URL); err != nil {
		return err
	}
	clone.Wait()
	if visitErr != nil {
		return visitErr
	}
	if body == nil {
		return fmt.Errorf("no response received for detail page")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	pageText := s.extractDetail(raw, doc)

	if raw.RawDeadline == "" && len(raw.DeadlineCandidates) == 0 {
		for _, pdfURL := range pdfLinks(raw.URL, doc) {
			if err := s.enrichFromPDF(ctx, raw, pdfURL); err != nil {
				log.Printf("[%s] PDF extraction failed for %s: %v", s.cfg.ID, pdfURL, err)
				continue
			}
			if len(raw.DeadlineCandidates) > 0 {
				break
			}
		}
	}

	if raw.RawDeadline == "" && len(raw.DeadlineCandidates) == 0 && s.completer != nil {
		s.enrichFromModel(ctx, raw, pageText)
	}
	if len(raw.Eligibility) > 0 && s.completer != nil {
		s.classifyEligibility(ctx, raw)
	}
	return nil
}

// classifyEligibility replaces free-text eligibility with academic positions
// when the model recognises any; otherwise the text is kept.
func (s *ListingScraper) classifyEligibility(ctx context.Context, raw *RawGrant) {
	positions, err := ai.ClassifyEligibility(ctx, s.completer, raw.Title, strings.Join(raw.Eligibility, "; "))
	if err != nil {
		log.Printf("[%s] Eligibility classification failed for %s: %v", s.cfg.ID, raw.URL, err)
		return
	}
	if len(positions) == 0 {
		return
	}
	raw.Eligibility = raw.Eligibility[:0]
	for _, p := range positions {
		raw.Eligibility = append(raw.Eligibility, string(p))
	}
}

// extractDetail applies the detail selectors and returns the page text.
func (s *ListingScraper) extractDetail(raw *RawGrant, doc *goquery.Document) string {
	sel := s.cfg.Detail.Selectors
	doc.Find("script, style, noscript").Remove()
	container := doc.Selection
	if sel.Container != "" {
		if found := doc.Find(sel.Container); found.Length() > 0 {
			container = found
		}
	}
	pageText := normalizeSpace(container.Text())

	if sel.Description != "" {
		if desc := normalizeSpace(container.Find(sel.Description).Text()); desc != "" {
			raw.Description = desc
		}
	}
	if strings.TrimSpace(raw.Description) == "" {
		raw.Description = pageText
	}
	raw.Description = TruncateText(raw.Description, maxDescriptionLen)

	if sel.Deadline != "" {
		raw.RawDeadline = normalizeSpace(container.Find(sel.Deadline).Text())
	}
	if sel.Amount != "" {
		raw.RawAmount = normalizeSpace(container.Find(sel.Amount).Text())
	}
	if sel.Eligibility != "" {
		var block []string
		container.Find(sel.Eligibility).Find("li").Each(func(_ int, li *goquery.Selection) {
			block = append(block, li.Text())
		})
		if len(block) == 0 {
			block = []string{container.Find(sel.Eligibility).Text()}
		}
		raw.Eligibility = mergeUniqueFold(raw.Eligibility, splitAndCleanList(strings.Join(block, "\n")))
	}

	if raw.RawDeadline == "" {
		raw.DeadlineCandidates = mergeUniqueFold(raw.DeadlineCandidates, parseDateCandidatesFromText(pageText))
	}
	return pageText
}

func (s *ListingScraper) enrichFromPDF(ctx context.Context, raw *RawGrant, pdfURL string) error {
	if s.fetcher == nil {
		return fmt.Errorf("no fetcher for pdf %s", pdfURL)
	}
	candidates, text, err := extractDeadlinesFromPDF(ctx, s.fetcher, pdfURL)
	if err != nil {
		return err
	}
	raw.DeadlineCandidates = mergeUniqueFold(raw.DeadlineCandidates, candidates)
	if strings.TrimSpace(raw.Description) == "" {
		raw.Description = TruncateText(normalizeSpace(text), maxDescriptionLen)
	}
	return nil
}

func (s *ListingScraper) enrichFromModel(ctx context.Context, raw *RawGrant, pageText string) {
	info, err := ai.ExtractGrantInfo(ctx, s.completer, raw.Title, raw.URL, TruncateText(pageText, maxExtractTextSize))
	if err != nil {
		log.Printf("[%s] Model extraction failed for %s: %v", s.cfg.ID, raw.URL, err)
		return
	}
	if info.DeadlineISO != "" {
		raw.RawDeadline = info.DeadlineISO
	}
	for _, c := range info.DeadlineCandidates {
		if t, err := parseDateRobust(c, []string{"en"}); err == nil {
			raw.DeadlineCandidates = mergeUniqueFold(raw.DeadlineCandidates, []string{t.Format(time.RFC3339)})
		}
	}
	if raw.RawNextCycle == "" {
		raw.RawNextCycle = info.NextCycleStartISO
	}
	if raw.AmountMin == nil && raw.AmountMax == nil && raw.RawAmount == "" {
		raw.AmountMin, raw.AmountMax = info.AmountMin, info.AmountMax
	}
	if len(raw.Eligibility) == 0 {
		raw.Eligibility = mergeUniqueFold(nil, info.Eligibility)
	}
}

// pdfLinks returns the absolute PDF links on a detail page.
func pdfLinks(pageURL string, doc *goquery.Document) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		ref, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := ref.String()
		if isPDFLink(abs) && !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	})
	return out
}

// CanonicalizeURL drops fragments and tracking parameters so the same page
// always maps to the same URL.
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return rawURL
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	for _, p := range []string{"fbclid", "gclid", "mc_cid", "mc_eid", "mkt_tok", "ref", "session", "s_cid"} {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
