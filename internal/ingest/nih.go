package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/david/grant-search/internal/models"
)

const (
	DefaultNIHURL      = "https://api.reporter.nih.gov/v2/projects/search"
	defaultNIHPageSize = 500
)

var nihIncludeFields = []string{
	"ApplId", "SubprojectId", "FiscalYear", "Organization", "ProjectNum",
	"ProjectNumSplit", "ContactPiName", "AllText", "FullStudySection",
	"ProjectStartDate", "ProjectEndDate", "ProjectTitle", "AbstractText",
	"AwardAmount", "ProjectDetailUrl",
}

// NIHProject is the subset of a RePORTER project record we keep.
type NIHProject struct {
	ApplID           int64    `json:"appl_id"`
	ProjectNum       string   `json:"project_num"`
	FiscalYear       int      `json:"fiscal_year"`
	ContactPIName    string   `json:"contact_pi_name"`
	ProjectTitle     string   `json:"project_title"`
	AbstractText     string   `json:"abstract_text"`
	AwardAmount      *float64 `json:"award_amount"`
	ProjectDetailURL string   `json:"project_detail_url"`
	ProjectStartDate string   `json:"project_start_date"`
	ProjectEndDate   string   `json:"project_end_date"`
}

type nihCriteria struct {
	OrgNames              []string `json:"org_names"`
	IncludeActiveProjects bool     `json:"include_active_projects"`
}

type nihSearchRequest struct {
	Criteria      nihCriteria `json:"criteria"`
	IncludeFields []string    `json:"include_fields"`
	Offset        int         `json:"offset"`
	Limit         int         `json:"limit"`
	SortField     string      `json:"sort_field"`
	SortOrder     string      `json:"sort_order"`
}

type nihSearchResponse struct {
	Meta struct {
		Total int `json:"total"`
	} `json:"meta"`
	Results []NIHProject `json:"results"`
}

// NIHClient pages through the RePORTER project search API.
type NIHClient struct {
	baseURL string
	fetcher *RateLimitedFetcher
}

func NewNIHClient(baseURL string, fetcher *RateLimitedFetcher) *NIHClient {
	if baseURL == "" {
		baseURL = DefaultNIHURL
	}
	return &NIHClient{baseURL: baseURL, fetcher: fetcher}
}

// FetchActiveProjects returns every active project for orgName, newest
// start date first. Paging stops at the first short page.
func (c *NIHClient) FetchActiveProjects(ctx context.Context, orgName string, pageSize int) ([]NIHProject, error) {
	if pageSize <= 0 {
		pageSize = defaultNIHPageSize
	}

	var all []NIHProject
	for offset := 0; ; offset += pageSize {
		page, err := c.searchPage(ctx, orgName, offset, pageSize)
		if err != nil {
			return all, fmt.Errorf("nih page at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

func (c *NIHClient) searchPage(ctx context.Context, orgName string, offset, limit int) ([]NIHProject, error) {
	payload, err := json.Marshal(nihSearchRequest{
		Criteria:      nihCriteria{OrgNames: []string{orgName}, IncludeActiveProjects: true},
		IncludeFields: nihIncludeFields,
		Offset:        offset,
		Limit:         limit,
		SortField:     "project_start_date",
		SortOrder:     "desc",
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.fetcher.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out nihSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Results, nil
}

// GrantFromNIHProject maps a project to a grant. The award amount is both
// bounds and the project end date is the deadline.
func GrantFromNIHProject(p NIHProject, id string, eligibility []string) (models.Grant, error) {
	g := models.Grant{
		ID:          id,
		Title:       normalizeSpace(p.ProjectTitle),
		Description: strings.TrimSpace(p.AbstractText),
		URL:         strings.TrimSpace(p.ProjectDetailURL),
		Eligibility: mergeUniqueFold([]string{}, eligibility),
	}
	if g.Title == "" {
		return g, fmt.Errorf("nih project %s has no title", p.ProjectNum)
	}
	if p.AwardAmount != nil {
		lo, hi := *p.AwardAmount, *p.AwardAmount
		g.AmountMin, g.AmountMax = &lo, &hi
	}
	if p.ProjectEndDate == "" {
		return g, fmt.Errorf("%w: %s", ErrNoDeadline, g.Title)
	}
	deadline, err := parseDateRobust(p.ProjectEndDate, []string{"en"})
	if err != nil {
		return g, fmt.Errorf("%w: %s: %v", ErrNoDeadline, g.Title, err)
	}
	g.Deadline = deadline
	return g, nil
}
