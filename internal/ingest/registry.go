package ingest

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/sources.yaml
var sourcesYAML embed.FS

// Source strategies.
const (
	StrategyNIH     = "nih_reporter"
	StrategyListing = "html_listing"
)

// Registry holds the configuration for all data sources.
type Registry struct {
	Sources []SourceConfig `yaml:"sources"`
}

// FetchConfig defines HTTP fetching configuration for a source.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 30
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Default: 1.0
	ProxyURL       string  `yaml:"proxy_url,omitempty"`
}

// SourceConfig defines a single data source for ingestion.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Strategy string `yaml:"strategy"`
	BaseURL  string `yaml:"base_url,omitempty"`

	// Applied to grants whose page lists no eligibility.
	Eligibility []string `yaml:"eligibility,omitempty"`

	// nih_reporter
	OrgNames []string `yaml:"org_names,omitempty"`
	PageSize int      `yaml:"page_size,omitempty"`
	StartID  int      `yaml:"start_id,omitempty"`

	Fetch FetchConfig `yaml:"fetch,omitempty"`

	// html_listing
	Selectors  SelectorConfig   `yaml:"selectors,omitempty"`
	Pagination PaginationConfig `yaml:"pagination,omitempty"`
	MaxPages   int              `yaml:"max_pages,omitempty"`
	Detail     DetailConfig     `yaml:"detail,omitempty"`
}

type PaginationConfig struct {
	Next string `yaml:"next,omitempty"` // CSS selector for the next page link
}

type SelectorConfig struct {
	Container string `yaml:"container,omitempty"` // list item wrapper
	Link      string `yaml:"link,omitempty"`
	LinkAttr  string `yaml:"link_attr,omitempty"` // default: href
	Title     string `yaml:"title,omitempty"`
	Content   string `yaml:"content,omitempty"`
}

type DetailConfig struct {
	Enabled   bool                 `yaml:"enabled"`
	Selectors DetailSelectorConfig `yaml:"selectors,omitempty"`
	// DateLocales feeds the date parser, e.g. ["en", "es"].
	DateLocales []string `yaml:"date_locales,omitempty"`
}

type DetailSelectorConfig struct {
	Container   string `yaml:"container,omitempty"`
	Description string `yaml:"description,omitempty"`
	Deadline    string `yaml:"deadline,omitempty"`
	Amount      string `yaml:"amount,omitempty"`
	Eligibility string `yaml:"eligibility,omitempty"`
}

// LoadRegistry reads the registry at path, or the embedded sources.yaml
// when path is empty.
func LoadRegistry(path string) (*Registry, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = sourcesYAML.ReadFile("config/sources.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	for i, src := range reg.Sources {
		if src.ID == "" {
			return nil, fmt.Errorf("registry source %d has no id", i)
		}
		switch src.Strategy {
		case StrategyNIH, StrategyListing:
		default:
			return nil, fmt.Errorf("source %s: unknown strategy %q", src.ID, src.Strategy)
		}
	}
	return &reg, nil
}

// Source looks up a source by id.
func (r *Registry) Source(id string) (SourceConfig, bool) {
	for _, src := range r.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}
