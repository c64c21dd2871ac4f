package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/david/grant-search/internal/ai"
	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/retrieval"
	"github.com/david/grant-search/internal/storage"
)

var ErrUnknownSource = errors.New("unknown source")

// Pipeline fetches a source, normalises its grants, stores them and embeds
// the new ones.
type Pipeline struct {
	store     storage.Store
	runs      storage.RunRecorder
	embedder  retrieval.Embedder
	registry  *Registry
	completer ai.Completer
	logger    *slog.Logger

	embedOpts    EmbedOptions
	allowPrivate bool
	now          func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

func WithPipelineLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithCompleter enables model extraction for pages without a deadline.
func WithCompleter(c ai.Completer) PipelineOption {
	return func(p *Pipeline) { p.completer = c }
}

func WithEmbedOptions(o EmbedOptions) PipelineOption {
	return func(p *Pipeline) { p.embedOpts = o }
}

// WithAllowPrivate lets fetchers reach private addresses.
func WithAllowPrivate(allow bool) PipelineOption {
	return func(p *Pipeline) { p.allowPrivate = allow }
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// NewPipeline wires a pipeline. Run history is kept when store also
// implements storage.RunRecorder. A nil embedder skips embedding.
func NewPipeline(store storage.Store, emb retrieval.Embedder, reg *Registry, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:    store,
		embedder: emb,
		registry: reg,
		logger:   slog.Default(),
		now:      time.Now,
	}
	if rr, ok := store.(storage.RunRecorder); ok {
		p.runs = rr
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.embedOpts.Logger == nil {
		p.embedOpts.Logger = p.logger
	}
	return p
}

// HasSource reports whether the registry knows sourceID.
func (p *Pipeline) HasSource(sourceID string) bool {
	_, ok := p.registry.Source(sourceID)
	return ok
}

// Run ingests one source and records the run when the store supports it.
func (p *Pipeline) Run(ctx context.Context, sourceID string) (Stats, error) {
	src, ok := p.registry.Source(sourceID)
	if !ok {
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}
	logger := p.logger.With("source", src.ID)

	var runID string
	if p.runs != nil {
		id, err := p.runs.StartRun(ctx, src.ID)
		if err != nil {
			logger.Warn("failed to record ingest run", "err", err)
		} else {
			runID = id
		}
	}

	start := p.now()
	logger.Info("starting ingestion", "name", src.Name, "strategy", src.Strategy)
	stats, err := p.run(ctx, src, logger)
	if err == nil && stats.Found > 0 && stats.Saved == 0 {
		err = fmt.Errorf("source %s: none of %d grants could be saved", src.ID, stats.Found)
	}
	logger.Info("ingestion finished",
		"found", stats.Found, "saved", stats.Saved, "skipped", stats.Skipped,
		"embedded", stats.Embedded, "errors", stats.Errors,
		"duration", p.now().Sub(start), "err", err)

	if runID != "" {
		counts := models.RunCounts{
			ItemsFound: stats.Found,
			ItemsSaved: stats.Saved,
			Embedded:   stats.Embedded,
			Errors:     stats.Errors,
		}
		// The run row is updated even if ctx was cancelled.
		finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if ferr := p.runs.FinishRun(finishCtx, runID, counts, err); ferr != nil {
			logger.Warn("failed to finish ingest run", "run", runID, "err", ferr)
		}
		cancel()
	}
	return stats, err
}

// RunAll ingests every registered source, continuing past failures.
func (p *Pipeline) RunAll(ctx context.Context) (map[string]Stats, error) {
	results := make(map[string]Stats, len(p.registry.Sources))
	var errs []error
	for _, src := range p.registry.Sources {
		stats, err := p.Run(ctx, src.ID)
		if err != nil {
			errs = append(errs, err)
			stats.Errors++
		}
		results[src.ID] = stats
		if ctx.Err() != nil {
			break
		}
	}
	return results, errors.Join(errs...)
}

func (p *Pipeline) run(ctx context.Context, src SourceConfig, logger *slog.Logger) (Stats, error) {
	var stats Stats

	existing, err := p.store.LoadGrants(ctx)
	if err != nil {
		return stats, fmt.Errorf("load grants: %w", err)
	}
	start := src.StartID
	if start <= 0 {
		start = 1
	}
	alloc := NewIDAllocator(existing, start)

	var grants []models.Grant
	switch src.Strategy {
	case StrategyNIH:
		grants, err = p.collectNIH(ctx, src, alloc, &stats, logger)
	case StrategyListing:
		grants, err = p.collectListing(ctx, src, alloc, &stats, logger)
	default:
		err = fmt.Errorf("source %s: unknown strategy %q", src.ID, src.Strategy)
	}
	if err != nil {
		return stats, err
	}
	if len(grants) == 0 {
		return stats, nil
	}

	saved, err := p.store.UpsertGrants(ctx, src.ID, grants)
	stats.Saved = saved
	if err != nil {
		return stats, fmt.Errorf("save grants: %w", err)
	}

	if p.embedder == nil {
		return stats, nil
	}
	table, err := p.store.LoadEmbeddings(ctx)
	if err != nil {
		return stats, fmt.Errorf("load embeddings: %w", err)
	}
	res, err := p.embedAndStore(ctx, grants, table, p.embedOpts)
	stats.Embedded = len(res.Vectors)
	stats.Errors += res.Failed
	return stats, err
}

// collectNIH maps every active project of the source's organisations.
// Projects sharing a detail URL collapse to the newest one.
func (p *Pipeline) collectNIH(ctx context.Context, src SourceConfig, alloc *IDAllocator, stats *Stats, logger *slog.Logger) ([]models.Grant, error) {
	client := NewNIHClient(src.BaseURL, NewRateLimitedFetcher(src.Fetch, p.allowPrivate))

	var (
		grants []models.Grant
		seen   = make(map[string]bool)
		errs   []error
	)
	for _, org := range src.OrgNames {
		projects, err := client.FetchActiveProjects(ctx, org, src.PageSize)
		if err != nil {
			stats.Errors++
			errs = append(errs, err)
			logger.Error("nih fetch failed", "org", org, "fetched", len(projects), "err", err)
		}
		for _, proj := range projects {
			stats.Found++
			g, err := GrantFromNIHProject(proj, "", src.Eligibility)
			if err != nil {
				stats.Skipped++
				logger.Debug("skipping project", "project", proj.ProjectNum, "err", err)
				continue
			}
			g.ID = alloc.ID(g.URL)
			if seen[g.ID] {
				stats.Skipped++
				continue
			}
			seen[g.ID] = true
			grants = append(grants, g)
		}
	}
	if len(grants) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return grants, nil
}

func (p *Pipeline) collectListing(ctx context.Context, src SourceConfig, alloc *IDAllocator, stats *Stats, logger *slog.Logger) ([]models.Grant, error) {
	scraper := NewListingScraper(src, NewRateLimitedFetcher(src.Fetch, p.allowPrivate), p.completer)
	raws, err := scraper.Scrape(ctx)
	if err != nil && len(raws) == 0 {
		return nil, err
	}

	now := p.now()
	grants := make([]models.Grant, 0, len(raws))
	for _, raw := range raws {
		stats.Found++
		g, err := GrantFromRaw(raw, "", src.Eligibility, now)
		if err != nil {
			stats.Skipped++
			logger.Warn("skipping grant", "url", raw.URL, "err", err)
			continue
		}
		g.ID = alloc.ID(g.URL)
		grants = append(grants, g)
	}
	return grants, nil
}

// EmbedMissing embeds every stored grant that has no vector, or every
// grant when force is set.
func (p *Pipeline) EmbedMissing(ctx context.Context, force bool) (EmbedResult, error) {
	if p.embedder == nil {
		return EmbedResult{}, errors.New("no embedder configured")
	}

	var grants []models.Grant
	if force {
		all, err := p.store.LoadGrants(ctx)
		if err != nil {
			return EmbedResult{}, fmt.Errorf("load grants: %w", err)
		}
		grants = all.Values()
	} else {
		missing, err := p.store.GrantsMissingEmbeddings(ctx)
		if err != nil {
			return EmbedResult{}, fmt.Errorf("find grants missing embeddings: %w", err)
		}
		grants = missing
	}

	opts := p.embedOpts
	opts.Force = force
	res, err := p.embedAndStore(ctx, grants, nil, opts)
	p.logger.Info("embedding finished", "grants", len(grants), "embedded", len(res.Vectors),
		"skipped", res.Skipped, "failed", res.Failed)
	return res, err
}

func (p *Pipeline) embedAndStore(ctx context.Context, grants []models.Grant, existing models.EmbeddingTable, opts EmbedOptions) (EmbedResult, error) {
	res, err := EmbedGrants(ctx, p.embedder, grants, existing, opts)
	if len(res.Vectors) > 0 {
		if uerr := p.store.UpsertEmbeddings(ctx, res.Vectors); uerr != nil {
			return res, errors.Join(err, fmt.Errorf("save embeddings: %w", uerr))
		}
	}
	return res, err
}
