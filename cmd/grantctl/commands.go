package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"

	"github.com/david/grant-search/internal/app"
	"github.com/david/grant-search/internal/config"
	"github.com/david/grant-search/internal/ingest"
	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/retrieval"
	"github.com/david/grant-search/internal/storage"
)

func openApp(c *cli.Context, migrate bool) (*app.App, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	return app.Open(c.Context, cfg, slog.Default(), migrate)
}

func criteriaFromFlags(c *cli.Context) (models.FilterCriteria, error) {
	in := models.CriteriaInput{
		Positions:        c.StringSlice("position"),
		RepresentingVSOs: c.StringSlice("vso"),
		SortBy:           c.String("sort-by"),
		SortOrder:        c.String("sort-order"),
	}
	if c.IsSet("min-amount") {
		v := c.Float64("min-amount")
		in.MinAmount = &v
	}
	return models.ParseCriteria(in)
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return cli.Exit("search needs a query", 2)
	}
	criteria, err := criteriaFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	a, err := openApp(c, false)
	if err != nil {
		return err
	}
	defer a.Close()
	session, err := a.Session(c.Context)
	if err != nil {
		return err
	}

	res, err := session.Search(c.Context, retrieval.SearchRequest{
		Query:      query,
		NumResults: c.Int("n"),
		Criteria:   criteria,
	})
	if errors.Is(err, retrieval.ErrSearchUnavailable) {
		fmt.Fprintln(c.App.ErrWriter, "Search is temporarily unavailable; showing filtered grants only.")
		renderGrants(c.App.Writer, res.Filtered)
		return cli.Exit("", 1)
	}
	if err != nil {
		return err
	}
	if res.Status == retrieval.StatusNoMatches {
		fmt.Fprintln(c.App.Writer, "No matching grants.")
		return nil
	}
	renderRanked(c.App.Writer, res.Ranked)
	return nil
}

func filterCommand(c *cli.Context) error {
	criteria, err := criteriaFromFlags(c)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	a, err := openApp(c, false)
	if err != nil {
		return err
	}
	defer a.Close()

	grants, err := a.Store.LoadGrants(c.Context)
	if err != nil {
		return err
	}
	renderGrants(c.App.Writer, retrieval.FilterGrants(grants.Values(), criteria))
	return nil
}

func importNIHCommand(c *cli.Context) error {
	a, err := openApp(c, false)
	if err != nil {
		return err
	}
	defer a.Close()

	src := ingest.SourceConfig{
		ID:       "nih_import",
		Name:     "NIH RePORTER import",
		Strategy: ingest.StrategyNIH,
		BaseURL:  c.String("base-url"),
		OrgNames: c.StringSlice("org"),
		PageSize: c.Int("page-size"),
		StartID:  c.Int("start-id"),
	}
	app.ApplyFetchDefaults(&src, a.Config.Ingest)
	reg := &ingest.Registry{Sources: []ingest.SourceConfig{src}}

	stats, err := a.Pipeline(reg).Run(c.Context, src.ID)
	renderStats(c.App.Writer, map[string]ingest.Stats{src.ID: stats})
	return err
}

func scrapeCommand(c *cli.Context) error {
	a, err := openApp(c, false)
	if err != nil {
		return err
	}
	defer a.Close()

	p := a.Pipeline(nil)
	if id := c.String("source"); id != "" {
		stats, err := p.Run(c.Context, id)
		renderStats(c.App.Writer, map[string]ingest.Stats{id: stats})
		return err
	}
	results, err := p.RunAll(c.Context)
	renderStats(c.App.Writer, results)
	return err
}

func embedCommand(c *cli.Context) error {
	a, err := openApp(c, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Pipeline(nil).EmbedMissing(c.Context, c.Bool("force"))
	fmt.Fprintf(c.App.Writer, "Embedded %d grants (%d skipped, %d failed)\n", len(res.Vectors), res.Skipped, res.Failed)
	return err
}

func migrateCommand(c *cli.Context) error {
	a, err := openApp(c, true)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.Config.Store.Driver != config.DriverPostgres {
		fmt.Fprintf(c.App.Writer, "Driver %s manages its schema on open; nothing to migrate.\n", a.Config.Store.Driver)
		return nil
	}
	fmt.Fprintln(c.App.Writer, "Migrations applied.")
	return nil
}

func runsCommand(c *cli.Context) error {
	a, err := openApp(c, false)
	if err != nil {
		return err
	}
	defer a.Close()

	rr, ok := a.Store.(storage.RunRecorder)
	if !ok {
		return cli.Exit(fmt.Sprintf("driver %s keeps no run history", a.Config.Store.Driver), 1)
	}
	runs, err := rr.RecentRuns(c.Context, c.Int("limit"))
	if err != nil {
		return err
	}
	renderRuns(c.App.Writer, runs)
	return nil
}

func sourcesCommand(c *cli.Context) error {
	reg, err := ingest.LoadRegistry("")
	if path := c.String("config"); path != "" {
		cfg, cerr := config.Load(path)
		if cerr != nil {
			return cerr
		}
		reg, err = ingest.LoadRegistry(cfg.Ingest.SourcesPath)
	}
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"ID", "Name", "Strategy", "Base URL"})
	for _, src := range reg.Sources {
		t.AppendRow(table.Row{src.ID, src.Name, src.Strategy, src.BaseURL})
	}
	t.Render()
	return nil
}

func formatAmount(g models.Grant) string {
	switch {
	case g.AmountMin != nil && g.AmountMax != nil && *g.AmountMin != *g.AmountMax:
		return fmt.Sprintf("$%.0f - $%.0f", *g.AmountMin, *g.AmountMax)
	case g.AmountMin != nil:
		return fmt.Sprintf("$%.0f", *g.AmountMin)
	case g.AmountMax != nil:
		return fmt.Sprintf("up to $%.0f", *g.AmountMax)
	}
	return "-"
}

func renderGrants(w io.Writer, grants []models.Grant) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Title", "Amount", "Deadline"})
	for _, g := range grants {
		t.AppendRow(table.Row{g.ID, g.Title, formatAmount(g), g.Deadline.Format(time.DateOnly)})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d grants", len(grants))})
	t.Render()
}

func renderRanked(w io.Writer, ranked []retrieval.RankedGrant) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "ID", "Title", "Score", "Amount", "Deadline"})
	for i, g := range ranked {
		t.AppendRow(table.Row{i + 1, g.ID, g.Title, fmt.Sprintf("%.3f", g.Score), formatAmount(g.Grant), g.Deadline.Format(time.DateOnly)})
	}
	t.Render()
}

func renderStats(w io.Writer, results map[string]ingest.Stats) {
	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Found", "Saved", "Skipped", "Embedded", "Errors"})
	for _, id := range ids {
		s := results[id]
		t.AppendRow(table.Row{id, s.Found, s.Saved, s.Skipped, s.Embedded, s.Errors})
	}
	t.Render()
}

func renderRuns(w io.Writer, runs []models.IngestRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Source", "Status", "Found", "Saved", "Embedded", "Errors", "Duration", "Started At"})
	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{r.SourceID, r.Status, r.ItemsFound, r.ItemsSaved, r.Embedded, r.Errors, duration, r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}
