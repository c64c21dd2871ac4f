package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func criteriaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{Name: "min-amount", Usage: "Only grants whose maximum award reaches this amount"},
		&cli.StringSliceFlag{Name: "position", Usage: "Academic position of the applicant (repeatable)"},
		&cli.StringSliceFlag{Name: "vso", Usage: "Representing VSO (repeatable)"},
		&cli.StringFlag{Name: "sort-by", Usage: "Amount or Deadline"},
		&cli.StringFlag{Name: "sort-order", Usage: "Ascending or Descending"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "grantctl",
		Usage: "Search, ingest and maintain the grant collection",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config",
				EnvVars: []string{"GRANT_SEARCH_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "Rank grants by similarity to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: append([]cli.Flag{
					&cli.IntFlag{Name: "n", Usage: "Number of ranked results", Value: 10},
				}, criteriaFlags()...),
			},
			{
				Name:   "filter",
				Usage:  "List grants matching the criteria",
				Action: filterCommand,
				Flags:  criteriaFlags(),
			},
			{
				Name:   "import-nih",
				Usage:  "Import active NIH RePORTER projects",
				Action: importNIHCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "org", Usage: "Organisation name (repeatable)", Value: cli.NewStringSlice("STANFORD UNIVERSITY")},
					&cli.IntFlag{Name: "start-id", Usage: "First numeric id for new grants", Value: 15},
					&cli.IntFlag{Name: "page-size", Usage: "Projects per request", Value: 500},
					&cli.StringFlag{Name: "base-url", Usage: "RePORTER search endpoint"},
				},
			},
			{
				Name:   "scrape",
				Usage:  "Run one or all registry sources",
				Action: scrapeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Source id; empty runs every source"},
				},
			},
			{
				Name:   "embed",
				Usage:  "Generate embeddings for grants without one",
				Action: embedCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Re-embed every grant"},
				},
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations",
				Action: migrateCommand,
			},
			{
				Name:   "runs",
				Usage:  "Show recent ingest runs",
				Action: runsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 10},
				},
			},
			{
				Name:   "sources",
				Usage:  "List registry sources",
				Action: sourcesCommand,
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	var level slog.Level
	switch strings.ToLower(c.String("log-level")) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.String("log-level"))
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return nil
}
