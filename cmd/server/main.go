package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/david/grant-search/internal/api"
	"github.com/david/grant-search/internal/app"
	"github.com/david/grant-search/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("GRANT_SEARCH_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	a, err := app.Open(ctx, cfg, logger, true)
	if err != nil {
		log.Fatalf("Failed to initialise: %v", err)
	}
	defer a.Close()

	session, err := a.Session(ctx)
	if err != nil {
		log.Fatalf("Failed to load grants: %v", err)
	}
	authService, err := a.Auth()
	if err != nil {
		log.Fatalf("Failed to set up accounts: %v", err)
	}
	if authService == nil {
		log.Printf("Store driver %s keeps no accounts; auth routes disabled", cfg.Store.Driver)
	}

	srv := api.NewServer(api.Deps{
		Store:       a.Store,
		Session:     session,
		Embedder:    a.Embedder,
		Auth:        authService,
		Pipeline:    a.Pipeline(nil),
		Search:      cfg.Search,
		Origins:     cfg.Server.CORSOrigins,
		AdminSecret: os.Getenv("ADMIN_SECRET"),
		Logger:      logger,
	})

	go func() {
		log.Printf("Server starting on port %s...", cfg.Server.Port)
		if err := srv.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
