package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/grant-search/internal/auth"
	"github.com/david/grant-search/internal/config"
	"github.com/david/grant-search/internal/ingest"
	"github.com/david/grant-search/internal/models"
	"github.com/david/grant-search/internal/retrieval"
	"github.com/david/grant-search/internal/storage"
)

// Deps are the components a Server routes to. Auth and Pipeline may be nil;
// their routes are then not registered.
type Deps struct {
	Store    storage.Store
	Session  *retrieval.Session
	Embedder retrieval.Embedder
	Auth     *auth.Service
	Pipeline *ingest.Pipeline
	Search   config.SearchConfig
	Origins  []string
	// AdminSecret guards the admin routes. Empty falls back to ADMIN_SECRET.
	AdminSecret string
	Logger      *slog.Logger
}

type Server struct {
	Echo *echo.Echo

	store    storage.Store
	session  *retrieval.Session
	embedder retrieval.Embedder
	auth     *auth.Service
	pipeline *ingest.Pipeline
	search   config.SearchConfig
	secret   string
	logger   *slog.Logger

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

func NewServer(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := append([]string{"http://localhost:4200"}, d.Origins...)
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Search.DefaultResults <= 0 {
		d.Search.DefaultResults = retrieval.DefaultNumResults
	}
	if d.Search.MaxResults < d.Search.DefaultResults {
		d.Search.MaxResults = d.Search.DefaultResults
	}

	s := &Server{
		Echo:     e,
		store:    d.Store,
		session:  d.Session,
		embedder: d.Embedder,
		auth:     d.Auth,
		pipeline: d.Pipeline,
		search:   d.Search,
		secret:   d.AdminSecret,
		logger:   d.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	api := s.Echo.Group("/api/v1")
	api.GET("/grants", s.handleListGrants)
	api.GET("/grants/:id", s.handleGetGrant)
	api.GET("/search", s.handleSearch)
	api.POST("/embed", s.handleEmbed)
	api.GET("/stats", s.handleGetStats)

	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/cache/invalidate", s.handleInvalidateCache)
	if s.pipeline != nil {
		admin.POST("/ingest/:source", s.handleIngestSource)
		admin.POST("/embed-missing", s.handleEmbedMissing)
	}
	admin.GET("/job/:id", s.handleJobStatus)
	admin.GET("/runs", s.handleRecentRuns)

	if s.auth == nil {
		return
	}
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	saved := api.Group("/saved")
	saved.Use(s.auth.Middleware)
	saved.POST("/:id", s.handleSaveGrant)
	saved.DELETE("/:id", s.handleUnsaveGrant)
	saved.GET("", s.handleGetSavedGrants)
}

func (s *Server) Start(addr string) error {
	return s.Echo.Start(addr)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]string{"error": msg})
}

// criteriaFromQuery reads min_amount, positions, vsos, sort_by and
// sort_order. Positions and VSOs are comma separated.
func criteriaFromQuery(c echo.Context) (models.FilterCriteria, error) {
	in := models.CriteriaInput{
		Positions:        splitCSV(c.QueryParam("positions")),
		RepresentingVSOs: splitCSV(c.QueryParam("vsos")),
		SortBy:           c.QueryParam("sort_by"),
		SortOrder:        c.QueryParam("sort_order"),
	}
	if raw := strings.TrimSpace(c.QueryParam("min_amount")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return models.FilterCriteria{}, errors.Join(models.ErrInvalidCriteria, err)
		}
		in.MinAmount = &v
	}
	return models.ParseCriteria(in)
}

func splitCSV(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	var out []string
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
