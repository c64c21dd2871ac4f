package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/david/grant-search/internal/ingest"
	"github.com/david/grant-search/internal/storage"
)

const jobTimeout = 30 * time.Minute

type backgroundJob struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func (s *Server) handleInvalidateCache(c echo.Context) error {
	if err := s.session.Reload(c.Request().Context()); err != nil {
		s.logger.Error("reload after cache invalidation failed", "err", err)
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status": "invalidated",
		"grants": len(s.session.Grants()),
	})
}

// handleIngestSource starts an ingest run for one source and answers 202
// with a poll URL. Only one job runs at a time.
func (s *Server) handleIngestSource(c echo.Context) error {
	source := c.Param("source")
	if !s.pipeline.HasSource(source) {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("%s: %q", ingest.ErrUnknownSource, source))
	}
	return s.startJob(c, "ingest:"+source, func(ctx context.Context) (any, error) {
		stats, err := s.pipeline.Run(ctx, source)
		if errors.Is(err, ingest.ErrUnknownSource) {
			return nil, err
		}
		if stats.Saved > 0 || stats.Embedded > 0 {
			if rerr := s.session.Reload(ctx); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		return stats, err
	})
}

func (s *Server) handleEmbedMissing(c echo.Context) error {
	force, _ := strconv.ParseBool(c.QueryParam("force"))
	return s.startJob(c, "embed", func(ctx context.Context) (any, error) {
		res, err := s.pipeline.EmbedMissing(ctx, force)
		summary := map[string]int{
			"embedded": len(res.Vectors),
			"skipped":  res.Skipped,
			"failed":   res.Failed,
		}
		if len(res.Vectors) > 0 {
			if rerr := s.session.Reload(ctx); rerr != nil {
				err = errors.Join(err, rerr)
			}
		}
		return summary, err
	})
}

func (s *Server) startJob(c echo.Context, kind string, run func(ctx context.Context) (any, error)) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A background job is already running",
			"job_id": job.ID,
		})
	}

	// Detached from the request so the job outlives it.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), jobTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Kind:      kind,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	go func() {
		defer jobCancel()
		result, err := run(jobCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.Result = result
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
			s.logger.Error("background job failed", "job", jobID, "kind", kind, "err", err)
			return
		}
		job.Status = "completed"
		s.logger.Info("background job completed", "job", jobID, "kind", kind,
			"duration", job.EndedAt.Sub(job.StartedAt))
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"status":   "running",
		"poll_url": "/api/v1/admin/job/" + jobID,
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job := s.runningJob
	if job == nil || job.ID != queried {
		return errorJSON(c, http.StatusNotFound, "job not found")
	}

	resp := map[string]any{
		"id":         job.ID,
		"kind":       job.Kind,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRecentRuns(c echo.Context) error {
	rr, ok := s.store.(storage.RunRecorder)
	if !ok {
		return errorJSON(c, http.StatusNotImplemented, "store does not record ingest runs")
	}
	limit := 20
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	runs, err := rr.RecentRuns(c.Request().Context(), limit)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, runs)
}

// adminMiddleware accepts the secret in X-Admin-Secret or as a Bearer token.
func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret := s.secret
		if secret == "" {
			var err error
			if secret, err = adminSecret(); err != nil {
				return errorJSON(c, http.StatusInternalServerError, "Server admin configuration error")
			}
		}

		if secretMatches(c.Request().Header.Get("X-Admin-Secret"), secret) {
			return next(c)
		}
		authHeader := c.Request().Header.Get("Authorization")
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if secretMatches(authHeader[7:], secret) {
				return next(c)
			}
		}
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized admin access")
	}
}

func secretMatches(given, secret string) bool {
	return given != "" && subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", errors.New("admin secret unavailable")
	}
	return adminSecretRuntime, nil
}
