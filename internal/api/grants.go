package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/david/grant-search/internal/retrieval"
)

const maxEmbedTextLength = 8192

func (s *Server) handleListGrants(c echo.Context) error {
	criteria, err := criteriaFromQuery(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	grants := s.session.Filter(criteria)
	return c.JSON(http.StatusOK, map[string]any{
		"grants": grants,
		"count":  len(grants),
	})
}

func (s *Server) handleGetGrant(c echo.Context) error {
	g, ok := s.session.Grant(c.Param("id"))
	if !ok {
		return errorJSON(c, http.StatusNotFound, "Grant not found")
	}
	return c.JSON(http.StatusOK, g)
}

// handleSearch returns the filtered and ranked refinements together. A
// ranking failure answers 503 with the filtered list still attached.
func (s *Server) handleSearch(c echo.Context) error {
	criteria, err := criteriaFromQuery(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	n := s.search.DefaultResults
	if raw := strings.TrimSpace(c.QueryParam("n")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return errorJSON(c, http.StatusBadRequest, "n must be a non-negative integer")
		}
		n = min(parsed, s.search.MaxResults)
	}
	if n == 0 {
		// Session treats zero as "use the default"; an explicit n=0 asks for none.
		n = -1
	}

	res, err := s.session.Search(c.Request().Context(), retrieval.SearchRequest{
		Query:      c.QueryParam("q"),
		NumResults: n,
		Criteria:   criteria,
	})
	if errors.Is(err, retrieval.ErrSearchUnavailable) {
		s.logger.Warn("search unavailable", "query", res.Query, "err", err)
		return c.JSON(http.StatusServiceUnavailable, res)
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

type embedRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleEmbed(c echo.Context) error {
	var req embedRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return errorJSON(c, http.StatusBadRequest, "text is required")
	}
	if len(text) > maxEmbedTextLength {
		return errorJSON(c, http.StatusBadRequest, "text is too long")
	}

	vec, err := s.embedder.GenerateEmbedding(c.Request().Context(), text)
	if err != nil {
		s.logger.Error("embedding request failed", "err", err)
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": string(retrieval.StatusUnavailable),
			"error":  "embedding service unavailable",
		})
	}
	return c.JSON(http.StatusOK, map[string][]float32{"embedding": vec})
}

func (s *Server) handleGetStats(c echo.Context) error {
	stats, err := s.store.GetStats(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}
