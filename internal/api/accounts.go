package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/david/grant-search/internal/auth"
)

func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCreds):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrInvalidGrantID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	resp, err := s.auth.Signup(c.Request().Context(), req)
	if err != nil {
		status := authStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("signup failed", "err", err)
			return errorJSON(c, status, "Internal server error")
		}
		return errorJSON(c, status, err.Error())
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	resp, err := s.auth.Login(c.Request().Context(), req)
	if err != nil {
		status := authStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("login failed", "err", err)
			return errorJSON(c, status, "Internal server error")
		}
		return errorJSON(c, status, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSaveGrant(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	grantID := c.Param("id")
	if _, ok := s.session.Grant(grantID); !ok {
		return errorJSON(c, http.StatusNotFound, "Grant not found")
	}
	if err := s.auth.SaveGrant(c.Request().Context(), userID, grantID); err != nil {
		return errorJSON(c, authStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleUnsaveGrant(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	if err := s.auth.UnsaveGrant(c.Request().Context(), userID, c.Param("id")); err != nil {
		return errorJSON(c, authStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "unsaved"})
}

func (s *Server) handleGetSavedGrants(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, "Unauthorized")
	}
	grants, err := s.auth.SavedGrants(c.Request().Context(), userID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, grants)
}
