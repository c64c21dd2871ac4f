package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/david/grant-search/internal/models"
)

const (
	tokenTTL          = 24 * time.Hour
	minPasswordLength = 8
)

var (
	ErrUserExists     = errors.New("user already exists")
	ErrInvalidCreds   = errors.New("invalid credentials")
	ErrInvalidEmail   = errors.New("invalid email address")
	ErrWeakPassword   = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrInvalidGrantID = errors.New("grant id is required")

	jwtSecretOnce    sync.Once
	jwtSecretRuntime []byte
	jwtSecretErr     error
)

func jwtSecretFromEnv() ([]byte, error) {
	jwtSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
		if secret != "" {
			jwtSecretRuntime = []byte(secret)
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			jwtSecretErr = fmt.Errorf("failed to generate JWT fallback secret: %w", err)
			return
		}

		jwtSecretRuntime = []byte(base64.RawURLEncoding.EncodeToString(buf))
		log.Print("JWT_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if jwtSecretErr != nil {
		return nil, jwtSecretErr
	}
	if len(jwtSecretRuntime) == 0 {
		return nil, errors.New("JWT secret unavailable")
	}

	return jwtSecretRuntime, nil
}

// Service handles accounts, tokens and saved grants.
type Service struct {
	repo   Repository
	secret []byte
	now    func() time.Time
}

// NewService builds a service signing tokens with secret. An empty secret
// falls back to JWT_SECRET, or a random per-process secret.
func NewService(repo Repository, secret []byte) (*Service, error) {
	if len(secret) == 0 {
		s, err := jwtSecretFromEnv()
		if err != nil {
			return nil, err
		}
		secret = s
	}
	return &Service{repo: repo, secret: secret, now: time.Now}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func (s *Service) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	_, err = s.repo.UserByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, ErrUserExists
	case !errors.Is(err, models.ErrUserNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: *user}, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, ErrInvalidCreds
	}
	user, err := s.repo.UserByEmail(ctx, email)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrInvalidCreds
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCreds
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		return nil, err
	}

	// Clear hash before returning
	user.PasswordHash = ""
	return &AuthResponse{Token: token, User: *user}, nil
}

func (s *Service) generateToken(userID uuid.UUID) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken validates a bearer token and returns its user id.
func (s *Service) ParseToken(tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// Saved grants

func (s *Service) SaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error {
	if strings.TrimSpace(grantID) == "" {
		return ErrInvalidGrantID
	}
	return s.repo.SaveGrant(ctx, userID, grantID)
}

func (s *Service) UnsaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error {
	if strings.TrimSpace(grantID) == "" {
		return ErrInvalidGrantID
	}
	return s.repo.UnsaveGrant(ctx, userID, grantID)
}

func (s *Service) SavedGrants(ctx context.Context, userID uuid.UUID) ([]models.Grant, error) {
	return s.repo.SavedGrants(ctx, userID)
}
