package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/david/grant-search/internal/models"
)

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Repository is the account storage the service needs. UserByEmail
// returns models.ErrUserNotFound for unknown emails.
type Repository interface {
	CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	SaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error
	UnsaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error
	SavedGrants(ctx context.Context, userID uuid.UUID) ([]models.Grant, error)
}
