package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/david/grant-search/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id, email, created_at
	`, email, passwordHash).Scan(&u.ID, &u.Email, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert failed: %w", err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, "SELECT id, email, password_hash, created_at FROM users WHERE email = $1", email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saved_grants (user_id, grant_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, grant_id) DO NOTHING
	`, userID, grantID)
	return err
}

func (s *Store) UnsaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM saved_grants
		WHERE user_id = $1 AND grant_id = $2
	`, userID, grantID)
	return err
}

func (s *Store) SavedGrants(ctx context.Context, userID uuid.UUID) ([]models.Grant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT g.id, g.title, g.description, g.amount_min, g.amount_max, g.url,
		       g.eligibility, g.deadline, g.next_cycle_start_date
		FROM grants g
		JOIN saved_grants sg ON g.id = sg.grant_id
		WHERE sg.user_id = $1
		ORDER BY sg.saved_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	grants := []models.Grant{}
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
