package api

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/david/grant-search/internal/models"
)

type memAccounts struct {
	mu    sync.Mutex
	users map[string]models.User
	saved map[uuid.UUID][]string
}

func newMemAccounts() *memAccounts {
	return &memAccounts{users: map[string]models.User{}, saved: map[uuid.UUID][]string{}}
}

func (m *memAccounts) CreateUser(ctx context.Context, email, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := models.User{ID: uuid.New(), Email: email, PasswordHash: hash, CreatedAt: time.Now()}
	m.users[email] = u
	return &u, nil
}

func (m *memAccounts) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return &u, nil
}

func (m *memAccounts) SaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.saved[userID], grantID) {
		m.saved[userID] = append(m.saved[userID], grantID)
	}
	return nil
}

func (m *memAccounts) UnsaveGrant(ctx context.Context, userID uuid.UUID, grantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[userID] = slices.DeleteFunc(m.saved[userID], func(id string) bool { return id == grantID })
	return nil
}

func (m *memAccounts) SavedGrants(ctx context.Context, userID uuid.UUID) ([]models.Grant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Grant{}
	for _, id := range m.saved[userID] {
		out = append(out, models.Grant{ID: id})
	}
	return out, nil
}
