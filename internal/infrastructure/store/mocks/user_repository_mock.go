package mocks

import (
	"context"
	"sync"

	"github.com/example/ec-checkout/internal/domain/user"
)

// MockUserRepository is an in-memory user.Repository keyed by external id
type MockUserRepository struct {
	mu    sync.RWMutex
	users map[string]*user.User

	UpsertCalls []*user.User
	UpsertErr   error
	GetErr      error
}

func NewMockUserRepository(users ...*user.User) *MockUserRepository {
	m := &MockUserRepository{users: make(map[string]*user.User)}
	for _, u := range users {
		c := *u
		m.users[u.ExternalID] = &c
	}
	return m
}

func (m *MockUserRepository) Upsert(ctx context.Context, u *user.User) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := *u
	m.UpsertCalls = append(m.UpsertCalls, &c)
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}
	for ext, existing := range m.users {
		if ext != u.ExternalID && existing.Email == u.Email {
			return nil, user.ErrEmailTaken
		}
	}
	if existing, ok := m.users[u.ExternalID]; ok {
		existing.Email = u.Email
		existing.FirstName = u.FirstName
		existing.LastName = u.LastName
		existing.UpdatedAt = u.UpdatedAt
		out := *existing
		return &out, nil
	}
	m.users[u.ExternalID] = &c
	out := c
	return &out, nil
}

func (m *MockUserRepository) GetByExternalID(ctx context.Context, externalID string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	u, ok := m.users[externalID]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, u := range m.users {
		if u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, user.ErrUserNotFound
}

// Count returns the number of stored users
func (m *MockUserRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users)
}
