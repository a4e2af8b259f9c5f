package user

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidIdentity = errors.New("identity needs an external id and an email")
	ErrEmailTaken      = errors.New("email already belongs to another user")
)

// User is a shopper provisioned from the identity provider
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Identity is the profile carried by an identity provider lifecycle event
type Identity struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// Repository persists users. Upsert inserts a new row or updates the profile
// of the row with the same external id, keeping its internal id.
type Repository interface {
	Upsert(ctx context.Context, u *User) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
}

// Directory provisions users and resolves token subjects to them
type Directory struct {
	repo Repository
	now  func() time.Time
}

func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo, now: time.Now}
}

// Provision creates or refreshes the user for an identity. Replaying the same
// identity is safe.
func (d *Directory) Provision(ctx context.Context, id Identity) (*User, error) {
	id.ExternalID = strings.TrimSpace(id.ExternalID)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	if id.ExternalID == "" || id.Email == "" {
		return nil, ErrInvalidIdentity
	}

	now := d.now().UTC()
	u, err := d.repo.Upsert(ctx, &User{
		ID:         uuid.New().String(),
		ExternalID: id.ExternalID,
		Email:      id.Email,
		FirstName:  id.FirstName,
		LastName:   id.LastName,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Users] Provisioned %s as %s", id.ExternalID, u.ID)
	return u, nil
}

func (d *Directory) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	if externalID == "" {
		return nil, ErrUserNotFound
	}
	return d.repo.GetByExternalID(ctx, externalID)
}
