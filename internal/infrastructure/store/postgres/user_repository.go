package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/example/ec-checkout/internal/domain/user"
	"github.com/example/ec-checkout/internal/infrastructure/store"
)

// UserRepository stores provisioned users in PostgreSQL
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert inserts u or refreshes the profile of the user with the same external id
func (r *UserRepository) Upsert(ctx context.Context, u *user.User) (*user.User, error) {
	var out user.User
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, external_id, email, first_name, last_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (external_id) DO UPDATE SET
		   email = EXCLUDED.email,
		   first_name = EXCLUDED.first_name,
		   last_name = EXCLUDED.last_name,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, external_id, email, first_name, last_name, created_at, updated_at`,
		u.ID, u.ExternalID, u.Email, u.FirstName, u.LastName, u.CreatedAt, u.UpdatedAt,
	).Scan(&out.ID, &out.ExternalID, &out.Email, &out.FirstName, &out.LastName, &out.CreatedAt, &out.UpdatedAt)
	if isUniqueViolation(err, "users_email_key") {
		return nil, user.ErrEmailTaken
	}
	if err != nil {
		return nil, store.ClassifyPostgres("upsert user", err)
	}
	return &out, nil
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*user.User, error) {
	return r.getBy(ctx, "external_id", externalID)
}

// GetByID looks a user up by internal id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*user.User, error) {
	var u user.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, external_id, email, first_name, last_name, created_at, updated_at
		 FROM users WHERE `+column+` = $1`,
		value,
	).Scan(&u.ID, &u.ExternalID, &u.Email, &u.FirstName, &u.LastName, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) || isInvalidText(err) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, store.ClassifyPostgres("get user", err)
	}
	return &u, nil
}
