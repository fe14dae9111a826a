package user

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medtrack/medtrack/internal/platform/db"
)

const emailConstraint = "users_email_key"

type userRepoPG struct{ q db.Querier }

func NewRepoPG(q db.Querier) Repository {
	return &userRepoPG{q: q}
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	id := uuid.New()
	err := r.q.QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		id, u.Name, u.Email, u.PasswordHash, u.Role,
	).Scan(&u.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, emailConstraint) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = id.String()
	return nil
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := r.q.QueryRow(ctx,
		`SELECT id::text, name, email, password_hash, role, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}
