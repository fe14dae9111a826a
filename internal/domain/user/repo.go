package user

import "context"

// Repository persists accounts. Emails are stored lowercase and are unique;
// Create reports a clash as ErrEmailTaken and GetByEmail a miss as
// ErrNotFound.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
}
