package user

import (
	"strings"
	"time"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

// User is an account that can sign in. Role is fixed at signup.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token. Name is null for accounts created
// without one.
type LoginResponse struct {
	Token string  `json:"token"`
	Name  *string `json:"name"`
	Email string  `json:"email"`
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// roleOrDefault keeps assignable roles and maps anything else to patient.
func roleOrDefault(role string) string {
	if auth.ValidRole(role) {
		return role
	}
	return auth.RolePatient
}
