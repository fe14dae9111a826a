package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs API tokens for authenticated users.
type TokenIssuer struct {
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewTokenIssuer(key []byte, lifetime time.Duration) *TokenIssuer {
	return &TokenIssuer{key: key, lifetime: lifetime, now: time.Now}
}

// IssueToken returns an HS256 token carrying userId, role, iat and exp.
func (i *TokenIssuer) IssueToken(userID, role string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.lifetime)),
		},
		UserID: userID,
		Role:   role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
