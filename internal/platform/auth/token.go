package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInput identifies the user a token is issued for.
type TokenInput struct {
	UserID   string
	Username string
	Role     string
	ScopeID  string
}

// IssueToken signs an HS256 token for the given user, valid for ttl.
func IssueToken(secret []byte, in TokenInput, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   in.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: in.Username,
		Role:     in.Role,
		ScopeID:  in.ScopeID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
