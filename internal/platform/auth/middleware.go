package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey   contextKey = "user_id"
	UserRoleKey contextKey = "user_role"
	ScopeIDKey  contextKey = "scope_id"
)

// Claims carried by every issued token. ScopeID is the patient-record scope
// the user acts in: assistants resolve to their doctor's id at login, doctors
// and admins to their own.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
	ScopeID  string `json:"scope_id"`
}

// JWTMiddleware validates Bearer tokens signed with the service's HS256
// secret and places the authenticated identity on the request context.
func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	keyFunc := func(t *jwt.Token) (interface{}, error) { return secret, nil }
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get("Authorization"))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed authorization header")
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, keyFunc, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			// Echo context values feed middleware that runs before the
			// request context is consulted (rate limiting keys on user_id).
			c.Set("user_id", claims.Subject)
			c.Set("user_role", claims.Role)

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, UserIDKey, claims.Subject)
			ctx = context.WithValue(ctx, UserRoleKey, claims.Role)
			ctx = context.WithValue(ctx, ScopeIDKey, claims.ScopeID)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// bearerToken extracts the credential from an Authorization header.
func bearerToken(header string) (string, bool) {
	scheme, credential, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || credential == "" {
		return "", false
	}
	return credential, true
}

// The FromContext accessors read the identity JWTMiddleware attached; they
// return "" for unauthenticated requests.

func UserIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

func RoleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(UserRoleKey).(string)
	return v
}

func ScopeFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ScopeIDKey).(string)
	return v
}
