package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireRole guards a route group: the authenticated role must be one of
// those listed. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(roles)+1)
	allowed["admin"] = struct{}{}
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	denied := fmt.Sprintf("required role: %s", strings.Join(roles, " or "))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := allowed[RoleFromContext(c.Request().Context())]; ok {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden, denied)
		}
	}
}
