package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const UserContextKey = "user"

// TokenVerifier resolves a bearer token to the id of the user it was issued to.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Auth creates a middleware that protects routes that require authentication.
// The token is taken from the Authorization header, or from the token query
// parameter for clients that cannot set headers on a WebSocket upgrade.
func Auth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			userID, err := verifier.Verify(token)
			if err != nil || userID == "" {
				FromContext(c.Request().Context()).Debug("Rejected bearer token", "error", err)
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}

			c.Set(UserContextKey, userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id stored by Auth, or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(UserContextKey).(string)
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
