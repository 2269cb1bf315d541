package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// LogoutHandler revokes the caller's current token. It must run behind
// JWTMiddleware.
func LogoutHandler(store RevocationStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := IdentityFromContext(c.Request().Context())
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if id.JTI == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "token has no id")
		}
		if err := store.Revoke(c.Request().Context(), id.JTI, id.ExpiresAt); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "could not revoke token")
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
	}
}
