package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// BodyLimit caps request bodies at defaultLimit, except under largePrefixes
// (AI routes carrying base64 images), which get largeLimit. Limits use echo's
// "512K" / "1M" notation and panic on start-up when malformed.
func BodyLimit(defaultLimit, largeLimit string, largePrefixes ...string) echo.MiddlewareFunc {
	isLarge := func(c echo.Context) bool {
		for _, p := range largePrefixes {
			if strings.HasPrefix(c.Request().URL.Path, p) {
				return true
			}
		}
		return false
	}

	small := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   defaultLimit,
		Skipper: isLarge,
	})
	large := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{
		Limit:   largeLimit,
		Skipper: func(c echo.Context) bool { return !isLarge(c) },
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return small(large(next))
	}
}
