package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// XPatronID identifies the patron on behalf of whom the gateway forwards a
// request. Authentication itself happens upstream.
const XPatronID = "X-Patron-Id"

const patronContextKey = "patron"

// MiddlewarePatron requires the patron header and stashes it in the echo
// context.
func MiddlewarePatron(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		patron := c.Request().Header.Get(XPatronID)
		if patron == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "patron id is required")
		}
		c.Set(patronContextKey, patron)
		return next(c)
	}
}

// GetPatron returns the patron set by MiddlewarePatron.
func GetPatron(c echo.Context) (string, error) {
	patron, ok := c.Get(patronContextKey).(string)
	if !ok || patron == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "patron id is required")
	}
	return patron, nil
}
