package helpers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/goldkiwi/storefront/internal/infrastructure/authapi"
)

// GetFlowIDFromParam parses the :id route parameter. A malformed id cannot
// name a flow, so it is reported as not found.
func GetFlowIDFromParam(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "flow not found")
	}
	return id, nil
}

// AuthContext returns the request context carrying the browser's cookies
// for the auth service, and a recorder for cookies it sets in return.
func AuthContext(c echo.Context) (context.Context, *authapi.CookieRecorder) {
	ctx := authapi.ForwardCookies(c.Request().Context(), c.Cookies())
	return authapi.RecordCookies(ctx)
}

// RelayCookies copies cookies set by the auth service onto the response.
func RelayCookies(c echo.Context, rec *authapi.CookieRecorder) {
	if rec == nil {
		return
	}
	for _, ck := range rec.Cookies() {
		c.SetCookie(ck)
	}
}
