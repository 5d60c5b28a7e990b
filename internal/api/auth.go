package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/IamJunnn/ecoblox-web-curriculum-sub000/internal/chat"
)

const identityContextKey = "chat.identity"

// requireIdentity verifies the bearer credential and stores the resulting
// identity on the echo context. Requests without a valid credential get 401.
func (a *API) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := headerBearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing credential")
		}

		id, err := a.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			a.log.Info("api.reject.auth", "err", err, "remote", c.RealIP())
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credential")
		}

		c.Set(identityContextKey, id)
		return next(c)
	}
}

// callerIdentity returns the verified identity placed by requireIdentity.
func callerIdentity(c echo.Context) (chat.Identity, bool) {
	id, ok := c.Get(identityContextKey).(chat.Identity)
	return id, ok
}

func headerBearerToken(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("bearer "):])
}

// reqCtx is a convenience accessor kept out of handlers for readability.
func reqCtx(c echo.Context) context.Context {
	return c.Request().Context()
}
