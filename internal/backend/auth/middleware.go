package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const bearerPrefix = "Bearer "

// RequireAdmin rejects requests without a valid "Authorization: Bearer" token.
func (a *Authenticator) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, bearerPrefix) {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			if err := a.Verify(strings.TrimPrefix(header, bearerPrefix)); err != nil {
				log.Warn().Str("path", ctx.Path()).Err(err).Msg("admin token rejected")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			return next(ctx)
		}
	}
}
