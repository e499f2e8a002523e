package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// rolesMiddleware only lets through callers holding at least one of roles.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			c, err := getCaller(ctx)
			if err != nil {
				return errors.Wrap(err, "getting caller")
			}
			if c.Roles.HasAny(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
