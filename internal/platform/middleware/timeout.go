package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context and runs the handler
// on the calling goroutine. Handlers observe the deadline through the
// context; when it has passed and nothing was written, the response is a 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	if timeout <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !isServerError(err) {
				return err
			}
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"message": "Request processing exceeded the allowed time limit",
			})
		}
	}
}

// isServerError reports whether err is a 5xx or not an HTTP error at all.
func isServerError(err error) bool {
	var he *echo.HTTPError
	return !errors.As(err, &he) || he.Code >= http.StatusInternalServerError
}
