package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout sets a deadline on the request context. Store and blob calls
// observe it. The handler runs on the request goroutine; once it returns, a
// passed deadline with nothing written yet becomes 504.
// A non-positive timeout disables the middleware.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}
			if err == nil || errors.Is(err, context.DeadlineExceeded) {
				return timedOut(c, err)
			}
			return err
		}
	}
}

func timedOut(c echo.Context, err error) error {
	if c.Response().Committed {
		return err
	}
	return echo.NewHTTPError(http.StatusGatewayTimeout, "Request processing exceeded the allowed time limit")
}
