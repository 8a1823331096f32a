package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

type contextKey string

const loggerKey = contextKey("logger")

// Logger is a middleware that injects a request-scoped logger into the context
// and logs one line per completed request.
// It should be placed after the RequestID middleware in the chain.
func Logger(base *slog.Logger) echo.MiddlewareFunc {
	if base == nil {
		base = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			requestLogger := base.With("request_id", reqID)

			newCtx := context.WithValue(req.Context(), loggerKey, requestLogger)
			c.SetRequest(req.WithContext(newCtx))

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			requestLogger.Debug("Request served",
				"method", req.Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"user", UserID(c),
				"duration", time.Since(start),
			)
			return nil
		}
	}
}

func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
