// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/emotion-go/internal/logger"
)

// NewRequestLogger logs one line per request through log. Event stream
// requests are logged at debug level because they stay open.
func NewRequestLogger(log logger.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			reqLog := log.WithContext(c.Request().Context())
			switch {
			case v.Status >= 500:
				reqLog.Warn("request", fields...)
			case strings.HasSuffix(v.URI, "/events"):
				reqLog.Debug("request", fields...)
			default:
				reqLog.Info("request", fields...)
			}
			return nil
		},
	})
}
