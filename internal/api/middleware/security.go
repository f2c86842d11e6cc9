package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SecurityConfig controls which dashboard origins may call the API.
// An empty AllowedOrigins accepts any origin.
type SecurityConfig struct {
	AllowedOrigins []string
}

var (
	corsMethods = []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions}
	// Cache-Control is sent by EventSource polyfills on the event stream
	corsHeaders = []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderCacheControl}
)

func NewCORS(config SecurityConfig) echo.MiddlewareFunc {
	cfg := middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: corsMethods,
		AllowHeaders: corsHeaders,
	}
	if len(config.AllowedOrigins) > 0 {
		cfg.AllowOrigins = config.AllowedOrigins
	}
	return middleware.CORSWithConfig(cfg)
}

// NewSecureHeaders keeps snapshots and overlays from being sniffed or framed
// by other sites. HSTS belongs to the TLS-terminating proxy.
func NewSecureHeaders() echo.MiddlewareFunc {
	return middleware.SecureWithConfig(middleware.SecureConfig{
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		ReferrerPolicy:     "same-origin",
	})
}

// NewBodyLimit rejects request bodies above limit, e.g. "1M".
func NewBodyLimit(limit string) echo.MiddlewareFunc {
	return middleware.BodyLimit(limit)
}
