package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/net/netutil"

	mw "github.com/tphakala/emotion-go/internal/api/middleware"
	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/performance"
	"github.com/tphakala/emotion-go/internal/session"
)

// Capture is the capture service surface the API exposes.
type Capture interface {
	Start(ctx context.Context) (session.Session, error)
	Stop(ctx context.Context, reason string) error
	Running() bool
	Degraded() bool
	Mirror() bool
	LatestResult() (*model.AnalysisResult, bool)
	Snapshot() performance.Snapshot
	Session() (session.Session, bool)
}

// Subscriber is the event bus side the stream consumes.
type Subscriber interface {
	Subscribe(name string, buffer int, types ...events.Type) (<-chan events.Event, func())
}

// Server is the presentation API server.
type Server struct {
	echo      *echo.Echo
	config    *Config
	capture   Capture
	bus       Subscriber
	log       logger.Logger
	startTime time.Time
	version   string

	// stopping is closed on shutdown so open event streams return
	stopping chan struct{}
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) ServerOption {
	return func(s *Server) { s.version = v }
}

// WithConfig overrides the config derived from settings.
func WithConfig(cfg *Config) ServerOption {
	return func(s *Server) { s.config = cfg }
}

// New creates the API server.
func New(settings *conf.Settings, capture Capture, bus Subscriber, log logger.Logger, opts ...ServerOption) (*Server, error) {
	s := &Server{
		config:    ConfigFromSettings(settings),
		capture:   capture,
		bus:       bus,
		log:       log.Module("api"),
		startTime: time.Now(),
		version:   "dev",
		stopping:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = s.config.Debug
	s.echo.HTTPErrorHandler = s.errorHandler
	s.echo.Server.ReadTimeout = s.config.ReadTimeout
	s.echo.Server.IdleTimeout = s.config.IdleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	s.echo.Use(mw.NewRequestLogger(s.log))
	s.echo.Use(mw.NewCORS(mw.SecurityConfig{AllowedOrigins: s.config.AllowedOrigins}))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders())
}

func (s *Server) setupRoutes() {
	g := s.echo.Group("/api/v1")
	g.GET("/health", s.health)
	g.GET("/session", s.getSession)
	g.GET("/performance", s.getPerformance)
	g.GET("/results/latest", s.getLatestResult)
	g.GET("/events", s.streamEvents)
	g.POST("/capture/start", s.startCapture)
	g.POST("/capture/stop", s.stopCapture)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run serves on the configured address until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}
	s.echo.Listener = ln
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API server listening", logger.String("address", ln.Addr().String()))
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	close(s.stopping)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("API server shutdown", logger.Error(err))
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("API server stopped")
	return nil
}
