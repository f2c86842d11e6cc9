package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Endpoint serves /metrics on its own listener.
type Endpoint struct {
	listenAddress string
	metrics       *Metrics
	log           logger.Logger
}

// NewEndpoint returns an endpoint for settings, or an error when metrics are
// disabled.
func NewEndpoint(settings *conf.MetricsSettings, m *Metrics, log logger.Logger) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, errors.New("metrics endpoint not enabled in settings")
	}
	return &Endpoint{
		listenAddress: settings.Listen,
		metrics:       m,
		log:           log.Module("observability"),
	}, nil
}

// Run serves until ctx is done, then shuts the server down gracefully.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("metrics endpoint shutdown error", logger.Error(err))
		return err
	}
	<-errCh
	return nil
}
