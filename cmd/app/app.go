// Package app holds the process-wide state shared by the CLI commands.
package app

import (
	"strings"

	"github.com/tphakala/emotion-go/internal/buildinfo"
	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/datastore"
	"github.com/tphakala/emotion-go/internal/httpclient"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/performance"
	"github.com/tphakala/emotion-go/internal/session"
	"github.com/tphakala/emotion-go/internal/telemetry"
)

// App is created before flag parsing and initialized by the root command's
// pre-run hook, so subcommands must only read it from RunE.
type App struct {
	Build    *buildinfo.Context
	Settings *conf.Settings

	central        *logger.CentralLogger
	flushTelemetry func()
}

// New returns an uninitialized App.
func New(build *buildinfo.Context) *App {
	return &App{Build: build, flushTelemetry: func() {}}
}

// Init loads the configuration and sets up logging and error telemetry.
func (a *App) Init(configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return err
	}
	logger.SetGlobal(central)

	flush, err := telemetry.InitSentry(settings, a.Build.Version(), central.Module("main"))
	if err != nil {
		// telemetry is optional; run without it
		central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		flush = func() {}
	}

	a.Settings = settings
	a.central = central
	a.flushTelemetry = flush
	return nil
}

// Close flushes telemetry and log outputs.
func (a *App) Close() {
	a.flushTelemetry()
	if a.central != nil {
		_ = a.central.Close()
	}
}

// Log returns the root logger. Components scope it with Module.
func (a *App) Log() logger.Logger {
	if a.central == nil {
		return logger.Global().Root()
	}
	return a.central.Root()
}

// ServiceHTTPClient returns a client for the analysis service carrying the
// configured bearer token.
func (a *App) ServiceHTTPClient() *httpclient.Client {
	return httpclient.New(&httpclient.Config{
		DefaultTimeout: a.Settings.Service.Timeout,
		UserAgent:      a.Build.UserAgent(),
		BearerToken:    strings.TrimSpace(a.Settings.Service.Token),
	})
}

// FrameHTTPClient returns a client for the camera snapshot endpoint. It
// never carries the service token.
func (a *App) FrameHTTPClient() *httpclient.Client {
	return httpclient.New(&httpclient.Config{
		DefaultTimeout: a.Settings.Capture.Source.Timeout,
		UserAgent:      a.Build.UserAgent(),
	})
}

// OpenJournal opens the configured session journal. It returns (nil, nil)
// when the journal is disabled.
func (a *App) OpenJournal() (datastore.Interface, error) {
	store, err := datastore.New(&a.Settings.Journal, a.Log())
	if err != nil || store == nil {
		return nil, err
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

// NewSessionManager builds a session manager against the analysis service.
// journal and stats may be nil.
func (a *App) NewSessionManager(api session.API, journal datastore.Interface, stats *performance.Aggregator) *session.Manager {
	opts := []session.Option{session.WithEndTimeout(a.Settings.Service.SessionTimeout)}
	if journal != nil {
		opts = append(opts, session.WithJournal(journal))
	}
	if stats != nil {
		opts = append(opts, session.WithStats(stats.Snapshot))
	}
	return session.NewManager(api, a.Log(), opts...)
}
