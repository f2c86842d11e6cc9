// Package capture implements the capture command, the long-running client.
package capture

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/emotion-go/cmd/app"
	"github.com/tphakala/emotion-go/internal/alert"
	"github.com/tphakala/emotion-go/internal/analysis"
	"github.com/tphakala/emotion-go/internal/api"
	"github.com/tphakala/emotion-go/internal/capture"
	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/frame"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/mqtt"
	"github.com/tphakala/emotion-go/internal/notification"
	"github.com/tphakala/emotion-go/internal/observability"
	"github.com/tphakala/emotion-go/internal/performance"
	"github.com/tphakala/emotion-go/internal/session"
)

const shutdownGrace = 10 * time.Second

// Command creates the capture command.
func Command(a *app.App) *cobra.Command {
	var autostart bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture frames and analyze them in real time",
		Long: "Start a session with the analysis service and send a frame every interval. " +
			"With the web server enabled, capture can also be started and stopped over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			// a directory on the command line selects replay
			if cmd.Flags().Changed("directory") {
				a.Settings.Capture.Source.Type = frame.SourceDirectory
			}
			return run(ctx, a, autostart)
		},
	}

	if err := setupFlags(cmd, &autostart); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the capture command.
func setupFlags(cmd *cobra.Command, autostart *bool) error {
	cmd.Flags().BoolVar(autostart, "autostart", true, "Start a session immediately instead of waiting for the API")
	cmd.Flags().Duration("interval", time.Second, "Time between captured frames")
	cmd.Flags().String("snapshot", "", "Camera snapshot URL")
	cmd.Flags().String("directory", "", "Replay images from a directory instead of a camera")
	cmd.Flags().Bool("mirror", false, "Mirror overlay boxes horizontally")
	cmd.Flags().Duration("max-duration", 0, "End the session after this long, 0 disables")
	cmd.Flags().String("listen", "", "Listen address of the web server")

	bindings := map[string]string{
		"interval":     "capture.interval",
		"snapshot":     "capture.source.url",
		"directory":    "capture.source.directory",
		"mirror":       "capture.mirror",
		"max-duration": "capture.maxsessionduration",
		"listen":       "webserver.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

func run(ctx context.Context, a *app.App, autostart bool) error {
	settings := a.Settings
	log := a.Log()
	mainLog := log.Module("main")

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	bus := events.NewEventBus()
	defer bus.Close()

	frames := a.FrameHTTPClient()
	defer frames.Close()
	source, err := frame.New(&settings.Capture.Source, frames)
	if err != nil {
		return err
	}
	defer source.Close()

	service := a.ServiceHTTPClient()
	defer service.Close()
	analyzer := analysis.NewClient(&settings.Service, service, log)
	sessionAPI := session.NewAPIClient(&settings.Service)

	journal, err := a.OpenJournal()
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	stats := performance.NewAggregator()
	sessions := a.NewSessionManager(sessionAPI, journal, stats)

	dispatcher := newDispatcher(settings, log)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	svc, err := capture.NewService(settings, capture.Deps{
		Source:   source,
		Analyzer: analyzer,
		Sessions: sessions,
		Stats:    stats,
		Alerts:   alert.NewEngine(settings.Alert.Window, settings.Alert.Threshold),
		StatsAPI: sessionAPI,
		Notifier: dispatcher,
		Bus:      bus,
		Metrics:  m.Capture,
	}, log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if autostart {
		g.Go(func() error { return svc.Run(gctx) })
	} else {
		g.Go(func() error {
			<-gctx.Done()
			return stopOnShutdown(gctx, svc, mainLog)
		})
	}

	if settings.WebServer.Enabled {
		srv, err := api.New(settings, svc, bus, log, api.WithVersion(a.Build.Version()))
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	if settings.Metrics.Enabled {
		endpoint, err := observability.NewEndpoint(&settings.Metrics, m, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	if settings.MQTT.Enabled {
		client := mqtt.NewClient(&settings.MQTT, a.Build.ClientID(settings.Main.Name), m.MQTT, log)
		publisher := mqtt.NewPublisher(client, &settings.MQTT, log)
		g.Go(func() error {
			// broker outages must not take capture down
			if err := publisher.Run(gctx, bus); err != nil {
				mainLog.Error("mqtt publisher stopped", logger.Error(err))
			}
			return nil
		})
	}

	mainLog.Info("emotion-go running",
		logger.String("version", a.Build.Version()),
		logger.Bool("autostart", autostart),
		logger.Bool("webserver", settings.WebServer.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled))

	err = g.Wait()
	mainLog.Info("emotion-go stopped")
	return err
}

// stopOnShutdown ends a session started over the API when the process exits.
func stopOnShutdown(ctx context.Context, svc *capture.Service, log logger.Logger) error {
	if !svc.Running() {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()
	if err := svc.Stop(stopCtx, session.ReasonShutdown); err != nil {
		log.Warn("session end on shutdown failed", logger.Error(err))
	}
	return nil
}

func newDispatcher(settings *conf.Settings, log logger.Logger) *notification.Dispatcher {
	var providers []notification.PushProvider
	if push := settings.Alert.Push; push.Enabled {
		providers = append(providers, notification.NewShoutrrrProvider("shoutrrr", push.URLs, nil, push.Timeout))
	}
	return notification.NewDispatcher(notification.DispatcherConfig{
		Cooldown: settings.Alert.Cooldown,
		Timeout:  settings.Alert.Push.Timeout,
	}, log, providers...)
}
