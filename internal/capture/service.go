package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/emotion-go/internal/alert"
	"github.com/tphakala/emotion-go/internal/analysis"
	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/frame"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/notification"
	"github.com/tphakala/emotion-go/internal/observability/metrics"
	"github.com/tphakala/emotion-go/internal/performance"
	"github.com/tphakala/emotion-go/internal/session"
)

const (
	statsPushTimeout = 5 * time.Second

	defaultStartRetryDelay    = 2 * time.Second
	defaultStartRetryMaxDelay = time.Minute
)

// StatsPusher uploads running statistics for a confirmed session.
type StatsPusher interface {
	UpdateStats(ctx context.Context, sessionID string, snap *performance.Snapshot) error
}

// Notifier accepts notifications for asynchronous delivery.
type Notifier interface {
	Submit(n *notification.Notification) bool
}

// Publisher broadcasts events without blocking.
type Publisher interface {
	TryPublish(ev events.Event) bool
}

// Deps are the collaborators of a Service. Source, Analyzer and Sessions
// are required.
type Deps struct {
	Source    frame.Source
	Analyzer  analysis.Analyzer
	Sessions  *session.Manager
	Stats     *performance.Aggregator
	Alerts    *alert.Engine
	StatsAPI  StatsPusher
	Notifier  Notifier
	Bus       Publisher
	Metrics   *metrics.CaptureMetrics
	Scheduler []SchedulerOption
}

// Service is the capture pipeline: scheduler ticks drive capture, analysis
// and application of the result to session, statistics and alert state.
type Service struct {
	capture conf.CaptureSettings
	alertsc conf.AlertSettings

	source    frame.Source
	analyzer  analysis.Analyzer
	sessions  *session.Manager
	stats     *performance.Aggregator
	alerts    *alert.Engine
	statsAPI  StatsPusher
	notifier  Notifier
	bus       Publisher
	metrics   *metrics.CaptureMetrics
	scheduler *Scheduler
	log       logger.Logger

	// lifecycle serializes Start and Stop
	lifecycle sync.Mutex

	mu sync.Mutex
	// generation counts session ends; a result is applied only within the
	// generation it was analyzed in
	generation uint64
	latest     *model.AnalysisResult
	failures   int
	degraded   bool
	sincePush  int
}

// NewService wires a capture pipeline from settings and deps.
func NewService(settings *conf.Settings, deps Deps, log logger.Logger) (*Service, error) {
	if deps.Source == nil || deps.Analyzer == nil || deps.Sessions == nil {
		return nil, errors.Newf("capture service requires a frame source, analyzer and session manager").
			Component("capture").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if deps.Stats == nil {
		deps.Stats = performance.NewAggregator()
	}
	if deps.Alerts == nil {
		deps.Alerts = alert.NewEngine(settings.Alert.Window, settings.Alert.Threshold)
	}
	if deps.Metrics == nil {
		m, err := metrics.NewCaptureMetrics(prometheus.NewRegistry())
		if err != nil {
			return nil, err
		}
		deps.Metrics = m
	}

	s := &Service{
		capture:  settings.Capture,
		alertsc:  settings.Alert,
		source:   deps.Source,
		analyzer: deps.Analyzer,
		sessions: deps.Sessions,
		stats:    deps.Stats,
		alerts:   deps.Alerts,
		statsAPI: deps.StatsAPI,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		metrics:  deps.Metrics,
		log:      log.Module("capture"),
	}

	opts := append([]SchedulerOption{WithTickObserver(s.metrics.ObserveTick)}, deps.Scheduler...)
	s.scheduler = NewScheduler(log, opts...)
	s.scheduler.OnTick(s.cycle)
	s.sessions.OnEnded(s.onSessionEnded)
	return s, nil
}

// Start begins a session and the capture loop.
func (s *Service) Start(ctx context.Context) (session.Session, error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.scheduler.Running() {
		return session.Session{}, errors.Newf("capture is already running").
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}

	sess, err := s.sessions.StartSession(ctx, session.ConfigFromSettings(&s.capture))
	if err != nil {
		return session.Session{}, err
	}
	s.metrics.SetSessionState(int(sess.State))
	s.publish(events.New(events.TypeSession, sess))

	if err := s.scheduler.Start(ctx, s.capture.Interval); err != nil {
		_ = s.sessions.EndSession(ctx, session.ReasonShutdown)
		return session.Session{}, errors.New(err).
			Component("capture").
			Category(errors.CategoryConfiguration).
			Build()
	}
	s.log.Info("capture started",
		logger.String("local_id", sess.LocalID),
		logger.Duration("interval", s.capture.Interval))
	return sess, nil
}

// Stop halts ticking, waits for the cycle in flight so its result is still
// applied, then ends the session with reason.
func (s *Service) Stop(ctx context.Context, reason string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.scheduler.Stop()

	drainCtx := ctx
	if s.capture.DrainTimeout > 0 {
		var cancel context.CancelFunc
		drainCtx, cancel = context.WithTimeout(ctx, s.capture.DrainTimeout)
		defer cancel()
	}
	if err := s.scheduler.Wait(drainCtx); err != nil {
		s.log.Warn("in-flight cycle did not finish before drain timeout", logger.Error(err))
	}

	if s.sessions.State() != session.StateActive {
		return nil
	}
	return s.sessions.EndSession(ctx, reason)
}

// Run starts capture and blocks until ctx is done, then stops with reason
// shutdown. A failed start, typically an unreachable server during
// recovery, is retried with a doubling delay. Only configuration errors
// are returned.
func (s *Service) Run(ctx context.Context) error {
	if err := s.startWithRetry(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.capture.DrainTimeout+statsPushTimeout)
	defer cancel()
	if err := s.Stop(stopCtx, session.ReasonShutdown); err != nil {
		s.log.Warn("session end on shutdown failed", logger.Error(err))
	}
	return nil
}

func (s *Service) startWithRetry(ctx context.Context) error {
	delay := s.capture.StartRetryDelay
	if delay <= 0 {
		delay = defaultStartRetryDelay
	}
	maxDelay := s.capture.StartRetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultStartRetryMaxDelay
	}

	for attempt := 1; ; attempt++ {
		_, err := s.Start(ctx)
		switch {
		case err == nil:
			return nil
		case errors.IsCategory(err, errors.CategoryState):
			// started elsewhere, e.g. through the API
			return nil
		case errors.IsCategory(err, errors.CategoryConfiguration), errors.IsCategory(err, errors.CategoryValidation):
			return err
		}

		s.log.Warn("capture start failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("retry_in", delay),
			logger.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		delay = min(delay*2, maxDelay)
	}
}

// Running reports whether the capture loop is ticking.
func (s *Service) Running() bool { return s.scheduler.Running() }

// Mirror reports the configured overlay mirroring default.
func (s *Service) Mirror() bool { return s.capture.Mirror }

// LatestResult returns the most recent applied result.
func (s *Service) LatestResult() (*model.AnalysisResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.latest != nil
}

// Snapshot returns the current statistics.
func (s *Service) Snapshot() performance.Snapshot { return s.stats.Snapshot() }

// Session returns the current or most recent session.
func (s *Service) Session() (session.Session, bool) { return s.sessions.Current() }

// Degraded reports whether consecutive failures crossed the threshold.
func (s *Service) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *Service) cycle(ctx context.Context) {
	f, err := s.source.Capture(ctx)
	if err != nil {
		s.metrics.FrameErrors.Inc()
		s.log.Warn("frame capture failed", logger.Error(err))
		return
	}
	if f == nil {
		s.metrics.FramesNotReady.Inc()
		s.log.Trace("frame source not ready")
		return
	}

	ctx = logger.WithTraceID(ctx, f.TraceID)
	log := s.log.WithContext(ctx)

	gen := s.currentGeneration()
	current, ok := s.sessions.Current()
	if !ok || current.State != session.StateActive {
		log.Debug("no active session, frame dropped")
		return
	}

	start := time.Now()
	res, err := s.analyzer.Analyze(ctx, &analysis.Request{
		Frame:              f,
		SessionID:          current.ID,
		CameraResolution:   current.Config.CameraResolution,
		AnalysisIntervalMs: current.Config.AnalysisInterval.Milliseconds(),
	})
	elapsed := time.Since(start)
	if err != nil {
		s.handleFailure(log, err, elapsed)
		return
	}

	// the session may have ended while the request was in flight
	if now, ok := s.sessions.Current(); !ok || now.LocalID != current.LocalID || now.State != session.StateActive {
		log.Debug("session ended during analysis, result dropped",
			logger.String("local_id", current.LocalID))
		return
	}
	s.apply(ctx, log, res, elapsed, gen)
}

func (s *Service) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Service) handleFailure(log logger.Logger, err error, elapsed time.Duration) {
	result := metrics.ResultTransient
	if errors.IsCategory(err, errors.CategoryServerRejection) {
		result = metrics.ResultRejected
	}
	s.metrics.ObserveAnalysis(result, elapsed)
	log.Warn("analysis failed",
		logger.String("outcome", result),
		logger.Duration("elapsed", elapsed),
		logger.Error(err))

	s.mu.Lock()
	s.failures++
	failures := s.failures
	becameDegraded := s.capture.DegradedAfter > 0 && failures >= s.capture.DegradedAfter && !s.degraded
	if becameDegraded {
		s.degraded = true
	}
	s.mu.Unlock()

	if !becameDegraded {
		return
	}
	s.metrics.SetDegraded(true)
	log.Warn("analysis service degraded", logger.Int("consecutive_failures", failures))
	s.publish(events.New(events.TypeDegraded, map[string]any{
		"consecutive_failures": failures,
		"last_error":           err.Error(),
	}))
	if s.alertsc.NotifyDegraded {
		s.notify(notification.NewNotification(notification.TypeDegraded, notification.PriorityMedium,
			"Analysis service degraded",
			fmt.Sprintf("%d consecutive analysis cycles failed: %v", failures, err)).
			WithComponent("capture").
			WithMetadata("consecutive_failures", failures))
	}
}

// apply feeds one result to session, statistics and alert state. Cycles never
// overlap, so results are applied in capture order. A result analyzed in an
// earlier generation than the current one is dropped.
func (s *Service) apply(ctx context.Context, log logger.Logger, res *model.AnalysisResult, elapsed time.Duration, gen uint64) {
	outcome := metrics.ResultNoFace
	if res.FacesDetected > 0 {
		outcome = metrics.ResultDetected
	}
	s.metrics.ObserveAnalysis(outcome, elapsed)

	if err := s.sessions.ObserveResult(res); err != nil {
		s.metrics.SessionAnomalies.Inc()
		log.Warn("protocol anomaly", logger.Error(err))
	}

	// onSessionEnded resets under s.mu, so recording here cannot leak into
	// the next session
	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		log.Debug("session ended before result was applied, result dropped")
		return
	}
	snap := s.stats.Record(res)

	var signal *alert.Signal
	if res.FacesDetected > 0 {
		if emotion, ok := res.PrimaryEmotion(); ok {
			signal = s.alerts.Observe(emotion, res.CapturedAt)
		}
	}

	s.latest = res
	recovered := s.degraded
	failures := s.failures
	s.failures = 0
	s.degraded = false
	s.sincePush++
	pushDue := s.capture.StatsPushEvery > 0 && s.sincePush >= s.capture.StatsPushEvery
	if pushDue {
		s.sincePush = 0
	}
	s.mu.Unlock()

	traceID := logger.TraceID(ctx)
	s.publish(withTrace(events.New(events.TypeResult, res), traceID))
	s.publish(withTrace(events.New(events.TypeSnapshot, snap), traceID))

	if signal != nil {
		s.raiseAlert(log, signal)
	}
	if recovered {
		s.metrics.SetDegraded(false)
		log.Info("analysis service recovered", logger.Int("failed_cycles", failures))
		s.publish(events.New(events.TypeRecovered, map[string]any{"failed_cycles": failures}))
		if s.alertsc.NotifyDegraded {
			s.notify(notification.NewNotification(notification.TypeRecovered, notification.PriorityLow,
				"Analysis service recovered",
				fmt.Sprintf("analysis succeeded after %d failed cycles", failures)).
				WithComponent("capture"))
		}
	}
	if pushDue {
		s.pushStats(ctx, s.sessions.SessionID(), &snap)
	}

	log.Debug("result applied",
		logger.Int("faces", res.FacesDetected),
		logger.Int64("total_analyses", snap.TotalAnalyses),
		logger.Float64("detection_rate", snap.DetectionRatePercent))
}

func (s *Service) raiseAlert(log logger.Logger, sig *alert.Signal) {
	s.metrics.Alerts.Inc()
	log.Info("negative emotion streak",
		logger.String("emotion", string(sig.Emotion)),
		logger.Int("count", sig.Count))
	s.publish(events.New(events.TypeAlert, sig))
	s.notify(notification.NewNotification(notification.TypeNegativeStreak, notification.PriorityHigh,
		"Sustained "+sig.Emotion.Title()+" detected",
		fmt.Sprintf("%d consecutive %s results within %s", sig.Count, sig.Emotion, sig.At.Sub(sig.WindowStart).Round(time.Millisecond))).
		WithComponent("alert").
		WithMetadata("emotion", string(sig.Emotion)).
		WithMetadata("count", sig.Count))
}

func (s *Service) pushStats(ctx context.Context, sessionID string, snap *performance.Snapshot) {
	if s.statsAPI == nil || sessionID == "" {
		return
	}
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsPushTimeout)
	defer cancel()
	err := s.statsAPI.UpdateStats(pushCtx, sessionID, snap)
	s.metrics.ObserveStatsPush(err)
	if err != nil {
		s.log.Warn("stats push failed",
			logger.String("session_id", sessionID),
			logger.Error(err))
	}
}

// onSessionEnded runs after every session end, including max duration
// expiry, so no ticks run outside a session.
func (s *Service) onSessionEnded(ended session.Session) {
	s.scheduler.Stop()
	s.metrics.SetSessionState(int(session.StateEnded))

	s.mu.Lock()
	s.generation++
	final := s.stats.Snapshot()
	s.stats.Reset()
	s.alerts.Reset()
	wasDegraded := s.degraded
	s.failures, s.degraded, s.sincePush = 0, false, 0
	s.mu.Unlock()

	if final.TotalAnalyses > 0 {
		s.pushStats(context.Background(), ended.ID, &final)
	}
	if wasDegraded {
		s.metrics.SetDegraded(false)
	}

	s.publish(events.New(events.TypeSession, ended))
	s.publish(events.New(events.TypeCaptureStop, map[string]any{
		"reason":      ended.EndReason,
		"local_id":    ended.LocalID,
		"final_stats": final,
	}))
	s.notify(notification.NewNotification(notification.TypeSessionEnded, notification.PriorityLow,
		"Analysis session ended",
		fmt.Sprintf("session ended (%s) after %d analyses", ended.EndReason, final.TotalAnalyses)).
		WithComponent("session").
		WithMetadata("reason", ended.EndReason))
}

func (s *Service) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.TryPublish(ev)
	}
}

func (s *Service) notify(n *notification.Notification) {
	if s.notifier != nil {
		s.notifier.Submit(n)
	}
}

func withTrace(ev events.Event, traceID string) events.Event {
	ev.TraceID = traceID
	return ev
}
