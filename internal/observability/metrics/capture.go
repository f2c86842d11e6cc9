// Package metrics defines the Prometheus collectors for emotion-go
// components.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Tick outcomes.
const (
	TickStarted = "started"
	TickSkipped = "skipped"
)

// Analysis results.
const (
	ResultDetected  = "detected"
	ResultNoFace    = "no_face"
	ResultRejected  = "rejected"
	ResultTransient = "transient"
)

// CaptureMetrics covers the scheduler, the analysis round trip and the
// session lifecycle.
type CaptureMetrics struct {
	Ticks            *prometheus.CounterVec
	FramesNotReady   prometheus.Counter
	FrameErrors      prometheus.Counter
	AnalysisDuration prometheus.Histogram
	Analyses         *prometheus.CounterVec
	SessionState     prometheus.Gauge
	SessionAnomalies prometheus.Counter
	Alerts           prometheus.Counter
	StatsPushes      *prometheus.CounterVec
	Degraded         prometheus.Gauge
}

// NewCaptureMetrics creates and registers the capture collectors.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register capture metrics: %w", err)
	}
	return m, nil
}

func (m *CaptureMetrics) initMetrics() {
	m.Ticks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emotion_capture_ticks_total",
		Help: "Scheduler ticks by outcome; skipped ticks found a cycle in flight",
	}, []string{"outcome"})

	m.FramesNotReady = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emotion_capture_frames_not_ready_total",
		Help: "Ticks where the frame source had no frame",
	})

	m.FrameErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emotion_capture_frame_errors_total",
		Help: "Frame source failures",
	})

	m.AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "emotion_analysis_duration_seconds",
		Help:    "Round trip time of analysis requests",
		Buckets: prometheus.ExponentialBuckets(0.025, 2, 10),
	})

	m.Analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emotion_analyses_total",
		Help: "Analysis requests by result",
	}, []string{"result"})

	m.SessionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emotion_session_state",
		Help: "Session state (0 idle, 1 active, 2 ending, 3 ended)",
	})

	m.SessionAnomalies = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emotion_session_anomalies_total",
		Help: "Results carrying a session id different from the bound one",
	})

	m.Alerts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "emotion_alerts_total",
		Help: "Negative emotion streak alerts raised",
	})

	m.StatsPushes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "emotion_stats_push_total",
		Help: "Session statistics pushes by status",
	}, []string{"status"})

	m.Degraded = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "emotion_capture_degraded",
		Help: "1 while consecutive failures exceed the degraded threshold",
	})
}

// ObserveTick counts a scheduler tick.
func (m *CaptureMetrics) ObserveTick(skipped bool) {
	if skipped {
		m.Ticks.WithLabelValues(TickSkipped).Inc()
		return
	}
	m.Ticks.WithLabelValues(TickStarted).Inc()
}

// ObserveAnalysis records one analysis outcome and its duration.
func (m *CaptureMetrics) ObserveAnalysis(result string, d time.Duration) {
	m.Analyses.WithLabelValues(result).Inc()
	m.AnalysisDuration.Observe(d.Seconds())
}

// ObserveStatsPush counts a stats push.
func (m *CaptureMetrics) ObserveStatsPush(err error) {
	if err != nil {
		m.StatsPushes.WithLabelValues("error").Inc()
		return
	}
	m.StatsPushes.WithLabelValues("ok").Inc()
}

// SetSessionState records the numeric session state.
func (m *CaptureMetrics) SetSessionState(state int) {
	m.SessionState.Set(float64(state))
}

// SetDegraded toggles the degraded gauge.
func (m *CaptureMetrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}

// Collect implements prometheus.Collector.
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	m.Ticks.Collect(ch)
	ch <- m.FramesNotReady
	ch <- m.FrameErrors
	ch <- m.AnalysisDuration
	m.Analyses.Collect(ch)
	ch <- m.SessionState
	ch <- m.SessionAnomalies
	ch <- m.Alerts
	m.StatsPushes.Collect(ch)
	ch <- m.Degraded
}

// Describe implements prometheus.Collector.
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.Ticks.Describe(ch)
	ch <- m.FramesNotReady.Desc()
	ch <- m.FrameErrors.Desc()
	ch <- m.AnalysisDuration.Desc()
	m.Analyses.Describe(ch)
	ch <- m.SessionState.Desc()
	ch <- m.SessionAnomalies.Desc()
	ch <- m.Alerts.Desc()
	m.StatsPushes.Describe(ch)
	ch <- m.Degraded.Desc()
}
