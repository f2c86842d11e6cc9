package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/errors"
)

func TestCaptureMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewCaptureMetrics(reg)
	require.NoError(t, err)

	m.ObserveTick(false)
	m.ObserveTick(true)
	m.ObserveTick(true)
	m.ObserveAnalysis(ResultDetected, 120*time.Millisecond)
	m.ObserveAnalysis(ResultRejected, 10*time.Millisecond)
	m.ObserveStatsPush(nil)
	m.ObserveStatsPush(errors.NewStd("down"))
	m.SetSessionState(1)
	m.SetDegraded(true)
	m.Alerts.Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Ticks.WithLabelValues(TickStarted)), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(m.Ticks.WithLabelValues(TickSkipped)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues(ResultRejected)), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.StatsPushes.WithLabelValues("error")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.SessionState), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Degraded), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	var hist *dto.Histogram
	for _, f := range families {
		if f.GetName() == "emotion_analysis_duration_seconds" {
			hist = f.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 0.13, hist.GetSampleSum(), 1e-9)

	_, err = NewCaptureMetrics(reg)
	assert.Error(t, err, "double registration fails")
}

func TestMQTTMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(reg)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.ObservePublish(256, 5*time.Millisecond, nil)
	m.ObservePublish(0, 0, errors.NewStd("timeout"))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Connected), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Published), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 1e-9)
	assert.Equal(t, 6, testutil.CollectAndCount(m))

	m.ObserveConnectionLost()
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.Connected), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.ConnectionLost), 1e-9)
}
