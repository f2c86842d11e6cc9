package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTTMetrics covers the broker connection and event publishing.
type MQTTMetrics struct {
	Connected      prometheus.Gauge
	ConnectionLost prometheus.Counter
	Published      prometheus.Counter
	Errors         prometheus.Counter
	PayloadBytes   prometheus.Histogram
	PublishLatency prometheus.Histogram
}

// NewMQTTMetrics creates and registers the MQTT collectors.
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "emotion_mqtt_connected",
			Help: "1 while connected to the broker",
		}),
		ConnectionLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emotion_mqtt_connection_lost_total",
			Help: "Unexpected broker disconnects",
		}),
		Published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emotion_mqtt_published_total",
			Help: "Events delivered to the broker",
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emotion_mqtt_publish_errors_total",
			Help: "Events that could not be published",
		}),
		PayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotion_mqtt_payload_bytes",
			Help:    "Size of published event payloads",
			Buckets: prometheus.ExponentialBuckets(128, 2, 8),
		}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotion_mqtt_publish_seconds",
			Help:    "Time until the broker acknowledged a publish",
			Buckets: prometheus.ExponentialBuckets(0.002, 2, 9),
		}),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register MQTT metrics: %w", err)
	}
	return m, nil
}

// UpdateConnectionStatus records the connection state.
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	m.Connected.Set(v)
}

// ObservePublish records one publish attempt.
func (m *MQTTMetrics) ObservePublish(size int, latency time.Duration, err error) {
	if err != nil {
		m.Errors.Inc()
		return
	}
	m.Published.Inc()
	m.PayloadBytes.Observe(float64(size))
	m.PublishLatency.Observe(latency.Seconds())
}

// ObserveConnectionLost records an unexpected disconnect.
func (m *MQTTMetrics) ObserveConnectionLost() {
	m.Connected.Set(0)
	m.ConnectionLost.Inc()
}

func (m *MQTTMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Connected, m.ConnectionLost, m.Published, m.Errors, m.PayloadBytes, m.PublishLatency}
}

// Collect implements prometheus.Collector.
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}

// Describe implements prometheus.Collector.
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}
