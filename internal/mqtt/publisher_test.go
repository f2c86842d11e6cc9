package mqtt

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/observability/metrics"
)

type message struct {
	topic   string
	payload []byte
	retain  bool
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	publishErr   error
	connected    bool
	disconnected bool
	messages     []message
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, message{topic: topic, payload: payload, retain: retain})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeClient) sent() []message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message(nil), f.messages...)
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func TestTopic(t *testing.T) {
	p := NewPublisher(&fakeClient{}, &conf.MQTTSettings{TopicPrefix: "/classroom/cam1/"}, testLogger())
	assert.Equal(t, "classroom/cam1/alert", p.Topic(events.TypeAlert))

	p = NewPublisher(&fakeClient{}, &conf.MQTTSettings{}, testLogger())
	assert.Equal(t, "emotion-go/performance", p.Topic(events.TypeSnapshot))
}

func TestPayloadIsEventJSON(t *testing.T) {
	ev := events.Event{
		Type:      events.TypeAlert,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TraceID:   "t-1",
		Payload:   map[string]any{"emotion": "sad", "count": 5},
	}
	raw, err := Payload(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "alert", decoded["type"])
	assert.Equal(t, "t-1", decoded["trace_id"])
	assert.Equal(t, "sad", decoded["payload"].(map[string]any)["emotion"])
}

func TestRunForwardsSelectedEvents(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	client := &fakeClient{}
	p := NewPublisher(client, &conf.MQTTSettings{TopicPrefix: "cam"}, testLogger())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, bus) }()

	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 1 }, time.Second, time.Millisecond)
	bus.TryPublish(events.New(events.TypeResult, "ignored without mqtt.results"))
	bus.TryPublish(events.New(events.TypeSession, map[string]any{"state": "active"}))
	bus.TryPublish(events.New(events.TypeAlert, map[string]any{"emotion": "angry"}))

	require.Eventually(t, func() bool { return len(client.sent()) == 2 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	msgs := client.sent()
	assert.Equal(t, "cam/session", msgs[0].topic)
	assert.True(t, msgs[0].retain)
	assert.Equal(t, "cam/alert", msgs[1].topic)
	assert.False(t, msgs[1].retain)
	assert.True(t, client.disconnected)
	assert.Equal(t, 0, bus.GetStats().Subscribers)
}

func TestRunIncludesResultsWhenEnabled(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	client := &fakeClient{}
	p := NewPublisher(client, &conf.MQTTSettings{Results: true}, testLogger())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, bus) }()

	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 1 }, time.Second, time.Millisecond)
	bus.TryPublish(events.New(events.TypeResult, map[string]any{"faces_detected": 1}))
	require.Eventually(t, func() bool { return len(client.sent()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, "emotion-go/result", client.sent()[0].topic)
}

func TestRunSurvivesPublishErrors(t *testing.T) {
	bus := events.NewEventBus()
	client := &fakeClient{publishErr: errors.NewStd("broker gone")}
	p := NewPublisher(client, &conf.MQTTSettings{}, testLogger())

	done := make(chan error, 1)
	go func() { done <- p.Run(t.Context(), bus) }()

	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 1 }, time.Second, time.Millisecond)
	bus.TryPublish(events.New(events.TypeAlert, nil))
	bus.Close()
	require.NoError(t, <-done, "a closed bus ends the loop")
}

func TestRunReturnsConnectError(t *testing.T) {
	client := &fakeClient{connectErr: errors.NewStd("refused")}
	p := NewPublisher(client, &conf.MQTTSettings{}, testLogger())
	assert.Error(t, p.Run(t.Context(), events.NewEventBus()))
}

func TestClientPublishWhileDisconnected(t *testing.T) {
	m, err := metrics.NewMQTTMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	c := NewClient(&conf.MQTTSettings{Broker: "tcp://127.0.0.1:1883"}, "test", m, testLogger())

	assert.False(t, c.IsConnected())
	err = c.Publish(t.Context(), "x", []byte("{}"), false)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors), 1e-9)
	c.Disconnect()
}
