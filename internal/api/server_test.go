package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/performance"
	"github.com/tphakala/emotion-go/internal/session"
)

type fakeCapture struct {
	mu       sync.Mutex
	running  bool
	mirror   bool
	latest   *model.AnalysisResult
	sess     *session.Session
	startErr error
	stopErr  error
	stops    []string
}

func (f *fakeCapture) Start(context.Context) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return session.Session{}, f.startErr
	}
	f.running = true
	f.sess = &session.Session{LocalID: "local-1", State: session.StateActive, StateName: "active"}
	return *f.sess, nil
}

func (f *fakeCapture) Stop(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = false
	f.stops = append(f.stops, reason)
	if f.sess != nil {
		f.sess.State, f.sess.StateName, f.sess.EndReason = session.StateEnded, "ended", reason
	}
	return f.stopErr
}

func (f *fakeCapture) Running() bool  { return f.running }
func (f *fakeCapture) Degraded() bool { return false }
func (f *fakeCapture) Mirror() bool   { return f.mirror }

func (f *fakeCapture) LatestResult() (*model.AnalysisResult, bool) {
	return f.latest, f.latest != nil
}

func (f *fakeCapture) Snapshot() performance.Snapshot {
	return performance.Snapshot{TotalAnalyses: 4, SuccessfulDetections: 3, DetectionRatePercent: 75}
}

func (f *fakeCapture) Session() (session.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sess == nil {
		return session.Session{}, false
	}
	return *f.sess, true
}

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func newTestServer(t *testing.T, capture Capture, bus Subscriber) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Heartbeat = time.Hour
	s, err := New(&conf.Settings{}, capture, bus, testLogger(), WithConfig(cfg), WithVersion("test"))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeCapture{running: true}, events.NewEventBus())
	rec := do(t, s, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, true, body["capture"])
}

func TestSessionIdleAndActive(t *testing.T) {
	fc := &fakeCapture{}
	s := newTestServer(t, fc, events.NewEventBus())

	rec := do(t, s, http.MethodGet, "/api/v1/session")
	assert.Equal(t, "idle", decode(t, rec)["state"])

	rec = do(t, s, http.MethodPost, "/api/v1/capture/start")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "local-1", decode(t, rec)["local_id"])

	rec = do(t, s, http.MethodGet, "/api/v1/session")
	assert.Equal(t, "active", decode(t, rec)["state"])
}

func TestStartConflictMapsToStatus(t *testing.T) {
	fc := &fakeCapture{startErr: errors.Newf("capture is already running").Category(errors.CategoryState).Build()}
	s := newTestServer(t, fc, events.NewEventBus())

	rec := do(t, s, http.MethodPost, "/api/v1/capture/start")
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "state", body["category"])
	assert.Contains(t, body["error"], "already running")

	fc.startErr = errors.Newf("connection refused").Category(errors.CategoryTransientNetwork).Build()
	rec = do(t, s, http.MethodPost, "/api/v1/capture/start")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStopReportsServerEndFailureAsWarning(t *testing.T) {
	fc := &fakeCapture{stopErr: errors.NewStd("end notification failed")}
	s := newTestServer(t, fc, events.NewEventBus())
	do(t, s, http.MethodPost, "/api/v1/capture/start")

	rec := do(t, s, http.MethodPost, "/api/v1/capture/stop")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "end notification failed", body["warning"])
	assert.Equal(t, "ended", body["session"].(map[string]any)["state"])
	assert.Equal(t, []string{session.ReasonUser}, fc.stops)
}

func TestPerformance(t *testing.T) {
	s := newTestServer(t, &fakeCapture{}, events.NewEventBus())
	rec := do(t, s, http.MethodGet, "/api/v1/performance")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap performance.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(4), snap.TotalAnalyses)
	assert.InDelta(t, 75.0, snap.DetectionRatePercent, 1e-9)
}

func latestFixture() *model.AnalysisResult {
	return &model.AnalysisResult{
		FacesDetected: 1,
		Faces: []model.Face{{
			Box:             &model.Box{X: 100, Y: 150, W: 80, H: 80},
			DominantEmotion: model.EmotionHappy,
			EmotionScores:   map[model.EmotionLabel]float64{model.EmotionHappy: 0.9},
		}},
		SourceSize: model.Size{Width: 1280, Height: 720},
	}
}

func TestLatestResultMapsBoxes(t *testing.T) {
	s := newTestServer(t, &fakeCapture{latest: latestFixture()}, events.NewEventBus())

	rec := do(t, s, http.MethodGet, "/api/v1/results/latest?width=640&height=360")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LatestResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Overlays, 1)
	assert.Equal(t, model.Box{X: 50, Y: 75, W: 40, H: 40}, resp.Overlays[0].Box)
	assert.False(t, resp.Mirrored)
	assert.InDelta(t, 0.9, resp.Overlays[0].Score, 1e-9)

	rec = do(t, s, http.MethodGet, "/api/v1/results/latest?width=640&height=360&mirror=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Mirrored)
	assert.InDelta(t, 640-50-40, resp.Overlays[0].Box.X, 1e-9)
}

func TestLatestResultDefaultsToSourceSize(t *testing.T) {
	s := newTestServer(t, &fakeCapture{latest: latestFixture(), mirror: true}, events.NewEventBus())

	rec := do(t, s, http.MethodGet, "/api/v1/results/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LatestResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.Size{Width: 1280, Height: 720}, resp.View)
	assert.True(t, resp.Mirrored, "configured mirroring applies without a query parameter")
}

func TestLatestResultErrors(t *testing.T) {
	s := newTestServer(t, &fakeCapture{}, events.NewEventBus())
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/v1/results/latest").Code)

	s = newTestServer(t, &fakeCapture{latest: latestFixture()}, events.NewEventBus())
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/results/latest?width=640").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/results/latest?width=0&height=10").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/v1/results/latest?mirror=maybe").Code)
}

func TestEventStream(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	s := newTestServer(t, &fakeCapture{}, bus)
	srv := httptest.NewServer(s.Echo())
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/events?types=alert", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var name, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "":
				return name, data
			}
		}
	}

	name, _ := readEvent()
	assert.Equal(t, "connected", name)

	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 1 }, time.Second, time.Millisecond)
	bus.TryPublish(events.New(events.TypeSnapshot, map[string]any{"filtered": true}))
	bus.TryPublish(events.New(events.TypeAlert, map[string]any{"emotion": "sad"}))

	name, data := readEvent()
	assert.Equal(t, "alert", name)
	var ev map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "sad", ev["payload"].(map[string]any)["emotion"])

	cancel()
	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServeShutsDownWithOpenStream(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	s := newTestServer(t, &fakeCapture{}, bus)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServeCapsConcurrentConnections(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Close()
	cfg := DefaultConfig()
	cfg.Heartbeat = time.Hour
	cfg.MaxConnections = 1
	s, err := New(&conf.Settings{}, &fakeCapture{}, bus, testLogger(), WithConfig(cfg))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	go func() { _ = s.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: 200 * time.Millisecond}

	streamClient := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	stream, err := streamClient.Get(base + "/api/v1/events")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bus.GetStats().Subscribers == 1 }, time.Second, time.Millisecond)

	_, err = client.Get(base + "/api/v1/health")
	require.Error(t, err, "the open stream holds the only connection slot")

	stream.Body.Close()
	require.Eventually(t, func() bool {
		resp, err := client.Get(base + "/api/v1/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)
}
