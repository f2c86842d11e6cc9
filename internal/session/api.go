package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/performance"
)

// API is the server side of the session lifecycle.
type API interface {
	Start(ctx context.Context, cfg *Config) (string, error)
	End(ctx context.Context) error
	Active(ctx context.Context) (*ActiveSession, error)
	UpdateStats(ctx context.Context, sessionID string, snap *performance.Snapshot) error
}

// ActiveSession is the server's view of a session that is still open.
type ActiveSession struct {
	ID        string
	StartedAt time.Time
}

type envelope struct {
	Success          *bool          `json:"success"`
	Error            string         `json:"error"`
	Message          string         `json:"message"`
	HasActiveSession bool           `json:"has_active_session"`
	Session          map[string]any `json:"session"`
}

func (e *envelope) failed() bool { return e.Success != nil && !*e.Success }

func (e *envelope) reason() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

type startRequest struct {
	CameraResolution   string   `json:"camera_resolution"`
	AnalysisInterval   int64    `json:"analysis_interval"`
	DetectionThreshold float64  `json:"detection_threshold"`
	EnabledEmotions    []string `json:"enabled_emotions"`
	MaxSessionDuration int64    `json:"max_session_duration"`
}

type statsRequest struct {
	TotalAnalyses        int64                        `json:"total_analyses"`
	SuccessfulDetections int64                        `json:"successful_detections"`
	FailedDetections     int64                        `json:"failed_detections"`
	DetectionRate        float64                      `json:"detection_rate"`
	EmotionsSummary      map[model.EmotionLabel]int64 `json:"emotions_summary"`
	AvgProcessingTime    float64                      `json:"avg_processing_time"`
	AvgFPS               float64                      `json:"avg_fps"`
	TotalCacheHits       int64                        `json:"total_cache_hits"`
	CacheHitRate         float64                      `json:"cache_hit_rate"`
}

// APIClient talks to the session endpoints over resty with retries on 5xx,
// 429 and transport errors.
type APIClient struct {
	client  *resty.Client
	timeout time.Duration
}

// NewAPIClient builds a client from service settings.
func NewAPIClient(settings *conf.ServiceSettings) *APIClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(settings.BaseURL, "/")).
		SetRetryCount(settings.RetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "emotion-go").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})
	if settings.Token != "" {
		client.SetAuthToken(settings.Token)
	}
	return &APIClient{client: client, timeout: settings.SessionTimeout}
}

// HTTPClient exposes the underlying client for transport mocking.
func (c *APIClient) HTTPClient() *http.Client { return c.client.GetClient() }

func (c *APIClient) request(ctx context.Context) (*resty.Request, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	return c.client.R().SetContext(ctx), cancel
}

func (c *APIClient) do(ctx context.Context, method, path string, body any) (*envelope, error) {
	req, cancel := c.request(ctx)
	defer cancel()

	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, errors.New(err).
			Component("session").
			Category(errors.CategoryTransientNetwork).
			Context("path", path).
			Build()
	}
	// decoded by hand so replies without a JSON content type still parse
	var env envelope
	_ = json.Unmarshal(resp.Body(), &env)

	if resp.IsError() {
		cat := errors.CategoryServerRejection
		if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
			cat = errors.CategoryTransientNetwork
		}
		return nil, errors.Newf("session API %s returned %d: %s", path, resp.StatusCode(), env.reason()).
			Component("session").
			Category(cat).
			Context("status_code", resp.StatusCode()).
			Build()
	}
	if env.failed() {
		return nil, errors.Newf("session API %s refused: %s", path, env.reason()).
			Component("session").
			Category(errors.CategoryServerRejection).
			Build()
	}
	return &env, nil
}

// Start asks the server to open a session and returns its id, which may be
// empty when the server assigns it lazily.
func (c *APIClient) Start(ctx context.Context, cfg *Config) (string, error) {
	emotions := make([]string, 0, len(cfg.EnabledEmotions))
	for _, e := range cfg.EnabledEmotions {
		emotions = append(emotions, string(e))
	}
	env, err := c.do(ctx, resty.MethodPost, "/sessions/start", &startRequest{
		CameraResolution:   cfg.CameraResolution,
		AnalysisInterval:   cfg.AnalysisInterval.Milliseconds(),
		DetectionThreshold: cfg.DetectionThreshold,
		EnabledEmotions:    emotions,
		MaxSessionDuration: cfg.MaxDuration.Milliseconds(),
	})
	if err != nil {
		return "", err
	}
	return idString(env.Session["id"]), nil
}

// End closes the caller's active session on the server.
func (c *APIClient) End(ctx context.Context) error {
	_, err := c.do(ctx, resty.MethodPost, "/sessions/end", map[string]any{})
	return err
}

// Active returns the server's open session, or nil when there is none.
func (c *APIClient) Active(ctx context.Context) (*ActiveSession, error) {
	env, err := c.do(ctx, resty.MethodGet, "/sessions/active", nil)
	if err != nil {
		return nil, err
	}
	if !env.HasActiveSession || env.Session == nil {
		return nil, nil
	}
	active := &ActiveSession{ID: idString(env.Session["id"])}
	if s, ok := env.Session["start_time"].(string); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			active.StartedAt = t
		}
	}
	return active, nil
}

// UpdateStats pushes the rolling statistics for sessionID.
func (c *APIClient) UpdateStats(ctx context.Context, sessionID string, snap *performance.Snapshot) error {
	if sessionID == "" {
		return errors.Newf("cannot push stats without a server session id").
			Component("session").
			Category(errors.CategoryState).
			Build()
	}
	_, err := c.do(ctx, resty.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/update-stats", &statsRequest{
		TotalAnalyses:        snap.TotalAnalyses,
		SuccessfulDetections: snap.SuccessfulDetections,
		FailedDetections:     snap.FailedDetections,
		DetectionRate:        snap.DetectionRatePercent,
		EmotionsSummary:      snap.EmotionsSummary,
		AvgProcessingTime:    snap.AverageProcessingTimeMs,
		AvgFPS:               snap.AverageFPS,
		TotalCacheHits:       snap.CacheHits,
		CacheHitRate:         snap.CacheHitRatePercent,
	})
	return err
}

// idString renders string and numeric ids alike.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}
