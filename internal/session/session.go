// Package session owns the analysis-session lifecycle: optimistic local
// start, first-wins server id confirmation, best-effort end and recovery of
// sessions left open by an unclean shutdown.
package session

import (
	"time"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/model"
)

// State is the lifecycle state of the manager's current session.
type State int

const (
	StateIdle State = iota
	StateActive
	// StateEnding covers the server end call; the session no longer
	// accepts results.
	StateEnding
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateEnding:
		return "ending"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// End reasons recorded in the journal and published to listeners.
const (
	ReasonUser        = "user"
	ReasonMaxDuration = "max_duration"
	ReasonShutdown    = "shutdown"
	ReasonRecovered   = "recovered"
)

// Config is fixed for the lifetime of a session.
type Config struct {
	CameraResolution   string               `json:"camera_resolution"`
	AnalysisInterval   time.Duration        `json:"analysis_interval"`
	DetectionThreshold float64              `json:"detection_threshold"`
	EnabledEmotions    []model.EmotionLabel `json:"enabled_emotions"`
	MaxDuration        time.Duration        `json:"max_duration"`
}

// ConfigFromSettings derives a session config from capture settings.
func ConfigFromSettings(c *conf.CaptureSettings) Config {
	emotions := make([]model.EmotionLabel, 0, len(c.EnabledEmotions))
	for _, e := range c.EnabledEmotions {
		emotions = append(emotions, model.ParseEmotion(e))
	}
	return Config{
		CameraResolution:   c.CameraResolution,
		AnalysisInterval:   c.Interval,
		DetectionThreshold: c.DetectionThreshold,
		EnabledEmotions:    emotions,
		MaxDuration:        c.MaxSessionDuration,
	}
}

// Session is a copy of the manager's session state. ID is empty until the
// server confirms one.
type Session struct {
	LocalID   string     `json:"local_id"`
	ID        string     `json:"id,omitempty"`
	State     State      `json:"-"`
	StateName string     `json:"state"`
	Config    Config     `json:"config"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
	Anomalies int        `json:"anomalies"`
}

// Confirmed reports whether the server id is known.
func (s *Session) Confirmed() bool { return s.ID != "" }
