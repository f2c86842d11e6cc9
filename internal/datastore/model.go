package datastore

import (
	"strings"
	"time"
)

// SessionRecord is one analysis session in the local journal.
type SessionRecord struct {
	ID                 uint   `gorm:"primaryKey"`
	LocalID            string `gorm:"size:36;uniqueIndex;not null"`
	ServerID           string `gorm:"size:64;index"`
	CameraResolution   string `gorm:"size:32"`
	AnalysisIntervalMs int64
	DetectionThreshold float64
	EnabledEmotions    string `gorm:"size:128"`
	MaxDurationMs      int64
	StartedAt          time.Time  `gorm:"index;not null"`
	EndedAt            *time.Time `gorm:"index"`
	EndReason          string     `gorm:"size:32"`
	Anomalies          int

	TotalAnalyses        int64
	SuccessfulDetections int64
	FailedDetections     int64
	DetectionRate        float64
	AvgProcessingTimeMs  float64
	AvgFPS               float64 `gorm:"column:avg_fps"`
	CacheHitRate         float64
}

// TableName pins the table name independent of the struct name.
func (SessionRecord) TableName() string { return "sessions" }

// Open reports whether the session has not been closed.
func (r *SessionRecord) Open() bool { return r.EndedAt == nil }

// Duration returns the session length, measured to now for open sessions.
func (r *SessionRecord) Duration(now time.Time) time.Duration {
	if r.EndedAt != nil {
		return r.EndedAt.Sub(r.StartedAt)
	}
	return now.Sub(r.StartedAt)
}

// Emotions splits EnabledEmotions.
func (r *SessionRecord) Emotions() []string {
	if r.EnabledEmotions == "" {
		return nil
	}
	return strings.Split(r.EnabledEmotions, ",")
}

// SessionStats is the final statistics block written when a session closes.
type SessionStats struct {
	TotalAnalyses        int64
	SuccessfulDetections int64
	FailedDetections     int64
	DetectionRate        float64
	AvgProcessingTimeMs  float64
	AvgFPS               float64
	CacheHitRate         float64
}
