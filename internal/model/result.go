package model

import "time"

// Box is an axis-aligned rectangle in pixels.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Size is an image or view size in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one analyzed face. Box is nil when the service reported no
// position for it.
type Face struct {
	Box             *Box                     `json:"box,omitempty"`
	DominantEmotion EmotionLabel             `json:"dominant_emotion"`
	EmotionScores   map[EmotionLabel]float64 `json:"emotion_scores"`
	Engagement      EngagementLabel          `json:"engagement"`
}

// AnalysisResult is the normalized reply for one analyzed frame. Optional
// telemetry is nil when the service omitted it. Treat as immutable.
type AnalysisResult struct {
	FacesDetected    int       `json:"faces_detected"`
	Faces            []Face    `json:"faces"`
	ProcessingTimeMs *float64  `json:"processing_time_ms,omitempty"`
	FPS              *float64  `json:"fps,omitempty"`
	CacheHit         *bool     `json:"cache_hit,omitempty"`
	ImageQuality     *float64  `json:"image_quality,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	FrameSeq         uint64    `json:"frame_seq"`
	TraceID          string    `json:"trace_id,omitempty"`
	CapturedAt       time.Time `json:"captured_at"`
	SourceSize       Size      `json:"source_size"`
}

// PrimaryEmotion returns the dominant emotion of the first face.
func (r *AnalysisResult) PrimaryEmotion() (EmotionLabel, bool) {
	if r == nil || len(r.Faces) == 0 || r.Faces[0].DominantEmotion == "" {
		return "", false
	}
	return r.Faces[0].DominantEmotion, true
}

// PrimaryEngagement returns the engagement label of the first face.
func (r *AnalysisResult) PrimaryEngagement() (EngagementLabel, bool) {
	if r == nil || len(r.Faces) == 0 {
		return "", false
	}
	return r.Faces[0].Engagement, true
}
