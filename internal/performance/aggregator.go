// Package performance folds analysis telemetry into rolling session
// statistics.
package performance

import (
	"maps"
	"sync"

	"github.com/tphakala/emotion-go/internal/model"
)

// Snapshot is the derived statistics after the latest recorded result.
type Snapshot struct {
	TotalAnalyses           int64   `json:"total_analyses"`
	SuccessfulDetections    int64   `json:"successful_detections"`
	FailedDetections        int64   `json:"failed_detections"`
	DetectionRatePercent    float64 `json:"detection_rate_percent"`
	AverageProcessingTimeMs float64 `json:"average_processing_time_ms"`
	AverageFPS              float64 `json:"average_fps"`
	CacheHitRatePercent     float64 `json:"cache_hit_rate_percent"`
	CacheHits               int64   `json:"cache_hits"`

	// Sample counts behind the telemetry means; missing samples are excluded.
	ProcessingTimeSamples int64 `json:"processing_time_samples"`
	FPSSamples            int64 `json:"fps_samples"`

	EmotionsSummary   map[model.EmotionLabel]int64    `json:"emotions_summary"`
	EngagementSummary map[model.EngagementLabel]int64 `json:"engagement_summary"`
}

// runningMean is an incremental mean that never stores history.
type runningMean struct {
	n    int64
	mean float64
}

func (m *runningMean) add(sample float64) {
	m.n++
	m.mean += (sample - m.mean) / float64(m.n)
}

// Aggregator maintains a Snapshot for one session. Safe for concurrent use;
// results are expected from a single writer in capture order.
type Aggregator struct {
	mu         sync.RWMutex
	total      int64
	successful int64
	failed     int64
	cacheHits  int64
	processing runningMean
	fps        runningMean
	cache      runningMean
	emotions   map[model.EmotionLabel]int64
	engagement map[model.EngagementLabel]int64
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{}
	a.resetLocked()
	return a
}

// Record folds r into the statistics and returns the new snapshot.
func (a *Aggregator) Record(r *model.AnalysisResult) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	if r.FacesDetected > 0 {
		a.successful++
	} else {
		a.failed++
	}

	if r.ProcessingTimeMs != nil {
		a.processing.add(*r.ProcessingTimeMs)
	}
	if r.FPS != nil {
		a.fps.add(*r.FPS)
	}

	// a missing flag means no cache layer reported, which is a miss
	hit := r.CacheHit != nil && *r.CacheHit
	if hit {
		a.cacheHits++
		a.cache.add(1)
	} else {
		a.cache.add(0)
	}

	if e, ok := r.PrimaryEmotion(); ok {
		a.emotions[e]++
	}
	if g, ok := r.PrimaryEngagement(); ok && g != "" {
		a.engagement[g]++
	}

	return a.snapshotLocked()
}

// Snapshot returns the current statistics.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Reset zeroes every counter. Called when the owning session ends.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Aggregator) resetLocked() {
	a.total, a.successful, a.failed, a.cacheHits = 0, 0, 0, 0
	a.processing = runningMean{}
	a.fps = runningMean{}
	a.cache = runningMean{}
	a.emotions = make(map[model.EmotionLabel]int64)
	a.engagement = make(map[model.EngagementLabel]int64)
}

func (a *Aggregator) snapshotLocked() Snapshot {
	s := Snapshot{
		TotalAnalyses:           a.total,
		SuccessfulDetections:    a.successful,
		FailedDetections:        a.failed,
		AverageProcessingTimeMs: a.processing.mean,
		AverageFPS:              a.fps.mean,
		CacheHitRatePercent:     a.cache.mean * 100,
		CacheHits:               a.cacheHits,
		ProcessingTimeSamples:   a.processing.n,
		FPSSamples:              a.fps.n,
		EmotionsSummary:         maps.Clone(a.emotions),
		EngagementSummary:       maps.Clone(a.engagement),
	}
	if a.total > 0 {
		s.DetectionRatePercent = float64(a.successful) / float64(a.total) * 100
	}
	return s
}
