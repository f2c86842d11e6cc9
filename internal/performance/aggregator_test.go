package performance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/model"
)

func f64(v float64) *float64 { return &v }
func boolp(v bool) *bool     { return &v }

func withFaces(n int) *model.AnalysisResult {
	r := &model.AnalysisResult{FacesDetected: n}
	for range n {
		r.Faces = append(r.Faces, model.Face{DominantEmotion: model.EmotionHappy, Engagement: model.EngagementPositive})
	}
	return r
}

func TestEmptySnapshot(t *testing.T) {
	s := NewAggregator().Snapshot()
	assert.Zero(t, s.TotalAnalyses)
	assert.Zero(t, s.DetectionRatePercent)
	assert.Zero(t, s.CacheHitRatePercent)
	assert.NotNil(t, s.EmotionsSummary)
}

func TestDetectionRate(t *testing.T) {
	a := NewAggregator()
	faces := []int{1, 0, 2, 0, 0, 1, 3}
	var s Snapshot
	for _, n := range faces {
		s = a.Record(withFaces(n))
	}

	assert.Equal(t, int64(7), s.TotalAnalyses)
	assert.Equal(t, int64(4), s.SuccessfulDetections)
	assert.Equal(t, int64(3), s.FailedDetections)
	assert.InDelta(t, 4.0/7.0*100, s.DetectionRatePercent, 1e-9)
}

func TestProcessingMeanExcludesMissingSamples(t *testing.T) {
	a := NewAggregator()
	samples := []*float64{f64(100), nil, f64(200), nil, nil, f64(600)}
	var s Snapshot
	for _, p := range samples {
		s = a.Record(&model.AnalysisResult{FacesDetected: 1, ProcessingTimeMs: p})
	}

	assert.InDelta(t, 300.0, s.AverageProcessingTimeMs, 1e-9)
	assert.Equal(t, int64(3), s.ProcessingTimeSamples)
	assert.Equal(t, int64(6), s.TotalAnalyses)
}

func TestFPSMeanMatchesArithmeticMean(t *testing.T) {
	a := NewAggregator()
	var sum float64
	var n int
	var s Snapshot
	for i := range 1000 {
		var fps *float64
		if i%3 != 0 {
			v := float64(i%17) + 0.25
			fps = &v
			sum += v
			n++
		}
		s = a.Record(&model.AnalysisResult{FPS: fps})
	}
	require.Equal(t, int64(n), s.FPSSamples)
	assert.InDelta(t, sum/float64(n), s.AverageFPS, 1e-9)
}

func TestMissingTelemetryLeavesMeanUnchanged(t *testing.T) {
	a := NewAggregator()
	a.Record(&model.AnalysisResult{ProcessingTimeMs: f64(120), FPS: f64(8)})
	s := a.Record(&model.AnalysisResult{})

	assert.InDelta(t, 120.0, s.AverageProcessingTimeMs, 1e-9)
	assert.InDelta(t, 8.0, s.AverageFPS, 1e-9)
}

func TestCacheHitMissingCountsAsMiss(t *testing.T) {
	a := NewAggregator()
	a.Record(&model.AnalysisResult{CacheHit: boolp(true)})
	a.Record(&model.AnalysisResult{})
	a.Record(&model.AnalysisResult{CacheHit: boolp(false)})
	s := a.Record(&model.AnalysisResult{CacheHit: boolp(true)})

	assert.InDelta(t, 50.0, s.CacheHitRatePercent, 1e-9)
	assert.Equal(t, int64(2), s.CacheHits)
}

func TestSummaries(t *testing.T) {
	a := NewAggregator()
	a.Record(&model.AnalysisResult{FacesDetected: 1, Faces: []model.Face{{DominantEmotion: model.EmotionSad, Engagement: model.EngagementNotPositive}}})
	a.Record(&model.AnalysisResult{FacesDetected: 1, Faces: []model.Face{{DominantEmotion: model.EmotionSad, Engagement: model.EngagementPositive}}})
	s := a.Record(&model.AnalysisResult{})

	assert.Equal(t, int64(2), s.EmotionsSummary[model.EmotionSad])
	assert.Equal(t, int64(1), s.EngagementSummary[model.EngagementPositive])
	assert.Equal(t, int64(1), s.EngagementSummary[model.EngagementNotPositive])
}

func TestSnapshotIsACopy(t *testing.T) {
	a := NewAggregator()
	s := a.Record(withFaces(1))
	s.EmotionsSummary[model.EmotionHappy] = 99

	assert.Equal(t, int64(1), a.Snapshot().EmotionsSummary[model.EmotionHappy])
}

func TestReset(t *testing.T) {
	a := NewAggregator()
	a.Record(&model.AnalysisResult{FacesDetected: 1, ProcessingTimeMs: f64(50), CacheHit: boolp(true)})
	a.Reset()

	s := a.Snapshot()
	assert.Zero(t, s.TotalAnalyses)
	assert.Zero(t, s.AverageProcessingTimeMs)
	assert.Zero(t, s.CacheHits)
	assert.Empty(t, s.EmotionsSummary)

	s = a.Record(&model.AnalysisResult{ProcessingTimeMs: f64(10)})
	assert.InDelta(t, 10.0, s.AverageProcessingTimeMs, 1e-9)
}
