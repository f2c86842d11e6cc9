package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/model"
)

func TestMapBoxHalfScale(t *testing.T) {
	got := MapBox(model.Box{X: 100, Y: 150, W: 80, H: 80},
		model.Size{Width: 1280, Height: 720},
		model.Size{Width: 640, Height: 360})

	assert.Equal(t, model.Box{X: 50, Y: 75, W: 40, H: 40}, got)
}

func TestMapBoxIndependentAxes(t *testing.T) {
	got := MapBox(model.Box{X: 10, Y: 10, W: 20, H: 20},
		model.Size{Width: 100, Height: 100},
		model.Size{Width: 300, Height: 50})

	assert.Equal(t, model.Box{X: 30, Y: 5, W: 60, H: 10}, got)
}

func TestMapBoxDegenerateSource(t *testing.T) {
	got := MapBox(model.Box{X: 1, Y: 1, W: 1, H: 1}, model.Size{}, model.Size{Width: 640, Height: 360})
	assert.Equal(t, model.Box{}, got)
}

func TestMapBoxMirrored(t *testing.T) {
	got := MapBoxMirrored(model.Box{X: 100, Y: 150, W: 80, H: 80},
		model.Size{Width: 1280, Height: 720},
		model.Size{Width: 640, Height: 360})

	assert.Equal(t, model.Box{X: 550, Y: 75, W: 40, H: 40}, got)
}

func TestMapResultSkipsUnboxedFaces(t *testing.T) {
	r := &model.AnalysisResult{
		FacesDetected: 2,
		SourceSize:    model.Size{Width: 1280, Height: 720},
		Faces: []model.Face{
			{
				Box:             &model.Box{X: 100, Y: 150, W: 80, H: 80},
				DominantEmotion: model.EmotionHappy,
				EmotionScores:   map[model.EmotionLabel]float64{model.EmotionHappy: 0.9},
			},
			{DominantEmotion: model.EmotionSad},
		},
	}

	out := MapResult(r, model.Size{Width: 640, Height: 360}, false)
	require.Len(t, out, 1)
	assert.Equal(t, model.Box{X: 50, Y: 75, W: 40, H: 40}, out[0].Box)
	assert.InDelta(t, 0.9, out[0].Score, 1e-9)
	assert.Nil(t, MapResult(nil, model.Size{}, false))
}
