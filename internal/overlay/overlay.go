// Package overlay maps face boxes from source image space to view space.
package overlay

import "github.com/tphakala/emotion-go/internal/model"

// MapBox scales box linearly from src to dst. No aspect correction is
// applied. A degenerate source size yields the zero box.
func MapBox(box model.Box, src, dst model.Size) model.Box {
	if src.Width <= 0 || src.Height <= 0 {
		return model.Box{}
	}
	sx := dst.Width / src.Width
	sy := dst.Height / src.Height
	return model.Box{
		X: box.X * sx,
		Y: box.Y * sy,
		W: box.W * sx,
		H: box.H * sy,
	}
}

// MapBoxMirrored is MapBox followed by a horizontal flip around the view
// width, for front cameras rendered as a mirror image.
func MapBoxMirrored(box model.Box, src, dst model.Size) model.Box {
	m := MapBox(box, src, dst)
	if m == (model.Box{}) {
		return m
	}
	m.X = dst.Width - m.X - m.W
	return m
}

// Overlay is a face prepared for rendering.
type Overlay struct {
	Box             model.Box             `json:"box"`
	DominantEmotion model.EmotionLabel    `json:"dominant_emotion"`
	Engagement      model.EngagementLabel `json:"engagement"`
	Score           float64               `json:"score"`
}

// MapResult maps every boxed face of r into dst. Faces without a box are
// skipped.
func MapResult(r *model.AnalysisResult, dst model.Size, mirror bool) []Overlay {
	if r == nil {
		return nil
	}
	mapFn := MapBox
	if mirror {
		mapFn = MapBoxMirrored
	}
	out := make([]Overlay, 0, len(r.Faces))
	for _, f := range r.Faces {
		if f.Box == nil {
			continue
		}
		out = append(out, Overlay{
			Box:             mapFn(*f.Box, r.SourceSize, dst),
			DominantEmotion: f.DominantEmotion,
			Engagement:      f.Engagement,
			Score:           f.EmotionScores[f.DominantEmotion],
		})
	}
	return out
}
