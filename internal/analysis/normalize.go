package analysis

import (
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/model"
)

// secondsCutoff separates processing times reported in seconds from those
// reported in milliseconds.
const secondsCutoff = 50.0

// Normalize converts any of the service's reply shapes into an
// AnalysisResult:
//
//   - per-face boxes: {"faces":[{"box":[x,y,w,h],"dominant_emotion","emotions"}]}
//   - result list:    {"results":[{"face_position":{...},"dominant_emotion","emotions","engagement"}]}
//   - aggregate:      {"analysis":{"dominant_emotion","emotions_scores","engagement","faces_detected"}}
//
// A reply with "success": false is a server rejection.
func Normalize(body []byte) (*model.AnalysisResult, error) {
	root, err := jason.NewObjectFromBytes(body)
	if err != nil {
		return nil, rejection("malformed analysis response", err)
	}

	if ok, err := root.GetBoolean("success"); err == nil && !ok {
		msg := messageOf(root)
		if msg == "" {
			msg = "analysis service reported failure"
		}
		return nil, errors.Newf("%s", msg).
			Component("analysis").
			Category(errors.CategoryServerRejection).
			Context("reason", "success_false").
			Build()
	}

	result := &model.AnalysisResult{SessionID: sessionIDOf(root)}

	switch {
	case root.Map()["faces"] != nil:
		faces, err := root.GetObjectArray("faces")
		if err != nil {
			return nil, rejection("faces is not an array", err)
		}
		for _, f := range faces {
			result.Faces = append(result.Faces, faceOf(f, boxFromArray(f)))
		}
		result.FacesDetected = countOr(root, len(result.Faces))
		applyTelemetry(result, root)

	case root.Map()["results"] != nil:
		items, err := root.GetObjectArray("results")
		if err != nil {
			return nil, rejection("results is not an array", err)
		}
		for _, f := range items {
			result.Faces = append(result.Faces, faceOf(f, boxFromPosition(f)))
		}
		result.FacesDetected = countOr(root, len(result.Faces))
		applyTelemetry(result, root)

	case root.Map()["analysis"] != nil:
		a, err := root.GetObject("analysis")
		if err != nil {
			return nil, rejection("analysis is not an object", err)
		}
		result.FacesDetected = countOr(a, 0)
		if result.FacesDetected > 0 {
			result.Faces = []model.Face{faceOf(a, nil)}
		}
		applyTelemetry(result, root)
		applyTelemetry(result, a)

	default:
		if _, err := root.GetInt64("faces_detected"); err != nil {
			return nil, errors.Newf("unrecognized analysis response shape").
				Component("analysis").
				Category(errors.CategoryServerRejection).
				Build()
		}
		result.FacesDetected = countOr(root, 0)
		applyTelemetry(result, root)
	}

	return result, nil
}

func rejection(msg string, err error) error {
	return errors.New(err).
		Component("analysis").
		Category(errors.CategoryServerRejection).
		Context("reason", msg).
		Build()
}

func messageOf(obj *jason.Object) string {
	for _, key := range []string{"error", "message", "detail"} {
		if s, err := obj.GetString(key); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// serverMessage extracts a human-readable reason from an error reply.
func serverMessage(body []byte) string {
	if obj, err := jason.NewObjectFromBytes(body); err == nil {
		if msg := messageOf(obj); msg != "" {
			return msg
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// sessionIDOf accepts string and numeric ids.
func sessionIDOf(obj *jason.Object) string {
	v, err := obj.GetValue("session_id")
	if err != nil {
		return ""
	}
	if s, err := v.String(); err == nil {
		return strings.TrimSpace(s)
	}
	if n, err := v.Int64(); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := v.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func countOr(obj *jason.Object, fallback int) int {
	if n, err := obj.GetInt64("faces_detected"); err == nil && n >= 0 {
		return int(n)
	}
	return fallback
}

func faceOf(obj *jason.Object, box *model.Box) model.Face {
	scores := scoresOf(obj)
	face := model.Face{
		Box:           box,
		EmotionScores: scores,
		Engagement:    model.EngagementUnknown,
	}
	if s, err := obj.GetString("dominant_emotion"); err == nil && s != "" {
		face.DominantEmotion = model.ParseEmotion(s)
	} else {
		face.DominantEmotion = argmax(scores)
	}
	if s, err := obj.GetString("engagement"); err == nil {
		face.Engagement = model.ParseEngagement(s)
	}
	return face
}

func scoresOf(obj *jason.Object) map[model.EmotionLabel]float64 {
	var m *jason.Object
	for _, key := range []string{"emotions", "emotions_scores", "emotion_scores"} {
		if o, err := obj.GetObject(key); err == nil {
			m = o
			break
		}
	}
	scores := make(map[model.EmotionLabel]float64)
	if m == nil {
		return scores
	}
	for label, v := range m.Map() {
		f, err := v.Float64()
		if err != nil {
			continue
		}
		if f > 1 {
			f /= 100
		}
		scores[model.ParseEmotion(label)] = f
	}
	return scores
}

func argmax(scores map[model.EmotionLabel]float64) model.EmotionLabel {
	var (
		best  model.EmotionLabel
		bestV = -1.0
	)
	for label, v := range scores {
		// ties resolve to the lexically smaller label so the choice is stable
		if v > bestV || (v == bestV && label < best) {
			best, bestV = label, v
		}
	}
	return best
}

func boxFromArray(obj *jason.Object) *model.Box {
	vals, err := obj.GetFloat64Array("box")
	if err != nil || len(vals) != 4 {
		return boxFromPosition(obj)
	}
	return &model.Box{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}
}

func boxFromPosition(obj *jason.Object) *model.Box {
	for _, key := range []string{"face_position", "region", "box"} {
		p, err := obj.GetObject(key)
		if err != nil {
			continue
		}
		x, errX := p.GetFloat64("x")
		y, errY := p.GetFloat64("y")
		w, errW := firstFloat(p, "width", "w")
		h, errH := firstFloat(p, "height", "h")
		if errX != nil || errY != nil || errW != nil || errH != nil {
			return nil
		}
		return &model.Box{X: x, Y: y, W: w, H: h}
	}
	return nil
}

func firstFloat(obj *jason.Object, keys ...string) (float64, error) {
	var lastErr error
	for _, k := range keys {
		f, err := obj.GetFloat64(k)
		if err == nil {
			return f, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

// applyTelemetry fills optional fields that are still unset.
func applyTelemetry(r *model.AnalysisResult, obj *jason.Object) {
	if r.ProcessingTimeMs == nil {
		if ms, err := obj.GetFloat64("processing_time_ms"); err == nil {
			r.ProcessingTimeMs = &ms
		} else if t, err := obj.GetFloat64("processing_time"); err == nil {
			if t < secondsCutoff {
				t *= 1000
			}
			r.ProcessingTimeMs = &t
		}
	}
	if r.FPS == nil {
		if fps, err := firstFloat(obj, "fps", "avg_fps"); err == nil {
			r.FPS = &fps
		}
	}
	if r.CacheHit == nil {
		if hit, err := obj.GetBoolean("cache_hit"); err == nil {
			r.CacheHit = &hit
		} else if n, err := obj.GetFloat64("cache_hits"); err == nil {
			hit := n > 0
			r.CacheHit = &hit
		}
	}
	if r.ImageQuality == nil {
		if q, err := obj.GetFloat64("image_quality"); err == nil {
			r.ImageQuality = &q
		}
	}
	if r.SessionID == "" {
		r.SessionID = sessionIDOf(obj)
	}
}
