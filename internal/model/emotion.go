// Package model holds the domain types shared by the capture pipeline.
package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// EmotionLabel is a dominant emotion as reported by the analysis service.
type EmotionLabel string

const (
	EmotionAngry    EmotionLabel = "angry"
	EmotionDisgust  EmotionLabel = "disgust"
	EmotionFear     EmotionLabel = "fear"
	EmotionHappy    EmotionLabel = "happy"
	EmotionSad      EmotionLabel = "sad"
	EmotionSurprise EmotionLabel = "surprise"
	EmotionNeutral  EmotionLabel = "neutral"
)

// Valence is the coarse polarity of an emotion.
type Valence int

const (
	ValenceNeutral Valence = iota
	ValencePositive
	ValenceNegative
)

func (v Valence) String() string {
	switch v {
	case ValencePositive:
		return "positive"
	case ValenceNegative:
		return "negative"
	default:
		return "neutral"
	}
}

// Valence classifies the label. Unknown labels are neutral.
func (e EmotionLabel) Valence() Valence {
	switch e {
	case EmotionHappy, EmotionSurprise:
		return ValencePositive
	case EmotionSad, EmotionAngry, EmotionFear, EmotionDisgust:
		return ValenceNegative
	default:
		return ValenceNeutral
	}
}

// Title returns the label for display, e.g. "Sad".
func (e EmotionLabel) Title() string {
	return cases.Title(language.English).String(string(e))
}

// ParseEmotion normalizes a server emotion string.
func ParseEmotion(s string) EmotionLabel {
	return EmotionLabel(strings.ToLower(strings.TrimSpace(s)))
}

// EngagementLabel is the server's categorical engagement summary.
type EngagementLabel string

const (
	EngagementVeryPositive EngagementLabel = "very_positive"
	EngagementPositive     EngagementLabel = "positive"
	EngagementNotPositive  EngagementLabel = "not_positive"
	EngagementUnknown      EngagementLabel = "unknown"
)

var vietnameseLower = cases.Lower(language.Vietnamese)

// ParseEngagement accepts the Vietnamese labels the service emits as well as
// English spellings.
func ParseEngagement(s string) EngagementLabel {
	v := strings.Join(strings.Fields(vietnameseLower.String(s)), " ")
	v = strings.ReplaceAll(v, "_", " ")
	switch v {
	case "rất tích cực", "very positive":
		return EngagementVeryPositive
	case "tích cực", "positive":
		return EngagementPositive
	case "không tích cực", "not positive", "negative":
		return EngagementNotPositive
	default:
		return EngagementUnknown
	}
}
