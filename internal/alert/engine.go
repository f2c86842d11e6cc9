// Package alert detects sustained negative-emotion streaks and delivers
// debounced notifications.
package alert

import (
	"sync"
	"time"

	"github.com/tphakala/emotion-go/internal/model"
)

const (
	DefaultWindow    = time.Second
	DefaultThreshold = 5
)

// Signal is raised once per negative streak.
type Signal struct {
	Emotion     model.EmotionLabel `json:"emotion"`
	Count       int                `json:"count"`
	WindowStart time.Time          `json:"window_start"`
	At          time.Time          `json:"at"`
}

// Engine tracks consecutive negative observations inside a sliding window.
type Engine struct {
	window    time.Duration
	threshold int

	mu         sync.Mutex
	timestamps []time.Time
	hasWarned  bool
}

// NewEngine returns an engine; non-positive arguments fall back to the
// defaults.
func NewEngine(window time.Duration, threshold int) *Engine {
	if window <= 0 {
		window = DefaultWindow
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		window:     window,
		threshold:  threshold,
		timestamps: make([]time.Time, 0, threshold),
	}
}

// Observe records one dominant emotion. It returns a Signal when the streak
// first reaches the threshold, and nil otherwise.
func (e *Engine) Observe(emotion model.EmotionLabel, at time.Time) *Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	if emotion.Valence() != model.ValenceNegative {
		e.timestamps = e.timestamps[:0]
		e.hasWarned = false
		return nil
	}

	e.timestamps = append(e.timestamps, at)
	cutoff := at.Add(-e.window)
	drop := 0
	for drop < len(e.timestamps) && e.timestamps[drop].Before(cutoff) {
		drop++
	}
	if drop > 0 {
		e.timestamps = append(e.timestamps[:0], e.timestamps[drop:]...)
	}

	if len(e.timestamps) < e.threshold || e.hasWarned {
		return nil
	}
	e.hasWarned = true
	return &Signal{
		Emotion:     emotion,
		Count:       len(e.timestamps),
		WindowStart: e.timestamps[0],
		At:          at,
	}
}

// Reset clears the streak and the debounce.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.timestamps = e.timestamps[:0]
	e.hasWarned = false
}

// HasWarned reports whether the current streak already raised a signal.
func (e *Engine) HasWarned() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasWarned
}
