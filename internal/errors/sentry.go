package errors

import (
	"fmt"
	"regexp"

	"github.com/getsentry/sentry-go"
)

// SentryReporter forwards reportable errors to Sentry.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends the error to Sentry unless its category is expected
// noise.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || !isReportable(ee.Category) {
		return
	}

	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Error()))

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.Component)
		scope.SetTag("category", string(ee.Category))
		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessage(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}
		level := levelFor(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{ee.Component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  fmt.Sprintf("%s %s", ee.Component, ee.Category),
			Value: message,
		}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// isReportable filters out transient network failures, which are expected
// whenever the analysis service is slow or offline.
func isReportable(category ErrorCategory) bool {
	return category != CategoryTransientNetwork
}

func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryProtocolAnomaly, CategoryServerRejection, CategoryFrameSource:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	queryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	tokenRegex = regexp.MustCompile(`(?i)(token|bearer|api[_-]?key)[=: ]\S+`)
)

// scrubMessage removes query strings and credentials from messages.
func scrubMessage(message string) string {
	scrubbed := queryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	return tokenRegex.ReplaceAllString(scrubbed, "$1=[REDACTED]")
}
