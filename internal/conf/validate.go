// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// KnownEmotions are the labels the analysis service emits.
var KnownEmotions = []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateCaptureSettings,
		validateServiceSettings,
		validateAlertSettings,
		validateMQTTSettings,
		validateSentrySettings,
		validateJournalSettings,
	}
	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateCaptureSettings(s *Settings) error {
	c := &s.Capture
	var problems []string

	switch c.Source.Type {
	case "snapshot":
		if _, err := parseAbsoluteURL(c.Source.URL); err != nil {
			problems = append(problems, fmt.Sprintf("capture.source.url: %v", err))
		}
	case "directory":
		if c.Source.Directory == "" {
			problems = append(problems, "capture.source.directory is required for directory sources")
		}
	default:
		problems = append(problems, fmt.Sprintf("capture.source.type %q must be snapshot or directory", c.Source.Type))
	}

	if c.Interval <= 0 {
		problems = append(problems, "capture.interval must be positive")
	}
	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		problems = append(problems, "capture.detectionthreshold must be between 0 and 1")
	}
	if c.MaxSessionDuration < 0 {
		problems = append(problems, "capture.maxsessionduration must not be negative")
	}
	if c.MaxSessionDuration > 0 && c.MaxSessionDuration < c.Interval {
		problems = append(problems, "capture.maxsessionduration must be at least one capture interval")
	}
	if c.DegradedAfter < 1 {
		problems = append(problems, "capture.degradedafter must be at least 1")
	}
	if c.StatsPushEvery < 0 {
		problems = append(problems, "capture.statspushevery must not be negative")
	}
	for _, e := range c.EnabledEmotions {
		if !slices.Contains(KnownEmotions, strings.ToLower(e)) {
			problems = append(problems, fmt.Sprintf("capture.enabledemotions: unknown emotion %q", e))
		}
	}

	return joinProblems(problems)
}

func validateServiceSettings(s *Settings) error {
	var problems []string
	if _, err := parseAbsoluteURL(s.Service.BaseURL); err != nil {
		problems = append(problems, fmt.Sprintf("service.baseurl: %v", err))
	}
	if !strings.HasPrefix(s.Service.AnalyzePath, "/") {
		problems = append(problems, "service.analyzepath must start with /")
	}
	if s.Service.Encoding != "multipart" && s.Service.Encoding != "json" {
		problems = append(problems, fmt.Sprintf("service.encoding %q must be multipart or json", s.Service.Encoding))
	}
	if s.Service.Timeout <= 0 {
		problems = append(problems, "service.timeout must be positive")
	}
	if s.Service.SessionTimeout <= 0 {
		problems = append(problems, "service.sessiontimeout must be positive")
	}
	if s.Service.RetryCount < 0 {
		problems = append(problems, "service.retrycount must not be negative")
	}
	return joinProblems(problems)
}

func validateAlertSettings(s *Settings) error {
	var problems []string
	if s.Alert.Window <= 0 {
		problems = append(problems, "alert.window must be positive")
	}
	if s.Alert.Threshold < 1 {
		problems = append(problems, "alert.threshold must be at least 1")
	}
	if s.Alert.Push.Enabled && len(s.Alert.Push.URLs) == 0 {
		problems = append(problems, "alert.push.urls requires at least one URL when push is enabled")
	}
	return joinProblems(problems)
}

func validateMQTTSettings(s *Settings) error {
	if !s.MQTT.Enabled {
		return nil
	}
	if s.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when MQTT is enabled")
	}
	if _, err := url.Parse(s.MQTT.Broker); err != nil {
		return fmt.Errorf("mqtt.broker: %w", err)
	}
	return nil
}

func validateSentrySettings(s *Settings) error {
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn is required when Sentry is enabled")
	}
	return nil
}

func validateJournalSettings(s *Settings) error {
	if !s.Journal.Enabled {
		return nil
	}
	switch s.Journal.Type {
	case "sqlite":
		if s.Journal.Path == "" {
			return fmt.Errorf("journal.path is required for sqlite journals")
		}
	case "mysql":
		if s.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required for mysql journals")
		}
	default:
		return fmt.Errorf("journal.type %q must be sqlite or mysql", s.Journal.Type)
	}
	return nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%q must be an http or https URL", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%q has no host", raw)
	}
	return u, nil
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%s", strings.Join(problems, "; "))
}
