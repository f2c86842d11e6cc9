package telemetry

import (
	"io"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func TestInitSentryDisabled(t *testing.T) {
	flush, err := InitSentry(&conf.Settings{}, "test", testLogger())
	require.NoError(t, err)
	require.NotNil(t, flush)
	flush()
}

func TestInitSentryInvalidDSN(t *testing.T) {
	settings := &conf.Settings{}
	settings.Sentry.Enabled = true
	settings.Sentry.DSN = "not a dsn"

	_, err := InitSentry(settings, "test", testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.User = sentry.User{ID: "u1", IPAddress: "10.0.0.2"}
	event.ServerName = "classroom-pc"
	event.Contexts = map[string]sentry.Context{
		"device":   {"name": "x"},
		"platform": {"num_cpu": 4},
	}
	event.Extra = map[string]any{"component": "capture", "hostname": "classroom-pc"}
	event.Tags = map[string]string{"hostname": "classroom-pc", "category": "state"}
	event.Request = &sentry.Request{
		URL:         "http://cam/snapshot",
		QueryString: "token=secret",
		Headers:     map[string]string{"Authorization": "Bearer x"},
	}

	out := applyPrivacyFilters(event)
	assert.Empty(t, out.User.ID)
	assert.Empty(t, out.ServerName)
	assert.NotContains(t, out.Contexts, "device")
	assert.Contains(t, out.Contexts, "platform")
	assert.Equal(t, map[string]any{"component": "capture"}, out.Extra)
	assert.Equal(t, map[string]string{"category": "state"}, out.Tags)
	assert.Empty(t, out.Request.QueryString)
	assert.Nil(t, out.Request.Headers)
}
