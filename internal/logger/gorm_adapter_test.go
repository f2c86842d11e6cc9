package logger

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestGormLoggerAdapterTrace(t *testing.T) {
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	tests := []struct {
		name  string
		slow  time.Duration
		begin time.Time
		err   error
		want  string
		level string
	}{
		{"plain", time.Second, time.Now(), nil, "journal statement", "level=TRACE"},
		{"not found is quiet", time.Second, time.Now(), gorm.ErrRecordNotFound, "journal statement", "level=TRACE"},
		{"failure", time.Second, time.Now(), errors.New("disk full"), "journal statement failed", "level=WARN"},
		{"slow", time.Millisecond, time.Now().Add(-time.Second), nil, "slow journal statement", "level=WARN"},
		{"slow disabled", 0, time.Now().Add(-time.Second), nil, "journal statement", "level=TRACE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			a := NewGormLoggerAdapter(NewSlogLogger(buf, LogLevelTrace, time.UTC), tt.slow)
			a.Trace(t.Context(), tt.begin, stmt, tt.err)

			out := buf.String()
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, tt.level)
			assert.Contains(t, out, "rows=1")
		})
	}
}

func TestGormLoggerAdapterLogModeKeepsAdapter(t *testing.T) {
	a := NewGormLoggerAdapter(nil, 0)
	assert.Same(t, a, a.LogMode(0))
}
