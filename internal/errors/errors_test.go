package errors

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	count atomic.Int32
}

func (r *countingReporter) ReportError(ee *EnhancedError) {
	r.count.Add(1)
	ee.MarkReported()
}

func (r *countingReporter) IsEnabled() bool { return true }

func TestBuildDefaults(t *testing.T) {
	ee := New(fmt.Errorf("boom")).Build()

	assert.Equal(t, "boom", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.Component)
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildInheritsWrappedCategory(t *testing.T) {
	inner := New(fmt.Errorf("timeout")).Category(CategoryTransientNetwork).Build()
	outer := New(fmt.Errorf("analyze: %w", inner)).Component("capture").Build()

	assert.Equal(t, CategoryTransientNetwork, outer.Category)
	assert.True(t, IsCategory(outer, CategoryTransientNetwork))
}

func TestIsCategoryThroughWrapping(t *testing.T) {
	ee := New(fmt.Errorf("bad status")).
		Component("analysis").
		Category(CategoryServerRejection).
		Context("status", 502).
		Build()
	wrapped := fmt.Errorf("cycle: %w", ee)

	assert.True(t, IsCategory(wrapped, CategoryServerRejection))
	assert.False(t, IsCategory(wrapped, CategoryTransientNetwork))
	assert.Equal(t, CategoryServerRejection, CategoryOf(wrapped))
	assert.Equal(t, CategoryGeneric, CategoryOf(fmt.Errorf("plain")))
	assert.Equal(t, 502, ee.GetContext()["status"])
}

func TestEnhancedErrorIsMatchesCategory(t *testing.T) {
	a := New(fmt.Errorf("a")).Category(CategoryProtocolAnomaly).Build()
	b := New(fmt.Errorf("b")).Category(CategoryProtocolAnomaly).Build()
	c := New(fmt.Errorf("c")).Category(CategoryState).Build()

	assert.True(t, Is(a, b))
	assert.False(t, Is(a, c))
}

func TestTelemetryReporterReceivesErrorsOnce(t *testing.T) {
	r := &countingReporter{}
	SetTelemetryReporter(r)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("x")).Category(CategoryDatabase).Build()
	require.True(t, ee.IsReported())
	assert.Equal(t, int32(1), r.count.Load())
}

func TestSentryReporterSkipsTransient(t *testing.T) {
	assert.False(t, isReportable(CategoryTransientNetwork))
	assert.True(t, isReportable(CategoryProtocolAnomaly))

	disabled := NewSentryReporter(false)
	ee := &EnhancedError{Err: fmt.Errorf("x"), Category: CategoryState}
	disabled.ReportError(ee)
	assert.False(t, ee.IsReported())
}

func TestScrubMessage(t *testing.T) {
	got := scrubMessage("GET https://api.example.com/analyze?token=abc failed")
	assert.Equal(t, "GET https://api.example.com/analyze?[REDACTED] failed", got)

	got = scrubMessage("auth failed: Bearer x token=secret123")
	assert.NotContains(t, got, "secret123")
}
