package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextVersion(t *testing.T) {
	tests := []struct {
		name string
		ctx  *Context
		want string
	}{
		{name: "nil context", ctx: nil, want: UnknownValue},
		{name: "empty version", ctx: NewContext("", "2026-01-01", "id"), want: UnknownValue},
		{name: "release", ctx: NewContext("1.0.0", "2026-01-01", "id"), want: "1.0.0"},
		{name: "pre-release tag", ctx: NewContext("1.0.0-beta.1", "2026-01-01", "id"), want: "1.0.0-beta.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ctx.Version())
		})
	}
}

func TestContextBuildDate(t *testing.T) {
	var nilCtx *Context
	assert.Equal(t, UnknownValue, nilCtx.BuildDate())
	assert.Equal(t, UnknownValue, NewContext("1.0.0", "", "id").BuildDate())
	assert.Equal(t, "2026-03-01", NewContext("1.0.0", "2026-03-01", "id").BuildDate())
}

func TestContextSystemID(t *testing.T) {
	assert.Equal(t, "fixed", NewContext("", "", "fixed").SystemID())

	a, b := NewContext("", "", ""), NewContext("", "", "")
	assert.NotEqual(t, UnknownValue, a.SystemID())
	assert.NotEqual(t, a.SystemID(), b.SystemID(), "generated ids are random")
}

func TestContextUserAgentAndClientID(t *testing.T) {
	c := NewContext("2.1.0", "", "0123456789abcdef")
	assert.Equal(t, "emotion-go/2.1.0", c.UserAgent())
	assert.Equal(t, "emotion-go-room-12", c.ClientID("room-12"))
	assert.Equal(t, "emotion-go-01234567", c.ClientID(""))
}
