// Package buildinfo contains build-time metadata kept separate from user
// configuration.
package buildinfo

import (
	"fmt"

	"github.com/google/uuid"
)

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// BuildInfo provides access to build-time metadata.
type BuildInfo interface {
	// Version returns the build version string
	Version() string
	// BuildDate returns the build date string
	BuildDate() string
	// SystemID returns the identifier of this process instance
	SystemID() string
}

// Context contains build-time metadata that is not user-configurable. It is
// created once at startup.
type Context struct {
	version   string
	buildDate string
	systemID  string
}

var _ BuildInfo = (*Context)(nil)

// NewContext returns build metadata. An empty systemID is replaced with a
// random one.
func NewContext(version, buildDate, systemID string) *Context {
	if systemID == "" {
		systemID = uuid.NewString()
	}
	return &Context{version: version, buildDate: buildDate, systemID: systemID}
}

func valueOr(v string) string {
	if v == "" {
		return UnknownValue
	}
	return v
}

// Version implements BuildInfo.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	return valueOr(c.version)
}

// BuildDate implements BuildInfo.
func (c *Context) BuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return valueOr(c.buildDate)
}

// SystemID implements BuildInfo.
func (c *Context) SystemID() string {
	if c == nil {
		return UnknownValue
	}
	return valueOr(c.systemID)
}

// UserAgent is the User-Agent sent to the analysis service and camera.
func (c *Context) UserAgent() string {
	return fmt.Sprintf("emotion-go/%s", c.Version())
}

// ClientID derives a stable MQTT client id from the instance name, falling
// back to the system id.
func (c *Context) ClientID(instance string) string {
	if instance != "" {
		return "emotion-go-" + instance
	}
	id := c.SystemID()
	if len(id) > 8 {
		id = id[:8]
	}
	return "emotion-go-" + id
}
