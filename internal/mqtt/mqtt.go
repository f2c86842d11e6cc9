// Package mqtt mirrors capture pipeline events onto an MQTT broker so home
// automation and classroom dashboards can react to alerts and statistics.
package mqtt

import (
	"context"
	"time"
)

// Client is the broker connection used by Publisher.
type Client interface {
	// Connect fails only when the first connection cannot be made.
	// Later drops reconnect in the background.
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	IsConnected() bool
	Disconnect()
}

// Config configures the paho-backed client.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
	MaxReconnectDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://localhost:1883",
		ClientID:          "emotion-go",
		ConnectTimeout:    15 * time.Second,
		PublishTimeout:    5 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
		MaxReconnectDelay: 2 * time.Minute,
	}
}
