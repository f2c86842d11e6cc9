package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/logger"
)

const (
	defaultPrefix   = "emotion-go"
	subscribeBuffer = 64
)

// Subscriber is the event bus side the publisher consumes.
type Subscriber interface {
	Subscribe(name string, buffer int, types ...events.Type) (<-chan events.Event, func())
}

// Publisher forwards bus events to {prefix}/{event type}.
type Publisher struct {
	client Client
	prefix string
	types  []events.Type
	log    logger.Logger
}

// NewPublisher returns a publisher for the event types selected by
// settings. Per-frame results are only included when settings.Results is
// set.
func NewPublisher(client Client, settings *conf.MQTTSettings, log logger.Logger) *Publisher {
	types := []events.Type{
		events.TypeSnapshot,
		events.TypeAlert,
		events.TypeSession,
		events.TypeDegraded,
		events.TypeRecovered,
		events.TypeCaptureStop,
	}
	if settings.Results {
		types = append(types, events.TypeResult)
	}
	prefix := strings.Trim(settings.TopicPrefix, "/")
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		types:  types,
		log:    log.Module("mqtt"),
	}
}

// Topic returns the topic an event type is published on.
func (p *Publisher) Topic(t events.Type) string {
	return p.prefix + "/" + string(t)
}

// Payload encodes ev as the published JSON document.
func Payload(ev events.Event) ([]byte, error) {
	return json.Marshal(ev)
}

// retained reports whether the broker keeps the last message for late
// subscribers. Only state-like topics are retained.
func retained(t events.Type) bool {
	switch t {
	case events.TypeSession, events.TypeSnapshot:
		return true
	default:
		return false
	}
}

// Run connects, then publishes events from bus until ctx is done. Publish
// failures are logged and never stop the loop.
func (p *Publisher) Run(ctx context.Context, bus Subscriber) error {
	if err := p.client.Connect(ctx); err != nil {
		return err
	}
	defer p.client.Disconnect()

	ch, cancel := bus.Subscribe("mqtt", subscribeBuffer, p.types...)
	defer cancel()

	p.log.Info("publishing events", logger.String("prefix", p.prefix))
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			p.publish(ctx, ev)
		}
	}
}

func (p *Publisher) publish(ctx context.Context, ev events.Event) {
	payload, err := Payload(ev)
	if err != nil {
		p.log.Warn("failed to encode event",
			logger.String("type", string(ev.Type)),
			logger.Error(err))
		return
	}
	topic := p.Topic(ev.Type)
	start := time.Now()
	if err := p.client.Publish(ctx, topic, payload, retained(ev.Type)); err != nil {
		p.log.Warn("publish failed",
			logger.String("topic", topic),
			logger.Error(err))
		return
	}
	p.log.Trace("published",
		logger.String("topic", topic),
		logger.Int("bytes", len(payload)),
		logger.Duration("elapsed", time.Since(start)))
}
