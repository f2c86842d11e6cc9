package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/emotion-go/internal/events"
	"github.com/tphakala/emotion-go/internal/logger"
)

const (
	sseBuffer        = 128
	sseWriteDeadline = 10 * time.Second
)

// streamEvents streams bus events as server-sent events. The optional types
// query parameter is a comma-separated filter, e.g. types=alert,performance.
func (s *Server) streamEvents(c echo.Context) error {
	var types []events.Type
	for t := range strings.SplitSeq(c.QueryParam("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, events.Type(t))
		}
	}

	clientID := uuid.NewString()
	ch, unsubscribe := s.bus.Subscribe("sse-"+clientID, sseBuffer, types...)
	defer unsubscribe()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	log := s.log.With(logger.String("client_id", clientID))
	log.Debug("event stream opened", logger.String("ip", c.RealIP()))
	defer log.Debug("event stream closed")

	if err := s.writeEvent(c, "connected", map[string]any{"client_id": clientID}); err != nil {
		return nil
	}

	heartbeat := time.NewTicker(s.config.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.writeEvent(c, string(ev.Type), ev); err != nil {
				log.Debug("event stream write failed", logger.Error(err))
				return nil
			}
		case <-heartbeat.C:
			if err := s.writeEvent(c, "heartbeat", map[string]any{"timestamp": time.Now().Unix()}); err != nil {
				return nil
			}
		case <-c.Request().Context().Done():
			return nil
		case <-s.stopping:
			return nil
		}
	}
}

func (s *Server) writeEvent(c echo.Context, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	rc := http.NewResponseController(c.Response().Writer)
	// not every writer supports deadlines, e.g. httptest recorders
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteDeadline))

	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
