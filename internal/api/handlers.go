package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/model"
	"github.com/tphakala/emotion-go/internal/overlay"
	"github.com/tphakala/emotion-go/internal/session"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
}

// LatestResultResponse carries the latest result and its overlay boxes
// mapped into the requested view.
type LatestResultResponse struct {
	Result   *model.AnalysisResult `json:"result"`
	Overlays []overlay.Overlay     `json:"overlays"`
	View     model.Size            `json:"view"`
	Mirrored bool                  `json:"mirrored"`
}

func (s *Server) health(c echo.Context) error {
	uptime := time.Since(s.startTime)
	body := map[string]any{
		"status":         "healthy",
		"version":        s.version,
		"uptime":         uptime.Round(time.Second).String(),
		"uptime_seconds": uptime.Seconds(),
		"capture":        s.capture.Running(),
		"degraded":       s.capture.Degraded(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if s.capture.Degraded() {
		body["status"] = "degraded"
	}

	// interval 0 compares against the previous call and never blocks
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		body["cpu_percent"] = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		body["memory_percent"] = vm.UsedPercent
		body["memory_used_bytes"] = vm.Used
	}
	return c.JSON(http.StatusOK, body)
}

func (s *Server) getSession(c echo.Context) error {
	sess, ok := s.capture.Session()
	if !ok {
		return c.JSON(http.StatusOK, map[string]any{"state": session.StateIdle.String()})
	}
	return c.JSON(http.StatusOK, sess)
}

func (s *Server) getPerformance(c echo.Context) error {
	return c.JSON(http.StatusOK, s.capture.Snapshot())
}

func (s *Server) getLatestResult(c echo.Context) error {
	res, ok := s.capture.LatestResult()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no result yet")
	}

	view := res.SourceSize
	if w, h := c.QueryParam("width"), c.QueryParam("height"); w != "" || h != "" {
		width, werr := strconv.ParseFloat(w, 64)
		height, herr := strconv.ParseFloat(h, 64)
		if werr != nil || herr != nil || width <= 0 || height <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "width and height must both be positive numbers")
		}
		view = model.Size{Width: width, Height: height}
	}

	mirror := s.capture.Mirror()
	if m := c.QueryParam("mirror"); m != "" {
		parsed, err := strconv.ParseBool(m)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "mirror must be a boolean")
		}
		mirror = parsed
	}

	return c.JSON(http.StatusOK, LatestResultResponse{
		Result:   res,
		Overlays: overlay.MapResult(res, view, mirror),
		View:     view,
		Mirrored: mirror,
	})
}

func (s *Server) startCapture(c echo.Context) error {
	sess, err := s.capture.Start(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (s *Server) stopCapture(c echo.Context) error {
	err := s.capture.Stop(c.Request().Context(), session.ReasonUser)
	sess, _ := s.capture.Session()
	if err != nil {
		// the session ended locally; only the server notification failed
		return c.JSON(http.StatusOK, map[string]any{
			"session": sess,
			"warning": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := ErrorResponse{Error: err.Error()}

	var httpErr *echo.HTTPError
	var enhanced *errors.EnhancedError
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			body.Error = msg
		}
	case errors.As(err, &enhanced):
		body.Category = string(enhanced.Category)
		switch enhanced.Category {
		case errors.CategoryState:
			status = http.StatusConflict
		case errors.CategoryValidation:
			status = http.StatusBadRequest
		case errors.CategoryTransientNetwork:
			status = http.StatusServiceUnavailable
		case errors.CategoryServerRejection, errors.CategoryProtocolAnomaly:
			status = http.StatusBadGateway
		}
	}

	if status >= http.StatusInternalServerError {
		s.log.Warn("request failed",
			logger.String("uri", c.Request().RequestURI),
			logger.Int("status", status),
			logger.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.log.Debug("failed to write error response", logger.Error(err))
	}
}
