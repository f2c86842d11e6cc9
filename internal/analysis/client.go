// Package analysis posts captured frames to the remote emotion analysis
// service and normalizes its replies.
package analysis

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/frame"
	"github.com/tphakala/emotion-go/internal/httpclient"
	"github.com/tphakala/emotion-go/internal/logger"
	"github.com/tphakala/emotion-go/internal/model"
)

const (
	EncodingMultipart = "multipart"
	EncodingJSON      = "json"

	maxResponseBytes = 4 << 20
)

// Request is one frame plus the session metadata sent alongside it.
type Request struct {
	Frame              *frame.Frame
	SessionID          string
	CameraResolution   string
	AnalysisIntervalMs int64
}

// Analyzer turns a frame into a normalized result.
type Analyzer interface {
	Analyze(ctx context.Context, req *Request) (*model.AnalysisResult, error)
}

// Client calls the analysis endpoint. It is stateless and safe for
// concurrent use.
type Client struct {
	http     *httpclient.Client
	endpoint string
	encoding string
	timeout  time.Duration
	log      logger.Logger
}

// NewClient builds a client from service settings. A nil hc gets a client
// carrying the configured bearer token.
func NewClient(settings *conf.ServiceSettings, hc *httpclient.Client, log logger.Logger) *Client {
	if hc == nil {
		hc = httpclient.New(&httpclient.Config{
			DefaultTimeout: settings.Timeout,
			BearerToken:    settings.Token,
		})
	}
	encoding := strings.ToLower(settings.Encoding)
	if encoding != EncodingJSON {
		encoding = EncodingMultipart
	}
	return &Client{
		http:     hc,
		endpoint: strings.TrimRight(settings.BaseURL, "/") + "/" + strings.TrimLeft(settings.AnalyzePath, "/"),
		encoding: encoding,
		timeout:  settings.Timeout,
		log:      log.Module("analysis"),
	}
}

// Analyze posts req.Frame and returns the normalized result. Transport
// failures carry CategoryTransientNetwork; non-2xx or unusable replies carry
// CategoryServerRejection.
func (c *Client) Analyze(ctx context.Context, req *Request) (*model.AnalysisResult, error) {
	if req == nil || req.Frame == nil || len(req.Frame.Data) == 0 {
		return nil, errors.Newf("no frame to analyze").
			Component("analysis").
			Category(errors.CategoryValidation).
			Build()
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	log := c.log.WithContext(ctx)
	start := time.Now()

	var (
		resp *http.Response
		err  error
	)
	if c.encoding == EncodingJSON {
		resp, err = c.http.PostJSON(ctx, c.endpoint, jsonBody(req))
	} else {
		resp, err = c.http.PostMultipart(ctx, c.endpoint, formFields(req), httpclient.FilePart{
			Field:       "image",
			FileName:    req.Frame.FileName(),
			ContentType: req.Frame.ContentType,
			Data:        req.Frame.Data,
		})
	}
	if err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryTransientNetwork).
			Context("endpoint", c.endpoint).
			Timing("analyze", time.Since(start)).
			Build()
	}

	body, err := httpclient.ReadBody(resp, maxResponseBytes)
	if err != nil {
		return nil, errors.New(err).
			Component("analysis").
			Category(errors.CategoryTransientNetwork).
			Context("operation", "read_response").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(body)
		log.Debug("analysis rejected",
			logger.Int("status_code", resp.StatusCode),
			logger.String("message", msg))
		return nil, errors.Newf("analysis service returned %d: %s", resp.StatusCode, msg).
			Component("analysis").
			Category(errors.CategoryServerRejection).
			Context("status_code", resp.StatusCode).
			Build()
	}

	result, err := Normalize(body)
	if err != nil {
		return nil, err
	}
	result.FrameSeq = req.Frame.Seq
	result.TraceID = req.Frame.TraceID
	result.CapturedAt = req.Frame.CapturedAt
	result.SourceSize = req.Frame.Size()

	log.Trace("analysis complete",
		logger.Int("faces", result.FacesDetected),
		logger.Duration("elapsed", time.Since(start)))
	return result, nil
}

func formFields(req *Request) map[string]string {
	fields := map[string]string{
		"camera_resolution": req.CameraResolution,
		"analysis_interval": strconv.FormatInt(req.AnalysisIntervalMs, 10),
	}
	if req.SessionID != "" {
		fields["session_id"] = req.SessionID
	}
	return fields
}

type jsonRequest struct {
	Image            string `json:"image"`
	SessionID        string `json:"session_id,omitempty"`
	CameraResolution string `json:"camera_resolution"`
	AnalysisInterval int64  `json:"analysis_interval"`
}

func jsonBody(req *Request) *jsonRequest {
	return &jsonRequest{
		Image:            DataURI(req.Frame.ContentType, req.Frame.Data),
		SessionID:        req.SessionID,
		CameraResolution: req.CameraResolution,
		AnalysisInterval: req.AnalysisIntervalMs,
	}
}

// DataURI encodes data as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
