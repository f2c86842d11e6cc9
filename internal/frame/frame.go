// Package frame captures still images from a camera snapshot endpoint or a
// directory of recorded frames.
package frame

import (
	"bytes"
	"context"
	"image"
	// Registered decoders for DecodeConfig.
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/emotion-go/internal/conf"
	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/httpclient"
	"github.com/tphakala/emotion-go/internal/model"
)

const (
	SourceSnapshot  = "snapshot"
	SourceDirectory = "directory"
)

// Frame is one encoded still image.
type Frame struct {
	Seq         uint64
	TraceID     string
	CapturedAt  time.Time
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Size returns the pixel dimensions as a model.Size.
func (f *Frame) Size() model.Size {
	return model.Size{Width: float64(f.Width), Height: float64(f.Height)}
}

// FileName returns a name suitable for a multipart upload.
func (f *Frame) FileName() string {
	if f.ContentType == "image/png" {
		return "frame.png"
	}
	return "frame.jpg"
}

// Source yields frames. Capture returns (nil, nil) when no frame is ready.
type Source interface {
	Capture(ctx context.Context) (*Frame, error)
	Close() error
}

// New builds the source selected by settings.
func New(settings *conf.FrameSourceSettings, client *httpclient.Client) (Source, error) {
	switch settings.Type {
	case SourceSnapshot, "":
		return NewSnapshotSource(client, settings.URL, settings.Timeout), nil
	case SourceDirectory:
		return NewDirectorySource(settings.Directory, settings.Loop)
	default:
		return nil, errors.Newf("unknown frame source type %q", settings.Type).
			Component("frame").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// sequencer stamps frames with a monotonically increasing number and a trace
// ID.
type sequencer struct {
	seq atomic.Uint64
}

func (s *sequencer) build(data []byte, contentType string) (*Frame, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryFrameSource).
			Context("operation", "decode_config").
			Context("bytes", len(data)).
			Build()
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "image/" + format
	}
	if contentType == "image/jpg" {
		contentType = "image/jpeg"
	}
	if ct := http.DetectContentType(data); ct == "image/jpeg" || ct == "image/png" {
		contentType = ct
	}
	return &Frame{
		Seq:         s.seq.Add(1),
		TraceID:     uuid.NewString(),
		CapturedAt:  time.Now(),
		Data:        data,
		ContentType: contentType,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
