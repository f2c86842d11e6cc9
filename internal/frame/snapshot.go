package frame

import (
	"context"
	"mime"
	"net/http"
	"time"

	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/httpclient"
)

// maxSnapshotBytes bounds a single camera snapshot.
const maxSnapshotBytes = 16 << 20

// SnapshotSource fetches a still image from an HTTP camera endpoint on every
// capture.
type SnapshotSource struct {
	client  *httpclient.Client
	url     string
	timeout time.Duration
	seq     sequencer
}

// NewSnapshotSource returns a source that GETs url. A zero timeout leaves
// the client default in place.
func NewSnapshotSource(client *httpclient.Client, url string, timeout time.Duration) *SnapshotSource {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &SnapshotSource{client: client, url: url, timeout: timeout}
}

// Capture fetches one frame. 204 and 503 replies mean the camera has no
// frame yet and yield (nil, nil).
func (s *SnapshotSource) Capture(ctx context.Context) (*Frame, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	resp, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryFrameSource).
			Context("operation", "snapshot_fetch").
			Build()
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusServiceUnavailable:
		_ = resp.Body.Close()
		return nil, nil
	default:
		_ = resp.Body.Close()
		return nil, errors.Newf("snapshot endpoint returned %d", resp.StatusCode).
			Component("frame").
			Category(errors.CategoryFrameSource).
			Context("status_code", resp.StatusCode).
			Build()
	}

	data, err := httpclient.ReadBody(resp, maxSnapshotBytes)
	if err != nil {
		return nil, errors.New(err).
			Component("frame").
			Category(errors.CategoryFrameSource).
			Context("operation", "snapshot_read").
			Build()
	}
	if len(data) == 0 {
		return nil, nil
	}

	contentType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return s.seq.build(data, contentType)
}

// Close releases idle connections.
func (s *SnapshotSource) Close() error {
	s.client.Close()
	return nil
}
