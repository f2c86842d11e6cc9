package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testClient returns a client closed at test end. A nil cfg uses defaults.
func testClient(t *testing.T, cfg *Config) *Client {
	t.Helper()
	c := New(cfg)
	t.Cleanup(c.Close)
	return c
}

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// drainAndClose consumes and closes resp so the connection is reused.
func drainAndClose(t *testing.T, resp *http.Response) {
	t.Helper()
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	if err := resp.Body.Close(); err != nil {
		t.Errorf("closing response body: %v", err)
	}
}
