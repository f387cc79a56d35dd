package testsupport

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// SlowAudio serves an MP3 body in two parts. After the first part is flushed
// Streaming is closed and the rest is held until Release is called.
type SlowAudio struct {
	URL       string
	Streaming chan struct{}

	release     chan struct{}
	releaseOnce sync.Once
	streamOnce  sync.Once
}

// NewSlowAudio starts the server. Cleanup releases any held body before the
// server closes.
func NewSlowAudio(t testing.TB, size int) *SlowAudio {
	t.Helper()
	a := &SlowAudio{Streaming: make(chan struct{}), release: make(chan struct{})}
	body := AudioBytes(size)
	split := min(4096, size/2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(body[:split])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		a.streamOnce.Do(func() { close(a.Streaming) })
		select {
		case <-a.release:
		case <-r.Context().Done():
			return
		}
		_, _ = w.Write(body[split:])
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(a.Release)
	a.URL = srv.URL
	return a
}

// Release lets held responses finish.
func (a *SlowAudio) Release() {
	a.releaseOnce.Do(func() { close(a.release) })
}
