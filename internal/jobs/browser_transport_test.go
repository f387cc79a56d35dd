package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songfactory/internal/artifact"
	"songfactory/internal/automation"
	"songfactory/internal/catalog"
	"songfactory/internal/logging"
	"songfactory/internal/metadata"
	"songfactory/internal/services"
)

type fakeBrowser struct {
	loginErr   error
	logins     int
	capture    automation.Capture
	freshErrs  []error
	freshCalls int
	primary    map[string]any
	secondary  map[string]any
	closed     bool
}

func (b *fakeBrowser) EnsureLoggedIn(context.Context, func() bool) error {
	b.logins++
	return b.loginErr
}

func (b *fakeBrowser) Submit(context.Context, string, string) (automation.Capture, error) {
	return b.capture, nil
}

func (b *fakeBrowser) FetchFresh(_ context.Context, capture automation.Capture) (map[string]any, map[string]any, error) {
	b.freshCalls++
	if b.freshCalls <= len(b.freshErrs) {
		return nil, nil, b.freshErrs[b.freshCalls-1]
	}
	return b.primary, b.secondary, nil
}

func (b *fakeBrowser) MenuDownload(context.Context, string, string, int) (artifact.BrowserDownload, error) {
	return nil, errors.New("no menu in tests")
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

func newTestBrowserTransport(browser Browser) (*BrowserTransport, *[]time.Duration) {
	transport := NewBrowserTransport(browser, BrowserPolicy{
		ConfirmationTimeout: time.Minute,
		PostConfirmDelay:    5 * time.Second,
		RetryDelay:          2 * time.Second,
	}, logging.NewNop())
	var waits []time.Duration
	transport.sleep = func(_ context.Context, d time.Duration, ctl *Control) error {
		if ctl.Stopped() {
			return services.ErrStopped
		}
		waits = append(waits, d)
		return nil
	}
	return transport, &waits
}

func TestBrowserSubmitCarriesCapture(t *testing.T) {
	browser := &fakeBrowser{capture: automation.Capture{
		JobID:         "job-123456789",
		ConversionIDs: [2]string{"c1", "c2"},
		AuthToken:     "Bearer abc",
	}}
	transport, _ := newTestBrowserTransport(browser)

	require.NoError(t, transport.Prepare(context.Background(), NewControl()))
	require.NoError(t, transport.Prepare(context.Background(), NewControl()))
	assert.Equal(t, 1, browser.logins, "login runs once per transport")

	sub, err := transport.Submit(context.Background(), &catalog.Record{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "job-123456789", sub.JobID)
	assert.Equal(t, "Bearer abc", sub.AuthToken)
	assert.True(t, sub.NeedsConfirmation)

	require.NoError(t, transport.Close())
	assert.True(t, browser.closed)
}

func TestBrowserTrackWaitsForConfirmationThenAttachesSecondary(t *testing.T) {
	browser := &fakeBrowser{
		freshErrs: []error{errors.New("page busy")},
		primary:   map[string]any{"status": "COMPLETED", "audio_url": "https://cdn.example.com/1.mp3"},
		secondary: map[string]any{"conversion_id": "c2", "audio_url": "https://cdn.example.com/2.mp3"},
	}
	transport, waits := newTestBrowserTransport(browser)
	ctl := NewControl()
	ctl.Confirm()

	doc, err := transport.Track(context.Background(), Submission{JobID: "job-1"}, ctl)
	require.NoError(t, err)
	assert.Equal(t, 2, browser.freshCalls)
	assert.Equal(t, []time.Duration{5 * time.Second, 2 * time.Second}, *waits)
	assert.Contains(t, doc, metadata.SecondaryKey)
	assert.NotContains(t, browser.primary, metadata.SecondaryKey, "the browser's document is not mutated")

	res := metadata.NewNormalizer("", nil).Resolve(doc)
	assert.Equal(t, "https://cdn.example.com/2.mp3", res.URLs[1])
}

func TestBrowserTrackFallsBackToCapturedIDs(t *testing.T) {
	fail := errors.New("fetch failed")
	browser := &fakeBrowser{freshErrs: []error{fail, fail, fail}}
	transport, _ := newTestBrowserTransport(browser)
	ctl := NewControl()
	ctl.Confirm()

	doc, err := transport.Track(context.Background(), Submission{JobID: "job-1", ConversionIDs: [2]string{"c1", ""}}, ctl)
	require.NoError(t, err)
	assert.Equal(t, freshAttempts, browser.freshCalls)
	assert.Equal(t, "job-1", doc["task_id"])
	assert.Equal(t, "c1", doc["conversion_id_1"])
	assert.NotContains(t, doc, "conversion_id_2")
}

func TestBrowserTrackStopsWhileWaiting(t *testing.T) {
	transport, _ := newTestBrowserTransport(&fakeBrowser{})
	ctl := NewControl()
	go func() {
		time.Sleep(50 * time.Millisecond)
		ctl.Stop()
	}()

	_, err := transport.Track(context.Background(), Submission{JobID: "job-1"}, ctl)
	assert.True(t, IsStop(err))
}

func TestWaitConfirmedTimesOut(t *testing.T) {
	err := WaitConfirmed(context.Background(), NewControl(), 10*time.Millisecond)
	assert.Equal(t, services.KindTimeout, services.KindOf(err))
}

func TestClearConfirmationDropsEarlySignal(t *testing.T) {
	ctl := NewControl()
	ctl.Confirm()
	ctl.Confirm()
	ctl.ClearConfirmation()
	select {
	case <-ctl.Confirmed():
		t.Fatal("confirmation should have been cleared")
	default:
	}
}
