package automation

import (
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureFromBodyFindsNestedJob(t *testing.T) {
	body := map[string]any{
		"success": true,
		"data": map[string]any{
			"result": map[string]any{
				"task_id":         "4f6c2d7e-1111-2222-3333-444455556666",
				"conversion_id_1": "c1-aaaaaaaaaaaa",
				"conversion_id_2": "c2-bbbbbbbbbbbb",
				"eta":             float64(120),
			},
		},
	}
	capture, ok := captureFromBody(body)
	require.True(t, ok)
	assert.Equal(t, "4f6c2d7e-1111-2222-3333-444455556666", capture.JobID)
	assert.Equal(t, [2]string{"c1-aaaaaaaaaaaa", "c2-bbbbbbbbbbbb"}, capture.ConversionIDs)
	assert.Equal(t, "120", capture.ETA)
}

func TestStringFieldFormatsNumbersWithoutExponent(t *testing.T) {
	data := map[string]any{"task_id": float64(1234567), "eta": float64(12.5)}
	assert.Equal(t, "1234567", stringField(data, "task_id"))
	assert.Equal(t, "12.5", stringField(data, "eta"))
}

func TestCaptureIgnoresShortIDsAndDeepNesting(t *testing.T) {
	_, ok := captureFromBody(map[string]any{"id": "short"})
	assert.False(t, ok)

	deep := map[string]any{"data": map[string]any{"data": map[string]any{"data": map[string]any{"data": map[string]any{
		"task_id": "0123456789abcdef",
	}}}}}
	_, ok = captureFromBody(deep)
	assert.False(t, ok, "ids below depth 3 are not searched")
}

func TestCaptureSearchesFirstListEntries(t *testing.T) {
	body := map[string]any{
		"payload": []any{
			"noise",
			map[string]any{"taskId": "job-0123456789"},
		},
	}
	capture, ok := captureFromBody(body)
	require.True(t, ok)
	assert.Equal(t, "job-0123456789", capture.JobID)
}

func TestCaptureStateKeepsFirstJobAndToken(t *testing.T) {
	var state captureState
	state.observeRequest(&network.EventRequestWillBeSent{Request: &network.Request{
		URL:     "https://api.musicgpt.com/api/public/v1/MusicAI",
		Headers: network.Headers{"Authorization": "Bearer early"},
	}})
	assert.Empty(t, state.snapshot().AuthToken, "nothing is recorded before arming")

	state.arm()
	state.observeRequest(&network.EventRequestWillBeSent{Request: &network.Request{
		URL:     "https://lalals.com/static/app.js",
		Headers: network.Headers{"authorization": "Bearer static"},
	}})
	state.observeRequest(&network.EventRequestWillBeSent{Request: &network.Request{
		URL:     "https://api.musicgpt.com/api/public/v1/MusicAI",
		Headers: network.Headers{"authorization": "Bearer token-1"},
	}})
	assert.True(t, state.observeBody([]byte(`{"data":{"task_id":"job-aaaaaaaaaaaa"}}`)))
	assert.False(t, state.observeBody([]byte(`{"data":{"task_id":"job-bbbbbbbbbbbb"}}`)))
	assert.False(t, state.observeBody([]byte(`not json`)))

	got := state.disarm()
	assert.Equal(t, "job-aaaaaaaaaaaa", got.JobID)
	assert.Equal(t, "Bearer token-1", got.AuthToken)
}

func TestCaptureStateTracksPendingJSONResponses(t *testing.T) {
	var state captureState
	state.arm()
	state.observeResponse(&network.EventResponseReceived{
		RequestID: "1",
		Response:  &network.Response{URL: "https://lalals.com/logo.png", MimeType: "image/png"},
	})
	state.observeResponse(&network.EventResponseReceived{
		RequestID: "2",
		Response:  &network.Response{URL: "https://api.musicgpt.com/api/public/v1/MusicAI", MimeType: "application/json"},
	})
	assert.False(t, state.takePending("1"))
	assert.True(t, state.takePending("2"))
	assert.False(t, state.takePending("2"), "pending entries are consumed once")
}

func TestURLClassifiers(t *testing.T) {
	assert.True(t, isAPIURL("https://devapi.lalals.com/user/1/infinite-projects"))
	assert.True(t, isAPIURL("https://lalals.com/api/generate"))
	assert.False(t, isAPIURL("https://lalals.com/music"))
	assert.True(t, isStaticAsset("https://lalals.com/_next/static/chunk.js?v=1"))
	assert.False(t, isStaticAsset("https://api.musicgpt.com/api/public/v1/byId?task_id=x"))
	assert.True(t, IsAuthURL("https://lalals.com/auth/sign-in"))
	assert.False(t, IsAuthURL("https://lalals.com/music"))
}
