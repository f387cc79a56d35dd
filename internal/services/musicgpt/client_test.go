package musicgpt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songfactory/internal/services"
)

func TestSubmitParsesNestedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/MusicAI", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dreamy synthwave", body["prompt"])
		assert.Equal(t, "[Verse]\nhello", body["lyrics"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"taskId":          "J1",
				"conversion_id_1": "C1",
				"conversion_id_2": "C2",
				"eta":             90,
			},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL + "/v1/"})
	result, err := client.Submit(context.Background(), "dreamy synthwave", "[Verse]\nhello")
	require.NoError(t, err)
	assert.Equal(t, "J1", result.TaskID)
	assert.Equal(t, [2]string{"C1", "C2"}, result.ConversionIDs)
	assert.Equal(t, "90", result.ETA)
	assert.NotNil(t, result.Raw["data"])
}

func TestSubmitKeepsLargeNumericTaskID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"task_id":1234567,"conversion_id_1":"C1","eta":0.5}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	result, err := client.Submit(context.Background(), "p", "l")
	require.NoError(t, err)
	assert.Equal(t, "1234567", result.TaskID, "no exponent notation")
	assert.Equal(t, "0.5", result.ETA)
}

func TestSubmitWithoutJobIDIsServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"conversion_id_1": "C1"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	result, err := client.Submit(context.Background(), "p", "l")
	require.Error(t, err)
	assert.Equal(t, services.KindService, services.KindOf(err))
	assert.Contains(t, err.Error(), "no job id returned")
	assert.Equal(t, "C1", result.ConversionIDs[0])
}

func TestStatusErrorClassification(t *testing.T) {
	cases := []struct {
		code         int
		kind         services.Kind
		nonRetryable bool
	}{
		{http.StatusUnauthorized, services.KindCredentialInvalid, true},
		{http.StatusForbidden, services.KindCredentialInvalid, true},
		{http.StatusNotFound, services.KindService, true},
		{http.StatusUnprocessableEntity, services.KindService, true},
		{http.StatusBadRequest, services.KindService, false},
		{http.StatusTooManyRequests, services.KindRateLimited, false},
		{http.StatusBadGateway, services.KindNetwork, false},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(tc.code)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "nope"})
		}))
		client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
		_, err := client.Status(context.Background(), "J1")
		server.Close()

		require.Error(t, err, "status %d", tc.code)
		assert.Equal(t, tc.kind, services.KindOf(err), "status %d", tc.code)
		statusErr, ok := AsStatusError(err)
		require.True(t, ok)
		assert.Equal(t, tc.nonRetryable, statusErr.NonRetryable(), "status %d", tc.code)
		assert.Equal(t, 7*time.Second, statusErr.RetryAfter)
		assert.Contains(t, err.Error(), "nope")
	}
}

func TestStatusQueriesByIDEndpoint(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/byId", r.URL.Path)
		assert.Equal(t, "MUSIC_AI", r.URL.Query().Get("conversionType"))
		seen = append(seen, r.URL.RawQuery)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "IN_QUEUE"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: server.URL})
	payload, err := client.Status(context.Background(), "J1")
	require.NoError(t, err)
	assert.Equal(t, "IN_QUEUE", payload["status"])

	_, err = client.StatusByConversionID(context.Background(), "C1")
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Contains(t, seen[0], "task_id=J1")
	assert.Contains(t, seen[1], "conversion_id=C1")
}

func TestNetworkFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	client := NewClient(Config{APIKey: "secret", BaseURL: base})
	_, err := client.Status(context.Background(), "J1")
	require.Error(t, err)
	assert.Equal(t, services.KindNetwork, services.KindOf(err))
	assert.True(t, services.IsTransient(err))
}

func TestMissingAPIKeyIsCredentialError(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Submit(context.Background(), "p", "l")
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrCredentialInvalid))
	assert.False(t, client.HasCredentials())
}

func TestParseRetryAfter(t *testing.T) {
	delay, ok := parseRetryAfter("3")
	assert.True(t, ok)
	assert.Equal(t, 3*time.Second, delay)

	_, ok = parseRetryAfter("")
	assert.False(t, ok)
	_, ok = parseRetryAfter("-1")
	assert.False(t, ok)
}
