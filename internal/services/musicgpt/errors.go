package musicgpt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"songfactory/internal/services"
)

// StatusError reports a non-2xx API response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	op := e.Op
	if op == "" {
		op = "request"
	}
	detail := errorDetail(e.Body)
	if detail == "" {
		detail = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("musicgpt %s: HTTP %d: %s", op, e.StatusCode, detail)
}

// ErrorKind maps the status code onto the shared error taxonomy.
func (e *StatusError) ErrorKind() services.Kind {
	switch {
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return services.KindCredentialInvalid
	case e.StatusCode == http.StatusTooManyRequests:
		return services.KindRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return services.KindNetwork
	default:
		return services.KindService
	}
}

// NonRetryable reports statuses that no amount of polling will fix.
func (e *StatusError) NonRetryable() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusMethodNotAllowed,
		http.StatusUnprocessableEntity:
		return true
	default:
		return false
	}
}

// AsStatusError extracts a *StatusError from err.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}

// errorDetail pulls the error or message field out of a JSON error body,
// falling back to the trimmed body text.
func errorDetail(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		for _, key := range []string{"error", "message", "detail"} {
			if value, ok := payload[key].(string); ok && strings.TrimSpace(value) != "" {
				return strings.TrimSpace(value)
			}
		}
	}
	if len(body) > 200 {
		return body[:200] + "..."
	}
	return body
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
