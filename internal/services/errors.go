package services

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures for retry decisions and catalog notes.
type Kind string

const (
	KindCredentialInvalid  Kind = "credential_invalid"
	KindRateLimited        Kind = "rate_limited"
	KindNetwork            Kind = "network_error"
	KindTimeout            Kind = "timeout"
	KindSelectorNotFound   Kind = "selector_not_found"
	KindVerificationFailed Kind = "verification_failed"
	KindNoArtifactResolved Kind = "no_artifact_resolved"
	KindService            Kind = "service_error"
	KindConfiguration      Kind = "configuration"
	KindInternal           Kind = "internal"
)

// Markers for each Kind. Wrap tags an error with one of them so KindOf can
// classify it after any amount of further wrapping.
var (
	ErrCredentialInvalid  = errors.New(string(KindCredentialInvalid))
	ErrRateLimited        = errors.New(string(KindRateLimited))
	ErrNetwork            = errors.New(string(KindNetwork))
	ErrTimeout            = errors.New(string(KindTimeout))
	ErrSelectorNotFound   = errors.New(string(KindSelectorNotFound))
	ErrVerificationFailed = errors.New(string(KindVerificationFailed))
	ErrNoArtifactResolved = errors.New(string(KindNoArtifactResolved))
	ErrService            = errors.New(string(KindService))
	ErrConfiguration      = errors.New(string(KindConfiguration))
)

// ErrStopped reports that a wait ended because a stop was requested. It is
// not a failure kind of its own.
var ErrStopped = errors.New("stopped by request")

var markers = []struct {
	marker error
	kind   Kind
}{
	{ErrCredentialInvalid, KindCredentialInvalid},
	{ErrRateLimited, KindRateLimited},
	{ErrNetwork, KindNetwork},
	{ErrTimeout, KindTimeout},
	{ErrSelectorNotFound, KindSelectorNotFound},
	{ErrVerificationFailed, KindVerificationFailed},
	{ErrNoArtifactResolved, KindNoArtifactResolved},
	{ErrService, KindService},
	{ErrConfiguration, KindConfiguration},
}

// ErrorClassifier allows typed errors to declare their kind without wrapping
// a marker.
type ErrorClassifier interface {
	ErrorKind() Kind
}

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err. Unclassified errors report KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, m := range markers {
		if errors.Is(err, m.marker) {
			return m.kind
		}
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return KindInternal
}

// IsTransient reports whether err belongs to a category that is retried
// locally before surfacing.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindRateLimited:
		return true
	default:
		return false
	}
}

// Note renders err as the human-readable catalog note, always prefixed with
// its kind.
func Note(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.TrimSpace(err.Error())
	kind := string(KindOf(err))
	if strings.HasPrefix(msg, kind) {
		return msg
	}
	return kind + ": " + msg
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
