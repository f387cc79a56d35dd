package services

import "context"

type contextKey string

const (
	recordIDKey  contextKey = "record_id"
	jobIDKey     contextKey = "job_id"
	runIDKey     contextKey = "run_id"
	transportKey contextKey = "transport"
)

// WithRecordID annotates context with the catalog record identifier.
func WithRecordID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, recordIDKey, id)
}

// RecordIDFromContext extracts the catalog record identifier if present.
func RecordIDFromContext(ctx context.Context) (int64, bool) {
	switch val := ctx.Value(recordIDKey).(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithJobID annotates context with the external generation job id.
func WithJobID(ctx context.Context, jobID string) context.Context {
	if jobID == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, jobID)
}

// JobIDFromContext returns the external job id if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with a run correlation identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run correlation identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTransport annotates context with the submission transport name.
func WithTransport(ctx context.Context, transport string) context.Context {
	if transport == "" {
		return ctx
	}
	return context.WithValue(ctx, transportKey, transport)
}

// TransportFromContext returns the transport name if present.
func TransportFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transportKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

type stopCheckKey struct{}

// WithStopCheck attaches the cooperative stop flag of the current run.
func WithStopCheck(ctx context.Context, stopped func() bool) context.Context {
	if stopped == nil {
		return ctx
	}
	return context.WithValue(ctx, stopCheckKey{}, stopped)
}

// StopRequested reports whether the run attached to ctx was asked to stop.
func StopRequested(ctx context.Context) bool {
	stopped, ok := ctx.Value(stopCheckKey{}).(func() bool)
	return ok && stopped()
}
