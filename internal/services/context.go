package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "morph-job-id"
	stageKey     contextKey = "morph-stage"
	workerKey    contextKey = "morph-worker"
	requestIDKey contextKey = "morph-request-id"
)

// WithJobID annotates the context with the queue job identifier.
func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the queue job identifier when present.
func JobIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(jobIDKey).(int64)
	return id, ok
}

// WithStage annotates the context with the active stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext extracts the active stage name when present.
func StageFromContext(ctx context.Context) (string, bool) {
	stage, ok := ctx.Value(stageKey).(string)
	return stage, ok
}

// WithWorker annotates the context with the worker identifier.
func WithWorker(ctx context.Context, worker string) context.Context {
	return context.WithValue(ctx, workerKey, worker)
}

// WorkerFromContext extracts the worker identifier when present.
func WorkerFromContext(ctx context.Context) (string, bool) {
	worker, ok := ctx.Value(workerKey).(string)
	return worker, ok
}

// WithRequestID annotates the context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier when present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey).(string)
	return id, ok
}
