package app

import (
	"context"

	"quiz-window-service/internal/domain"
)

// Store abstracts the key-value backend (in-memory, Redis, etc).
// Adapter failures are returned wrapped in domain.ErrStore.
type Store interface {
	Exists(ctx context.Context, key domain.Key) (bool, error)
	HGet(ctx context.Context, key domain.Key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key domain.Key) (map[string]string, error)
	// HSet writes all fields in one operation.
	HSet(ctx context.Context, key domain.Key, fields map[string]string) error
	// HSetNX writes field only if it is absent and returns the value that is
	// stored afterwards, plus whether this call wrote it.
	HSetNX(ctx context.Context, key domain.Key, field, value string) (string, bool, error)
	SMembers(ctx context.Context, key domain.Key) ([]string, error)
	// Del removes whole keys; missing keys are ignored.
	Del(ctx context.Context, keys ...domain.Key) error
	// ScanPrefix lists every key starting with prefix, sorted.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// RecordResponse atomically checks the answered marker and, if the
	// student is not in it, persists the response, bumps the correct counter
	// when w.Correct and adds the marker. It reports whether the write happened.
	RecordResponse(ctx context.Context, w domain.ResponseWrite) (bool, error)
	// DeleteResponse removes one student's response, timing, submission time
	// and answered marker, and takes back the correct counter when correct.
	DeleteResponse(ctx context.Context, quizID, questionID, studentID string, correct bool) error

	Close() error
}
