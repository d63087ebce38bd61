package app_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"quiz-window-service/internal/domain"
	"quiz-window-service/internal/infra/memory"
)

// faultyStore fails writes that touch one question while its fault is armed.
type faultyStore struct {
	*memory.Store
	question       string
	failDeletes    atomic.Bool
	failHSets      atomic.Bool
	deleteFailures atomic.Int32
}

func newFaultyStore(question string) *faultyStore {
	return &faultyStore{Store: memory.NewStore(), question: question}
}

func (s *faultyStore) DeleteResponse(ctx context.Context, quizID, questionID, studentID string, correct bool) error {
	if questionID == s.question && s.failDeletes.Load() {
		s.deleteFailures.Add(1)
		return fmt.Errorf("delete %s/%s: %w", quizID, questionID, domain.ErrStore)
	}
	return s.Store.DeleteResponse(ctx, quizID, questionID, studentID, correct)
}

func (s *faultyStore) HSet(ctx context.Context, key domain.Key, fields map[string]string) error {
	if key.Kind == domain.KindQuestion && key.QuestionID == s.question && s.failHSets.Load() {
		return fmt.Errorf("hset %s: %w", key, domain.ErrStore)
	}
	return s.Store.HSet(ctx, key, fields)
}

// gatedStore holds roster scans until the gate opens or the caller gives up.
type gatedStore struct {
	*memory.Store
	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGatedStore() *gatedStore {
	return &gatedStore{Store: memory.NewStore(), gate: make(chan struct{}), entered: make(chan struct{})}
}

func (s *gatedStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	if prefix == domain.UserScanPrefix() {
		s.once.Do(func() { close(s.entered) })
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Store.ScanPrefix(ctx, prefix)
}
