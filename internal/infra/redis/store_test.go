package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"quiz-window-service/internal/domain"
)

func TestRecordResponseScriptIsSingleShot(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.RecordResponse(ctx, sampleWrite("s1", "x", true))
	if err != nil || !ok {
		t.Fatalf("expected first write accepted, ok=%v err=%v", ok, err)
	}
	ok, err = store.RecordResponse(ctx, sampleWrite("s1", "y", false))
	if err != nil || ok {
		t.Fatalf("expected duplicate rejected, ok=%v err=%v", ok, err)
	}

	if got := mr.HGet("quiz:quiz-1:q1:responses", "s1"); got != "x" {
		t.Fatalf("expected answer x, got %q", got)
	}
	if got := mr.HGet("time:quiz:quiz-1:q1:response_time", "s1"); got != "5" {
		t.Fatalf("expected response time 5, got %q", got)
	}
	if got := mr.HGet("time:quiz:quiz-1:q1:submitted_at", "s1"); got != "1700000005" {
		t.Fatalf("expected submitted_at 1700000005, got %q", got)
	}
	if got := mr.HGet("quiz:quiz-1:correct_answers", "s1"); got != "1" {
		t.Fatalf("expected correct counter 1, got %q", got)
	}
	if ok, _ := mr.SIsMember("quiz:quiz-1:q1:answered", "s1"); !ok {
		t.Fatalf("expected answered marker")
	}
}

func TestRecordResponseConcurrentSingleWinner(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.RecordResponse(ctx, sampleWrite("s1", "x", true))
			if err != nil {
				t.Errorf("record: %v", err)
				return
			}
			if ok {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one accepted write, got %d", accepted)
	}
}

func TestHSetNXReturnsWinningValue(t *testing.T) {
	_, store := newTestStore(t)
	ctx := context.Background()
	key := domain.QuestionKey("quiz-1", "q1")

	if v, set, err := store.HSetNX(ctx, key, domain.FieldStartTime, "100"); err != nil || !set || v != "100" {
		t.Fatalf("expected first write to win, got %q set=%v err=%v", v, set, err)
	}
	if v, set, err := store.HSetNX(ctx, key, domain.FieldStartTime, "200"); err != nil || set || v != "100" {
		t.Fatalf("expected stored value 100, got %q set=%v err=%v", v, set, err)
	}
}

func TestDeleteResponseRemovesAllTraces(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	if _, err := store.RecordResponse(ctx, sampleWrite("s1", "x", true)); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := store.DeleteResponse(ctx, "quiz-1", "q1", "s1", true); err != nil {
		t.Fatalf("delete: %v", err)
	}

	for _, key := range []string{
		"quiz:quiz-1:q1:responses",
		"quiz:quiz-1:q1:answered",
		"time:quiz:quiz-1:q1:response_time",
		"time:quiz:quiz-1:q1:submitted_at",
	} {
		if mr.Exists(key) {
			t.Fatalf("expected %s removed", key)
		}
	}
	if got := mr.HGet("quiz:quiz-1:correct_answers", "s1"); got != "0" {
		t.Fatalf("expected counter 0, got %q", got)
	}
}

func TestDelRemovesWholeKeys(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	mr.HSet("quiz:quiz-1", "creation_time", "1")
	mr.HSet("quiz:quiz-1:q1", "text", "x")
	mr.HSet("quiz:quiz-1:q2", "text", "y")

	if err := store.Del(ctx, domain.QuizKey("quiz-1"), domain.QuestionKey("quiz-1", "q1")); err != nil {
		t.Fatalf("del: %v", err)
	}
	if mr.Exists("quiz:quiz-1") || mr.Exists("quiz:quiz-1:q1") {
		t.Fatalf("expected deleted keys gone")
	}
	if !mr.Exists("quiz:quiz-1:q2") {
		t.Fatalf("expected other question kept")
	}
	if err := store.Del(ctx); err != nil {
		t.Fatalf("empty del: %v", err)
	}
}

func TestScanPrefixListsQuizKeys(t *testing.T) {
	mr, store := newTestStore(t)
	ctx := context.Background()
	mr.HSet("quiz:quiz-1", "creation_time", "1")
	mr.HSet("quiz:quiz-1:q2", "text", "y")
	mr.HSet("quiz:quiz-1:q1", "text", "x")
	mr.HSet("quiz:quiz-10:q1", "text", "z")

	keys, err := store.ScanPrefix(ctx, domain.QuizScanPrefix("quiz-1"))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(keys) != 2 || keys[0] != "quiz:quiz-1:q1" || keys[1] != "quiz:quiz-1:q2" {
		t.Fatalf("expected the two question keys sorted, got %v", keys)
	}
}

func TestErrorsWrapStoreFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewStore(client)
	mr.Close()

	_, err = store.Exists(context.Background(), domain.QuizKey("quiz-1"))
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

func newTestStore(t *testing.T) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewStore(client)
}

func sampleWrite(studentID, answer string, correct bool) domain.ResponseWrite {
	return domain.ResponseWrite{
		QuizID:       "quiz-1",
		QuestionID:   "q1",
		StudentID:    studentID,
		Answer:       answer,
		ResponseTime: 5,
		SubmittedAt:  time.Unix(1_700_000_005, 0),
		Correct:      correct,
	}
}
