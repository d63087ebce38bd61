package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quiz-window-service/internal/app"
	"quiz-window-service/internal/domain"
	"quiz-window-service/internal/infra/memory"
)

var t0 = time.Unix(1_700_000_000, 0)

func TestWindowedSubmissionFlow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())
	registerStudents(t, service, "s1", "s2", "s3")

	if _, err := service.FetchQuestion(ctx, "Q1", "A"); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	clock.Advance(5 * time.Second)
	res, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Accepted || res.ResponseTime != 5.0 {
		t.Fatalf("expected accepted with 5s, got %+v", res)
	}

	clock.Advance(time.Second)
	_, err = service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "y"})
	if !errors.Is(err, domain.ErrDuplicateResponse) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	clock.Set(t0.Add(25 * time.Second))
	_, err = service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s3", Answer: "x"})
	if !errors.Is(err, domain.ErrWindowExpired) {
		t.Fatalf("expected window expired, got %v", err)
	}

	stats, err := service.QuestionAnalytics(ctx, "Q1", "A")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if stats.Acertos != 1 || stats.TotalResponses != 1 {
		t.Fatalf("expected 1 correct of 1, got %+v", stats)
	}

	ranking, err := service.QuizRanking(ctx, "Q1")
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(ranking) != 3 {
		t.Fatalf("expected 3 ranked students, got %d", len(ranking))
	}
	if ranking[0].StudentID != "s1" || ranking[0].TotalCorrect != 1 || ranking[0].AverageResponseTime != 5.0 {
		t.Fatalf("expected s1 first, got %+v", ranking[0])
	}
	for _, rec := range ranking[1:] {
		if rec.TotalResponses != 1 || rec.TotalResponseTime != 20.0 || rec.TotalCorrect != 0 {
			t.Fatalf("expected penalty record, got %+v", rec)
		}
	}
}

func TestSubmitBeforeWindowOpensIsExpired(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, newFakeClock(t0), singleQuestionQuiz())

	_, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "x"})
	if !errors.Is(err, domain.ErrWindowExpired) {
		t.Fatalf("expected window expired for unopened question, got %v", err)
	}
}

func TestWindowBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())

	if _, err := service.EnsureWindowOpen(ctx, "Q1", "A"); err != nil {
		t.Fatalf("open: %v", err)
	}

	clock.Set(t0.Add(domain.Window))
	if _, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "x"}); err != nil {
		t.Fatalf("expected submission at exactly 20s to be accepted, got %v", err)
	}

	clock.Set(t0.Add(domain.Window + time.Millisecond))
	_, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s2", Answer: "x"})
	if !errors.Is(err, domain.ErrWindowExpired) {
		t.Fatalf("expected expiry just after 20s, got %v", err)
	}
}

func TestSubmitClampsNegativeElapsedTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())

	if _, err := service.EnsureWindowOpen(ctx, "Q1", "A"); err != nil {
		t.Fatalf("open: %v", err)
	}
	clock.Set(t0.Add(-2 * time.Second))

	res, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "x"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.ResponseTime != 0 {
		t.Fatalf("expected response time clamped to 0, got %v", res.ResponseTime)
	}
}

func TestEnsureWindowOpenLatchesOnce(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())

	first, err := service.EnsureWindowOpen(ctx, "Q1", "A")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	clock.Advance(10 * time.Second)
	second, err := service.EnsureWindowOpen(ctx, "Q1", "A")
	if err != nil {
		t.Fatalf("open again: %v", err)
	}
	if !first.Equal(t0) || !second.Equal(t0) {
		t.Fatalf("expected window start %v both times, got %v and %v", t0, first, second)
	}
}

func TestEnsureWindowOpenConcurrentReadersAgree(t *testing.T) {
	ctx := context.Background()
	ticking := &tickingClock{next: t0}
	store := memory.NewStore()
	service := app.NewQuizServiceWithClock(store, ticking.Now)
	if err := service.CreateQuiz(ctx, singleQuestionQuiz()); err != nil {
		t.Fatalf("create: %v", err)
	}

	const readers = 20
	starts := make([]time.Time, readers)
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start, err := service.EnsureWindowOpen(ctx, "Q1", "A")
			if err != nil {
				t.Errorf("open: %v", err)
				return
			}
			starts[i] = start
		}(i)
	}
	wg.Wait()

	for i := 1; i < readers; i++ {
		if !starts[i].Equal(starts[0]) {
			t.Fatalf("readers disagree on window start: %v vs %v", starts[0], starts[i])
		}
	}
}

func TestConcurrentSubmissionsAcceptOnlyOne(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())
	if _, err := service.FetchQuestion(ctx, "Q1", "A"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	clock.Advance(time.Second)

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		accepted   int
		duplicates int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "x"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrDuplicateResponse):
				duplicates++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if accepted != 1 || duplicates != 29 {
		t.Fatalf("expected 1 accepted and 29 duplicates, got %d and %d", accepted, duplicates)
	}
}

func TestFetchQuestionHidesCorrectAnswer(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, newFakeClock(t0), singleQuestionQuiz())

	view, err := service.FetchQuestion(ctx, "Q1", "A")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if view.Text != "Pick x" || len(view.Options) != 2 || !view.StartTime.Equal(t0) {
		t.Fatalf("unexpected view %+v", view)
	}
	data, err := json.Marshal(view)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "correct") {
		t.Fatalf("question view leaks the correct answer: %s", data)
	}
}

func TestSubmitValidationAndLookupErrors(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())

	cases := []struct {
		name   string
		quizID string
		sub    domain.AnswerSubmission
		want   error
	}{
		{"missing answer", "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1"}, domain.ErrValidation},
		{"missing student", "Q1", domain.AnswerSubmission{QuestionID: "A", Answer: "x"}, domain.ErrValidation},
		{"missing question", "Q1", domain.AnswerSubmission{StudentID: "s1", Answer: "x"}, domain.ErrValidation},
		{"unknown quiz", "nope", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "x"}, domain.ErrQuizNotFound},
		{"unknown question", "Q1", domain.AnswerSubmission{QuestionID: "Z", StudentID: "s1", Answer: "x"}, domain.ErrQuestionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.SubmitAnswer(ctx, tc.quizID, tc.sub)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := service.FetchQuestion(ctx, "Q1", "Z"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found on fetch, got %v", err)
	}
	if _, err := service.EnsureWindowOpen(ctx, "nope", "A"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found on open, got %v", err)
	}
}

func TestCreateQuizRejectsDuplicatesAndBadQuestions(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, newFakeClock(t0), singleQuestionQuiz())

	if err := service.CreateQuiz(ctx, singleQuestionQuiz()); !errors.Is(err, domain.ErrQuizExists) {
		t.Fatalf("expected quiz exists, got %v", err)
	}

	bad := []domain.Quiz{
		{ID: "", Questions: singleQuestionQuiz().Questions},
		{ID: "Q2"},
		{ID: "Q2", Questions: []domain.Question{{ID: "A", Text: "t", CorrectAnswer: "z", Options: []string{"x"}}}},
		{ID: "Q2", Questions: []domain.Question{{ID: "correct_answers", Text: "t", CorrectAnswer: "x", Options: []string{"x"}}}},
		{ID: "Q:2", Questions: singleQuestionQuiz().Questions},
	}
	for _, quiz := range bad {
		if err := service.CreateQuiz(ctx, quiz); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", quiz, err)
		}
	}
}

func TestCreateQuizReleasesIDWhenQuestionWriteFails(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore("q2")
	service := app.NewQuizServiceWithClock(store, newFakeClock(t0).Now)

	store.failHSets.Store(true)
	if err := service.CreateQuiz(ctx, multiQuestionQuiz()); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	for _, key := range []domain.Key{domain.QuizKey("Q2"), domain.QuestionKey("Q2", "q1")} {
		if ok, _ := store.Exists(ctx, key); ok {
			t.Fatalf("expected %s rolled back", key)
		}
	}

	store.failHSets.Store(false)
	if err := service.CreateQuiz(ctx, multiQuestionQuiz()); err != nil {
		t.Fatalf("expected quiz to be creatable after a failed attempt, got %v", err)
	}
	if _, err := service.FetchQuestion(ctx, "Q2", "q2"); err != nil {
		t.Fatalf("fetch after recreate: %v", err)
	}
}

func TestRegisterStudentsReportsPerUserErrors(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t, newFakeClock(t0), singleQuestionQuiz())

	added, errs := service.RegisterStudents(ctx, []domain.Student{
		{ID: "s1", Username: "Ana"},
		{ID: "", Username: "Nobody"},
		{ID: "s1", Username: "Ana again"},
		{ID: "s2", Username: "Bruno"},
	})
	if len(added) != 2 {
		t.Fatalf("expected two students added, got %+v", added)
	}
	if len(errs) != 2 || !errors.Is(errs[0], domain.ErrValidation) || !errors.Is(errs[1], domain.ErrStudentExists) {
		t.Fatalf("unexpected errors %v", errs)
	}

	students, err := service.ListStudents(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(students) != 2 || students[0].Username != "Ana" || students[1].ID != "s2" {
		t.Fatalf("unexpected roster %+v", students)
	}
}

func TestListResponsesFillsInAbsentStudents(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(t0)
	service := newTestService(t, clock, singleQuestionQuiz())
	registerStudents(t, service, "s1", "s2")

	if _, err := service.FetchQuestion(ctx, "Q1", "A"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	clock.Advance(4 * time.Second)
	if _, err := service.SubmitAnswer(ctx, "Q1", domain.AnswerSubmission{QuestionID: "A", StudentID: "s1", Answer: "y"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	entries, err := service.ListResponses(ctx, "Q1", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %+v", entries)
	}
	if entries[0].StudentID != "s1" || entries[0].Answer != "y" || entries[0].ResponseTime != 4 {
		t.Fatalf("unexpected entry for s1: %+v", entries[0])
	}
	if entries[1].StudentID != "s2" || entries[1].Answer != "0" || entries[1].ResponseTime != domain.UnansweredPenalty {
		t.Fatalf("unexpected entry for s2: %+v", entries[1])
	}

	if _, err := service.ListResponses(ctx, "Q1", "Z"); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	if _, err := service.ListResponses(ctx, "nope", ""); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func TestImportQuizzesFromCatalog(t *testing.T) {
	ctx := context.Background()
	service := app.NewQuizServiceWithClock(memory.NewStore(), newFakeClock(t0).Now)
	catalog := memory.NewStaticCatalog(map[string]domain.Quiz{
		"Q1": singleQuestionQuiz(),
		"Q2": multiQuestionQuiz(),
	})

	imported, err := service.ImportQuizzes(ctx, catalog, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(imported) != 2 || imported[0] != "Q1" || imported[1] != "Q2" {
		t.Fatalf("unexpected import result %v", imported)
	}

	again, err := service.ImportQuizzes(ctx, catalog, []string{"Q1"})
	if err != nil {
		t.Fatalf("re-import: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected existing quiz skipped, got %v", again)
	}

	if _, err := service.ImportQuizzes(ctx, catalog, []string{"missing"}); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}
}

func newTestService(t *testing.T, clock *fakeClock, quizzes ...domain.Quiz) *app.QuizService {
	t.Helper()
	service := app.NewQuizServiceWithClock(memory.NewStore(), clock.Now)
	for _, quiz := range quizzes {
		if err := service.CreateQuiz(context.Background(), quiz); err != nil {
			t.Fatalf("create quiz %s: %v", quiz.ID, err)
		}
	}
	return service
}

func registerStudents(t *testing.T, service *app.QuizService, ids ...string) {
	t.Helper()
	students := make([]domain.Student, 0, len(ids))
	for _, id := range ids {
		students = append(students, domain.Student{ID: id, Username: "name-" + id})
	}
	if _, errs := service.RegisterStudents(context.Background(), students); len(errs) > 0 {
		t.Fatalf("register: %v", errs)
	}
}

func singleQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "Q1",
		Questions: []domain.Question{
			{ID: "A", Text: "Pick x", CorrectAnswer: "x", Options: []string{"x", "y"}},
		},
	}
}

func multiQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "Q2",
		Questions: []domain.Question{
			{ID: "q1", Text: "2 + 2?", CorrectAnswer: "4", Options: []string{"3", "4", "5"}},
			{ID: "q2", Text: "3 * 3?", CorrectAnswer: "9", Options: []string{"6", "9"}},
		},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// tickingClock returns a later time on every call.
type tickingClock struct {
	mu   sync.Mutex
	next time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}
