package app

import (
	"context"
	"time"

	"quiz-window-service/internal/domain"
)

// EnsureWindowOpen returns the question's window start, setting it to now on
// the first call. Concurrent first calls all observe the same winning value.
func (s *QuizService) EnsureWindowOpen(ctx context.Context, quizID, questionID string) (time.Time, error) {
	q, err := s.loadQuestion(ctx, quizID, questionID)
	if err != nil {
		return time.Time{}, err
	}
	return s.ensureWindow(ctx, quizID, q)
}

// FetchQuestion opens the question's window and returns it without the correct answer.
func (s *QuizService) FetchQuestion(ctx context.Context, quizID, questionID string) (domain.QuestionView, error) {
	q, err := s.loadQuestion(ctx, quizID, questionID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	start, err := s.ensureWindow(ctx, quizID, q)
	if err != nil {
		return domain.QuestionView{}, err
	}
	return domain.QuestionView{
		QuizID:     quizID,
		QuestionID: q.ID,
		Text:       q.Text,
		Options:    q.Options,
		StartTime:  start,
	}, nil
}

func (s *QuizService) ensureWindow(ctx context.Context, quizID string, q domain.Question) (time.Time, error) {
	if q.WindowStart != nil {
		return *q.WindowStart, nil
	}
	stored, _, err := s.store.HSetNX(ctx, domain.QuestionKey(quizID, q.ID), domain.FieldStartTime, domain.FormatUnix(s.now()))
	if err != nil {
		return time.Time{}, err
	}
	return domain.ParseUnix(stored)
}
