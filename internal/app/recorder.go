package app

import (
	"context"
	"fmt"

	"quiz-window-service/internal/domain"
)

// SubmitAnswer records a student's only answer to a question while its window is open.
func (s *QuizService) SubmitAnswer(ctx context.Context, quizID string, sub domain.AnswerSubmission) (domain.SubmissionResult, error) {
	if sub.QuestionID == "" || sub.Answer == "" || sub.StudentID == "" {
		return domain.SubmissionResult{}, fmt.Errorf("%w: question id, answer, and student id are required", domain.ErrValidation)
	}
	if err := domain.ValidateID("student", sub.StudentID); err != nil {
		return domain.SubmissionResult{}, err
	}

	q, err := s.loadQuestion(ctx, quizID, sub.QuestionID)
	if err != nil {
		return domain.SubmissionResult{}, err
	}

	now := s.now()
	// A question nobody has read yet has no window, which counts as expired.
	if q.WindowStart == nil || now.Sub(*q.WindowStart) > domain.Window {
		return domain.SubmissionResult{}, fmt.Errorf("question %s: %w", q.ID, domain.ErrWindowExpired)
	}

	elapsed := now.Sub(*q.WindowStart).Seconds()
	if elapsed < 0 {
		// clock skew between the reader that opened the window and this one
		elapsed = 0
	}

	written, err := s.store.RecordResponse(ctx, domain.ResponseWrite{
		QuizID:       quizID,
		QuestionID:   q.ID,
		StudentID:    sub.StudentID,
		Answer:       sub.Answer,
		ResponseTime: elapsed,
		SubmittedAt:  now,
		Correct:      domain.IsCorrect(sub.Answer, q.CorrectAnswer),
	})
	if err != nil {
		return domain.SubmissionResult{}, err
	}
	if !written {
		return domain.SubmissionResult{}, fmt.Errorf("student %s on question %s: %w", sub.StudentID, q.ID, domain.ErrDuplicateResponse)
	}

	return domain.SubmissionResult{
		QuizID:       quizID,
		QuestionID:   q.ID,
		StudentID:    sub.StudentID,
		Answer:       sub.Answer,
		Accepted:     true,
		ResponseTime: elapsed,
	}, nil
}
