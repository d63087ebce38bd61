package app

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"quiz-window-service/internal/domain"
)

// questionResponses is everything the ranking needs from one question.
type questionResponses struct {
	correctAnswer string
	answers       map[string]string
	times         map[string]string
}

// QuizRanking ranks every registered student across all questions of a quiz.
// Concurrent calls for the same quiz share one computation.
func (s *QuizService) QuizRanking(ctx context.Context, quizID string) ([]domain.PerformanceRecord, error) {
	if err := s.requireQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	// The shared computation must outlive any single caller; each caller
	// still gives up on its own context.
	flight := context.WithoutCancel(ctx)
	ch := s.rankings.DoChan(quizID, func() (interface{}, error) {
		return s.computeRanking(flight, quizID)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.([]domain.PerformanceRecord)
	out := make([]domain.PerformanceRecord, len(shared))
	copy(out, shared)
	return out, nil
}

func (s *QuizService) computeRanking(ctx context.Context, quizID string) ([]domain.PerformanceRecord, error) {
	students, err := s.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	questionIDs, err := s.questionIDs(ctx, quizID)
	if err != nil {
		return nil, err
	}

	perQuestion := make([]questionResponses, len(questionIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, qid := range questionIDs {
		i, qid := i, qid
		g.Go(func() error {
			correct, _, err := s.store.HGet(gctx, domain.QuestionKey(quizID, qid), domain.FieldCorrectAnswer)
			if err != nil {
				return err
			}
			answers, times, err := s.responses(gctx, quizID, qid)
			if err != nil {
				return err
			}
			perQuestion[i] = questionResponses{correctAnswer: correct, answers: answers, times: times}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]domain.PerformanceRecord, len(students))
	for i, st := range students {
		name := st.Username
		records[i] = domain.PerformanceRecord{StudentID: st.ID, Name: &name}
	}

	for _, qr := range perQuestion {
		for i := range records {
			rec := &records[i]
			answer, answered := qr.answers[rec.StudentID]
			if !answered {
				rec.TotalResponses++
				rec.TotalResponseTime += domain.UnansweredPenalty
				continue
			}
			if domain.IsCorrect(answer, qr.correctAnswer) {
				rec.TotalCorrect++
			}
			rec.TotalResponses++
			rec.TotalResponseTime += responseTime(qr.times, rec.StudentID)
		}
	}

	for i := range records {
		if records[i].TotalResponses > 0 {
			records[i].AverageResponseTime = records[i].TotalResponseTime / float64(records[i].TotalResponses)
		}
	}

	// Students arrive sorted by id; the stable sort keeps that order for equal keys.
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].TotalCorrect != records[j].TotalCorrect {
			return records[i].TotalCorrect > records[j].TotalCorrect
		}
		return records[i].AverageResponseTime < records[j].AverageResponseTime
	})
	for i := range records {
		records[i].Position = i + 1
	}
	return records, nil
}
