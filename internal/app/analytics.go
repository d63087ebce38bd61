package app

import (
	"context"
	"fmt"
	"sort"

	"quiz-window-service/internal/domain"
)

// QuestionAnalytics summarizes every recorded response to one question.
// Responses are visited in ascending student id order; every "first wins"
// tie-break below refers to that order.
func (s *QuizService) QuestionAnalytics(ctx context.Context, quizID, questionID string) (domain.QuestionStats, error) {
	q, err := s.loadQuestion(ctx, quizID, questionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}

	answers, times, err := s.responses(ctx, quizID, questionID)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	if len(answers) == 0 {
		return domain.QuestionStats{}, fmt.Errorf("question %s: %w", questionID, domain.ErrNoData)
	}

	students, err := s.ListStudents(ctx)
	if err != nil {
		return domain.QuestionStats{}, err
	}
	names := make(map[string]string, len(students))
	for _, st := range students {
		names[st.ID] = st.Username
	}

	stats := domain.QuestionStats{
		QuizID:             quizID,
		QuestionID:         questionID,
		TotalResponses:     len(answers),
		AnswerDistribution: make([]domain.OptionCount, len(q.Options)),
		TopCorrectStudents: []domain.StudentRef{},
	}
	slot := make(map[string]int, len(q.Options))
	for i, opt := range q.Options {
		stats.AnswerDistribution[i] = domain.OptionCount{Option: opt}
		slot[opt] = i
	}

	ids := make([]string, 0, len(answers))
	for id := range answers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var totalTime float64
	for _, id := range ids {
		answer := answers[id]
		correct := domain.IsCorrect(answer, q.CorrectAnswer)
		rt := responseTime(times, id)
		totalTime += rt

		if i, ok := slot[answer]; ok {
			stats.AnswerDistribution[i].Votes++
		}

		p := domain.Performer{StudentRef: studentRef(id, names), Correct: correct, ResponseTime: rt}
		if correct {
			stats.Acertos++
			stats.TopCorrectStudents = append(stats.TopCorrectStudents, p.StudentRef)
		}
		if stats.BestPerformer == nil || outperforms(p, *stats.BestPerformer) {
			best := p
			stats.BestPerformer = &best
		}
		if stats.FastestPerformer == nil || p.ResponseTime < stats.FastestPerformer.ResponseTime {
			fastest := p
			stats.FastestPerformer = &fastest
		}
	}

	stats.Erros = stats.TotalResponses - stats.Acertos
	stats.AverageResponseTime = totalTime / float64(stats.TotalResponses)
	stats.Abstentions = len(students) - stats.TotalResponses

	for i := range stats.AnswerDistribution {
		if stats.TopAnswer == nil || stats.AnswerDistribution[i].Votes > stats.TopAnswer.Votes {
			top := stats.AnswerDistribution[i]
			stats.TopAnswer = &top
		}
	}
	return stats, nil
}

// outperforms orders by (correct, -response time); equal keys do not outperform.
func outperforms(a, b domain.Performer) bool {
	if a.Correct != b.Correct {
		return a.Correct
	}
	return a.ResponseTime < b.ResponseTime
}

func studentRef(id string, names map[string]string) domain.StudentRef {
	ref := domain.StudentRef{ID: id}
	if name, ok := names[id]; ok {
		ref.Name = &name
	}
	return ref
}
