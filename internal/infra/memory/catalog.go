package memory

import (
	"context"
	"sort"

	"quiz-window-service/internal/domain"
)

// StaticCatalog is a quiz catalog backed by an in-memory map (useful for tests/demos).
type StaticCatalog struct {
	quizzes map[string]domain.Quiz
}

func NewStaticCatalog(quizzes map[string]domain.Quiz) *StaticCatalog {
	return &StaticCatalog{quizzes: quizzes}
}

func (c *StaticCatalog) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (c *StaticCatalog) ListQuizIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(c.quizzes))
	for id := range c.quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
