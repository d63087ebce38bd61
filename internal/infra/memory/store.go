package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"

	"quiz-window-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. A single mutex
// serializes every operation, which makes the compound ones atomic.
type Store struct {
	mu     sync.RWMutex
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (s *Store) Exists(_ context.Context, key domain.Key) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k := key.String()
	if _, ok := s.hashes[k]; ok {
		return true, nil
	}
	_, ok := s.sets[k]
	return ok, nil
}

func (s *Store) HGet(_ context.Context, key domain.Key, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.hashes[key.String()][field]
	return v, ok, nil
}

func (s *Store) HGetAll(_ context.Context, key domain.Key) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.hashes[key.String()]
	out := make(map[string]string, len(h))
	for f, v := range h {
		out[f] = v
	}
	return out, nil
}

func (s *Store) HSet(_ context.Context, key domain.Key, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashLocked(key.String())
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

func (s *Store) HSetNX(_ context.Context, key domain.Key, field, value string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.hashLocked(key.String())
	if existing, ok := h[field]; ok {
		return existing, false, nil
	}
	h[field] = value
	return value, true, nil
}

func (s *Store) SMembers(_ context.Context, key domain.Key) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.sets[key.String()]
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Del(_ context.Context, keys ...domain.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.hashes, key.String())
		delete(s.sets, key.String())
	}
	return nil
}

func (s *Store) ScanPrefix(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.hashes {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	for k := range s.sets {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) RecordResponse(_ context.Context, w domain.ResponseWrite) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	answeredKey := domain.AnsweredKey(w.QuizID, w.QuestionID).String()
	if _, ok := s.sets[answeredKey][w.StudentID]; ok {
		return false, nil
	}

	s.hashLocked(domain.ResponsesKey(w.QuizID, w.QuestionID).String())[w.StudentID] = w.Answer
	s.hashLocked(domain.ResponseTimeKey(w.QuizID, w.QuestionID).String())[w.StudentID] = domain.FormatSeconds(w.ResponseTime)
	s.hashLocked(domain.SubmittedAtKey(w.QuizID, w.QuestionID).String())[w.StudentID] = domain.FormatUnix(w.SubmittedAt)
	if w.Correct {
		s.incrLocked(domain.CorrectCounterKey(w.QuizID).String(), w.StudentID, 1)
	}

	set, ok := s.sets[answeredKey]
	if !ok {
		set = make(map[string]struct{})
		s.sets[answeredKey] = set
	}
	set[w.StudentID] = struct{}{}
	return true, nil
}

func (s *Store) DeleteResponse(_ context.Context, quizID, questionID, studentID string, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []domain.Key{
		domain.ResponsesKey(quizID, questionID),
		domain.ResponseTimeKey(quizID, questionID),
		domain.SubmittedAtKey(quizID, questionID),
	} {
		s.hdelLocked(key.String(), studentID)
	}

	answeredKey := domain.AnsweredKey(quizID, questionID).String()
	if set, ok := s.sets[answeredKey]; ok {
		delete(set, studentID)
		if len(set) == 0 {
			delete(s.sets, answeredKey)
		}
	}

	if correct {
		s.incrLocked(domain.CorrectCounterKey(quizID).String(), studentID, -1)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) hashLocked(key string) map[string]string {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	return h
}

// hdelLocked drops empty hashes the same way Redis does.
func (s *Store) hdelLocked(key, field string) {
	h, ok := s.hashes[key]
	if !ok {
		return
	}
	delete(h, field)
	if len(h) == 0 {
		delete(s.hashes, key)
	}
}

func (s *Store) incrLocked(key, field string, by int) {
	h := s.hashLocked(key)
	n, _ := strconv.Atoi(h[field])
	h[field] = strconv.Itoa(n + by)
}
