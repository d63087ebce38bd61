package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
	"quiz-window-service/internal/domain"
)

// recordScript performs the duplicate check and the response write in one step.
//
//	KEYS: answered, responses, response_time, submitted_at, correct_answers
//	ARGV: student, answer, response_time, submitted_at, correct ("1"/"0")
var recordScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[4], ARGV[1], ARGV[4])
if ARGV[5] == '1' then
  redis.call('HINCRBY', KEYS[5], ARGV[1], 1)
end
redis.call('SADD', KEYS[1], ARGV[1])
return 1
`)

const scanBatch = 100

// Store implements app.Store on top of Redis hashes and sets.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Exists(ctx context.Context, key domain.Key) (bool, error) {
	n, err := s.client.Exists(ctx, key.String()).Result()
	if err != nil {
		return false, storeErr("exists", key, err)
	}
	return n > 0, nil
}

func (s *Store) HGet(ctx context.Context, key domain.Key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key.String(), field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("hget", key, err)
	}
	return v, true, nil
}

func (s *Store) HGetAll(ctx context.Context, key domain.Key) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, key.String()).Result()
	if err != nil {
		return nil, storeErr("hgetall", key, err)
	}
	return m, nil
}

func (s *Store) HSet(ctx context.Context, key domain.Key, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(fields)*2)
	for f, v := range fields {
		pairs = append(pairs, f, v)
	}
	if err := s.client.HSet(ctx, key.String(), pairs).Err(); err != nil {
		return storeErr("hset", key, err)
	}
	return nil
}

func (s *Store) HSetNX(ctx context.Context, key domain.Key, field, value string) (string, bool, error) {
	set, err := s.client.HSetNX(ctx, key.String(), field, value).Result()
	if err != nil {
		return "", false, storeErr("hsetnx", key, err)
	}
	if set {
		return value, true, nil
	}
	// The field is never rewritten once set, so a follow-up read is stable.
	stored, _, err := s.HGet(ctx, key, field)
	if err != nil {
		return "", false, err
	}
	return stored, false, nil
}

func (s *Store) SMembers(ctx context.Context, key domain.Key) ([]string, error) {
	members, err := s.client.SMembers(ctx, key.String()).Result()
	if err != nil {
		return nil, storeErr("smembers", key, err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *Store) Del(ctx context.Context, keys ...domain.Key) error {
	if len(keys) == 0 {
		return nil
	}
	raw := make([]string, len(keys))
	for i, key := range keys {
		raw[i] = key.String()
	}
	if err := s.client.Del(ctx, raw...).Err(); err != nil {
		return storeErr("del", keys[0], err)
	}
	return nil
}

func (s *Store) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	match := escapeGlob(prefix) + "*"
	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", domain.ErrStore, match, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) RecordResponse(ctx context.Context, w domain.ResponseWrite) (bool, error) {
	keys := []string{
		domain.AnsweredKey(w.QuizID, w.QuestionID).String(),
		domain.ResponsesKey(w.QuizID, w.QuestionID).String(),
		domain.ResponseTimeKey(w.QuizID, w.QuestionID).String(),
		domain.SubmittedAtKey(w.QuizID, w.QuestionID).String(),
		domain.CorrectCounterKey(w.QuizID).String(),
	}
	correct := "0"
	if w.Correct {
		correct = "1"
	}
	n, err := recordScript.Run(ctx, s.client, keys,
		w.StudentID,
		w.Answer,
		domain.FormatSeconds(w.ResponseTime),
		domain.FormatUnix(w.SubmittedAt),
		correct,
	).Int()
	if err != nil {
		return false, fmt.Errorf("%w: record response %s/%s/%s: %v", domain.ErrStore, w.QuizID, w.QuestionID, w.StudentID, err)
	}
	return n == 1, nil
}

func (s *Store) DeleteResponse(ctx context.Context, quizID, questionID, studentID string, correct bool) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, domain.ResponsesKey(quizID, questionID).String(), studentID)
		pipe.HDel(ctx, domain.ResponseTimeKey(quizID, questionID).String(), studentID)
		pipe.HDel(ctx, domain.SubmittedAtKey(quizID, questionID).String(), studentID)
		pipe.SRem(ctx, domain.AnsweredKey(quizID, questionID).String(), studentID)
		if correct {
			pipe.HIncrBy(ctx, domain.CorrectCounterKey(quizID).String(), studentID, -1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: delete response %s/%s/%s: %v", domain.ErrStore, quizID, questionID, studentID, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func storeErr(op string, key domain.Key, err error) error {
	return fmt.Errorf("%w: %s %s: %v", domain.ErrStore, op, key, err)
}

// escapeGlob quotes the characters SCAN MATCH treats as patterns.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
