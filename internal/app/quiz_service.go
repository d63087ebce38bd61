package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"quiz-window-service/internal/domain"
)

// QuizCatalog loads quiz definitions from a backing store (e.g., document DB).
type QuizCatalog interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	ListQuizIDs(ctx context.Context) ([]string, error)
}

// QuizService contains the core quiz use cases.
type QuizService struct {
	store    Store
	now      func() time.Time
	logger   logrus.FieldLogger
	rankings singleflight.Group
}

func NewQuizService(store Store) *QuizService {
	return NewQuizServiceWithClock(store, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(store Store, now func() time.Time) *QuizService {
	return &QuizService{store: store, now: now, logger: logrus.StandardLogger()}
}

// WithLogger replaces the default logrus standard logger.
func (s *QuizService) WithLogger(logger logrus.FieldLogger) *QuizService {
	s.logger = logger
	return s
}

// CreateQuiz stores a quiz and its questions. Quiz ids are write-once.
func (s *QuizService) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := validateQuiz(quiz); err != nil {
		return err
	}

	_, created, err := s.store.HSetNX(ctx, domain.QuizKey(quiz.ID), domain.FieldCreationTime, domain.FormatUnix(s.now()))
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("quiz %s: %w", quiz.ID, domain.ErrQuizExists)
	}

	// The quiz id is latched; a failed question write must release it again
	// so the quiz can be recreated.
	written := []domain.Key{domain.QuizKey(quiz.ID)}
	for _, q := range quiz.Questions {
		if err := s.writeQuestion(ctx, quiz.ID, q); err != nil {
			written = append(written, domain.QuestionKey(quiz.ID, q.ID))
			if delErr := s.store.Del(context.WithoutCancel(ctx), written...); delErr != nil {
				s.logger.WithError(delErr).WithField("quiz_id", quiz.ID).Error("rollback of partial quiz failed")
				return errors.Join(err, delErr)
			}
			return err
		}
		written = append(written, domain.QuestionKey(quiz.ID, q.ID))
	}
	return nil
}

func (s *QuizService) writeQuestion(ctx context.Context, quizID string, q domain.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode options for question %s: %w", q.ID, err)
	}
	return s.store.HSet(ctx, domain.QuestionKey(quizID, q.ID), map[string]string{
		domain.FieldText:          q.Text,
		domain.FieldCorrectAnswer: q.CorrectAnswer,
		domain.FieldOptions:       string(options),
	})
}

// ImportQuizzes copies quizzes from a catalog into the store. An empty ids
// list imports everything the catalog has. Quizzes that already exist are skipped.
func (s *QuizService) ImportQuizzes(ctx context.Context, catalog QuizCatalog, ids []string) ([]string, error) {
	if len(ids) == 0 {
		all, err := catalog.ListQuizIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list catalog: %w", err)
		}
		ids = all
	}

	imported := make([]string, 0, len(ids))
	for _, id := range ids {
		quiz, err := catalog.LoadQuiz(ctx, id)
		if err != nil {
			return imported, fmt.Errorf("load quiz %s: %w", id, err)
		}
		if quiz.ID == "" {
			quiz.ID = id
		}
		err = s.CreateQuiz(ctx, quiz)
		if errors.Is(err, domain.ErrQuizExists) {
			s.logger.WithField("quiz_id", id).Info("quiz already present, skipping")
			continue
		}
		if err != nil {
			return imported, err
		}
		imported = append(imported, id)
	}
	return imported, nil
}

// RegisterStudents adds every valid, unused student code. Students that
// cannot be added are reported individually; the rest are still stored.
func (s *QuizService) RegisterStudents(ctx context.Context, students []domain.Student) ([]domain.Student, []error) {
	added := make([]domain.Student, 0, len(students))
	var errs []error
	for _, st := range students {
		if strings.TrimSpace(st.Username) == "" || strings.TrimSpace(st.ID) == "" {
			errs = append(errs, fmt.Errorf("%w: user code or username missing for user %+v", domain.ErrValidation, st))
			continue
		}
		if err := domain.ValidateID("user", st.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		_, created, err := s.store.HSetNX(ctx, domain.UserKey(st.ID), domain.FieldUsername, st.Username)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !created {
			errs = append(errs, fmt.Errorf("user code %s: %w", st.ID, domain.ErrStudentExists))
			continue
		}
		added = append(added, st)
	}
	return added, errs
}

// ListStudents returns every registered student ordered by id.
func (s *QuizService) ListStudents(ctx context.Context) ([]domain.Student, error) {
	keys, err := s.store.ScanPrefix(ctx, domain.UserScanPrefix())
	if err != nil {
		return nil, err
	}

	students := make([]domain.Student, 0, len(keys))
	for _, raw := range keys {
		key, err := domain.ParseKey(raw)
		if err != nil || key.Kind != domain.KindUser {
			continue
		}
		name, _, err := s.store.HGet(ctx, key, domain.FieldUsername)
		if err != nil {
			return nil, err
		}
		students = append(students, domain.Student{ID: key.StudentID, Username: name})
	}
	return students, nil
}

// ListResponses returns one row per registered student for the question, or
// for every question of the quiz when questionID is empty. Students without a
// response show answer "0" and the unanswered penalty as their time.
func (s *QuizService) ListResponses(ctx context.Context, quizID, questionID string) ([]domain.ResponseEntry, error) {
	if err := s.requireQuiz(ctx, quizID); err != nil {
		return nil, err
	}

	questionIDs := []string{questionID}
	if questionID == "" {
		ids, err := s.questionIDs(ctx, quizID)
		if err != nil {
			return nil, err
		}
		questionIDs = ids
	} else if _, err := s.loadQuestion(ctx, quizID, questionID); err != nil {
		return nil, err
	}

	students, err := s.ListStudents(ctx)
	if err != nil {
		return nil, err
	}

	var entries []domain.ResponseEntry
	for _, qid := range questionIDs {
		answers, times, err := s.responses(ctx, quizID, qid)
		if err != nil {
			return nil, err
		}
		for _, st := range students {
			answer, ok := answers[st.ID]
			if !ok {
				answer = "0"
			}
			entries = append(entries, domain.ResponseEntry{
				QuestionID:   qid,
				StudentID:    st.ID,
				Answer:       answer,
				ResponseTime: responseTime(times, st.ID),
			})
		}
	}
	return entries, nil
}

func (s *QuizService) requireQuiz(ctx context.Context, quizID string) error {
	if err := domain.ValidateID("quiz", quizID); err != nil {
		return err
	}
	ok, err := s.store.Exists(ctx, domain.QuizKey(quizID))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("quiz %s: %w", quizID, domain.ErrQuizNotFound)
	}
	return nil
}

func (s *QuizService) loadQuestion(ctx context.Context, quizID, questionID string) (domain.Question, error) {
	if err := s.requireQuiz(ctx, quizID); err != nil {
		return domain.Question{}, err
	}
	if err := domain.ValidateQuestionID(questionID); err != nil {
		return domain.Question{}, err
	}

	fields, err := s.store.HGetAll(ctx, domain.QuestionKey(quizID, questionID))
	if err != nil {
		return domain.Question{}, err
	}
	if _, ok := fields[domain.FieldCorrectAnswer]; !ok {
		return domain.Question{}, fmt.Errorf("question %s in quiz %s: %w", questionID, quizID, domain.ErrQuestionNotFound)
	}
	return decodeQuestion(questionID, fields)
}

// questionIDs lists the primary question records of a quiz, skipping the
// response, marker and counter keys stored under the same prefix.
func (s *QuizService) questionIDs(ctx context.Context, quizID string) ([]string, error) {
	keys, err := s.store.ScanPrefix(ctx, domain.QuizScanPrefix(quizID))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, raw := range keys {
		key, err := domain.ParseKey(raw)
		if err != nil || key.Kind != domain.KindQuestion || key.QuizID != quizID {
			continue
		}
		ids = append(ids, key.QuestionID)
	}
	return ids, nil
}

func (s *QuizService) responses(ctx context.Context, quizID, questionID string) (answers, times map[string]string, err error) {
	answers, err = s.store.HGetAll(ctx, domain.ResponsesKey(quizID, questionID))
	if err != nil {
		return nil, nil, err
	}
	times, err = s.store.HGetAll(ctx, domain.ResponseTimeKey(quizID, questionID))
	if err != nil {
		return nil, nil, err
	}
	return answers, times, nil
}

// responseTime reads a stored response time, charging the unanswered
// penalty when it is missing or unreadable.
func responseTime(times map[string]string, studentID string) float64 {
	raw, ok := times[studentID]
	if !ok {
		return domain.UnansweredPenalty
	}
	v, err := domain.ParseSeconds(raw)
	if err != nil {
		return domain.UnansweredPenalty
	}
	return v
}

func decodeQuestion(id string, fields map[string]string) (domain.Question, error) {
	q := domain.Question{
		ID:            id,
		Text:          fields[domain.FieldText],
		CorrectAnswer: fields[domain.FieldCorrectAnswer],
	}
	if raw := fields[domain.FieldOptions]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Options); err != nil {
			return domain.Question{}, fmt.Errorf("decode options for question %s: %w", id, err)
		}
	}
	if raw, ok := fields[domain.FieldStartTime]; ok {
		start, err := domain.ParseUnix(raw)
		if err != nil {
			return domain.Question{}, fmt.Errorf("decode start time for question %s: %w", id, err)
		}
		q.WindowStart = &start
	}
	return q, nil
}

func validateQuiz(quiz domain.Quiz) error {
	if err := domain.ValidateID("quiz", quiz.ID); err != nil {
		return err
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz id and questions are required", domain.ErrValidation)
	}

	seen := make(map[string]struct{}, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if err := domain.ValidateQuestionID(q.ID); err != nil {
			return err
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", domain.ErrValidation, q.ID)
		}
		seen[q.ID] = struct{}{}

		if strings.TrimSpace(q.Text) == "" || q.CorrectAnswer == "" || len(q.Options) == 0 {
			return fmt.Errorf("%w: question %s needs text, correct_answer and options", domain.ErrValidation, q.ID)
		}
		options := make(map[string]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if _, dup := options[opt]; dup {
				return fmt.Errorf("%w: question %s repeats option %q", domain.ErrValidation, q.ID, opt)
			}
			options[opt] = struct{}{}
		}
		if _, ok := options[q.CorrectAnswer]; !ok {
			return fmt.Errorf("%w: question %s correct_answer is not one of its options", domain.ErrValidation, q.ID)
		}
	}
	return nil
}
