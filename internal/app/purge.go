package app

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-window-service/internal/domain"
)

// Defaults for the retention job.
const (
	DefaultPurgeInterval  = 30 * 24 * time.Hour
	DefaultPurgeRetention = 30 * 24 * time.Hour
)

// PurgeJob evicts responses older than the retention period on a fixed interval.
type PurgeJob struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    logrus.FieldLogger
}

func NewPurgeJob(store Store, interval, retention time.Duration) *PurgeJob {
	return NewPurgeJobWithClock(store, interval, retention, time.Now)
}

// NewPurgeJobWithClock allows deterministic timestamps in tests.
func NewPurgeJobWithClock(store Store, interval, retention time.Duration, now func() time.Time) *PurgeJob {
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	if retention <= 0 {
		retention = DefaultPurgeRetention
	}
	return &PurgeJob{
		store:     store,
		interval:  interval,
		retention: retention,
		now:       now,
		logger:    logrus.StandardLogger().WithField("component", "purge"),
	}
}

// WithLogger replaces the default logger.
func (j *PurgeJob) WithLogger(logger logrus.FieldLogger) *PurgeJob {
	j.logger = logger.WithField("component", "purge")
	return j
}

// Run purges once per interval until ctx is canceled. Failed cycles are
// logged; whatever they missed is picked up by the next one.
func (j *PurgeJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := j.PurgeOnce(ctx)
			if err != nil {
				j.logger.WithError(err).WithField("deleted", deleted).Warn("purge cycle finished with errors")
				continue
			}
			j.logger.WithField("deleted", deleted).Info("purge cycle finished")
		}
	}
}

// Start runs the job in its own goroutine. The returned channel closes once it stops.
func (j *PurgeJob) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()
	return done
}

// PurgeOnce deletes every response submitted more than the retention period
// ago and returns how many were removed. It keeps going past individual
// failures and reports them joined.
func (j *PurgeJob) PurgeOnce(ctx context.Context) (int, error) {
	keys, err := j.store.ScanPrefix(ctx, domain.AllQuizzesScanPrefix())
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.retention)
	deleted := 0
	var errs []error
	for _, raw := range keys {
		key, err := domain.ParseKey(raw)
		if err != nil || key.Kind != domain.KindAnswered {
			continue
		}
		n, err := j.purgeQuestion(ctx, key.QuizID, key.QuestionID, cutoff)
		deleted += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return deleted, errors.Join(errs...)
}

func (j *PurgeJob) purgeQuestion(ctx context.Context, quizID, questionID string, cutoff time.Time) (int, error) {
	students, err := j.store.SMembers(ctx, domain.AnsweredKey(quizID, questionID))
	if err != nil {
		return 0, err
	}
	submitted, err := j.store.HGetAll(ctx, domain.SubmittedAtKey(quizID, questionID))
	if err != nil {
		return 0, err
	}
	answers, err := j.store.HGetAll(ctx, domain.ResponsesKey(quizID, questionID))
	if err != nil {
		return 0, err
	}
	correctAnswer, _, err := j.store.HGet(ctx, domain.QuestionKey(quizID, questionID), domain.FieldCorrectAnswer)
	if err != nil {
		return 0, err
	}

	deleted := 0
	var errs []error
	for _, studentID := range students {
		raw, ok := submitted[studentID]
		if !ok {
			continue
		}
		at, err := domain.ParseUnix(raw)
		if err != nil {
			j.logger.WithError(err).WithFields(logrus.Fields{
				"quiz_id": quizID, "question_id": questionID, "student_id": studentID,
			}).Warn("unreadable submission time")
			continue
		}
		if !at.Before(cutoff) {
			continue
		}

		answer, hasAnswer := answers[studentID]
		correct := hasAnswer && domain.IsCorrect(answer, correctAnswer)
		if err := j.store.DeleteResponse(ctx, quizID, questionID, studentID, correct); err != nil {
			errs = append(errs, err)
			continue
		}
		deleted++
		j.logger.WithFields(logrus.Fields{
			"quiz_id": quizID, "question_id": questionID, "student_id": studentID,
		}).Debug("expired answer deleted")
	}
	return deleted, errors.Join(errs...)
}
