package domain

import (
	"fmt"
	"strings"
)

// KeyKind enumerates the records of the store schema.
type KeyKind int

const (
	KindQuiz KeyKind = iota + 1
	KindQuestion
	KindResponses
	KindAnswered
	KindResponseTime
	KindSubmittedAt
	KindCorrectCounter
	KindUser
)

func (k KeyKind) String() string {
	switch k {
	case KindQuiz:
		return "quiz"
	case KindQuestion:
		return "question"
	case KindResponses:
		return "responses"
	case KindAnswered:
		return "answered"
	case KindResponseTime:
		return "response_time"
	case KindSubmittedAt:
		return "submitted_at"
	case KindCorrectCounter:
		return "correct_answers"
	case KindUser:
		return "user"
	default:
		return "unknown"
	}
}

// Hash fields used by the schema.
const (
	FieldCreationTime  = "creation_time"
	FieldText          = "text"
	FieldCorrectAnswer = "correct_answer"
	FieldOptions       = "options"
	FieldStartTime     = "start_time"
	FieldUsername      = "username"
)

const (
	quizPrefix = "quiz"
	userPrefix = "user"
	timePrefix = "time"
	sep        = ":"
)

// Key addresses one record of the store. Only the ids relevant to Kind are set.
//
//	quiz:{quiz}                                  KindQuiz
//	quiz:{quiz}:{question}                       KindQuestion
//	quiz:{quiz}:{question}:responses             KindResponses
//	quiz:{quiz}:{question}:answered              KindAnswered
//	time:quiz:{quiz}:{question}:response_time    KindResponseTime
//	time:quiz:{quiz}:{question}:submitted_at     KindSubmittedAt
//	quiz:{quiz}:correct_answers                  KindCorrectCounter
//	user:{student}                               KindUser
type Key struct {
	Kind       KeyKind
	QuizID     string
	QuestionID string
	StudentID  string
}

func QuizKey(quizID string) Key { return Key{Kind: KindQuiz, QuizID: quizID} }

func QuestionKey(quizID, questionID string) Key {
	return Key{Kind: KindQuestion, QuizID: quizID, QuestionID: questionID}
}

func ResponsesKey(quizID, questionID string) Key {
	return Key{Kind: KindResponses, QuizID: quizID, QuestionID: questionID}
}

func AnsweredKey(quizID, questionID string) Key {
	return Key{Kind: KindAnswered, QuizID: quizID, QuestionID: questionID}
}

func ResponseTimeKey(quizID, questionID string) Key {
	return Key{Kind: KindResponseTime, QuizID: quizID, QuestionID: questionID}
}

func SubmittedAtKey(quizID, questionID string) Key {
	return Key{Kind: KindSubmittedAt, QuizID: quizID, QuestionID: questionID}
}

func CorrectCounterKey(quizID string) Key {
	return Key{Kind: KindCorrectCounter, QuizID: quizID}
}

func UserKey(studentID string) Key { return Key{Kind: KindUser, StudentID: studentID} }

// String renders the key in its store form.
func (k Key) String() string {
	switch k.Kind {
	case KindQuiz:
		return join(quizPrefix, k.QuizID)
	case KindQuestion:
		return join(quizPrefix, k.QuizID, k.QuestionID)
	case KindResponses:
		return join(quizPrefix, k.QuizID, k.QuestionID, "responses")
	case KindAnswered:
		return join(quizPrefix, k.QuizID, k.QuestionID, "answered")
	case KindResponseTime:
		return join(timePrefix, quizPrefix, k.QuizID, k.QuestionID, "response_time")
	case KindSubmittedAt:
		return join(timePrefix, quizPrefix, k.QuizID, k.QuestionID, "submitted_at")
	case KindCorrectCounter:
		return join(quizPrefix, k.QuizID, "correct_answers")
	case KindUser:
		return join(userPrefix, k.StudentID)
	default:
		return ""
	}
}

// QuizScanPrefix matches every key owned by quizID below the quiz record.
func QuizScanPrefix(quizID string) string { return join(quizPrefix, quizID) + sep }

// AllQuizzesScanPrefix matches every quiz-owned key.
func AllQuizzesScanPrefix() string { return quizPrefix + sep }

// UserScanPrefix matches every user record.
func UserScanPrefix() string { return userPrefix + sep }

// ParseKey recovers a Key from its store form. Strings outside the schema are rejected.
func ParseKey(raw string) (Key, error) {
	parts := strings.Split(raw, sep)
	for _, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("parse key %q: empty segment", raw)
		}
	}

	switch {
	case parts[0] == userPrefix && len(parts) == 2:
		return UserKey(parts[1]), nil
	case parts[0] == quizPrefix && len(parts) == 2:
		return QuizKey(parts[1]), nil
	case parts[0] == quizPrefix && len(parts) == 3:
		if parts[2] == "correct_answers" {
			return CorrectCounterKey(parts[1]), nil
		}
		return QuestionKey(parts[1], parts[2]), nil
	case parts[0] == quizPrefix && len(parts) == 4:
		switch parts[3] {
		case "responses":
			return ResponsesKey(parts[1], parts[2]), nil
		case "answered":
			return AnsweredKey(parts[1], parts[2]), nil
		}
	case parts[0] == timePrefix && len(parts) == 5 && parts[1] == quizPrefix:
		switch parts[4] {
		case "response_time":
			return ResponseTimeKey(parts[2], parts[3]), nil
		case "submitted_at":
			return SubmittedAtKey(parts[2], parts[3]), nil
		}
	}
	return Key{}, fmt.Errorf("parse key %q: not in schema", raw)
}

// ValidateID rejects ids that would break the key schema.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s id is required", ErrValidation, kind)
	}
	if strings.Contains(id, sep) {
		return fmt.Errorf("%w: %s id %q must not contain %q", ErrValidation, kind, id, sep)
	}
	return nil
}

// ValidateQuestionID also rejects ids that collide with reserved key suffixes.
func ValidateQuestionID(id string) error {
	if err := ValidateID("question", id); err != nil {
		return err
	}
	if id == "correct_answers" {
		return fmt.Errorf("%w: question id %q is reserved", ErrValidation, id)
	}
	return nil
}

func join(parts ...string) string { return strings.Join(parts, sep) }
