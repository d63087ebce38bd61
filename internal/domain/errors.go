package domain

import "errors"

var (
	// ErrValidation is returned when a required field is missing or malformed.
	ErrValidation = errors.New("validation failed")
	// ErrQuizNotFound indicates the quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates the question does not exist in the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrWindowExpired is returned for answers submitted after the window closed
	// or before it was ever opened.
	ErrWindowExpired = errors.New("time expired for answering this question")
	// ErrDuplicateResponse is returned when a student already answered the question.
	ErrDuplicateResponse = errors.New("user has already answered this question")
	// ErrNoData is returned when analytics are requested for a question nobody answered.
	ErrNoData = errors.New("no responses found for this question")
	// ErrQuizExists is returned when creating a quiz whose id is taken.
	ErrQuizExists = errors.New("quiz id already exists")
	// ErrStudentExists is returned when registering a student code twice.
	ErrStudentExists = errors.New("user code already exists")
	// ErrStore wraps failures of the underlying store.
	ErrStore = errors.New("store failure")
)
