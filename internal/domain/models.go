package domain

import "time"

// WindowSeconds is how long a question accepts answers after its first read.
const WindowSeconds = 20

// Window is WindowSeconds as a duration.
const Window = WindowSeconds * time.Second

// UnansweredPenalty is the response time charged for a question a student skipped.
const UnansweredPenalty = float64(WindowSeconds)

// Question is the stored form of a quiz question, including its correct answer.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	CorrectAnswer string   `json:"correct_answer"`
	Options       []string `json:"options"`
	// WindowStart is nil until the question is first read.
	WindowStart *time.Time `json:"-"`
}

// Quiz is a collection of questions. Question order carries no meaning.
type Quiz struct {
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"-"`
	Questions []Question `json:"questions"`
}

// QuestionView is what a student sees: no correct answer.
type QuestionView struct {
	QuizID     string    `json:"quiz_id"`
	QuestionID string    `json:"question_id"`
	Text       string    `json:"text"`
	Options    []string  `json:"options"`
	StartTime  time.Time `json:"start_time"`
}

// Student is a registered participant.
type Student struct {
	ID       string `json:"user_code"`
	Username string `json:"username"`
}

// AnswerSubmission is a student's answer to one question.
type AnswerSubmission struct {
	QuestionID string
	StudentID  string
	Answer     string
}

// SubmissionResult is returned for an accepted answer.
type SubmissionResult struct {
	QuizID       string  `json:"quiz_id"`
	QuestionID   string  `json:"question_id"`
	StudentID    string  `json:"student_id"`
	Answer       string  `json:"answer"`
	Accepted     bool    `json:"accepted"`
	ResponseTime float64 `json:"response_time"`
}

// ResponseWrite is everything persisted for one accepted answer.
type ResponseWrite struct {
	QuizID       string
	QuestionID   string
	StudentID    string
	Answer       string
	ResponseTime float64
	SubmittedAt  time.Time
	Correct      bool
}

// ResponseEntry is one row of a responses listing.
type ResponseEntry struct {
	QuestionID   string  `json:"question_id"`
	StudentID    string  `json:"student_id"`
	Answer       string  `json:"answer"`
	ResponseTime float64 `json:"response_time"`
}

// StudentRef names a student in analytics output. Name is nil when the
// student is no longer registered.
type StudentRef struct {
	ID   string  `json:"id"`
	Name *string `json:"name"`
}

// Performer is a student together with how they did on one question.
type Performer struct {
	StudentRef
	Correct      bool    `json:"correct"`
	ResponseTime float64 `json:"response_time"`
}

// OptionCount is one bucket of the answer distribution.
type OptionCount struct {
	Option string `json:"option"`
	Votes  int    `json:"votes"`
}

// QuestionStats summarizes all responses to a single question.
type QuestionStats struct {
	QuizID              string        `json:"quiz_id"`
	QuestionID          string        `json:"question_id"`
	TotalResponses      int           `json:"total_responses"`
	Acertos             int           `json:"acertos"`
	Erros               int           `json:"erros"`
	AnswerDistribution  []OptionCount `json:"answer_distribution"`
	TopAnswer           *OptionCount  `json:"top_answer"`
	AverageResponseTime float64       `json:"average_response_time"`
	Abstentions         int           `json:"abstentions"`
	BestPerformer       *Performer    `json:"best_performer"`
	FastestPerformer    *Performer    `json:"fastest_performer"`
	TopCorrectStudents  []StudentRef  `json:"top_correct_students"`
}

// PerformanceRecord is a student's aggregate across a whole quiz.
type PerformanceRecord struct {
	Position            int     `json:"position"`
	StudentID           string  `json:"student_id"`
	Name                *string `json:"name"`
	TotalCorrect        int     `json:"total_correct"`
	TotalResponses      int     `json:"total_responses"`
	TotalResponseTime   float64 `json:"total_response_time"`
	AverageResponseTime float64 `json:"average_response_time"`
}

// IsCorrect reports whether answer matches the question's correct answer.
// Correctness is never stored.
func IsCorrect(answer, correctAnswer string) bool {
	return answer == correctAnswer
}
