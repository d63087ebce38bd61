package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"quiz-window-service/internal/app"
	"quiz-window-service/internal/domain"
)

// API exposes the quiz use cases over JSON/HTTP.
type API struct {
	service  *app.QuizService
	validate *validator.Validate
	logger   logrus.FieldLogger
}

func NewAPI(service *app.QuizService, logger logrus.FieldLogger) *API {
	return &API{service: service, validate: validator.New(), logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

type userPayload struct {
	Username string `json:"username"`
	Code     string `json:"code"`
}

type createUsersRequest struct {
	Users []userPayload `json:"users" validate:"required,min=1"`
}

type addedUser struct {
	UserCode string `json:"user_code"`
	Username string `json:"username"`
}

type questionPayload struct {
	ID            string   `json:"id" validate:"required"`
	Text          string   `json:"text" validate:"required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Options       []string `json:"options" validate:"required,min=1"`
}

type createQuizRequest struct {
	ID        string            `json:"id" validate:"required"`
	Questions []questionPayload `json:"questions" validate:"required,min=1,dive"`
}

type answerRequest struct {
	QuestionID string `json:"question_id" validate:"required"`
	Answer     string `json:"answer" validate:"required"`
	StudentID  string `json:"student_id" validate:"required"`
}

type rankingRow struct {
	Position            int     `json:"posicao"`
	StudentID           string  `json:"student_id"`
	Name                *string `json:"nome"`
	TotalCorrect        int     `json:"acertos"`
	AverageResponseTime float64 `json:"tempo_medio_resposta"`
}

// HandleAddUsers registers a batch of students; per-user failures are reported alongside the ones added.
func (a *API) HandleAddUsers(w http.ResponseWriter, r *http.Request) {
	var req createUsersRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "At least one user must be provided"})
		return
	}

	students := make([]domain.Student, 0, len(req.Users))
	for _, u := range req.Users {
		students = append(students, domain.Student{ID: u.Code, Username: u.Username})
	}
	added, errs := a.service.RegisterStudents(r.Context(), students)

	addedUsers := make([]addedUser, 0, len(added))
	for _, st := range added {
		addedUsers = append(addedUsers, addedUser{UserCode: st.ID, Username: st.Username})
	}
	if len(errs) > 0 {
		messages := make([]string, 0, len(errs))
		for _, err := range errs {
			messages = append(messages, err.Error())
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": messages, "added_users": addedUsers})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Users added successfully", "added_users": addedUsers})
}

func (a *API) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	students, err := a.service.ListStudents(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	users := make([]addedUser, 0, len(students))
	for _, st := range students {
		users = append(users, addedUser{UserCode: st.ID, Username: st.Username})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) HandleCreateQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Quiz ID and questions are required"})
		return
	}

	quiz := domain.Quiz{ID: req.ID, Questions: make([]domain.Question, 0, len(req.Questions))}
	for _, q := range req.Questions {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:            q.ID,
			Text:          q.Text,
			CorrectAnswer: q.CorrectAnswer,
			Options:       q.Options,
		})
	}
	if err := a.service.CreateQuiz(r.Context(), quiz); err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Quiz created successfully"})
}

// HandleGetQuestion opens the question's answer window on first access.
func (a *API) HandleGetQuestion(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.FetchQuestion(r.Context(), r.PathValue("quiz_id"), r.PathValue("question_id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"question_id": view.QuestionID, "question": view})
}

func (a *API) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Question ID, answer, and student ID are required"})
		return
	}

	result, err := a.service.SubmitAnswer(r.Context(), r.PathValue("quiz_id"), domain.AnswerSubmission{
		QuestionID: req.QuestionID,
		StudentID:  req.StudentID,
		Answer:     req.Answer,
	})
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Answer recorded", "data": result})
}

func (a *API) HandleResponses(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("quiz_id")
	entries, err := a.service.ListResponses(r.Context(), quizID, r.URL.Query().Get("question_id"))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ResponseEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quizID, "responses": entries})
}

func (a *API) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("quiz_id")
	questionID := r.URL.Query().Get("question_id")
	if questionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question_id is required"})
		return
	}
	stats, err := a.service.QuestionAnalytics(r.Context(), quizID, questionID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quizID, "question_id": questionID, "analytics": stats})
}

func (a *API) HandleRanking(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("quiz_id")
	ranking, err := a.service.QuizRanking(r.Context(), quizID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quiz_id": quizID, "ranking": toRankingRows(ranking)})
}

func toRankingRows(records []domain.PerformanceRecord) []rankingRow {
	rows := make([]rankingRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rankingRow{
			Position:            rec.Position,
			StudentID:           rec.StudentID,
			Name:                rec.Name,
			TotalCorrect:        rec.TotalCorrect,
			AverageResponseTime: math.Round(rec.AverageResponseTime*100) / 100,
		})
	}
	return rows
}

func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid JSON body: %v", err)})
		return false
	}
	return true
}

func (a *API) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrNoData):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrWindowExpired),
		errors.Is(err, domain.ErrDuplicateResponse),
		errors.Is(err, domain.ErrQuizExists),
		errors.Is(err, domain.ErrStudentExists):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		a.logger.WithError(err).Error("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "request failed"})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
