package http

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"quiz-window-service/internal/app"
)

// NewRouter mounts the REST API, the websocket endpoint and the health check.
func NewRouter(service *app.QuizService, logger logrus.FieldLogger) http.Handler {
	api := NewAPI(service, logger)
	ws := NewWSHandler(service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /users", api.HandleAddUsers)
	mux.HandleFunc("GET /users", api.HandleListUsers)
	mux.HandleFunc("POST /quizzes", api.HandleCreateQuiz)
	mux.HandleFunc("GET /quizzes/{quiz_id}/questions/{question_id}", api.HandleGetQuestion)
	mux.HandleFunc("POST /quizzes/{quiz_id}/answer", api.HandleAnswer)
	mux.HandleFunc("GET /quizzes/{quiz_id}/responses", api.HandleResponses)
	mux.HandleFunc("GET /quizzes/{quiz_id}/analytics", api.HandleAnalytics)
	mux.HandleFunc("GET /quizzes/{quiz_id}/ranking", api.HandleRanking)
	mux.HandleFunc("GET /ws", ws.ServeWS)
	return WithRequestLog(logger, mux)
}
