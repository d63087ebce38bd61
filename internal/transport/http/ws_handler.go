package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"quiz-window-service/internal/app"
	"quiz-window-service/internal/domain"
)

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   logrus.FieldLogger
}

func NewWSHandler(service *app.QuizService, logger logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type fetchPayload struct {
	QuestionID string `json:"questionId"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// outbox feeds a single writer goroutine. Once the writer has stopped, push
// reports false instead of blocking.
type outbox struct {
	ch   chan outboundMessage[any]
	done chan struct{}
}

func newOutbox(size int) *outbox {
	return &outbox{ch: make(chan outboundMessage[any], size), done: make(chan struct{})}
}

// run writes queued messages until the queue is closed or a write fails.
func (o *outbox) run(write func(outboundMessage[any]) error) error {
	defer close(o.done)
	for msg := range o.ch {
		if err := write(msg); err != nil {
			return err
		}
	}
	return nil
}

func (o *outbox) push(msg outboundMessage[any]) bool {
	select {
	case o.ch <- msg:
		return true
	case <-o.done:
		return false
	}
}

// close stops the writer and waits for it.
func (o *outbox) close() {
	close(o.ch)
	<-o.done
}

// ServeWS upgrades a student's connection and serves question fetches, answers and ranking
// lookups for one quiz.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	studentID := r.URL.Query().Get("studentId")
	if quizID == "" || studentID == "" {
		http.Error(w, "missing quizId or studentId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	out := newOutbox(16)
	go func() {
		if err := out.run(func(msg outboundMessage[any]) error { return conn.WriteJSON(msg) }); err != nil {
			h.logger.WithError(err).WithField("student_id", studentID).Warn("ws write error")
		}
	}()
	defer out.close()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		if !out.push(h.handle(r, quizID, studentID, inbound)) {
			return
		}
	}
}

func (h *WSHandler) handle(r *http.Request, quizID, studentID string, inbound inboundMessage) outboundMessage[any] {
	fail := func(msg string) outboundMessage[any] {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
	}

	switch inbound.Type {
	case "fetch":
		var payload fetchPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail("invalid fetch payload")
		}
		view, err := h.service.FetchQuestion(r.Context(), quizID, payload.QuestionID)
		if err != nil {
			return fail(err.Error())
		}
		return outboundMessage[any]{Type: "question", Payload: view}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return fail("invalid answer payload")
		}
		result, err := h.service.SubmitAnswer(r.Context(), quizID, domain.AnswerSubmission{
			QuestionID: payload.QuestionID,
			StudentID:  studentID,
			Answer:     payload.Answer,
		})
		if err != nil {
			return fail(err.Error())
		}
		return outboundMessage[any]{Type: "answerResult", Payload: result}
	case "ranking":
		ranking, err := h.service.QuizRanking(r.Context(), quizID)
		if err != nil {
			return fail(err.Error())
		}
		return outboundMessage[any]{Type: "ranking", Payload: toRankingRows(ranking)}
	default:
		return fail("unsupported message type")
	}
}
