// Package handlers hosts the HTTP surface of the answering service.
package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/telemed/dr-ai-service/internal/assistant"
	"github.com/telemed/dr-ai-service/pkg/logging"
)

const maxQuestionLen = 2000

// AnswerService is the pipeline consumed by the HTTP layer.
type AnswerService interface {
	Answer(ctx context.Context, req assistant.AnswerRequest) assistant.AnswerResult
}

// AnswerHandler exposes the patient question endpoint.
type AnswerHandler struct {
	service AnswerService
	logger  *logging.Logger
}

// NewAnswerHandler wires the answering pipeline into an HTTP handler.
func NewAnswerHandler(service AnswerService, logger *logging.Logger) *AnswerHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AnswerHandler{service: service, logger: logger}
}

type answerPayload struct {
	Question  string `json:"question"`
	PatientID int64  `json:"patientId"`
}

// HandleAnswer serves POST /api/ai/answers.
func (h *AnswerHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	var payload answerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	question := strings.TrimSpace(payload.Question)
	if question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(question) > maxQuestionLen {
		writeError(w, http.StatusBadRequest, "question is too long")
		return
	}
	if payload.PatientID <= 0 {
		writeError(w, http.StatusBadRequest, "patientId is required")
		return
	}

	result := h.service.Answer(r.Context(), assistant.AnswerRequest{
		Question:  question,
		PatientID: payload.PatientID,
		IP:        clientIP(r),
	})

	if result.Status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfterSec))
	}
	writeJSON(w, result.Status, result.Answer)
}

// clientIP trusts chi's RealIP middleware, which already resolved
// X-Forwarded-For into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
