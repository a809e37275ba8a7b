// Package api provides HTTP handlers for the challenge protocol.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/paradox-gate/internal/domain"
	"github.com/ashureev/paradox-gate/internal/engine"
	"github.com/ashureev/paradox-gate/internal/integrity"
)

// SignatureHeader carries the integrity signature over the exact
// request body bytes.
const SignatureHeader = "X-Payload-Signature"

// maxBodyBytes bounds the submit request body.
const maxBodyBytes = 64 << 10

// Handler serves the challenge endpoints.
type Handler struct {
	engine  *engine.Engine
	signer  *integrity.Signer
	backend func() (mode string, fallbackSessions int)
}

// NewHandler creates a Handler. backend reports the active storage
// mode for health checks; nil means the in-process store only.
func NewHandler(eng *engine.Engine, signer *integrity.Signer, backend func() (string, int)) *Handler {
	return &Handler{engine: eng, signer: signer, backend: backend}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// CreateSession opens a session and returns its first challenge.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	res, err := h.engine.CreateSession(r.Context())
	if err != nil {
		slog.Error("Failed to create session", "error", err)
		Error(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	JSON(w, http.StatusOK, res)
}

type respondRequest struct {
	Token   string `json:"token"`
	RoundID string `json:"round_id"`
	Answer  string `json:"answer"`
	Meta    struct {
		TimeMS int64 `json:"time_ms"`
	} `json:"meta"`
}

// Respond verifies, scores and applies one answer.
func (h *Handler) Respond(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	signature := r.Header.Get(SignatureHeader)
	if signature == "" {
		Error(w, http.StatusForbidden, "missing payload signature")
		return
	}
	if !h.signer.Verify(body, signature) {
		Error(w, http.StatusForbidden, "payload signature verification failed")
		return
	}

	var req respondRequest
	if err := json.Unmarshal(body, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if req.Token == "" {
		Error(w, http.StatusBadRequest, "missing token")
		return
	}
	if req.RoundID == "" {
		Error(w, http.StatusBadRequest, "missing round_id")
		return
	}

	res, err := h.engine.SubmitResponse(r.Context(), engine.SubmitRequest{
		Token:   req.Token,
		RoundID: req.RoundID,
		Answer:  req.Answer,
		Meta:    domain.Meta{TimeMS: req.Meta.TimeMS},
	})
	if err != nil {
		h.respondError(w, req.Token, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *Handler) respondError(w http.ResponseWriter, token string, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		Error(w, http.StatusNotFound, "session not found or expired")
	case errors.Is(err, engine.ErrRoundNotFound):
		Error(w, http.StatusNotFound, "round not found")
	case errors.Is(err, engine.ErrRoundAnswered):
		Error(w, http.StatusBadRequest, "round already answered")
	case errors.Is(err, engine.ErrAnswerTooLong):
		Error(w, http.StatusBadRequest, "answer too long")
	default:
		slog.Error("Failed to process response", "token", token, "error", err)
		Error(w, http.StatusInternalServerError, "failed to process response")
	}
}

// Health reports process and storage health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	if h.backend != nil {
		mode, fallbackSessions := h.backend()
		resp["backend"] = mode
		resp["fallback_sessions"] = fallbackSessions
	} else {
		resp["backend"] = "memory"
	}
	JSON(w, http.StatusOK, resp)
}
