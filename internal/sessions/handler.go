package sessions

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/studyforge/backend/internal/logger"
	"github.com/studyforge/backend/internal/middleware"
	"github.com/studyforge/backend/internal/models"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
	log      *logger.Logger
}

func NewHandler(service *Service, log *logger.Logger) *Handler {
	return &Handler{service: service, validate: validator.New(), log: log}
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.RecordSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	resp, err := h.service.Record(r.Context(), userID, req)
	if err != nil {
		h.log.FromContext(r.Context()).Error("record session failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to record session"})
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Recent(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	sessions, err := h.service.Recent(r.Context(), userID)
	if err != nil {
		h.log.FromContext(r.Context()).Error("recent sessions failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get sessions"})
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		h.log.FromContext(r.Context()).Error("session stats failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get stats"})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
