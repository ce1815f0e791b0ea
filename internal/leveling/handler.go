package leveling

import (
	"encoding/json"
	"errors"
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

// ── Progress ────────────────────────────────────────────

func (h *Handler) GetLevel(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.service.GetProgress(r.Context(), userID)
	if errors.Is(err, ErrProgressNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "User progress not found"})
		return
	}
	if err != nil {
		h.log.FromContext(r.Context()).Error("get progress failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get progress"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AwardXP(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var req models.AwardXPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	var md Metadata
	if req.Metadata != nil {
		md.Score = req.Metadata.Score
	}

	result, err := h.service.AwardXP(r.Context(), userID, ActivityType(req.ActivityType), md)
	if err != nil {
		h.log.FromContext(r.Context()).Error("award xp failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to award XP"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ── Streak ──────────────────────────────────────────────

func (h *Handler) UpdateStreak(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	if err := h.service.UpdateStreak(r.Context(), userID); err != nil {
		h.log.FromContext(r.Context()).Error("update streak failed", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to update streak"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
