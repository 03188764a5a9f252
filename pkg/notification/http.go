package notification

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/solutionhub/platform/pkg/common/logger"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/notifications", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/notifications/pending-count", h.handlePendingCount).Methods(http.MethodGet)
	r.HandleFunc("/notifications/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/notifications/{id}/delivered", h.handleDelivered).Methods(http.MethodPost)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	items, err := h.repo.FindByUser(r.Context(), resolveUser(r), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list notifications")
		http.Error(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.repo.CountPending(r.Context(), resolveUser(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to count pending notifications")
		http.Error(w, "failed to count notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pending": count})
}

// handleDelivered is the callback edge for the delivery collaborator to
// acknowledge that a channel actually delivered the message.
func (h *Handler) handleDelivered(w http.ResponseWriter, r *http.Request) {
	err := h.repo.MarkDelivered(r.Context(), mux.Vars(r)["id"])
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrNotFound):
		http.Error(w, "notification not found", http.StatusNotFound)
	default:
		logger.Log.WithError(err).Error("failed to mark notification delivered")
		http.Error(w, "failed to update notification", http.StatusInternalServerError)
	}
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.StatsByUser(r.Context(), resolveUser(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute notification statistics")
		http.Error(w, "failed to compute statistics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

func resolveUser(r *http.Request) string {
	if user := r.Header.Get("X-User-ID"); user != "" {
		return user
	}
	return "system"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
