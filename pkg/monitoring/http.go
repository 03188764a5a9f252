package monitoring

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/solutionhub/platform/pkg/common/logger"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/monitoring/rules", h.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/rules", h.handleList).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/rules/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/rules/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/monitoring/rules/{id}", h.handleUpdate).Methods(http.MethodPut)
	r.HandleFunc("/monitoring/rules/{id}", h.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/monitoring/rules/{id}/pause", h.handlePause).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/rules/{id}/resume", h.handleResume).Methods(http.MethodPost)
	r.HandleFunc("/monitoring/rules/{id}/stop", h.handleStop).Methods(http.MethodPost)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input CreateRuleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if input.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	rule, err := h.service.Create(r.Context(), resolveUser(r), input)
	if err != nil {
		logger.Log.WithError(err).Error("failed to create monitoring rule")
		http.Error(w, "failed to create rule", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"rule": rule})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	rules, err := h.service.ListByUser(r.Context(), resolveUser(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list monitoring rules")
		http.Error(w, "failed to list rules", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": rules})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Get(r.Context(), mux.Vars(r)["id"], resolveUser(r))
	if handled := writeRuleError(w, err); handled {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule": rule})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var input CreateRuleInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	rule, err := h.service.Update(r.Context(), mux.Vars(r)["id"], resolveUser(r), input)
	if handled := writeRuleError(w, err); handled {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule": rule})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), mux.Vars(r)["id"], resolveUser(r))
	if handled := writeRuleError(w, err); handled {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Pause(r.Context(), mux.Vars(r)["id"], resolveUser(r))
	if handled := writeRuleError(w, err); handled {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule": rule})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Resume(r.Context(), mux.Vars(r)["id"], resolveUser(r))
	if handled := writeRuleError(w, err); handled {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule": rule})
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Stop(r.Context(), mux.Vars(r)["id"], resolveUser(r))
	if handled := writeRuleError(w, err); handled {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rule": rule})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context(), resolveUser(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute rule statistics")
		http.Error(w, "failed to compute statistics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

func writeRuleError(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound):
		http.Error(w, "rule not found", http.StatusNotFound)
	case errors.Is(err, ErrUnauthorized):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		logger.Log.WithError(err).Error("monitoring rule operation failed")
		http.Error(w, "operation failed", http.StatusInternalServerError)
	}
	return true
}

// resolveUser extracts the authenticated user injected by the gateway's
// auth middleware; identity management itself lives outside this service.
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
