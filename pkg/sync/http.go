package sync

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/solutionhub/platform/pkg/common/logger"
	"github.com/solutionhub/platform/pkg/common/models"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/sync", h.handleTrigger).Methods(http.MethodPost)
	r.HandleFunc("/sync/status", h.handleStatus).Methods(http.MethodGet)
}

// handleTrigger runs a manual sync inline and returns its summary. A run
// already in flight yields 409 rather than queueing.
func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req models.ManualSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}

	result, err := h.engine.RunManual(r.Context(), req)
	switch {
	case errors.Is(err, ErrSyncRunning):
		http.Error(w, "sync already running", http.StatusConflict)
	case err != nil && result == nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		logger.Log.WithError(err).Error("manual sync failed")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"result": result,
			"error":  err.Error(),
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
