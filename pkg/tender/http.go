package tender

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

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
	r.HandleFunc("/tenders", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/tenders/stats", h.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/tenders/{id}", h.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/tenders/{id}/opportunity", h.handleMarkOpportunity).Methods(http.MethodPost)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	filter := parseSearchFilter(r)
	if filter.Page < 1 {
		filter.Page = 1
	}
	tenders, total, err := h.service.Search(r.Context(), filter)
	if err != nil {
		logger.Log.WithError(err).Error("failed to search tenders")
		http.Error(w, "failed to search tenders", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items": tenders,
		"total": total,
		"page":  filter.Page,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "tender not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to get tender")
		http.Error(w, "failed to get tender", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tender": t})
}

func (h *Handler) handleMarkOpportunity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if payload.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	t, err := h.service.MarkOpportunity(r.Context(), mux.Vars(r)["id"], payload.UserID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "tender not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to mark opportunity")
		http.Error(w, "failed to mark opportunity", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tender": t})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("failed to compute dashboard stats")
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stats": stats})
}

func parseSearchFilter(r *http.Request) SearchFilter {
	q := r.URL.Query()
	filter := SearchFilter{
		Query:       q.Get("search"),
		StatusTag:   q.Get("status"),
		ModalityTag: q.Get("modality"),
		State:       q.Get("state"),
		OrgCNPJ:     q.Get("org_cnpj"),
	}
	if v, err := strconv.ParseFloat(q.Get("value_min"), 64); err == nil {
		filter.MinValue = v
	}
	if v, err := strconv.ParseFloat(q.Get("value_max"), 64); err == nil {
		filter.MaxValue = v
	}
	if v, err := time.Parse("2006-01-02", q.Get("date_start")); err == nil {
		filter.PublishedFrom = &v
	}
	if v, err := time.Parse("2006-01-02", q.Get("date_end")); err == nil {
		filter.PublishedTo = &v
	}
	if raw := q.Get("is_monitored"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.IsMonitored = &v
		}
	}
	if raw := q.Get("is_opportunity"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			filter.IsOpportunity = &v
		}
	}
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		filter.Page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filter.PageSize = v
	}
	return filter
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
