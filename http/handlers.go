package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"firequest/pipeline"
)

// registerHandlers mounts every /api route on r.
func registerHandlers(r chi.Router, h *handlers) {
	r.Get("/api/health", h.handleHealth)
	r.Get("/api/defaults", h.handleDefaults)
	r.Get("/api/predictions", h.handlePredictions)
	r.Get("/api/metrics", h.handleMetrics)

	r.Post("/api/sessions", h.handleCreateSession)
	r.Route("/api/sessions/{id}", func(r chi.Router) {
		r.Delete("/", h.handleEndSession)
		r.Post("/predict", h.handlePredict)
		r.Get("/history", h.handleHistory)
		r.Get("/ws", h.handleWebSocket)
	})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	scored := false
	if h.Model != nil {
		scored = h.Model.SupportsConfidence()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"confidence_scores": scored,
	})
}

func (h *handlers) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.DefaultReading())
}

func (h *handlers) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, r, http.StatusNotFound, "audit_disabled", "prediction audit log is not enabled")
		return
	}

	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		l, err := strconv.Atoi(s)
		if err != nil || l <= 0 {
			writeError(w, r, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = l
	}

	records, err := h.Audit.RecentPredictions(r.Context(), limit)
	if err != nil {
		h.Logger.Error("query audit log", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": records})
}

// handleMetrics serves the Prometheus text format, or JSON with
// ?format=json.
func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		writeError(w, r, http.StatusNotFound, "metrics_disabled", "metrics are not enabled")
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"metrics": h.Metrics.Snapshot(),
			"system":  h.Metrics.GetSystemStats(),
		})
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.Metrics.ExportPrometheus()))
}
