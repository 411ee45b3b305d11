package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"firequest/pipeline"
	"firequest/session"
)

func (h *handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.Sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": s.ID,
		"created_at": s.CreatedAt,
	})
}

func (h *handlers) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.End(chi.URLParam(r, "id")); err != nil {
		h.sessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyResponse struct {
	Entries []pipeline.HistoryEntry `json:"entries"`
	Summary []string                `json:"summary"`
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, r, err)
		return
	}
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	tag := language.English
	if len(tags) > 0 {
		tag = tags[0]
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Entries: s.History(),
		Summary: s.Summary(tag),
	})
}

func (h *handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		writeError(w, r, http.StatusNotFound, "stream_disabled", "live history stream is not enabled")
		return
	}
	s, err := h.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, r, err)
		return
	}
	h.Hub.Serve(w, r, s.ID)
}

func (h *handlers) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal_error", err.Error())
}
