package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/garnizeh/staffdir/internal/ordering"
)

type ReorderHandler struct {
	sessions *ordering.Manager
}

func NewReorderHandler(sessions *ordering.Manager) *ReorderHandler {
	return &ReorderHandler{sessions: sessions}
}

type dragRequest struct {
	ID string `json:"id"`
}

type hoverRequest struct {
	PointerY   float64              `json:"pointerY"`
	Indicators []ordering.Indicator `json:"indicators"`
}

type dropRequest struct {
	BeforeID string `json:"beforeId"`
}

type dropResponse struct {
	ordering.View
	Changed bool `json:"changed"`
}

// moveTarget accepts the target position as a JSON string or number and keeps
// it as text so the session can validate it.
type moveTarget string

func (t *moveTarget) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = moveTarget(s)
		return nil
	}
	*t = moveTarget(strings.TrimSpace(string(b)))
	return nil
}

type moveRequest struct {
	ID     string     `json:"id"`
	Target moveTarget `json:"target"`
}

func (h *ReorderHandler) session(w http.ResponseWriter, r *http.Request) (*ordering.Session, bool) {
	s, err := h.sessions.Get(mux.Vars(r)["sid"])
	if err != nil {
		writeError(w, r, "reorder session", err)
		return nil, false
	}
	return s, true
}

func (h *ReorderHandler) Open(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Open(r.Context())
	if err != nil {
		writeError(w, r, "failed to load roster", err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *ReorderHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *ReorderHandler) Drag(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req dragRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.DragStart(req.ID); err != nil {
		writeError(w, r, "failed to start drag", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *ReorderHandler) Hover(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req hoverRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	ind, err := s.DragOver(req.PointerY, req.Indicators)
	if err != nil {
		writeError(w, r, "failed to resolve drop target", err)
		return
	}
	writeJSON(w, http.StatusOK, ind)
}

func (h *ReorderHandler) Drop(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req dropRequest
	if err := decodeJSON(r, &req); err != nil || req.BeforeID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	changed, err := s.Drop(req.BeforeID)
	if err != nil {
		writeError(w, r, "failed to drop", err)
		return
	}
	writeJSON(w, http.StatusOK, dropResponse{View: s.Snapshot(), Changed: changed})
}

func (h *ReorderHandler) DragEnd(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.DragEnd()
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *ReorderHandler) Move(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := s.MoveTo(req.ID, string(req.Target)); err != nil {
		writeError(w, r, "failed to move", err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *ReorderHandler) Commit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	v, err := s.Commit(r.Context())
	if err != nil {
		writeError(w, r, "failed to save order", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *ReorderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(mux.Vars(r)["sid"]); err != nil {
		writeError(w, r, "reorder session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
