package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ravenwood/storyteller/pkg/storyteller"
	"github.com/ravenwood/storyteller/pkg/types"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIngestEvent accepts one engine event, with an optional authoritative
// state snapshot alongside it, and hands both to the room's agent. Ingest is
// accepted-and-forgotten: the agent decides asynchronously whether and how
// to react.
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	st, roomID, ok := s.room(w, r)
	if !ok {
		return
	}

	var req struct {
		types.Event
		State *types.EngineSnapshot `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	req.RoomID = roomID

	var state any
	if req.State != nil {
		req.State.RoomID = roomID
		state = *req.State
	}
	st.OnEvent(r.Context(), req.Event, state)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.room(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, st.Status())
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _, ok := s.room(w, r)
		if !ok {
			return
		}
		st.SetEnabled(enabled)
		respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
	}
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.room(w, r)
	if !ok {
		return
	}

	forDM := isTruthy(r.URL.Query().Get("dm"))
	summary, err := st.GetSummary(r.Context(), forDM)
	if err != nil {
		s.log.Error("summary failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	st, _, ok := s.room(w, r)
	if !ok {
		return
	}

	report, err := st.AnalyzePlayers(r.Context())
	if err != nil {
		s.log.Error("player analysis failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to analyze players")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"analysis": report})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run store is not configured")
		return
	}
	roomID := chi.URLParam(r, "roomID")

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), roomID, limit)
	if err != nil {
		s.log.Error("list runs failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []types.AgentRun{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run store is not configured")
		return
	}
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.GetRun(r.Context(), runID)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			respondError(w, http.StatusNotFound, "run not found")
			return
		}
		s.log.Error("get run failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// room resolves the request's room or writes a 404.
func (s *Server) room(w http.ResponseWriter, r *http.Request) (*storyteller.Storyteller, string, bool) {
	roomID := chi.URLParam(r, "roomID")
	st, ok := s.rooms.Get(roomID)
	if !ok {
		respondError(w, http.StatusNotFound, "room not found")
		return nil, "", false
	}
	return st, roomID, true
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
