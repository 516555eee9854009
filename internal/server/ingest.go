package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/rapport/internal/signal"
)

// at returns the event time from a request, defaulting to now.
func (s *Server) at(t *time.Time) time.Time {
	if t == nil || t.IsZero() {
		return s.now()
	}
	return *t
}

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID        string            `json:"id"`
		FromUser  string            `json:"from_user"`
		ToUser    string            `json:"to_user"`
		Kind      string            `json:"kind"`
		Timestamp *time.Time        `json:"timestamp"`
		Metadata  map[string]string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	kind, err := signal.ParseKind(req.Kind)
	if err != nil {
		http.Error(w, `{"error":"kind must be reaction, mention or reply"}`, http.StatusBadRequest)
		return
	}

	ev := &signal.Interaction{
		ID:        req.ID,
		FromUser:  req.FromUser,
		ToUser:    req.ToUser,
		Guild:     chi.URLParam(r, "guild"),
		Kind:      kind,
		Timestamp: s.at(req.Timestamp),
		Metadata:  req.Metadata,
	}
	if err := ev.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.backend.RecordInteraction(r.Context(), ev); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		Username    string `json:"username"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, `{"error":"id required"}`, http.StatusBadRequest)
		return
	}

	u := &signal.User{ID: req.ID, Guild: chi.URLParam(r, "guild"), Username: req.Username, DisplayName: req.DisplayName}
	if err := s.backend.UpsertUser(r.Context(), u); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type voiceRequest struct {
	User        string     `json:"user"`
	ChannelID   string     `json:"channel_id"`
	ChannelName string     `json:"channel_name"`
	At          *time.Time `json:"at"`
}

func decodeVoice(w http.ResponseWriter, r *http.Request, needChannel bool) (voiceRequest, bool) {
	var req voiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid json"}`, http.StatusBadRequest)
		return req, false
	}
	if req.User == "" {
		http.Error(w, `{"error":"user required"}`, http.StatusBadRequest)
		return req, false
	}
	if needChannel && req.ChannelID == "" {
		http.Error(w, `{"error":"channel_id required"}`, http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (s *Server) handleVoiceJoin(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVoice(w, r, true)
	if !ok {
		return
	}
	vs, err := s.tracker.Join(r.Context(), chi.URLParam(r, "guild"), req.User, req.ChannelID, req.ChannelName, s.at(req.At))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, vs)
}

func (s *Server) handleVoiceSwitch(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVoice(w, r, true)
	if !ok {
		return
	}
	vs, err := s.tracker.Switch(r.Context(), chi.URLParam(r, "guild"), req.User, req.ChannelID, req.ChannelName, s.at(req.At))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleVoiceLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeVoice(w, r, false)
	if !ok {
		return
	}
	vs, err := s.tracker.Leave(r.Context(), chi.URLParam(r, "guild"), req.User, s.at(req.At))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleActiveVoice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.tracker.Active()})
}
