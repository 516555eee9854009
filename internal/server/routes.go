package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/tracker"
)

const maxTopLimit = 100

// writeError maps domain errors to status codes. Storage failures are 503
// so clients can tell "could not compute" apart from an empty result.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, engine.ErrStorageUnavailable):
		code = http.StatusServiceUnavailable
		msg = "could not compute relationship: " + msg
	case errors.Is(err, tracker.ErrNotConnected),
		errors.Is(err, signal.ErrNoOpenSession),
		errors.Is(err, signal.ErrSessionAlreadyOpen):
		code = http.StatusConflict
	case errors.Is(err, signal.ErrMalformedSession):
		code = http.StatusBadRequest
	}
	if code >= 500 {
		s.log.Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) handleAffinity(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	from := chi.URLParam(r, "from")
	to := chi.URLParam(r, "to")
	if from == to {
		http.Error(w, `{"error":"from and to must be different users"}`, http.StatusBadRequest)
		return
	}

	score, err := s.engine.CalculateAffinity(r.Context(), from, to, guild)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (s *Server) handleRelationship(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	a := chi.URLParam(r, "a")
	b := chi.URLParam(r, "b")
	if a == b {
		http.Error(w, `{"error":"a and b must be different users"}`, http.StatusBadRequest)
		return
	}

	analysis, err := s.engine.AnalyzeRelationship(r.Context(), a, b, guild)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	guild := chi.URLParam(r, "guild")
	user := chi.URLParam(r, "user")

	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			http.Error(w, `{"error":"limit must be a positive integer"}`, http.StatusBadRequest)
			return
		}
		limit = min(n, maxTopLimit)
	}

	top, err := s.engine.TopRelationships(r.Context(), user, guild, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if top == nil {
		top = []engine.AffinityScore{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"guild":         guild,
		"user":          user,
		"relationships": top,
	})
}
