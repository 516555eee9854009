package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/logutil"
	"github.com/lazypower/rapport/internal/signal"
	"github.com/lazypower/rapport/internal/tracker"
)

// Backend is the storage the server reads scores from and writes events to.
type Backend interface {
	engine.Source
	tracker.Sink
	RecordInteraction(ctx context.Context, i *signal.Interaction) error
	UpsertUser(ctx context.Context, u *signal.User) error
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
	Now            func() time.Time
}

// Server is the rapport HTTP API server.
type Server struct {
	backend Backend
	engine  *engine.Engine
	tracker *tracker.Registry
	log     *slog.Logger
	router  chi.Router
	version string
	origins []string
	started time.Time
	now     func() time.Time
}

// New creates a new Server.
func New(b Backend, eng *engine.Engine, reg *tracker.Registry, opts Options) *Server {
	s := &Server{
		backend: b,
		engine:  eng,
		tracker: reg,
		log:     opts.Logger,
		version: opts.Version,
		origins: opts.AllowedOrigins,
		now:     opts.Now,
	}
	if s.log == nil {
		s.log = logutil.Discard()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	s.started = s.now()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/voice/active", s.handleActiveVoice)

		r.Route("/guilds/{guild}", func(r chi.Router) {
			// Scoring
			r.Get("/affinity/{from}/{to}", s.handleAffinity)
			r.Get("/relationships/{a}/{b}", s.handleRelationship)
			r.Get("/users/{user}/top", s.handleTop)
			r.Get("/users/{user}/summary", s.handleSummary)

			// Ingestion
			r.Post("/interactions", s.handleRecordInteraction)
			r.Post("/users", s.handleUpsertUser)
			r.Post("/voice/join", s.handleVoiceJoin)
			r.Post("/voice/leave", s.handleVoiceLeave)
			r.Post("/voice/switch", s.handleVoiceSwitch)
		})
	})

	s.router = r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if p, ok := s.backend.(pinger); ok {
		if err := p.PingContext(r.Context()); err != nil {
			dbOK = false
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  s.now().Sub(s.started).Seconds(),
		"db":      dbOK,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
