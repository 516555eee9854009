package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/lazypower/rapport/internal/config"
	"github.com/lazypower/rapport/internal/logutil"
	"github.com/lazypower/rapport/internal/signal"
)

// Source is the read side of the interaction/session store. Every list
// method returns newest records first and honours limit; limit <= 0 means
// no limit. Implementations must return an error when the store cannot
// answer, and an empty result when there is simply no data.
type Source interface {
	FetchInteractions(ctx context.Context, from, to, guild string, limit int) ([]signal.Interaction, error)
	FetchVoiceSessions(ctx context.Context, user, guild string, limit int) ([]signal.VoiceSession, error)
	// TotalVoiceMinutes sums every session of user, counting open sessions up to now.
	TotalVoiceMinutes(ctx context.Context, user, guild string, now time.Time) (float64, error)
	// TopInteractionPartners counts interactions sent by user per target since the given time.
	TopInteractionPartners(ctx context.Context, user, guild string, since time.Time, limit int) ([]signal.PartnerCount, error)
	// TopVoicePartners sums co-presence minutes between user and every other member.
	TopVoicePartners(ctx context.Context, user, guild string, now time.Time, limit int) ([]signal.PartnerCount, error)
	// GetUser returns nil, nil when the user is unknown.
	GetUser(ctx context.Context, id, guild string) (*signal.User, error)
}

// Engine computes affinity scores. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	src        Source
	cfg        config.ScoringConfig
	decay      DecayParams
	classifier Classifier
	log        *slog.Logger
	now        func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock sets the evaluation clock. Each computation reads it once.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger used for skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New creates an Engine reading from src with the given weighting scheme.
func New(src Source, cfg config.ScoringConfig, opts ...Option) *Engine {
	// errgroup.SetLimit(0) blocks every Go call.
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	e := &Engine{
		src: src,
		cfg: cfg,
		decay: DecayParams{
			WindowDays: cfg.DecayWindowDays,
			Tau:        cfg.DecayTau,
			Floor:      cfg.DecayFloor,
		},
		classifier: Classifier{Thresholds: cfg.Thresholds},
		log:        logutil.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the weighting scheme in use.
func (e *Engine) Config() config.ScoringConfig {
	return e.cfg
}

// Classifier returns the relationship classifier in use.
func (e *Engine) Classifier() Classifier {
	return e.classifier
}
