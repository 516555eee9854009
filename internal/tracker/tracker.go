// Package tracker turns voice join/leave events into closed sessions. It
// keeps the open session of every connected member in memory and mirrors
// each transition to a Sink, so a member never has two open sessions.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/lazypower/rapport/internal/logutil"
	"github.com/lazypower/rapport/internal/signal"
)

// ErrNotConnected is returned by Leave for a member with no open session.
var ErrNotConnected = errors.New("member is not in a voice channel")

// Sink persists session transitions.
type Sink interface {
	OpenVoiceSession(ctx context.Context, s *signal.VoiceSession) error
	CloseVoiceSession(ctx context.Context, user, guild string, at time.Time) (*signal.VoiceSession, error)
	OpenVoiceSessions(ctx context.Context) ([]signal.VoiceSession, error)
}

type key struct {
	guild string
	user  string
}

// Registry tracks who is connected where. Safe for concurrent use.
type Registry struct {
	sink Sink
	log  *slog.Logger

	mu   sync.Mutex
	open map[key]signal.VoiceSession
}

// New creates an empty Registry writing to sink.
func New(sink Sink, log *slog.Logger) *Registry {
	if log == nil {
		log = logutil.Discard()
	}
	return &Registry{
		sink: sink,
		log:  log,
		open: make(map[key]signal.VoiceSession),
	}
}

// Join opens a session for user in channel. If the user already has one
// open (a missed leave), that session is closed at the join time first.
func (r *Registry) Join(ctx context.Context, guild, user, channelID, channelName string, at time.Time) (*signal.VoiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{guild, user}
	if prev, ok := r.open[k]; ok {
		r.log.Warn("join without leave, closing previous session",
			"guild", guild, "user", user, "channel", prev.ChannelID)
		if _, err := r.closeLocked(ctx, k, at); err != nil {
			return nil, err
		}
	}
	return r.openLocked(ctx, k, channelID, channelName, at)
}

// Leave closes user's open session.
func (r *Registry) Leave(ctx context.Context, guild, user string, at time.Time) (*signal.VoiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{guild, user}
	if _, ok := r.open[k]; !ok {
		return nil, fmt.Errorf("leave %s/%s: %w", guild, user, ErrNotConnected)
	}
	return r.closeLocked(ctx, k, at)
}

// Switch moves user to another channel: the current session is closed and
// a new one opened at the same instant. A switch for a member we have not
// seen join behaves like Join.
func (r *Registry) Switch(ctx context.Context, guild, user, channelID, channelName string, at time.Time) (*signal.VoiceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{guild, user}
	if prev, ok := r.open[k]; ok {
		if prev.ChannelID == channelID {
			return &prev, nil
		}
		if _, err := r.closeLocked(ctx, k, at); err != nil {
			return nil, err
		}
	}
	return r.openLocked(ctx, k, channelID, channelName, at)
}

// Active returns a snapshot of open sessions ordered by join time.
func (r *Registry) Active() []signal.VoiceSession {
	r.mu.Lock()
	out := make([]signal.VoiceSession, 0, len(r.open))
	for _, s := range r.open {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].User < out[j].User
	})
	return out
}

// Shutdown closes every open session at the given time. It keeps going
// after individual failures and returns them joined.
func (r *Registry) Shutdown(ctx context.Context, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for k := range r.open {
		if _, err := r.closeLocked(ctx, k, at); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		r.log.Info("voice tracker flushed")
	}
	return errors.Join(errs...)
}

// Recover closes sessions the sink still has open from a previous run.
// Their true leave time is unknown, so they end at the given time, or at
// their join time if that is later. Returns the number closed.
func (r *Registry) Recover(ctx context.Context, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale, err := r.sink.OpenVoiceSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover voice sessions: %w", err)
	}

	closed := 0
	var errs []error
	for _, s := range stale {
		if _, tracked := r.open[key{s.Guild, s.User}]; tracked {
			continue
		}
		end := at
		if end.Before(s.JoinedAt) {
			end = s.JoinedAt
		}
		if _, err := r.sink.CloseVoiceSession(ctx, s.User, s.Guild, end); err != nil {
			errs = append(errs, fmt.Errorf("close stale session %s: %w", s.ID, err))
			continue
		}
		closed++
	}
	if closed > 0 {
		r.log.Info("closed stale voice sessions", "count", closed)
	}
	return closed, errors.Join(errs...)
}

func (r *Registry) openLocked(ctx context.Context, k key, channelID, channelName string, at time.Time) (*signal.VoiceSession, error) {
	s := signal.VoiceSession{
		User:        k.user,
		Guild:       k.guild,
		ChannelID:   channelID,
		ChannelName: channelName,
		JoinedAt:    at,
	}
	if err := r.sink.OpenVoiceSession(ctx, &s); err != nil {
		return nil, fmt.Errorf("join %s/%s: %w", k.guild, k.user, err)
	}
	r.open[k] = s
	r.log.Debug("voice join", "guild", k.guild, "user", k.user, "channel", channelID)
	return &s, nil
}

func (r *Registry) closeLocked(ctx context.Context, k key, at time.Time) (*signal.VoiceSession, error) {
	s, err := r.sink.CloseVoiceSession(ctx, k.user, k.guild, at)
	if err != nil {
		return nil, fmt.Errorf("leave %s/%s: %w", k.guild, k.user, err)
	}
	delete(r.open, k)
	r.log.Debug("voice leave", "guild", k.guild, "user", k.user, "channel", s.ChannelID,
		"minutes", s.Duration(at).Minutes())
	return s, nil
}
