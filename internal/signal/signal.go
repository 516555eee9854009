// Package signal holds the raw records affinity is derived from: directional
// text interactions and voice channel sessions, both scoped to one guild.
package signal

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the type of a text interaction.
type Kind string

const (
	KindReaction Kind = "reaction"
	KindMention  Kind = "mention"
	KindReply    Kind = "reply"
)

// Valid reports whether k is one of the known interaction kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindReaction, KindMention, KindReply:
		return true
	}
	return false
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown interaction kind %q", s)
	}
	return k, nil
}

// Interaction is one directional signal from FromUser toward ToUser.
// Interactions are append-only and never modified once recorded.
type Interaction struct {
	ID        string            `json:"id"`
	FromUser  string            `json:"from_user"`
	ToUser    string            `json:"to_user"`
	Guild     string            `json:"guild"`
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate checks the fields required to store an interaction.
func (i *Interaction) Validate() error {
	if i.FromUser == "" || i.ToUser == "" {
		return errors.New("from_user and to_user required")
	}
	if i.Guild == "" {
		return errors.New("guild required")
	}
	if !i.Kind.Valid() {
		return fmt.Errorf("unknown interaction kind %q", i.Kind)
	}
	if i.Timestamp.IsZero() {
		return errors.New("timestamp required")
	}
	return nil
}

// ErrMalformedSession is returned by VoiceSession.Validate for sessions
// that end before they start.
var ErrMalformedSession = errors.New("voice session ends before it starts")

// ErrNoOpenSession is returned when closing a voice session for a user who
// has none open.
var ErrNoOpenSession = errors.New("no open voice session")

// ErrSessionAlreadyOpen is returned when opening a second session for a
// user who is still connected.
var ErrSessionAlreadyOpen = errors.New("voice session already open")

// VoiceSession is one stay of a user in a voice channel. LeftAt is nil
// while the user is still connected.
type VoiceSession struct {
	ID          string     `json:"id"`
	User        string     `json:"user"`
	Guild       string     `json:"guild"`
	ChannelID   string     `json:"channel_id"`
	ChannelName string     `json:"channel_name,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

// Open reports whether the session has not been closed yet.
func (s *VoiceSession) Open() bool {
	return s.LeftAt == nil
}

// EffectiveEnd is LeftAt for closed sessions and now for open ones.
func (s *VoiceSession) EffectiveEnd(now time.Time) time.Time {
	if s.LeftAt != nil {
		return *s.LeftAt
	}
	return now
}

// Duration is the time spent in the channel as of now. Open sessions that
// started after now count as zero.
func (s *VoiceSession) Duration(now time.Time) time.Duration {
	d := s.EffectiveEnd(now).Sub(s.JoinedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Validate rejects sessions whose LeftAt precedes JoinedAt.
func (s *VoiceSession) Validate() error {
	if s.LeftAt != nil && s.LeftAt.Before(s.JoinedAt) {
		return fmt.Errorf("session %s (user %s): %w", s.ID, s.User, ErrMalformedSession)
	}
	return nil
}

// User is display metadata for a guild member. Scoring never depends on it.
type User struct {
	ID          string `json:"id"`
	Guild       string `json:"guild"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name returns the best human-readable label for the user.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

// PartnerCount is an aggregate of one user's activity toward a partner:
// an interaction count or co-presence minutes depending on the query.
type PartnerCount struct {
	Partner string  `json:"partner"`
	Count   float64 `json:"count"`
}
