package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/rapport/internal/signal"
)

// Aliases so callers holding a *DB need not import signal for errors.Is.
var (
	ErrNoOpenSession      = signal.ErrNoOpenSession
	ErrSessionAlreadyOpen = signal.ErrSessionAlreadyOpen
)

const voiceColumns = `id, guild, user_id, channel_id, channel_name, joined_at, left_at`

func scanVoiceSession(scan func(...any) error) (signal.VoiceSession, error) {
	var s signal.VoiceSession
	var joinedAt int64
	var leftAt sql.NullInt64
	if err := scan(&s.ID, &s.Guild, &s.User, &s.ChannelID, &s.ChannelName, &joinedAt, &leftAt); err != nil {
		return s, err
	}
	s.JoinedAt = fromMillis(joinedAt)
	if leftAt.Valid {
		t := fromMillis(leftAt.Int64)
		s.LeftAt = &t
	}
	return s, nil
}

// OpenVoiceSession records a join. A user can have at most one open
// session per guild.
func (db *DB) OpenVoiceSession(ctx context.Context, s *signal.VoiceSession) error {
	if s.User == "" || s.Guild == "" || s.ChannelID == "" {
		return fmt.Errorf("open voice session: user, guild and channel_id required")
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("open voice session: %w", err)
	}

	open, err := db.GetOpenVoiceSession(ctx, s.User, s.Guild)
	if err != nil {
		return err
	}
	if open != nil {
		return fmt.Errorf("open voice session for %s: %w", s.User, ErrSessionAlreadyOpen)
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var leftAt sql.NullInt64
	if s.LeftAt != nil {
		leftAt = sql.NullInt64{Int64: toMillis(*s.LeftAt), Valid: true}
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO voice_sessions (`+voiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.Guild, s.User, s.ChannelID, s.ChannelName, toMillis(s.JoinedAt), leftAt)
	if err != nil {
		return fmt.Errorf("insert voice session: %w", err)
	}
	return nil
}

// CloseVoiceSession sets left_at on the user's open session and returns it.
func (db *DB) CloseVoiceSession(ctx context.Context, user, guild string, at time.Time) (*signal.VoiceSession, error) {
	open, err := db.GetOpenVoiceSession(ctx, user, guild)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return nil, fmt.Errorf("close voice session for %s: %w", user, ErrNoOpenSession)
	}
	if at.Before(open.JoinedAt) {
		return nil, fmt.Errorf("close voice session %s: %w", open.ID, signal.ErrMalformedSession)
	}

	_, err = db.ExecContext(ctx, `
		UPDATE voice_sessions SET left_at = ? WHERE id = ? AND left_at IS NULL
	`, toMillis(at), open.ID)
	if err != nil {
		return nil, fmt.Errorf("close voice session: %w", err)
	}
	left := fromMillis(toMillis(at))
	open.LeftAt = &left
	return open, nil
}

// GetOpenVoiceSession returns the user's open session, or nil.
func (db *DB) GetOpenVoiceSession(ctx context.Context, user, guild string) (*signal.VoiceSession, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+voiceColumns+` FROM voice_sessions
		WHERE guild = ? AND user_id = ? AND left_at IS NULL
	`, guild, user)
	s, err := scanVoiceSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open voice session: %w", err)
	}
	return &s, nil
}

// OpenVoiceSessions lists every session still open, across guilds.
func (db *DB) OpenVoiceSessions(ctx context.Context) ([]signal.VoiceSession, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+voiceColumns+` FROM voice_sessions
		WHERE left_at IS NULL ORDER BY joined_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list open voice sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// FetchVoiceSessions returns user's sessions in guild, newest first.
func (db *DB) FetchVoiceSessions(ctx context.Context, user, guild string, limit int) ([]signal.VoiceSession, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+voiceColumns+` FROM voice_sessions
		WHERE guild = ? AND user_id = ?
		ORDER BY joined_at DESC
		LIMIT ?
	`, guild, user, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch voice sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]signal.VoiceSession, error) {
	var out []signal.VoiceSession
	for rows.Next() {
		s, err := scanVoiceSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan voice session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TotalVoiceMinutes sums all of user's session time in guild. Open
// sessions count up to now.
func (db *DB) TotalVoiceMinutes(ctx context.Context, user, guild string, now time.Time) (float64, error) {
	nowMs := toMillis(now)
	var totalMs int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(MAX(0, COALESCE(left_at, ?) - joined_at)), 0)
		FROM voice_sessions
		WHERE guild = ? AND user_id = ?
	`, nowMs, guild, user).Scan(&totalMs)
	if err != nil {
		return 0, fmt.Errorf("total voice minutes: %w", err)
	}
	return float64(totalMs) / 60000, nil
}

// TopVoicePartners sums raw pairwise overlap between user's sessions and
// everyone else's in the same channel, largest first. Overlaps are not
// merged here; the figure is only used to pick candidates.
func (db *DB) TopVoicePartners(ctx context.Context, user, guild string, now time.Time, limit int) ([]signal.PartnerCount, error) {
	nowMs := toMillis(now)
	rows, err := db.QueryContext(ctx, `
		SELECT b.user_id,
		       SUM(MIN(COALESCE(a.left_at, ?), COALESCE(b.left_at, ?)) - MAX(a.joined_at, b.joined_at)) AS overlap_ms
		FROM voice_sessions a
		JOIN voice_sessions b
		  ON b.guild = a.guild AND b.channel_id = a.channel_id AND b.user_id != a.user_id
		WHERE a.guild = ? AND a.user_id = ?
		  AND MAX(a.joined_at, b.joined_at) < MIN(COALESCE(a.left_at, ?), COALESCE(b.left_at, ?))
		GROUP BY b.user_id
		ORDER BY overlap_ms DESC, b.user_id
		LIMIT ?
	`, nowMs, nowMs, guild, user, nowMs, nowMs, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("top voice partners: %w", err)
	}
	defer rows.Close()

	var out []signal.PartnerCount
	for rows.Next() {
		var p signal.PartnerCount
		var ms int64
		if err := rows.Scan(&p.Partner, &ms); err != nil {
			return nil, fmt.Errorf("scan voice partner: %w", err)
		}
		p.Count = float64(ms) / 60000
		out = append(out, p)
	}
	return out, rows.Err()
}
