package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/rapport/internal/signal"
)

// RecordInteraction appends an interaction. An empty ID is assigned a UUID.
func (db *DB) RecordInteraction(ctx context.Context, ev *signal.Interaction) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	var metadata sql.NullString
	if len(ev.Metadata) > 0 {
		data, err := json.Marshal(ev.Metadata)
		if err != nil {
			return fmt.Errorf("encode interaction metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO interactions (id, guild, from_user, to_user, kind, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Guild, ev.FromUser, ev.ToUser, string(ev.Kind), toMillis(ev.Timestamp), metadata)
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// FetchInteractions returns interactions from -> to in guild, newest first.
func (db *DB) FetchInteractions(ctx context.Context, from, to, guild string, limit int) ([]signal.Interaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, guild, from_user, to_user, kind, created_at, metadata
		FROM interactions
		WHERE guild = ? AND from_user = ? AND to_user = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, guild, from, to, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch interactions: %w", err)
	}
	defer rows.Close()

	var out []signal.Interaction
	for rows.Next() {
		var ev signal.Interaction
		var kind string
		var createdAt int64
		var metadata sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Guild, &ev.FromUser, &ev.ToUser, &kind, &createdAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		ev.Kind = signal.Kind(kind)
		ev.Timestamp = fromMillis(createdAt)
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &ev.Metadata); err != nil {
				return nil, fmt.Errorf("decode interaction metadata %s: %w", ev.ID, err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// TopInteractionPartners counts interactions sent by user per target since
// the given time, most frequent first. Self-interactions are ignored.
func (db *DB) TopInteractionPartners(ctx context.Context, user, guild string, since time.Time, limit int) ([]signal.PartnerCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT to_user, COUNT(*) AS n
		FROM interactions
		WHERE guild = ? AND from_user = ? AND to_user != from_user AND created_at >= ?
		GROUP BY to_user
		ORDER BY n DESC, to_user
		LIMIT ?
	`, guild, user, toMillis(since), sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("top interaction partners: %w", err)
	}
	defer rows.Close()

	var out []signal.PartnerCount
	for rows.Next() {
		var p signal.PartnerCount
		var n int64
		if err := rows.Scan(&p.Partner, &n); err != nil {
			return nil, fmt.Errorf("scan partner count: %w", err)
		}
		p.Count = float64(n)
		out = append(out, p)
	}
	return out, rows.Err()
}
