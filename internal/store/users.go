package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/rapport/internal/signal"
)

// UpsertUser creates or refreshes a member's display metadata.
func (db *DB) UpsertUser(ctx context.Context, u *signal.User) error {
	if u.ID == "" || u.Guild == "" {
		return fmt.Errorf("upsert user: id and guild required")
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (guild, user_id, username, display_name, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (guild, user_id) DO UPDATE SET
			username = excluded.username,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at
	`, u.Guild, u.ID, u.Username, u.DisplayName, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns a member by ID, or nil if unknown.
func (db *DB) GetUser(ctx context.Context, id, guild string) (*signal.User, error) {
	u := signal.User{ID: id, Guild: guild}
	err := db.QueryRowContext(ctx, `
		SELECT username, display_name FROM users WHERE guild = ? AND user_id = ?
	`, guild, id).Scan(&u.Username, &u.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
