package store

import (
	"fmt"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "users: display metadata per guild member",
		SQL: `
CREATE TABLE users (
    guild        TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    username     TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    updated_at   INTEGER NOT NULL,
    PRIMARY KEY (guild, user_id)
);
`,
	},
	{
		Version:     2,
		Description: "interactions: append-only directional text signals",
		SQL: `
CREATE TABLE interactions (
    id         TEXT PRIMARY KEY,
    guild      TEXT NOT NULL,
    from_user  TEXT NOT NULL,
    to_user    TEXT NOT NULL,
    kind       TEXT NOT NULL CHECK (kind IN ('reaction', 'mention', 'reply')),
    created_at INTEGER NOT NULL,
    metadata   TEXT
);

CREATE INDEX idx_interactions_pair ON interactions(guild, from_user, to_user, created_at DESC);
CREATE INDEX idx_interactions_from ON interactions(guild, from_user, created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "voice_sessions: voice channel presence with open-ended sessions",
		SQL: `
CREATE TABLE voice_sessions (
    id           TEXT PRIMARY KEY,
    guild        TEXT NOT NULL,
    user_id      TEXT NOT NULL,
    channel_id   TEXT NOT NULL,
    channel_name TEXT NOT NULL DEFAULT '',
    joined_at    INTEGER NOT NULL,
    left_at      INTEGER,
    CHECK (left_at IS NULL OR left_at >= joined_at)
);

CREATE INDEX idx_voice_user    ON voice_sessions(guild, user_id, joined_at DESC);
CREATE INDEX idx_voice_channel ON voice_sessions(guild, channel_id, joined_at);
CREATE UNIQUE INDEX idx_voice_open ON voice_sessions(guild, user_id) WHERE left_at IS NULL;
`,
	},
}

// migrate applies every migration not yet recorded in schema_versions,
// each in its own transaction, in version order.
func (db *DB) migrate() error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	applied, err := db.appliedVersions()
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := db.apply(m); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) appliedVersions() (map[int]bool, error) {
	rows, err := db.Query("SELECT version FROM schema_versions")
	if err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func (db *DB) apply(m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback() // no-op after Commit

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_versions (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	return tx.Commit()
}

// SchemaVersion reports the highest applied migration, 0 on a fresh file.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
