package db

import (
	"context"
	"database/sql"
	"fmt"
)

type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS replays (
	replay_id TEXT PRIMARY KEY,
	path TEXT NOT NULL UNIQUE,
	format TEXT NOT NULL CHECK(format IN ('avf','evf','rmv')),
	content_sha256 TEXT NOT NULL CHECK(length(content_sha256) = 64),
	size_bytes INTEGER NOT NULL CHECK(size_bytes >= 0),
	level TEXT NOT NULL CHECK(level IN ('beginner','intermediate','expert','custom')),
	mode TEXT NOT NULL DEFAULT '',
	board_rows INTEGER NOT NULL CHECK(board_rows > 0),
	board_cols INTEGER NOT NULL CHECK(board_cols > 0),
	mine_count INTEGER NOT NULL CHECK(mine_count >= 0),
	event_count INTEGER NOT NULL CHECK(event_count >= 0),
	outcome TEXT NOT NULL DEFAULT '',
	best_token TEXT NOT NULL DEFAULT '',
	boardgen_at TEXT,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	indexed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS decode_failures (
	path TEXT PRIMARY KEY,
	error_kind TEXT NOT NULL,
	message TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 1,
	failed_at TEXT NOT NULL
);
`,
		DownSQL: `
DROP TABLE IF EXISTS decode_failures;
DROP TABLE IF EXISTS replays;
DROP TABLE IF EXISTS schema_migrations;
`,
	},
	{
		Version: 2,
		UpSQL: `
CREATE INDEX IF NOT EXISTS replays_format_level_indexed_at
ON replays(format, level, indexed_at DESC);

CREATE INDEX IF NOT EXISTS replays_content_sha256
ON replays(content_sha256);
`,
		DownSQL: `
DROP INDEX IF EXISTS replays_content_sha256;
DROP INDEX IF EXISTS replays_format_level_indexed_at;
`,
	},
}

func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}
