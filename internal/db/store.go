package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/g960059/sweepview/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
)

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// UpsertReplay inserts or refreshes the summary for r.Path. An existing row
// keeps its replay_id; reusing a replay_id for another path is ErrDuplicate.
func (s *Store) UpsertReplay(ctx context.Context, r model.ReplaySummary) error {
	if strings.TrimSpace(r.ReplayID) == "" {
		return fmt.Errorf("replay_id is required")
	}
	if strings.TrimSpace(r.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if r.IndexedAt.IsZero() {
		r.IndexedAt = time.Now().UTC()
	}
	metadata, err := marshalMetadata(r.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO replays(replay_id, path, format, content_sha256, size_bytes, level, mode, board_rows, board_cols, mine_count, event_count, outcome, best_token, boardgen_at, metadata_json, indexed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(path) DO UPDATE SET
	format=excluded.format,
	content_sha256=excluded.content_sha256,
	size_bytes=excluded.size_bytes,
	level=excluded.level,
	mode=excluded.mode,
	board_rows=excluded.board_rows,
	board_cols=excluded.board_cols,
	mine_count=excluded.mine_count,
	event_count=excluded.event_count,
	outcome=excluded.outcome,
	best_token=excluded.best_token,
	boardgen_at=excluded.boardgen_at,
	metadata_json=excluded.metadata_json,
	indexed_at=excluded.indexed_at
`, r.ReplayID, r.Path, r.Format, r.ContentSHA256, r.SizeBytes, r.Level, r.Mode, r.Rows, r.Cols, r.MineCount, r.EventCount,
		r.Outcome, r.BestToken, nullableTS(r.BoardGeneratedAt), metadata, ts(r.IndexedAt))
	if err != nil {
		if isUniqueErr(err) {
			return fmt.Errorf("%w: replay_id=%s", ErrDuplicate, r.ReplayID)
		}
		return fmt.Errorf("upsert replay: %w", err)
	}
	return nil
}

const replayColumns = `replay_id, path, format, content_sha256, size_bytes, level, mode, board_rows, board_cols, mine_count, event_count, outcome, best_token, boardgen_at, metadata_json, indexed_at`

func (s *Store) GetReplay(ctx context.Context, replayID string) (model.ReplaySummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+replayColumns+` FROM replays WHERE replay_id = ?`, replayID)
	r, err := scanReplay(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ReplaySummary{}, ErrNotFound
		}
		return model.ReplaySummary{}, fmt.Errorf("get replay: %w", err)
	}
	return r, nil
}

func (s *Store) GetReplayByPath(ctx context.Context, path string) (model.ReplaySummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+replayColumns+` FROM replays WHERE path = ?`, path)
	r, err := scanReplay(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ReplaySummary{}, ErrNotFound
		}
		return model.ReplaySummary{}, fmt.Errorf("get replay by path: %w", err)
	}
	return r, nil
}

// ListReplays returns matching replays, most recently indexed first.
func (s *Store) ListReplays(ctx context.Context, filter model.ReplayFilter) ([]model.ReplaySummary, error) {
	var (
		where []string
		args  []any
	)
	if v := strings.ToLower(strings.TrimSpace(filter.Format)); v != "" {
		where = append(where, "format = ?")
		args = append(args, v)
	}
	if v := strings.ToLower(strings.TrimSpace(filter.Level)); v != "" {
		where = append(where, "level = ?")
		args = append(args, v)
	}
	query := `SELECT ` + replayColumns + ` FROM replays`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY indexed_at DESC, path ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list replays: %w", err)
	}
	defer rows.Close()

	out := make([]model.ReplaySummary, 0)
	for rows.Next() {
		r, err := scanReplay(rows)
		if err != nil {
			return nil, fmt.Errorf("scan replay: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter replays: %w", err)
	}
	return out, nil
}

func (s *Store) DeleteReplayByPath(ctx context.Context, path string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM replays WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("delete replay by path: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete replay by path rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure stores the latest failure for a path and counts attempts.
func (s *Store) RecordFailure(ctx context.Context, f model.DecodeFailure) error {
	if strings.TrimSpace(f.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if f.FailedAt.IsZero() {
		f.FailedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO decode_failures(path, error_kind, message, attempts, failed_at)
VALUES (?, ?, ?, 1, ?)
ON CONFLICT(path) DO UPDATE SET
	error_kind=excluded.error_kind,
	message=excluded.message,
	attempts=decode_failures.attempts + 1,
	failed_at=excluded.failed_at
`, f.Path, string(f.ErrorKind), f.Message, ts(f.FailedAt))
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// ClearFailure forgets a path's failure; a path without one is not an error.
func (s *Store) ClearFailure(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM decode_failures WHERE path = ?`, path); err != nil {
		return fmt.Errorf("clear failure: %w", err)
	}
	return nil
}

func (s *Store) ListFailures(ctx context.Context) ([]model.DecodeFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT path, error_kind, message, attempts, failed_at
FROM decode_failures
ORDER BY failed_at DESC, path ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	out := make([]model.DecodeFailure, 0)
	for rows.Next() {
		var (
			f        model.DecodeFailure
			kind     string
			failedAt string
		)
		if err := rows.Scan(&f.Path, &kind, &f.Message, &f.Attempts, &failedAt); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		f.ErrorKind = model.ErrorKind(kind)
		f.FailedAt, err = parseTS(failedAt)
		if err != nil {
			return nil, fmt.Errorf("parse failure failed_at: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter failures: %w", err)
	}
	return out, nil
}

var countableTables = map[string]struct{}{
	"replays":         {},
	"decode_failures": {},
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	if _, ok := countableTables[table]; !ok {
		return 0, fmt.Errorf("count rows: unknown table %q", table)
	}
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table))
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows %s: %w", table, err)
	}
	return count, nil
}

func scanReplay(scanner interface{ Scan(dest ...any) error }) (model.ReplaySummary, error) {
	var (
		r          model.ReplaySummary
		boardgenAt sql.NullString
		metadata   string
		indexedAt  string
	)
	if err := scanner.Scan(&r.ReplayID, &r.Path, &r.Format, &r.ContentSHA256, &r.SizeBytes, &r.Level, &r.Mode,
		&r.Rows, &r.Cols, &r.MineCount, &r.EventCount, &r.Outcome, &r.BestToken, &boardgenAt, &metadata, &indexedAt); err != nil {
		return model.ReplaySummary{}, err
	}
	if boardgenAt.Valid {
		v, err := parseTS(boardgenAt.String)
		if err != nil {
			return model.ReplaySummary{}, fmt.Errorf("parse replay boardgen_at: %w", err)
		}
		r.BoardGeneratedAt = &v
	}
	var err error
	if r.Metadata, err = unmarshalMetadata(metadata); err != nil {
		return model.ReplaySummary{}, err
	}
	if r.IndexedAt, err = parseTS(indexedAt); err != nil {
		return model.ReplaySummary{}, fmt.Errorf("parse replay indexed_at: %w", err)
	}
	return r, nil
}

func nullableTS(v *time.Time) any {
	if v == nil {
		return nil
	}
	return ts(*v)
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return containsAny(msg,
		"UNIQUE constraint failed",
		"constraint failed: UNIQUE",
	)
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func marshalMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	buf, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(buf), nil
}

func unmarshalMetadata(raw string) (map[string]string, error) {
	text := strings.TrimSpace(raw)
	if text == "" || text == "{}" {
		return map[string]string{}, nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(text), &md); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return md, nil
}
