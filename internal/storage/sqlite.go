package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourname/sleepbot/internal"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY NOT NULL,
	name TEXT
);
CREATE TABLE IF NOT EXISTS sleep_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL REFERENCES users (id),
	sleep_time INTEGER NOT NULL,
	wake_time INTEGER,
	sleep_quality INTEGER CHECK (sleep_quality BETWEEN 1 AND 5)
);
CREATE INDEX IF NOT EXISTS idx_sleep_records_user ON sleep_records (user_id, id);
CREATE TABLE IF NOT EXISTS notes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	text TEXT NOT NULL,
	sleep_record_id INTEGER NOT NULL REFERENCES sleep_records (id)
);
`

// SQLiteStorage keeps everything in a single embedded database file.
// Use ":memory:" for a throwaway database.
type SQLiteStorage struct {
	db     *sql.DB
	logger internal.Logger
}

func NewSQLiteStorage(ctx context.Context, path string, logger internal.Logger) (*SQLiteStorage, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Errorf("failed to open sqlite database: %v", err)
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		logger.Errorf("failed to initialize sqlite schema: %v", err)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db, logger: logger}, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- UserRepository ---
func (s *SQLiteStorage) RegisterUser(ctx context.Context, userID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		s.logger.Errorf("failed to insert user %d: %v", userID, err)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UserExists(ctx context.Context, userID int64) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		s.logger.Errorf("failed to query user %d: %v", userID, err)
		return false, fmt.Errorf("query user: %w", err)
	}
	return true, nil
}

// --- SessionRepository ---
func (s *SQLiteStorage) InsertSession(ctx context.Context, userID int64, start time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sleep_records (user_id, sleep_time) VALUES (?, ?)`, userID, start.Unix())
	if err != nil {
		s.logger.Errorf("failed to insert sleep record: %v", err)
		return 0, fmt.Errorf("insert sleep record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("sleep record id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStorage) UpdateSleepStart(ctx context.Context, sessionID int64, start time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sleep_records SET sleep_time = ? WHERE id = ?`, start.Unix(), sessionID)
	return s.checkUpdate(res, err, "sleep_time", sessionID)
}

func (s *SQLiteStorage) UpdateWake(ctx context.Context, sessionID int64, wake time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sleep_records SET wake_time = ? WHERE id = ?`, wake.Unix(), sessionID)
	return s.checkUpdate(res, err, "wake_time", sessionID)
}

func (s *SQLiteStorage) UpdateRating(ctx context.Context, sessionID int64, rating int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sleep_records SET sleep_quality = ? WHERE id = ?`, rating, sessionID)
	return s.checkUpdate(res, err, "sleep_quality", sessionID)
}

func (s *SQLiteStorage) checkUpdate(res sql.Result, err error, column string, sessionID int64) error {
	if err != nil {
		s.logger.Errorf("failed to update %s of sleep record %d: %v", column, sessionID, err)
		return fmt.Errorf("update %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}
	if n == 0 {
		return internal.ErrSessionNotFound
	}
	return nil
}

func (s *SQLiteStorage) LatestSession(ctx context.Context, userID int64) (*internal.SleepSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, sleep_time, wake_time, sleep_quality FROM sleep_records WHERE user_id = ? ORDER BY id DESC LIMIT 1`, userID)
	sess, err := scanSQLiteSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, internal.ErrSessionNotFound
	}
	if err != nil {
		s.logger.Errorf("failed to query latest sleep record: %v", err)
		return nil, fmt.Errorf("query latest sleep record: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStorage) ListSessions(ctx context.Context, userID int64, since time.Time) ([]internal.SleepSession, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, sleep_time, wake_time, sleep_quality FROM sleep_records WHERE user_id = ? AND sleep_time >= ? ORDER BY id DESC`, userID, since.Unix())
	if err != nil {
		s.logger.Errorf("failed to query sleep records: %v", err)
		return nil, fmt.Errorf("query sleep records: %w", err)
	}
	defer rows.Close()

	sessions := []internal.SleepSession{}
	for rows.Next() {
		sess, err := scanSQLiteSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sleep record: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sleep records: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteSession(row rowScanner) (*internal.SleepSession, error) {
	var (
		sess    internal.SleepSession
		sleep   int64
		wake    sql.NullInt64
		quality sql.NullInt64
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sleep, &wake, &quality); err != nil {
		return nil, err
	}
	sess.SleepTime = time.Unix(sleep, 0).UTC()
	if wake.Valid {
		t := time.Unix(wake.Int64, 0).UTC()
		sess.WakeTime = &t
	}
	if quality.Valid {
		q := int(quality.Int64)
		sess.Quality = &q
	}
	return &sess, nil
}

// --- NoteRepository ---
func (s *SQLiteStorage) InsertNote(ctx context.Context, sessionID int64, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO notes (text, sleep_record_id) VALUES (?, ?)`, text, sessionID)
	if err != nil {
		s.logger.Errorf("failed to insert note for sleep record %d: %v", sessionID, err)
		return 0, fmt.Errorf("insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("note id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStorage) ListNotes(ctx context.Context, sessionID int64) ([]internal.Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, sleep_record_id, text FROM notes WHERE sleep_record_id = ? ORDER BY id`, sessionID)
	if err != nil {
		s.logger.Errorf("failed to query notes: %v", err)
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []internal.Note{}
	for rows.Next() {
		var n internal.Note
		if err := rows.Scan(&n.ID, &n.SleepSessionID, &n.Text); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// --- Compile-time assertions ---
var _ Store = (*SQLiteStorage)(nil)
