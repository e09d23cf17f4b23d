package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourname/sleepbot/internal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGINT PRIMARY KEY,
	name TEXT
);
CREATE TABLE IF NOT EXISTS sleep_records (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users (id),
	sleep_time TIMESTAMPTZ NOT NULL,
	wake_time TIMESTAMPTZ,
	sleep_quality INTEGER CHECK (sleep_quality BETWEEN 1 AND 5)
);
CREATE INDEX IF NOT EXISTS idx_sleep_records_user ON sleep_records (user_id, id);
CREATE TABLE IF NOT EXISTS notes (
	id BIGSERIAL PRIMARY KEY,
	text TEXT NOT NULL,
	sleep_record_id BIGINT NOT NULL REFERENCES sleep_records (id)
);
`

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(ctx context.Context, dsn string, logger internal.Logger) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		logger.Errorf("failed to initialize postgres schema: %v", err)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// --- UserRepository ---
func (p *PostgresStorage) RegisterUser(ctx context.Context, userID int64, name string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO users (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, userID, name)
	if err != nil {
		p.logger.Errorf("failed to insert user %d: %v", userID, err)
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (p *PostgresStorage) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		p.logger.Errorf("failed to query user %d: %v", userID, err)
		return false, fmt.Errorf("query user: %w", err)
	}
	return exists, nil
}

// --- SessionRepository ---
func (p *PostgresStorage) InsertSession(ctx context.Context, userID int64, start time.Time) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `INSERT INTO sleep_records (user_id, sleep_time) VALUES ($1, $2) RETURNING id`, userID, start.UTC()).Scan(&id)
	if err != nil {
		p.logger.Errorf("failed to insert sleep record: %v", err)
		return 0, fmt.Errorf("insert sleep record: %w", err)
	}
	return id, nil
}

func (p *PostgresStorage) UpdateSleepStart(ctx context.Context, sessionID int64, start time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE sleep_records SET sleep_time = $1 WHERE id = $2`, start.UTC(), sessionID)
	return p.checkUpdate(tag, err, "sleep_time", sessionID)
}

func (p *PostgresStorage) UpdateWake(ctx context.Context, sessionID int64, wake time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE sleep_records SET wake_time = $1 WHERE id = $2`, wake.UTC(), sessionID)
	return p.checkUpdate(tag, err, "wake_time", sessionID)
}

func (p *PostgresStorage) UpdateRating(ctx context.Context, sessionID int64, rating int) error {
	tag, err := p.pool.Exec(ctx, `UPDATE sleep_records SET sleep_quality = $1 WHERE id = $2`, rating, sessionID)
	return p.checkUpdate(tag, err, "sleep_quality", sessionID)
}

func (p *PostgresStorage) checkUpdate(tag pgconn.CommandTag, err error, column string, sessionID int64) error {
	if err != nil {
		p.logger.Errorf("failed to update %s of sleep record %d: %v", column, sessionID, err)
		return fmt.Errorf("update %s: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return internal.ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStorage) LatestSession(ctx context.Context, userID int64) (*internal.SleepSession, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, user_id, sleep_time, wake_time, sleep_quality FROM sleep_records WHERE user_id = $1 ORDER BY id DESC LIMIT 1`, userID)
	sess, err := scanPostgresSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, internal.ErrSessionNotFound
	}
	if err != nil {
		p.logger.Errorf("failed to query latest sleep record: %v", err)
		return nil, fmt.Errorf("query latest sleep record: %w", err)
	}
	return sess, nil
}

func (p *PostgresStorage) ListSessions(ctx context.Context, userID int64, since time.Time) ([]internal.SleepSession, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, user_id, sleep_time, wake_time, sleep_quality FROM sleep_records WHERE user_id = $1 AND sleep_time >= $2 ORDER BY id DESC`, userID, since.UTC())
	if err != nil {
		p.logger.Errorf("failed to query sleep records: %v", err)
		return nil, fmt.Errorf("query sleep records: %w", err)
	}
	defer rows.Close()

	sessions := []internal.SleepSession{}
	for rows.Next() {
		sess, err := scanPostgresSession(rows)
		if err != nil {
			p.logger.Errorf("failed to scan sleep record: %v", err)
			return nil, fmt.Errorf("scan sleep record: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sleep records: %w", err)
	}
	return sessions, nil
}

func scanPostgresSession(row pgx.Row) (*internal.SleepSession, error) {
	var (
		sess    internal.SleepSession
		wake    *time.Time
		quality *int32
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.SleepTime, &wake, &quality); err != nil {
		return nil, err
	}
	sess.SleepTime = sess.SleepTime.UTC()
	if wake != nil {
		t := wake.UTC()
		sess.WakeTime = &t
	}
	if quality != nil {
		q := int(*quality)
		sess.Quality = &q
	}
	return &sess, nil
}

// --- NoteRepository ---
func (p *PostgresStorage) InsertNote(ctx context.Context, sessionID int64, text string) (int64, error) {
	var id int64
	err := p.pool.QueryRow(ctx, `INSERT INTO notes (text, sleep_record_id) VALUES ($1, $2) RETURNING id`, text, sessionID).Scan(&id)
	if err != nil {
		p.logger.Errorf("failed to insert note for sleep record %d: %v", sessionID, err)
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return id, nil
}

func (p *PostgresStorage) ListNotes(ctx context.Context, sessionID int64) ([]internal.Note, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, sleep_record_id, text FROM notes WHERE sleep_record_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		p.logger.Errorf("failed to query notes: %v", err)
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
var _ Store = (*PostgresStorage)(nil)
