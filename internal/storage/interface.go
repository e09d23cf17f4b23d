package storage

import (
	"context"
	"time"

	"github.com/yourname/sleepbot/internal"
)

type UserRepository interface {
	// RegisterUser inserts the user unless it already exists.
	RegisterUser(ctx context.Context, userID int64, name string) error
	UserExists(ctx context.Context, userID int64) (bool, error)
}

type SessionRepository interface {
	InsertSession(ctx context.Context, userID int64, start time.Time) (int64, error)
	UpdateSleepStart(ctx context.Context, sessionID int64, start time.Time) error
	UpdateWake(ctx context.Context, sessionID int64, wake time.Time) error
	UpdateRating(ctx context.Context, sessionID int64, rating int) error
	// LatestSession returns internal.ErrSessionNotFound when the user has none.
	LatestSession(ctx context.Context, userID int64) (*internal.SleepSession, error)
	// ListSessions returns sessions started at or after since, newest first.
	ListSessions(ctx context.Context, userID int64, since time.Time) ([]internal.SleepSession, error)
}

type NoteRepository interface {
	InsertNote(ctx context.Context, sessionID int64, text string) (int64, error)
	ListNotes(ctx context.Context, sessionID int64) ([]internal.Note, error)
}

type Store interface {
	UserRepository
	SessionRepository
	NoteRepository
	Close() error
}
