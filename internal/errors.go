package internal

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrPersistence       = errors.New("persistence failure")
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("sleep session %w", ErrNotFound)
)

var (
	ErrNeverSlept         = fmt.Errorf("%w: never went to sleep", ErrInvalidTransition)
	ErrSessionNotFinished = fmt.Errorf("%w: session not finished", ErrInvalidTransition)
	ErrNotCurrentlyAsleep = fmt.Errorf("%w: not currently asleep", ErrInvalidTransition)
	ErrNoteNotExpected    = fmt.Errorf("%w: session is not awaiting a note", ErrInvalidTransition)
)

var (
	ErrInvalidRating = fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	ErrEmptyNote     = fmt.Errorf("%w: note text is required", ErrInvalidInput)
	ErrNoteTooLong   = fmt.Errorf("%w: note text is longer than 4096 characters", ErrInvalidInput)
)

// AppError is the error body returned to API clients.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewAppError(code int, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// Persistence marks err as a store failure of operation op.
func Persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
