package service

import "github.com/yourname/sleepbot/internal"

// State is the per-user lifecycle position derived from the latest session.
type State int

const (
	StateNoSession State = iota
	StateAsleep
	StateAwaitingRating
	StateAwaitingNote
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateAsleep:
		return "asleep"
	case StateAwaitingRating:
		return "awaiting_rating"
	case StateAwaitingNote:
		return "awaiting_note"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StateOf derives the state from the user's latest session, nil meaning none.
func StateOf(latest *internal.SleepSession) State {
	switch {
	case latest == nil:
		return StateNoSession
	case latest.Open():
		return StateAsleep
	case !latest.Rated():
		return StateAwaitingRating
	default:
		return StateAwaitingNote
	}
}
