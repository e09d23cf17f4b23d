package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/metrics"
	"github.com/yourname/sleepbot/internal/storage"
)

// Recorder receives tracker observations. *metrics.Metrics satisfies it.
type Recorder interface {
	ObserveAction(action, outcome string)
	ObserveSleep(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAction(string, string) {}
func (nopRecorder) ObserveSleep(time.Duration)   {}

// Event names what an accepted action did.
type Event string

const (
	EventRegistered     Event = "registered"
	EventSleepStarted   Event = "sleep_started"
	EventSleepRestarted Event = "sleep_restarted"
	EventWokeUp         Event = "woke_up"
	EventRated          Event = "rated"
	EventNoteAdded      Event = "note_added"
	EventNoteSkipped    Event = "note_skipped"
)

// Outcome describes an accepted action.
type Outcome struct {
	Event   Event                  `json:"event"`
	State   State                  `json:"state"`
	Session *internal.SleepSession `json:"session,omitempty"`
	Elapsed time.Duration          `json:"-"`
	NoteID  int64                  `json:"note_id,omitempty"`
}

// Tracker applies user actions to the sleep-session lifecycle.
type Tracker struct {
	store    storage.Store
	clock    clockwork.Clock
	logger   internal.Logger
	recorder Recorder

	mu    sync.Mutex
	locks map[int64]*userLock
}

// userLock is dropped from the map once no caller holds or waits on it.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// NewTracker wires a tracker to an open store. recorder may be nil.
func NewTracker(store storage.Store, clock clockwork.Clock, logger internal.Logger, recorder Recorder) *Tracker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Tracker{
		store:    store,
		clock:    clock,
		logger:   logger,
		recorder: recorder,
		locks:    make(map[int64]*userLock),
	}
}

func (t *Tracker) lockUser(userID int64) func() {
	t.mu.Lock()
	l, ok := t.locks[userID]
	if !ok {
		l = &userLock{}
		t.locks[userID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, userID)
		}
		t.mu.Unlock()
	}
}

func (t *Tracker) now() time.Time {
	return t.clock.Now().UTC().Truncate(time.Second)
}

// Apply runs one action for user. Rejections are returned as errors
// matching internal.ErrInvalidTransition or internal.ErrInvalidInput and
// leave the store untouched; store failures match internal.ErrPersistence.
func (t *Tracker) Apply(ctx context.Context, user internal.User, action Action) (*Outcome, error) {
	out, err := t.apply(ctx, user, action)
	switch {
	case err == nil:
		t.recorder.ObserveAction(action.Name(), metrics.OutcomeOK)
	case errors.Is(err, internal.ErrInvalidTransition), errors.Is(err, internal.ErrInvalidInput):
		t.recorder.ObserveAction(action.Name(), metrics.OutcomeRejected)
		t.logger.Debugf("user %d: %s rejected: %v", user.ID, action.Name(), err)
	default:
		t.recorder.ObserveAction(action.Name(), metrics.OutcomeError)
		t.logger.Errorf("user %d: %s failed: %v", user.ID, action.Name(), err)
	}
	return out, err
}

func (t *Tracker) apply(ctx context.Context, user internal.User, action Action) (*Outcome, error) {
	action = normalizeAction(action)
	if err := validateAction(action); err != nil {
		return nil, err
	}

	unlock := t.lockUser(user.ID)
	defer unlock()

	name := user.Name
	if r, ok := action.(Register); ok && r.UserName != "" {
		name = r.UserName
	}
	if err := t.ensureUser(ctx, user.ID, name); err != nil {
		return nil, err
	}

	latest, err := t.latest(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	switch a := action.(type) {
	case Register:
		return &Outcome{Event: EventRegistered, State: StateOf(latest), Session: latest}, nil
	case StartSleep:
		return t.startSleep(ctx, user.ID, latest)
	case Wake:
		return t.wake(ctx, latest)
	case Rate:
		return t.rate(ctx, latest, a.Value)
	case WriteNote:
		return t.writeNote(ctx, latest, a.Text)
	case SkipNote:
		return &Outcome{Event: EventNoteSkipped, State: StateOf(latest), Session: latest}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action %T", internal.ErrInvalidInput, action)
	}
}

func normalizeAction(action Action) Action {
	if n, ok := action.(WriteNote); ok {
		n.Text = strings.TrimSpace(n.Text)
		return n
	}
	return action
}

func validateAction(action Action) error {
	switch a := action.(type) {
	case Rate:
		if err := validate.Struct(a); err != nil {
			return internal.ErrInvalidRating
		}
	case WriteNote:
		var verrs validator.ValidationErrors
		if err := validate.Struct(a); errors.As(err, &verrs) {
			if verrs[0].Tag() == "max" {
				return internal.ErrNoteTooLong
			}
			return internal.ErrEmptyNote
		} else if err != nil {
			return fmt.Errorf("%w: %v", internal.ErrEmptyNote, err)
		}
	}
	return nil
}

func (t *Tracker) ensureUser(ctx context.Context, userID int64, name string) error {
	exists, err := t.store.UserExists(ctx, userID)
	if err != nil {
		return internal.Persistence("user exists", err)
	}
	if exists {
		return nil
	}
	if err := t.store.RegisterUser(ctx, userID, name); err != nil {
		return internal.Persistence("register user", err)
	}
	t.logger.Infof("registered user %d (%s)", userID, name)
	return nil
}

// latest returns the newest session, nil when the user has none.
func (t *Tracker) latest(ctx context.Context, userID int64) (*internal.SleepSession, error) {
	sess, err := t.store.LatestSession(ctx, userID)
	if errors.Is(err, internal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internal.Persistence("latest session", err)
	}
	return sess, nil
}

func (t *Tracker) startSleep(ctx context.Context, userID int64, latest *internal.SleepSession) (*Outcome, error) {
	now := t.now()
	if latest != nil && latest.Open() {
		if err := t.store.UpdateSleepStart(ctx, latest.ID, now); err != nil {
			return nil, internal.Persistence("update sleep start", err)
		}
		sess := *latest
		sess.SleepTime = now
		return &Outcome{Event: EventSleepRestarted, State: StateAsleep, Session: &sess}, nil
	}

	id, err := t.store.InsertSession(ctx, userID, now)
	if err != nil {
		return nil, internal.Persistence("insert session", err)
	}
	sess := &internal.SleepSession{ID: id, UserID: userID, SleepTime: now}
	return &Outcome{Event: EventSleepStarted, State: StateAsleep, Session: sess}, nil
}

func (t *Tracker) wake(ctx context.Context, latest *internal.SleepSession) (*Outcome, error) {
	if latest == nil || !latest.Open() {
		return nil, internal.ErrNeverSlept
	}
	now := t.now()
	if now.Before(latest.SleepTime) {
		now = latest.SleepTime
	}
	if err := t.store.UpdateWake(ctx, latest.ID, now); err != nil {
		return nil, internal.Persistence("update wake", err)
	}
	sess := *latest
	sess.WakeTime = &now
	elapsed := sess.Duration()
	t.recorder.ObserveSleep(elapsed)
	return &Outcome{Event: EventWokeUp, State: StateAwaitingRating, Session: &sess, Elapsed: elapsed}, nil
}

func (t *Tracker) rate(ctx context.Context, latest *internal.SleepSession, rating int) (*Outcome, error) {
	switch StateOf(latest) {
	case StateNoSession, StateAwaitingNote:
		return nil, internal.ErrNotCurrentlyAsleep
	case StateAsleep:
		return nil, internal.ErrSessionNotFinished
	}
	if err := t.store.UpdateRating(ctx, latest.ID, rating); err != nil {
		return nil, internal.Persistence("update rating", err)
	}
	sess := *latest
	sess.Quality = &rating
	return &Outcome{Event: EventRated, State: StateAwaitingNote, Session: &sess}, nil
}

func (t *Tracker) writeNote(ctx context.Context, latest *internal.SleepSession, text string) (*Outcome, error) {
	if StateOf(latest) != StateAwaitingNote {
		return nil, internal.ErrNoteNotExpected
	}
	id, err := t.store.InsertNote(ctx, latest.ID, text)
	if err != nil {
		return nil, internal.Persistence("insert note", err)
	}
	return &Outcome{Event: EventNoteAdded, State: StateAwaitingNote, Session: latest, NoteID: id}, nil
}

// Status reports the user's current state without registering them.
func (t *Tracker) Status(ctx context.Context, userID int64) (State, *internal.SleepSession, error) {
	latest, err := t.latest(ctx, userID)
	if err != nil {
		return StateNoSession, nil, err
	}
	return StateOf(latest), latest, nil
}

// Notes lists the notes attached to the user's latest session.
func (t *Tracker) Notes(ctx context.Context, userID int64) ([]internal.Note, error) {
	latest, err := t.latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return []internal.Note{}, nil
	}
	notes, err := t.store.ListNotes(ctx, latest.ID)
	if err != nil {
		return nil, internal.Persistence("list notes", err)
	}
	return notes, nil
}

// Stats summarises sessions that started within window before now.
func (t *Tracker) Stats(ctx context.Context, userID int64, window time.Duration) (*SleepStats, error) {
	cutoff := t.now().Add(-window)
	sessions, err := t.store.ListSessions(ctx, userID, cutoff)
	if err != nil {
		return nil, internal.Persistence("list sessions", err)
	}
	stats := CalculateSleepStats(sessions, cutoff)
	return &stats, nil
}
