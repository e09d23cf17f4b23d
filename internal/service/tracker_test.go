package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/metrics"
	"github.com/yourname/sleepbot/internal/storage"
)

var alice = internal.User{ID: 101, Name: "alice"}

func setupTracker(t *testing.T) (*Tracker, storage.Store, *clockwork.FakeClock) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(context.Background(), filepath.Join(t.TempDir(), "sleep.db"), internal.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC))
	return NewTracker(store, clock, internal.NopLogger(), nil), store, clock
}

func mustApply(t *testing.T, tr *Tracker, action Action) *Outcome {
	t.Helper()
	out, err := tr.Apply(context.Background(), alice, action)
	require.NoError(t, err)
	return out
}

func countSessions(t *testing.T, store storage.Store, userID int64) int {
	t.Helper()
	sessions, err := store.ListSessions(context.Background(), userID, time.Time{})
	require.NoError(t, err)
	return len(sessions)
}

func TestStartSleep_FromNoSession(t *testing.T) {
	tr, store, clock := setupTracker(t)

	out := mustApply(t, tr, StartSleep{})
	assert.Equal(t, EventSleepStarted, out.Event)
	assert.Equal(t, StateAsleep, out.State)

	sess, err := store.LatestSession(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(sess.SleepTime))
	assert.Nil(t, sess.WakeTime)
	assert.Nil(t, sess.Quality)
	assert.Equal(t, 1, countSessions(t, store, alice.ID))
}

func TestStartSleep_RegistersUnknownUser(t *testing.T) {
	tr, store, _ := setupTracker(t)

	exists, err := store.UserExists(context.Background(), alice.ID)
	require.NoError(t, err)
	require.False(t, exists)

	mustApply(t, tr, StartSleep{})

	exists, err = store.UserExists(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStartSleep_TwiceRestartsOpenSession(t *testing.T) {
	tr, store, clock := setupTracker(t)

	first := mustApply(t, tr, StartSleep{})
	clock.Advance(20 * time.Minute)
	second := mustApply(t, tr, StartSleep{})

	assert.Equal(t, EventSleepRestarted, second.Event)
	assert.Equal(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, 1, countSessions(t, store, alice.ID))

	sess, err := store.LatestSession(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(sess.SleepTime))
}

func TestWake_ReportsElapsed(t *testing.T) {
	tr, store, clock := setupTracker(t)

	mustApply(t, tr, StartSleep{})
	clock.Advance(8 * time.Hour)
	out := mustApply(t, tr, Wake{})

	assert.Equal(t, EventWokeUp, out.Event)
	assert.Equal(t, StateAwaitingRating, out.State)
	assert.Equal(t, 8*time.Hour, out.Elapsed)
	assert.Equal(t, "8 часов, 0 минут", FormatElapsed(out.Elapsed))

	sess, err := store.LatestSession(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.WakeTime)
	assert.True(t, time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC).Equal(*sess.WakeTime))
	assert.False(t, sess.WakeTime.Before(sess.SleepTime))
}

func TestWake_Rejections(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		tr, store, _ := setupTracker(t)
		_, err := tr.Apply(context.Background(), alice, Wake{})
		assert.ErrorIs(t, err, internal.ErrNeverSlept)
		assert.ErrorIs(t, err, internal.ErrInvalidTransition)
		assert.Equal(t, 0, countSessions(t, store, alice.ID))
	})

	t.Run("already awake", func(t *testing.T) {
		tr, store, clock := setupTracker(t)
		mustApply(t, tr, StartSleep{})
		clock.Advance(time.Hour)
		woke := mustApply(t, tr, Wake{})
		clock.Advance(time.Hour)

		_, err := tr.Apply(context.Background(), alice, Wake{})
		assert.ErrorIs(t, err, internal.ErrNeverSlept)

		sess, err := store.LatestSession(context.Background(), alice.ID)
		require.NoError(t, err)
		assert.True(t, woke.Session.WakeTime.Equal(*sess.WakeTime))
	})

	t.Run("after rating", func(t *testing.T) {
		tr, store, clock := setupTracker(t)
		mustApply(t, tr, StartSleep{})
		clock.Advance(time.Hour)
		mustApply(t, tr, Wake{})
		mustApply(t, tr, Rate{Value: 2})

		_, err := tr.Apply(context.Background(), alice, Wake{})
		assert.ErrorIs(t, err, internal.ErrNeverSlept)
		assert.Equal(t, 1, countSessions(t, store, alice.ID))
	})
}

func TestRate_Lifecycle(t *testing.T) {
	tr, store, clock := setupTracker(t)

	mustApply(t, tr, StartSleep{})
	clock.Advance(7*time.Hour + 30*time.Minute)
	mustApply(t, tr, Wake{})

	out := mustApply(t, tr, Rate{Value: 3})
	assert.Equal(t, EventRated, out.Event)
	assert.Equal(t, StateAwaitingNote, out.State)

	_, err := tr.Apply(context.Background(), alice, Rate{Value: 4})
	assert.ErrorIs(t, err, internal.ErrNotCurrentlyAsleep)

	sess, err := store.LatestSession(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, sess.Quality)
	assert.Equal(t, 3, *sess.Quality)
}

func TestRate_Rejections(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		tr, _, _ := setupTracker(t)
		_, err := tr.Apply(context.Background(), alice, Rate{Value: 5})
		assert.ErrorIs(t, err, internal.ErrNotCurrentlyAsleep)
	})

	t.Run("still asleep", func(t *testing.T) {
		tr, store, _ := setupTracker(t)
		mustApply(t, tr, StartSleep{})
		_, err := tr.Apply(context.Background(), alice, Rate{Value: 5})
		assert.ErrorIs(t, err, internal.ErrSessionNotFinished)

		sess, err := store.LatestSession(context.Background(), alice.ID)
		require.NoError(t, err)
		assert.Nil(t, sess.Quality)
	})

	for _, v := range []int{0, 6, -1, 10} {
		tr, _, _ := setupTracker(t)
		mustApply(t, tr, StartSleep{})
		mustApply(t, tr, Wake{})
		_, err := tr.Apply(context.Background(), alice, Rate{Value: v})
		assert.ErrorIs(t, err, internal.ErrInvalidRating, "rating %d", v)
		assert.ErrorIs(t, err, internal.ErrInvalidInput)
	}
}

func TestRate_AcceptsOneToFive(t *testing.T) {
	for v := 1; v <= 5; v++ {
		tr, _, clock := setupTracker(t)
		mustApply(t, tr, StartSleep{})
		clock.Advance(6 * time.Hour)
		mustApply(t, tr, Wake{})
		out := mustApply(t, tr, Rate{Value: v})
		require.NotNil(t, out.Session.Quality)
		assert.Equal(t, v, *out.Session.Quality)
	}
}

func TestNotes(t *testing.T) {
	tr, store, clock := setupTracker(t)
	ctx := context.Background()

	_, err := tr.Apply(ctx, alice, WriteNote{Text: "too early"})
	assert.ErrorIs(t, err, internal.ErrNoteNotExpected)

	mustApply(t, tr, StartSleep{})
	_, err = tr.Apply(ctx, alice, WriteNote{Text: "still asleep"})
	assert.ErrorIs(t, err, internal.ErrNoteNotExpected)

	clock.Advance(8 * time.Hour)
	mustApply(t, tr, Wake{})
	_, err = tr.Apply(ctx, alice, WriteNote{Text: "not rated"})
	assert.ErrorIs(t, err, internal.ErrNoteNotExpected)

	rated := mustApply(t, tr, Rate{Value: 4})
	out := mustApply(t, tr, WriteNote{Text: "dreamt of the sea"})
	assert.Equal(t, EventNoteAdded, out.Event)
	assert.Equal(t, StateAwaitingNote, out.State)
	assert.Positive(t, out.NoteID)
	mustApply(t, tr, WriteNote{Text: "woke up once"})

	_, err = tr.Apply(ctx, alice, WriteNote{Text: ""})
	assert.ErrorIs(t, err, internal.ErrEmptyNote)
	_, err = tr.Apply(ctx, alice, WriteNote{Text: "  \t\n "})
	assert.ErrorIs(t, err, internal.ErrEmptyNote)
	_, err = tr.Apply(ctx, alice, WriteNote{Text: strings.Repeat("я", MaxNoteLength+1)})
	assert.ErrorIs(t, err, internal.ErrNoteTooLong)
	assert.NotErrorIs(t, err, internal.ErrEmptyNote)
	mustApply(t, tr, WriteNote{Text: strings.Repeat("я", MaxNoteLength)})

	notes, err := store.ListNotes(ctx, rated.Session.ID)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "dreamt of the sea", notes[0].Text)

	fromTracker, err := tr.Notes(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, notes, fromTracker)
}

func TestSkipNote_HasNoEffect(t *testing.T) {
	tr, store, _ := setupTracker(t)

	out := mustApply(t, tr, SkipNote{})
	assert.Equal(t, EventNoteSkipped, out.Event)
	assert.Equal(t, StateNoSession, out.State)
	assert.Equal(t, 0, countSessions(t, store, alice.ID))
}

func TestStartSleep_AfterRatingOpensNewSession(t *testing.T) {
	tr, store, clock := setupTracker(t)

	first := mustApply(t, tr, StartSleep{})
	clock.Advance(8 * time.Hour)
	mustApply(t, tr, Wake{})
	mustApply(t, tr, Rate{Value: 5})
	clock.Advance(16 * time.Hour)

	second := mustApply(t, tr, StartSleep{})
	assert.Equal(t, EventSleepStarted, second.Event)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, 2, countSessions(t, store, alice.ID))
}

func TestStartSleep_WhileAwaitingRatingOpensNewSession(t *testing.T) {
	tr, store, clock := setupTracker(t)
	ctx := context.Background()

	first := mustApply(t, tr, StartSleep{})
	clock.Advance(8 * time.Hour)
	mustApply(t, tr, Wake{})
	clock.Advance(time.Hour)

	second := mustApply(t, tr, StartSleep{})
	assert.Equal(t, EventSleepStarted, second.Event)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)

	sessions, err := store.ListSessions(ctx, alice.ID, time.Time{})
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		switch s.ID {
		case first.Session.ID:
			assert.Nil(t, s.Quality)
			assert.NotNil(t, s.WakeTime)
		case second.Session.ID:
			assert.True(t, s.Open())
			assert.Nil(t, s.Quality)
		default:
			t.Fatalf("unexpected session %d", s.ID)
		}
	}
}

func TestStatus(t *testing.T) {
	tr, _, clock := setupTracker(t)
	ctx := context.Background()

	state, sess, err := tr.Status(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, StateNoSession, state)
	assert.Nil(t, sess)

	steps := []struct {
		action Action
		want   State
	}{
		{StartSleep{}, StateAsleep},
		{Wake{}, StateAwaitingRating},
		{Rate{Value: 2}, StateAwaitingNote},
	}
	for _, step := range steps {
		clock.Advance(time.Hour)
		mustApply(t, tr, step.action)
		state, sess, err = tr.Status(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, step.want, state)
		assert.NotNil(t, sess)
	}
}

func TestRegister_UsesProvidedName(t *testing.T) {
	tr, store, _ := setupTracker(t)

	out, err := tr.Apply(context.Background(), internal.User{ID: 7}, Register{UserName: "bob"})
	require.NoError(t, err)
	assert.Equal(t, EventRegistered, out.Event)
	assert.Equal(t, StateNoSession, out.State)

	exists, err := store.UserExists(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStats(t *testing.T) {
	tr, _, clock := setupTracker(t)
	ctx := context.Background()

	for _, q := range []int{2, 4} {
		mustApply(t, tr, StartSleep{})
		clock.Advance(8 * time.Hour)
		mustApply(t, tr, Wake{})
		mustApply(t, tr, Rate{Value: q})
		clock.Advance(16 * time.Hour)
	}
	mustApply(t, tr, StartSleep{})

	stats, err := tr.Stats(ctx, alice.ID, 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Sessions)
	assert.Equal(t, 2, stats.RatedSessions)
	assert.InDelta(t, 3.0, stats.AverageQuality, 0.001)
	assert.Equal(t, []int{2, 4}, stats.Trend)
	assert.Equal(t, 8*time.Hour, stats.AverageDuration)
}

type failingStore struct {
	storage.Store
}

func (failingStore) LatestSession(context.Context, int64) (*internal.SleepSession, error) {
	return nil, errors.New("disk on fire")
}

func TestApply_PersistenceFailure(t *testing.T) {
	_, store, clock := setupTracker(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	tr := NewTracker(failingStore{store}, clock, internal.NopLogger(), m)

	_, err := tr.Apply(context.Background(), alice, StartSleep{})
	assert.ErrorIs(t, err, internal.ErrPersistence)
	assert.NotErrorIs(t, err, internal.ErrInvalidTransition)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("start_sleep", metrics.OutcomeError)))
}

func TestApply_RecordsOutcomes(t *testing.T) {
	_, store, clock := setupTracker(t)
	m := metrics.New(prometheus.NewRegistry())
	tr := NewTracker(store, clock, internal.NopLogger(), m)

	_, err := tr.Apply(context.Background(), alice, Wake{})
	require.Error(t, err)
	mustApply(t, tr, StartSleep{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("wake", metrics.OutcomeRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("start_sleep", metrics.OutcomeOK)))
}

func TestApply_SerializesPerUser(t *testing.T) {
	tr, store, _ := setupTracker(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.Apply(context.Background(), alice, StartSleep{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, countSessions(t, store, alice.ID))
	assert.Empty(t, tr.locks)
}

func TestNotes_TrimsWhitespace(t *testing.T) {
	tr, store, clock := setupTracker(t)
	mustApply(t, tr, StartSleep{})
	clock.Advance(time.Hour)
	mustApply(t, tr, Wake{})
	rated := mustApply(t, tr, Rate{Value: 3})

	mustApply(t, tr, WriteNote{Text: "  restless  \n"})
	notes, err := store.ListNotes(context.Background(), rated.Session.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "restless", notes[0].Text)
}
