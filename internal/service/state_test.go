package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/yourname/sleepbot/internal"
)

func TestStateOf(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	wake := start.Add(8 * time.Hour)
	quality := 4

	assert.Equal(t, StateNoSession, StateOf(nil))
	assert.Equal(t, StateAsleep, StateOf(&internal.SleepSession{SleepTime: start}))
	assert.Equal(t, StateAwaitingRating, StateOf(&internal.SleepSession{SleepTime: start, WakeTime: &wake}))
	assert.Equal(t, StateAwaitingNote, StateOf(&internal.SleepSession{SleepTime: start, WakeTime: &wake, Quality: &quality}))
}

func TestState_MarshalText(t *testing.T) {
	b, err := StateAwaitingRating.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "awaiting_rating", string(b))
}

func TestCalculateSleepStats(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	cutoff := now.AddDate(0, 0, -7)
	at := func(daysAgo int) time.Time { return now.AddDate(0, 0, -daysAgo) }
	ptr := func(v int) *int { return &v }
	woke := func(t time.Time, d time.Duration) *time.Time { w := t.Add(d); return &w }

	sessions := []internal.SleepSession{
		{ID: 4, SleepTime: at(1), WakeTime: woke(at(1), 6*time.Hour), Quality: ptr(3)},
		{ID: 3, SleepTime: at(2), WakeTime: woke(at(2), 8*time.Hour), Quality: ptr(5)},
		{ID: 2, SleepTime: at(3), WakeTime: woke(at(3), 7*time.Hour)},
		{ID: 1, SleepTime: at(8), WakeTime: woke(at(8), 9*time.Hour), Quality: ptr(1)},
	}

	stats := CalculateSleepStats(sessions, cutoff)
	assert.Equal(t, 3, stats.Sessions)
	assert.Equal(t, 2, stats.RatedSessions)
	assert.InDelta(t, 4.0, stats.AverageQuality, 0.001)
	assert.Equal(t, []int{5, 3}, stats.Trend)
	assert.Equal(t, 7*time.Hour, stats.AverageDuration)
}

func TestCalculateSleepStats_Empty(t *testing.T) {
	stats := CalculateSleepStats(nil, time.Now())
	assert.Equal(t, 0, stats.Sessions)
	assert.Zero(t, stats.AverageQuality)
	assert.Empty(t, stats.Trend)
}
