package service

import (
	"sort"
	"time"

	"github.com/yourname/sleepbot/internal"
)

type SleepStats struct {
	Sessions        int           `json:"sessions"`
	RatedSessions   int           `json:"rated_sessions"`
	AverageQuality  float64       `json:"average_quality"`
	Trend           []int         `json:"trend"`
	AverageDuration time.Duration `json:"-"`
}

// CalculateSleepStats aggregates sessions started after cutoff. Quality
// figures only count rated sessions, duration only finished ones. Trend is
// oldest first.
func CalculateSleepStats(sessions []internal.SleepSession, cutoff time.Time) SleepStats {
	inWindow := make([]internal.SleepSession, 0, len(sessions))
	for _, s := range sessions {
		if !s.SleepTime.Before(cutoff) {
			inWindow = append(inWindow, s)
		}
	}
	sort.Slice(inWindow, func(i, j int) bool {
		return inWindow[i].SleepTime.Before(inWindow[j].SleepTime)
	})

	stats := SleepStats{Sessions: len(inWindow), Trend: []int{}}
	totalQuality := 0
	var totalSlept time.Duration
	finished := 0

	for _, s := range inWindow {
		if s.Quality != nil {
			totalQuality += *s.Quality
			stats.RatedSessions++
			stats.Trend = append(stats.Trend, *s.Quality)
		}
		if !s.Open() {
			totalSlept += s.Duration()
			finished++
		}
	}

	if stats.RatedSessions > 0 {
		stats.AverageQuality = float64(totalQuality) / float64(stats.RatedSessions)
	}
	if finished > 0 {
		stats.AverageDuration = totalSlept / time.Duration(finished)
	}
	return stats
}
