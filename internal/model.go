package internal

import "time"

type User struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SleepSession struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	SleepTime time.Time  `json:"sleep_time"`
	WakeTime  *time.Time `json:"wake_time,omitempty"`
	Quality   *int       `json:"sleep_quality,omitempty"` // 1–5 scale
}

// Open reports whether the session is still waiting for a wake event.
func (s *SleepSession) Open() bool {
	return s.WakeTime == nil
}

// Rated reports whether a quality rating has been recorded.
func (s *SleepSession) Rated() bool {
	return s.Quality != nil
}

// Duration returns the time slept, or zero while the session is open.
func (s *SleepSession) Duration() time.Duration {
	if s.WakeTime == nil {
		return 0
	}
	d := s.WakeTime.Sub(s.SleepTime)
	if d < 0 {
		return 0
	}
	return d
}

type Note struct {
	ID             int64  `json:"id"`
	SleepSessionID int64  `json:"sleep_record_id"`
	Text           string `json:"text"`
}
