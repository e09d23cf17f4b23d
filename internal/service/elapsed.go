package service

import (
	"fmt"
	"time"
)

// SplitElapsed breaks d into whole hours and remaining whole minutes.
// Negative durations count as zero.
func SplitElapsed(d time.Duration) (hours, minutes int) {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Minute)
	return total / 60, total % 60
}

// FormatElapsed renders d the way the bot reports time slept.
func FormatElapsed(d time.Duration) string {
	h, m := SplitElapsed(d)
	if h > 0 {
		return fmt.Sprintf("%d часов, %d минут", h, m)
	}
	return fmt.Sprintf("%d минут", m)
}
