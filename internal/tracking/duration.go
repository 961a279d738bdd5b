// Package tracking computes how long cards spend in board columns.
//
// Every function here is pure: callers pass the reference time in, and
// boards and cards are returned as new values rather than modified.
package tracking

import (
	"fmt"
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// EntryDuration returns the time covered by one time-in-column entry.
// A stored duration wins; otherwise an open entry runs until now. Entries
// with a zero entry time contribute nothing and the result is never
// negative.
func EntryDuration(entry model.CardTimeInColumn, now time.Time) time.Duration {
	if entry.DurationMs != nil {
		if *entry.DurationMs < 0 {
			return 0
		}
		return time.Duration(*entry.DurationMs) * time.Millisecond
	}
	if entry.EnteredAt.IsZero() {
		return 0
	}
	end := now
	if entry.ExitedAt != nil && !entry.ExitedAt.IsZero() {
		end = *entry.ExitedAt
	}
	d := end.Sub(entry.EnteredAt)
	if d < 0 {
		return 0
	}
	return d
}

// TotalTimeInColumns sums the time the card has spent across all of its
// time-in-column entries.
func TotalTimeInColumns(card model.Card, now time.Time) time.Duration {
	var total time.Duration
	for _, entry := range card.TimeInColumns {
		total += EntryDuration(entry, now)
	}
	return total
}

// TimeSinceLastMove returns the time elapsed since the card's latest
// movement. Cards that have never moved report TotalTimeInColumns.
func TimeSinceLastMove(card model.Card, now time.Time) time.Duration {
	var latest time.Time
	for _, m := range card.MovementHistory {
		if m.MovedAt.After(latest) {
			latest = m.MovedAt
		}
	}
	if latest.IsZero() {
		return TotalTimeInColumns(card, now)
	}
	d := now.Sub(latest)
	if d < 0 {
		return 0
	}
	return d
}

// FormatDuration renders d as "Nd Nh", "Nh Nm" or "Nm". Seconds are
// never shown; anything under a minute renders as "0m".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int64(d / (24 * time.Hour))
	hours := int64(d%(24*time.Hour)) / int64(time.Hour)
	minutes := int64(d%time.Hour) / int64(time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
