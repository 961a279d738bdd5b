package tracking

import (
	"log/slog"
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// UnknownColumnName labels aggregated time for columns no longer on the board.
const UnknownColumnName = "Unknown Column"

// AggregateTimeInColumns totals the card's time per column as of at. The
// open entry for the card's current column is treated as closed at at.
// Entries with no entry time, no exit time, or an exit before the entry
// are skipped. Results keep the order in which columns were first visited.
func AggregateTimeInColumns(card model.Card, columns []model.Column, at time.Time) []model.AggregatedTimeInColumn {
	index := make(map[string]int)
	var result []model.AggregatedTimeInColumn

	for _, entry := range card.TimeInColumns {
		var exited time.Time
		if entry.ExitedAt != nil {
			exited = *entry.ExitedAt
		}
		if exited.IsZero() && entry.ColumnID == card.CurrentColumnID {
			exited = at
		}

		if entry.EnteredAt.IsZero() || exited.IsZero() || exited.Before(entry.EnteredAt) {
			slog.Debug("skipping invalid time entry",
				"card", card.ID, "column", entry.ColumnID,
				"entered", entry.EnteredAt, "exited", exited)
			continue
		}

		duration := exited.Sub(entry.EnteredAt).Milliseconds()
		if i, ok := index[entry.ColumnID]; ok {
			result[i].TotalDurationMs += duration
			continue
		}

		name := UnknownColumnName
		for _, col := range columns {
			if col.ID == entry.ColumnID {
				name = col.Title
				break
			}
		}
		index[entry.ColumnID] = len(result)
		result = append(result, model.AggregatedTimeInColumn{
			ColumnID:        entry.ColumnID,
			ColumnName:      name,
			TotalDurationMs: duration,
		})
	}
	return result
}
