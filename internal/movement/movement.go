// Package movement records column transitions of cards.
package movement

import (
	"log/slog"
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// UnknownActor is recorded when a move has no identifiable actor.
const UnknownActor = "unknown"

// Record returns a new board in which cardID has moved from fromColumnID
// to toColumnID at now. It appends a movement log entry, closes the open
// time entry for the source column, opens one for the destination, moves
// the card id between the columns' card lists and stamps the board's
// LastMoveTimestamp.
//
// The input board is returned unchanged when the columns are equal or
// the card is unknown; the latter is logged.
func Record(board *model.Board, cardID, fromColumnID, toColumnID, actor string, now time.Time, log *slog.Logger) *model.Board {
	if fromColumnID == toColumnID {
		return board
	}
	card, ok := board.Cards[cardID]
	if !ok {
		if log == nil {
			log = slog.Default()
		}
		log.Warn("recording movement for unknown card",
			"board", board.ID, "card", cardID, "from", fromColumnID, "to", toColumnID)
		return board
	}
	if actor == "" {
		actor = UnknownActor
	}

	history := make([]model.CardMovement, len(card.MovementHistory), len(card.MovementHistory)+1)
	copy(history, card.MovementHistory)
	card.MovementHistory = append(history, model.CardMovement{
		CardID:       cardID,
		FromColumnID: fromColumnID,
		ToColumnID:   toColumnID,
		MovedAt:      now,
		MovedBy:      actor,
	})
	card.TimeInColumns = Transition(card, toColumnID, now)
	card.CurrentColumnID = toColumnID

	columns := make([]model.Column, len(board.Columns))
	for i, col := range board.Columns {
		switch col.ID {
		case fromColumnID:
			col.CardIDs = without(col.CardIDs, cardID)
		case toColumnID:
			if !col.Contains(cardID) {
				col.CardIDs = appendID(col.CardIDs, cardID)
			}
		}
		columns[i] = col
	}

	next := board.Copy()
	next.Columns = columns
	next.Cards = board.CloneCards()
	next.Cards[cardID] = card
	next.LastMoveTimestamp = now
	return next
}

// Transition returns the card's time entries with the open entry for the
// source column closed at now and a new open entry for toColumnID. Zero
// entry times are first repaired to the card's creation time.
func Transition(card model.Card, toColumnID string, now time.Time) []model.CardTimeInColumn {
	entries := make([]model.CardTimeInColumn, 0, len(card.TimeInColumns)+1)
	for _, entry := range card.TimeInColumns {
		if entry.EnteredAt.IsZero() {
			entry.EnteredAt = card.CreatedAt
			if entry.EnteredAt.IsZero() {
				entry.EnteredAt = now
			}
		}
		entries = append(entries, entry)
	}

	// The open entry normally belongs to fromColumnID; any other open
	// entry is stale and is closed too so only the new one stays open.
	for i, entry := range entries {
		if entry.IsOpen() {
			entries[i] = entry.Close(now)
		}
	}
	return append(entries, model.CardTimeInColumn{ColumnID: toColumnID, EnteredAt: now})
}

// CloseOpen returns the card's time entries with the open entry for
// columnID closed at now. The card's entries are returned as is when
// there is no open entry for that column.
func CloseOpen(card model.Card, columnID string, now time.Time) []model.CardTimeInColumn {
	i := card.OpenEntryIndex(columnID)
	if i < 0 {
		return card.TimeInColumns
	}
	entries := make([]model.CardTimeInColumn, len(card.TimeInColumns))
	copy(entries, card.TimeInColumns)
	entries[i] = entries[i].Close(now)
	return entries
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func appendID(ids []string, id string) []string {
	out := make([]string, len(ids), len(ids)+1)
	copy(out, ids)
	return append(out, id)
}
