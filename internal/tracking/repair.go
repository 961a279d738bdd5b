package tracking

import (
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// creationTime is the fallback entry time for repaired entries.
func creationTime(card model.Card, now time.Time) time.Time {
	if card.CreatedAt.IsZero() {
		return now
	}
	return card.CreatedAt
}

// RepairTimeTracking replaces zero entry times with the card's creation
// time and makes sure every active card has at least one entry for its
// current column. Archived cards only get their entry times repaired. The
// input board is returned unchanged when nothing needed repair.
func RepairTimeTracking(board *model.Board, now time.Time) *model.Board {
	if board == nil {
		return nil
	}

	var cards map[string]model.Card
	for id, card := range board.Cards {
		repaired, changed := repairCard(card, now, true)
		if !changed {
			continue
		}
		if cards == nil {
			cards = board.CloneCards()
		}
		cards[id] = repaired
	}

	var archived []model.Card
	for i, card := range board.ArchivedCards {
		repaired, changed := repairCard(card, now, false)
		if !changed {
			continue
		}
		if archived == nil {
			archived = append([]model.Card(nil), board.ArchivedCards...)
		}
		archived[i] = repaired
	}

	if cards == nil && archived == nil {
		return board
	}

	next := board.Copy()
	if cards != nil {
		next.Cards = cards
	}
	if archived != nil {
		next.ArchivedCards = archived
	}
	return next
}

func repairCard(card model.Card, now time.Time, ensureCurrent bool) (model.Card, bool) {
	entered := creationTime(card, now)
	ensureCurrent = ensureCurrent && card.CurrentColumnID != ""

	if len(card.TimeInColumns) == 0 {
		if !ensureCurrent {
			return card, false
		}
		card.TimeInColumns = []model.CardTimeInColumn{{
			ColumnID:  card.CurrentColumnID,
			EnteredAt: entered,
		}}
		return card, true
	}

	changed := false
	hasCurrent := false
	var entries []model.CardTimeInColumn
	for i, entry := range card.TimeInColumns {
		if entry.ColumnID == card.CurrentColumnID {
			hasCurrent = true
		}
		if !entry.EnteredAt.IsZero() {
			continue
		}
		if entries == nil {
			entries = make([]model.CardTimeInColumn, len(card.TimeInColumns))
			copy(entries, card.TimeInColumns)
		}
		entries[i].EnteredAt = entered
		changed = true
	}
	if entries == nil {
		entries = card.TimeInColumns
	}

	if !hasCurrent && ensureCurrent {
		next := make([]model.CardTimeInColumn, len(entries), len(entries)+1)
		copy(next, entries)
		entries = append(next, model.CardTimeInColumn{
			ColumnID:  card.CurrentColumnID,
			EnteredAt: entered,
		})
		changed = true
	}

	if changed {
		card.TimeInColumns = entries
	}
	return card, changed
}

// InitializeCardTracking fills in tracking fields for cards that predate
// time tracking: the current column is derived from column membership,
// an untracked card gets one open entry at its creation time, and a nil
// movement history becomes empty.
func InitializeCardTracking(board *model.Board, now time.Time) *model.Board {
	if board == nil {
		return nil
	}

	var cards map[string]model.Card
	for id, card := range board.Cards {
		changed := false

		if card.CurrentColumnID == "" {
			if col := board.ColumnOf(id); col != "" {
				card.CurrentColumnID = col
				changed = true
			}
		}
		if len(card.TimeInColumns) == 0 && card.CurrentColumnID != "" {
			card.TimeInColumns = []model.CardTimeInColumn{{
				ColumnID:  card.CurrentColumnID,
				EnteredAt: creationTime(card, now),
			}}
			changed = true
		}
		if card.MovementHistory == nil {
			card.MovementHistory = []model.CardMovement{}
			changed = true
		}

		if !changed {
			continue
		}
		if cards == nil {
			cards = board.CloneCards()
		}
		cards[id] = card
	}
	if cards == nil {
		return board
	}

	next := board.Copy()
	next.Cards = cards
	return next
}
