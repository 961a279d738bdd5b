package board

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/movement"
	"github.com/nhle/kanban-board/internal/sync"
	"github.com/nhle/kanban-board/internal/tracking"
)

const historyTimeout = 10 * time.Second

// ArchiveCard closes the card's open time entry, removes it from the
// active columns and appends it to the archive. Archiving a card that is
// already archived does nothing.
func (s *Store) ArchiveCard(cardID, columnID string) error {
	var archived model.Card
	var at time.Time
	prev, next, err := s.apply(func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error) {
		if b.ArchivedIndex(cardID) >= 0 {
			return b, sync.WriteHint{}, nil
		}
		card, ok := b.Cards[cardID]
		if !ok {
			return nil, sync.WriteHint{}, fmt.Errorf("archiving card %s: %w", cardID, ErrUnknownCard)
		}

		current := b.ColumnOf(cardID)
		if current == "" {
			current = card.CurrentColumnID
		}
		if columnID == "" {
			columnID = current
		}
		card.TimeInColumns = movement.CloseOpen(card, columnID, now)
		if current != columnID {
			card.TimeInColumns = movement.CloseOpen(card, current, now)
		}
		card.CurrentColumnID = current
		card.UpdatedAt = now
		archived, at = card, now

		cards := b.CloneCards()
		delete(cards, cardID)

		nb := b.Copy()
		nb.Cards = cards
		nb.Columns = removeFromColumns(b.Columns, cardID)
		nb.ArchivedCards = append(append(make([]model.Card, 0, len(b.ArchivedCards)+1), b.ArchivedCards...), card)
		return nb, sync.WriteHint{CardIDs: []string{cardID}, Columns: true, Archived: true}, nil
	})
	if err != nil {
		return err
	}
	if prev == next {
		return nil
	}
	s.recordHistory(prev, archived, at)
	s.emit(EventCardUpdated, next.ID, cardID)
	return nil
}

// RestoreCard moves an archived card back to destColumnID and opens a new
// time entry there. An empty or unknown destination falls back to the
// card's last column and then to the board's first column.
func (s *Store) RestoreCard(cardID, destColumnID string) error {
	_, next, err := s.apply(func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error) {
		i := b.ArchivedIndex(cardID)
		if i < 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("restoring card %s: %w", cardID, ErrUnknownCard)
		}
		card := b.ArchivedCards[i]
		if err := checkCardID(card.ID); err != nil {
			return nil, sync.WriteHint{}, fmt.Errorf("restoring card: %w", err)
		}

		dest := destColumnID
		if b.ColumnIndex(dest) < 0 {
			dest = card.CurrentColumnID
		}
		if b.ColumnIndex(dest) < 0 {
			if len(b.Columns) == 0 {
				return nil, sync.WriteHint{}, fmt.Errorf("restoring card %s: %w", cardID, ErrUnknownColumn)
			}
			s.log.Warn("restore destination missing, using first column",
				"board", b.ID, "card", cardID, "requested", destColumnID, "column", b.Columns[0].ID)
			dest = b.Columns[0].ID
		}

		entries := make([]model.CardTimeInColumn, len(card.TimeInColumns), len(card.TimeInColumns)+1)
		copy(entries, card.TimeInColumns)
		card.TimeInColumns = append(entries, model.CardTimeInColumn{ColumnID: dest, EnteredAt: now})
		card.CurrentColumnID = dest
		card.UpdatedAt = now

		archived := make([]model.Card, 0, len(b.ArchivedCards)-1)
		archived = append(archived, b.ArchivedCards[:i]...)
		archived = append(archived, b.ArchivedCards[i+1:]...)

		cards := b.CloneCards()
		cards[cardID] = card
		columns := b.CloneColumns()
		j := b.ColumnIndex(dest)
		columns[j].CardIDs = append(columns[j].CardIDs, cardID)

		nb := b.Copy()
		nb.Cards = cards
		nb.Columns = columns
		nb.ArchivedCards = archived
		return nb, sync.WriteHint{CardIDs: []string{cardID}, Columns: true, Archived: true}, nil
	})
	if err != nil {
		return err
	}
	s.forgetHistory(next, cardID)
	s.emit(EventCardUpdated, next.ID, cardID)
	return nil
}

// historical builds the long-term record of a card leaving board b.
func historical(b *model.Board, card model.Card, at time.Time) model.HistoricalCard {
	aggregated := tracking.AggregateTimeInColumns(card, b.Columns, at)
	if aggregated == nil {
		aggregated = []model.AggregatedTimeInColumn{}
	}
	return model.HistoricalCard{
		ID:                      card.ID,
		OwnerID:                 b.OwnerID,
		BoardID:                 b.ID,
		BoardTitle:              b.Title,
		Title:                   card.Title,
		Description:             card.Description,
		Priority:                card.Priority,
		Type:                    card.Type,
		Labels:                  card.Labels,
		Checklist:               card.Checklist,
		DueDate:                 card.DueDate,
		AggregatedTimeInColumns: aggregated,
		CodebaseContext:         card.CodebaseContext,
		DevTimeEstimate:         card.DevTimeEstimate,
		TimeEstimate:            card.TimeEstimate,
		RecordedAt:              at,
	}
}

// recordHistory writes the historical record in the background. Failures
// are logged and never reach the caller.
func (s *Store) recordHistory(b *model.Board, card model.Card, at time.Time) {
	if s.history == nil {
		return
	}
	rec := historical(b, card, at)
	s.historyWG.Add(1)
	go func() {
		defer s.historyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := s.history.SaveHistorical(ctx, rec); err != nil {
			s.log.Error("saving historical card", "board", rec.BoardID, "card", rec.ID, "error", err)
		}
	}()
}

func (s *Store) forgetHistory(b *model.Board, cardID string) {
	if s.history == nil {
		return
	}
	ownerID, boardID := b.OwnerID, b.ID
	s.historyWG.Add(1)
	go func() {
		defer s.historyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		if err := s.history.DeleteHistorical(ctx, ownerID, boardID, cardID); err != nil {
			s.log.Error("deleting historical card", "board", boardID, "card", cardID, "error", err)
		}
	}()
}
