package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/sync"
)

// AddColumn appends an empty column. A wipLimit of zero means unlimited.
func (s *Store) AddColumn(title string, wipLimit int) (model.Column, error) {
	col := model.Column{
		ID:       "column-" + uuid.NewString(),
		Title:    strings.TrimSpace(title),
		CardIDs:  []string{},
		WIPLimit: wipLimit,
	}
	if err := check("column", col); err != nil {
		return model.Column{}, err
	}

	_, next, err := s.apply(func(b *model.Board, _ time.Time) (*model.Board, sync.WriteHint, error) {
		nb := b.Copy()
		nb.Columns = append(b.CloneColumns(), col)
		return nb, sync.WriteHint{Columns: true}, nil
	})
	if err != nil {
		return model.Column{}, err
	}
	s.emit(EventForceRerender, next.ID, "")
	return col, nil
}

// DeleteColumn removes a column together with every card it holds. The
// cards are deleted, not archived.
func (s *Store) DeleteColumn(columnID string) error {
	var removed []string
	_, next, err := s.apply(func(b *model.Board, _ time.Time) (*model.Board, sync.WriteHint, error) {
		i := b.ColumnIndex(columnID)
		if i < 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("deleting column %s: %w", columnID, ErrUnknownColumn)
		}

		removed = append([]string(nil), b.Columns[i].CardIDs...)
		cards := b.CloneCards()
		for _, id := range removed {
			delete(cards, id)
		}

		columns := b.CloneColumns()
		nb := b.Copy()
		nb.Columns = append(columns[:i], columns[i+1:]...)
		nb.Cards = cards
		return nb, sync.WriteHint{Columns: true, DeletedCardIDs: removed}, nil
	})
	if err != nil {
		return err
	}
	s.log.Info("deleted column", "board", next.ID, "column", columnID, "cards", len(removed))
	s.emit(EventForceRerender, next.ID, "")
	return nil
}

// UpdateColumnTitle renames a column.
func (s *Store) UpdateColumnTitle(columnID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: column title is empty", ErrInvalid)
	}

	_, next, err := s.apply(func(b *model.Board, _ time.Time) (*model.Board, sync.WriteHint, error) {
		i := b.ColumnIndex(columnID)
		if i < 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("renaming column %s: %w", columnID, ErrUnknownColumn)
		}
		if b.Columns[i].Title == title {
			return b, sync.WriteHint{}, nil
		}
		columns := b.CloneColumns()
		columns[i].Title = title
		nb := b.Copy()
		nb.Columns = columns
		return nb, sync.WriteHint{Columns: true}, nil
	})
	if err != nil {
		return err
	}
	s.emit(EventForceRerender, next.ID, "")
	return nil
}

// UpdateColumns replaces the column list, as done by the settings panel.
// Columns may be reordered, renamed, added or dropped, but every active
// card must stay in the column that holds it; cards change columns only
// through MoveCard.
func (s *Store) UpdateColumns(columns []model.Column) error {
	for _, col := range columns {
		if err := check("column", col); err != nil {
			return err
		}
	}

	_, next, err := s.apply(func(b *model.Board, _ time.Time) (*model.Board, sync.WriteHint, error) {
		if err := checkMembership(b, columns); err != nil {
			return nil, sync.WriteHint{}, err
		}

		cols := make([]model.Column, len(columns))
		for i, col := range columns {
			col.CardIDs = append([]string{}, col.CardIDs...)
			cols[i] = col
		}
		nb := b.Copy()
		nb.Columns = cols
		return nb, sync.WriteHint{Columns: true}, nil
	})
	if err != nil {
		return err
	}
	s.emit(EventForceRerender, next.ID, "")
	return nil
}

func checkMembership(b *model.Board, columns []model.Column) error {
	seenColumns := make(map[string]bool, len(columns))
	seenCards := make(map[string]bool, len(b.Cards))
	for _, col := range columns {
		if seenColumns[col.ID] {
			return fmt.Errorf("%w: duplicate column %s", ErrInvalid, col.ID)
		}
		seenColumns[col.ID] = true

		for _, id := range col.CardIDs {
			if _, ok := b.Cards[id]; !ok {
				return fmt.Errorf("%w: column %s lists card %s", ErrUnknownCard, col.ID, id)
			}
			if seenCards[id] {
				return fmt.Errorf("%w: card %s is in more than one column", ErrInvalid, id)
			}
			if from := b.ColumnOf(id); from != col.ID {
				return fmt.Errorf("%w: card %s would move from %s to %s", ErrInvalid, id, from, col.ID)
			}
			seenCards[id] = true
		}
	}
	if len(seenCards) != len(b.Cards) {
		return fmt.Errorf("%w: %d cards would have no column", ErrInvalid, len(b.Cards)-len(seenCards))
	}
	return nil
}
