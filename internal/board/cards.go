package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/movement"
	"github.com/nhle/kanban-board/internal/sync"
)

// Reserved MoveCard destinations.
const (
	// DestinationExpedite marks the card as an emergency and moves it to
	// the first column.
	DestinationExpedite = "expedite"

	// DestinationArchive archives the card.
	DestinationArchive = "archive"
)

// Card returns the active card with the given id.
func (s *Store) Card(cardID string) (model.Card, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return model.Card{}, false
	}
	card, ok := s.board.Cards[cardID]
	return card, ok
}

// ColumnOf returns the id of the column holding cardID, or "".
func (s *Store) ColumnOf(cardID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return ""
	}
	return s.board.ColumnOf(cardID)
}

// EmergencyCards returns the emergency cards of a column in display
// order. They are shown in the column's priority lane but remain members
// of the column.
func (s *Store) EmergencyCards(columnID string) []model.Card {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return nil
	}
	col, ok := s.board.Column(columnID)
	if !ok {
		return nil
	}
	var out []model.Card
	for _, id := range col.CardIDs {
		if card, ok := s.board.Cards[id]; ok && card.IsEmergency() {
			out = append(out, card)
		}
	}
	return out
}

// CanAddCard reports whether a card of the given priority may be added to
// the column under the WIP policy. Emergency cards are exempt.
func (s *Store) CanAddCard(columnID string, priority model.Priority) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return ErrNotReady
	}
	return checkWIP(s.board, columnID, priority)
}

func checkWIP(b *model.Board, columnID string, priority model.Priority) error {
	col, ok := b.Column(columnID)
	if !ok {
		return fmt.Errorf("column %s: %w", columnID, ErrUnknownColumn)
	}
	if priority != model.PriorityEmergency && col.AtCapacity() {
		return fmt.Errorf("column %q holds %d of %d cards: %w", col.Title, len(col.CardIDs), col.WIPLimit, ErrWIPLimit)
	}
	return nil
}

// normalizeCard fills defaults and replaces nil slices so stored cards
// always have the same shape.
func normalizeCard(card model.Card) model.Card {
	card.Title = strings.TrimSpace(card.Title)
	if card.Priority == "" {
		card.Priority = model.PriorityNormal
	}
	if card.Type == "" {
		card.Type = model.IssueTypeTask
	}
	if card.Labels == nil {
		card.Labels = []model.Label{}
	}
	if card.Checklist == nil {
		card.Checklist = []model.ChecklistItem{}
	}
	if card.AssignedUsers == nil {
		card.AssignedUsers = []string{}
	}
	return card
}

// AddCard inserts a new card at the end of a column. A missing id is
// generated. The card gets one open time entry for the column. Adding to
// a column at its WIP limit fails unless the card is an emergency.
func (s *Store) AddCard(card model.Card, columnID string) (model.Card, error) {
	card = normalizeCard(card)
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if err := check("card", card); err != nil {
		return model.Card{}, err
	}

	_, next, err := s.apply(func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error) {
		i := b.ColumnIndex(columnID)
		if i < 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("adding card to column %s: %w", columnID, ErrUnknownColumn)
		}
		if err := checkWIP(b, columnID, card.Priority); err != nil {
			return nil, sync.WriteHint{}, err
		}
		if _, exists := b.Cards[card.ID]; exists || b.ArchivedIndex(card.ID) >= 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("%w: card %s already exists", ErrInvalid, card.ID)
		}

		if card.CreatedAt.IsZero() {
			card.CreatedAt = now
		}
		card.UpdatedAt = now
		card.CurrentColumnID = columnID
		card.MovementHistory = []model.CardMovement{}
		card.TimeInColumns = []model.CardTimeInColumn{{ColumnID: columnID, EnteredAt: now}}

		cards := b.CloneCards()
		cards[card.ID] = card
		columns := b.CloneColumns()
		columns[i].CardIDs = append(columns[i].CardIDs, card.ID)

		nb := b.Copy()
		nb.Cards = cards
		nb.Columns = columns
		return nb, sync.WriteHint{CardIDs: []string{card.ID}, Columns: true}, nil
	})
	if err != nil {
		return model.Card{}, err
	}
	added := next.Cards[card.ID]
	s.emit(EventCardUpdated, next.ID, card.ID)
	return added, nil
}

// UpdateCard replaces the content fields of an existing card. Column
// membership and creation time are kept. Movement history and time
// entries are kept unless the caller supplies replacements.
func (s *Store) UpdateCard(card model.Card) error {
	card = normalizeCard(card)
	if err := check("card", card); err != nil {
		return err
	}

	_, next, err := s.apply(func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error) {
		existing, ok := b.Cards[card.ID]
		if !ok {
			return nil, sync.WriteHint{}, fmt.Errorf("updating card %s: %w", card.ID, ErrUnknownCard)
		}

		card.CreatedAt = existing.CreatedAt
		card.CurrentColumnID = existing.CurrentColumnID
		if card.MovementHistory == nil {
			card.MovementHistory = existing.MovementHistory
		}
		if card.TimeInColumns == nil {
			card.TimeInColumns = existing.TimeInColumns
		}
		card.UpdatedAt = now

		cards := b.CloneCards()
		cards[card.ID] = card
		nb := b.Copy()
		nb.Cards = cards

		hint := sync.WriteHint{CardIDs: []string{card.ID}}
		if card.Priority != existing.Priority {
			nb.LastMoveTimestamp = now
			hint.Priority = true
		}
		return nb, hint, nil
	})
	if err != nil {
		return err
	}
	s.emit(EventCardUpdated, next.ID, card.ID)
	return nil
}

// DeleteCard removes a card from the board and from the column holding
// it. A historical record of the card is kept.
func (s *Store) DeleteCard(cardID, columnID string) error {
	var deleted model.Card
	var at time.Time
	prev, next, err := s.apply(func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error) {
		card, ok := b.Cards[cardID]
		if !ok {
			return nil, sync.WriteHint{}, fmt.Errorf("deleting card %s: %w", cardID, ErrUnknownCard)
		}
		if b.ColumnIndex(columnID) < 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("deleting card %s from column %s: %w", cardID, columnID, ErrUnknownColumn)
		}
		deleted, at = card, now

		cards := b.CloneCards()
		delete(cards, cardID)
		nb := b.Copy()
		nb.Cards = cards
		nb.Columns = removeFromColumns(b.Columns, cardID)
		return nb, sync.WriteHint{DeletedCardIDs: []string{cardID}, Columns: true}, nil
	})
	if err != nil {
		return err
	}
	s.recordHistory(prev, deleted, at)
	s.emit(EventCardUpdated, next.ID, cardID)
	return nil
}

// MoveCard moves a card to destinationColumnID and places it at
// destinationIndex, clamped to the column's bounds; a negative index
// appends. Moving within one column only reorders. The destinations
// DestinationExpedite and DestinationArchive are handled specially.
func (s *Store) MoveCard(cardID, sourceColumnID, destinationColumnID string, destinationIndex int) error {
	if destinationColumnID == DestinationArchive {
		return s.ArchiveCard(cardID, sourceColumnID)
	}

	actor := s.sync.User().ID
	_, next, err := s.apply(func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error) {
		if _, ok := b.Cards[cardID]; !ok {
			return nil, sync.WriteHint{}, fmt.Errorf("moving card %s: %w", cardID, ErrUnknownCard)
		}

		source := b.ColumnOf(cardID)
		if source == "" {
			source = sourceColumnID
		} else if sourceColumnID != "" && sourceColumnID != source {
			s.log.Debug("move source differs from card's column", "card", cardID, "given", sourceColumnID, "actual", source)
		}

		dest := destinationColumnID
		expedite := dest == DestinationExpedite
		if expedite {
			if len(b.Columns) == 0 {
				return nil, sync.WriteHint{}, fmt.Errorf("expediting card %s: %w", cardID, ErrUnknownColumn)
			}
			dest = b.Columns[0].ID
		}
		if b.ColumnIndex(dest) < 0 {
			return nil, sync.WriteHint{}, fmt.Errorf("moving card %s to %s: %w", cardID, dest, ErrUnknownColumn)
		}

		var nb *model.Board
		if source == dest {
			nb = b.Copy()
			nb.Columns = b.CloneColumns()
		} else {
			nb = movement.Record(b, cardID, source, dest, actor, now, s.log)
		}
		nb.Columns = placeAt(nb.Columns, dest, cardID, destinationIndex)

		hint := sync.WriteHint{CardIDs: []string{cardID}, Columns: true}
		if expedite {
			nb.Cards = nb.CloneCards()
			card := nb.Cards[cardID]
			card.Priority = model.PriorityEmergency
			card.UpdatedAt = now
			nb.Cards[cardID] = card
			nb.LastMoveTimestamp = now
			hint.Priority = true
			hint.Force = true
		}
		return nb, hint, nil
	})
	if err != nil {
		return err
	}
	s.emit(EventCardUpdated, next.ID, cardID)
	return nil
}

// placeAt returns columns with cardID repositioned inside column dest.
// The result never shares CardIDs with the input.
func placeAt(columns []model.Column, dest, cardID string, index int) []model.Column {
	out := make([]model.Column, len(columns))
	copy(out, columns)
	for i, col := range out {
		if col.ID != dest {
			continue
		}
		ids := make([]string, 0, len(col.CardIDs)+1)
		for _, id := range col.CardIDs {
			if id != cardID {
				ids = append(ids, id)
			}
		}
		if index < 0 || index > len(ids) {
			index = len(ids)
		}
		ids = append(ids, "")
		copy(ids[index+1:], ids[index:])
		ids[index] = cardID
		out[i].CardIDs = ids
	}
	return out
}

func removeFromColumns(columns []model.Column, cardID string) []model.Column {
	out := make([]model.Column, len(columns))
	for i, col := range columns {
		if col.Contains(cardID) {
			ids := make([]string, 0, len(col.CardIDs))
			for _, id := range col.CardIDs {
				if id != cardID {
					ids = append(ids, id)
				}
			}
			col.CardIDs = ids
		}
		out[i] = col
	}
	return out
}

// UpdateBoardTitle renames the board.
func (s *Store) UpdateBoardTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: board title is empty", ErrInvalid)
	}
	_, next, err := s.apply(func(b *model.Board, _ time.Time) (*model.Board, sync.WriteHint, error) {
		if b.Title == title {
			return b, sync.WriteHint{}, nil
		}
		nb := b.Copy()
		nb.Title = title
		return nb, sync.WriteHint{}, nil
	})
	if err != nil {
		return err
	}
	s.emit(EventForceRerender, next.ID, "")
	return nil
}

// UpdateUsers replaces the board's member list.
func (s *Store) UpdateUsers(users []model.User) error {
	for _, u := range users {
		if err := check("user", u); err != nil {
			return err
		}
	}
	_, next, err := s.apply(func(b *model.Board, _ time.Time) (*model.Board, sync.WriteHint, error) {
		nb := b.Copy()
		nb.Users = append([]model.User{}, users...)
		return nb, sync.WriteHint{Users: true}, nil
	})
	if err != nil {
		return err
	}
	s.emit(EventForceRerender, next.ID, "")
	return nil
}
