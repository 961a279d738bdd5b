package model

import "time"

// User is a board member.
type User struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Name  string `json:"name"`
}

// Board is the normalized in-memory representation of a kanban board.
// Columns reference cards by id; the cards themselves live in Cards.
//
// A Board value is never modified after it has been published. Mutations
// build a new Board that shares untouched subtrees with the previous one.
type Board struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"ownerId"`

	Columns       []Column        `json:"columns"`
	Cards         map[string]Card `json:"cards"`
	ArchivedCards []Card          `json:"archivedCards"`
	Users         []User          `json:"users"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// LastMoveTimestamp is stamped by card moves and priority edits so the
	// sync engine can escalate the next write. Zero means no recent move.
	LastMoveTimestamp time.Time `json:"-"`
}

// NewBoard returns an empty board with the default column set.
func NewBoard(id, title, ownerID string, now time.Time) *Board {
	return &Board{
		ID:            id,
		Title:         title,
		OwnerID:       ownerID,
		Columns:       DefaultColumns(),
		Cards:         map[string]Card{},
		ArchivedCards: []Card{},
		Users:         []User{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Copy returns a shallow copy of b. Fields of the copy may be reassigned
// freely; shared slices and maps must be cloned before modification.
func (b *Board) Copy() *Board {
	nb := *b
	return &nb
}

// CloneCards returns a new map holding the same cards as b.Cards.
func (b *Board) CloneCards() map[string]Card {
	cards := make(map[string]Card, len(b.Cards)+1)
	for id, card := range b.Cards {
		cards[id] = card
	}
	return cards
}

// CloneColumns returns a copy of b.Columns with each CardIDs slice copied.
func (b *Board) CloneColumns() []Column {
	columns := make([]Column, len(b.Columns))
	for i, col := range b.Columns {
		col.CardIDs = append([]string(nil), col.CardIDs...)
		if col.CardIDs == nil {
			col.CardIDs = []string{}
		}
		columns[i] = col
	}
	return columns
}

// ColumnIndex returns the position of the column with the given id, or -1.
func (b *Board) ColumnIndex(columnID string) int {
	for i, col := range b.Columns {
		if col.ID == columnID {
			return i
		}
	}
	return -1
}

// Column returns the column with the given id.
func (b *Board) Column(columnID string) (Column, bool) {
	i := b.ColumnIndex(columnID)
	if i < 0 {
		return Column{}, false
	}
	return b.Columns[i], true
}

// ColumnOf returns the id of the column that currently holds cardID, or ""
// when the card is in no column.
func (b *Board) ColumnOf(cardID string) string {
	for _, col := range b.Columns {
		if col.Contains(cardID) {
			return col.ID
		}
	}
	return ""
}

// ArchivedIndex returns the position of cardID in ArchivedCards, or -1.
func (b *Board) ArchivedIndex(cardID string) int {
	for i, card := range b.ArchivedCards {
		if card.ID == cardID {
			return i
		}
	}
	return -1
}

// HasUser reports whether a user with the given id or email is a member.
func (b *Board) HasUser(id, email string) bool {
	for _, u := range b.Users {
		if (id != "" && u.ID == id) || (email != "" && u.Email == email) {
			return true
		}
	}
	return false
}
