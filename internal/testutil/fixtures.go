package testutil

import (
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// Epoch is the reference creation time used by fixtures.
var Epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// Column ids used by ThreeColumnBoard.
const (
	ColTodo  = "todo"
	ColDoing = "doing"
	ColDone  = "done"
)

// NewCard returns a card created at createdAt with a single open entry
// in columnID.
func NewCard(id, title, columnID string, createdAt time.Time) model.Card {
	return model.Card{
		ID:              id,
		Title:           title,
		Priority:        model.PriorityNormal,
		Type:            model.IssueTypeTask,
		CreatedAt:       createdAt,
		UpdatedAt:       createdAt,
		Labels:          []model.Label{},
		Checklist:       []model.ChecklistItem{},
		AssignedUsers:   []string{},
		CurrentColumnID: columnID,
		MovementHistory: []model.CardMovement{},
		TimeInColumns: []model.CardTimeInColumn{
			{ColumnID: columnID, EnteredAt: createdAt},
		},
	}
}

// ThreeColumnBoard returns a board with To Do, Doing and Done columns and
// the given cards placed in the columns named by their CurrentColumnID.
func ThreeColumnBoard(cards ...model.Card) *model.Board {
	b := &model.Board{
		ID:      "board-1",
		Title:   "Test Board",
		OwnerID: "owner-1",
		Columns: []model.Column{
			{ID: ColTodo, Title: "To Do", CardIDs: []string{}},
			{ID: ColDoing, Title: "Doing", CardIDs: []string{}},
			{ID: ColDone, Title: "Done", CardIDs: []string{}},
		},
		Cards:         map[string]model.Card{},
		ArchivedCards: []model.Card{},
		Users:         []model.User{{ID: "owner-1", Email: "owner@example.com", Name: "Owner"}},
		CreatedAt:     Epoch,
		UpdatedAt:     Epoch,
	}
	for _, card := range cards {
		b.Cards[card.ID] = card
		if i := b.ColumnIndex(card.CurrentColumnID); i >= 0 {
			b.Columns[i].CardIDs = append(b.Columns[i].CardIDs, card.ID)
		}
	}
	return b
}
