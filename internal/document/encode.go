package document

import (
	"github.com/nhle/kanban-board/internal/model"
)

// EncodeBoard renders the full board document.
func EncodeBoard(b *model.Board) map[string]any {
	cards := make(map[string]any, len(b.Cards))
	for id, card := range b.Cards {
		cards[id] = EncodeCard(card)
	}
	return map[string]any{
		FieldID:            b.ID,
		FieldTitle:         b.Title,
		FieldOwnerID:       b.OwnerID,
		FieldCreatedAt:     EncodeTime(b.CreatedAt),
		FieldUpdatedAt:     EncodeTime(b.UpdatedAt),
		FieldUsers:         EncodeUsers(b.Users),
		FieldColumns:       EncodeColumns(b.Columns),
		FieldCards:         cards,
		FieldArchivedCards: EncodeCards(b.ArchivedCards),
	}
}

// EncodeUsers renders a board's member list.
func EncodeUsers(users []model.User) []any {
	out := make([]any, len(users))
	for i, u := range users {
		out[i] = map[string]any{"id": u.ID, "email": u.Email, "name": u.Name}
	}
	return out
}

// EncodeColumns renders the ordered column list.
func EncodeColumns(columns []model.Column) []any {
	out := make([]any, len(columns))
	for i, col := range columns {
		ids := make([]any, len(col.CardIDs))
		for j, id := range col.CardIDs {
			ids[j] = id
		}
		m := map[string]any{
			"id":                    col.ID,
			"title":                 col.Title,
			"cardIds":               ids,
			"wipLimit":              col.WIPLimit,
			"isCollapsed":           col.IsCollapsed,
			"timeEstimationEnabled": col.TimeEstimationEnabled,
		}
		if col.Description != "" {
			m["description"] = col.Description
		}
		out[i] = m
	}
	return out
}

// EncodeCards renders a card list, used for archived cards.
func EncodeCards(cards []model.Card) []any {
	out := make([]any, len(cards))
	for i, card := range cards {
		out[i] = EncodeCard(card)
	}
	return out
}

// EncodeCard renders one card.
func EncodeCard(c model.Card) map[string]any {
	labels := make([]any, len(c.Labels))
	for i, l := range c.Labels {
		labels[i] = map[string]any{"id": l.ID, "name": l.Name, "color": l.Color}
	}
	checklist := make([]any, len(c.Checklist))
	for i, item := range c.Checklist {
		checklist[i] = map[string]any{"id": item.ID, "text": item.Text, "completed": item.Completed}
	}
	assignees := make([]any, len(c.AssignedUsers))
	for i, u := range c.AssignedUsers {
		assignees[i] = u
	}

	m := map[string]any{
		"id":              c.ID,
		"title":           c.Title,
		"description":     c.Description,
		"priority":        string(c.Priority),
		"type":            string(c.Type),
		"createdAt":       EncodeTime(c.CreatedAt),
		"updatedAt":       EncodeTime(c.UpdatedAt),
		"dueDate":         nil,
		"labels":          labels,
		"checklist":       checklist,
		"assignedUsers":   assignees,
		"currentColumnId": c.CurrentColumnID,
		"movementHistory": EncodeMovements(c.MovementHistory),
		"timeInColumns":   EncodeTimeInColumns(c.TimeInColumns),
	}
	if c.DueDate != nil {
		m["dueDate"] = EncodeTime(*c.DueDate)
	}
	if c.CodebaseContext != "" {
		m["codebaseContext"] = c.CodebaseContext
	}
	if c.DevTimeEstimate != "" {
		m["devTimeEstimate"] = c.DevTimeEstimate
	}
	if c.TimeEstimate != nil {
		m["timeEstimate"] = *c.TimeEstimate
	}
	return m
}

// EncodeMovements renders a movement log.
func EncodeMovements(moves []model.CardMovement) []any {
	out := make([]any, len(moves))
	for i, mv := range moves {
		out[i] = map[string]any{
			"cardId":       mv.CardID,
			"fromColumnId": mv.FromColumnID,
			"toColumnId":   mv.ToColumnID,
			"movedAt":      EncodeTime(mv.MovedAt),
			"movedBy":      mv.MovedBy,
		}
	}
	return out
}

// EncodeTimeInColumns renders time-in-column entries. A zero entry time
// is written as an empty value so it is repaired on the next read.
func EncodeTimeInColumns(entries []model.CardTimeInColumn) []any {
	out := make([]any, len(entries))
	for i, e := range entries {
		m := map[string]any{
			"columnId":  e.ColumnID,
			"enteredAt": nil,
			"exitedAt":  nil,
		}
		if !e.EnteredAt.IsZero() {
			m["enteredAt"] = EncodeTime(e.EnteredAt)
		}
		if e.ExitedAt != nil {
			m["exitedAt"] = EncodeTime(*e.ExitedAt)
		}
		if e.DurationMs != nil {
			m["durationMs"] = *e.DurationMs
		}
		out[i] = m
	}
	return out
}
