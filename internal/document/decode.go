package document

import (
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// Meta is the write metadata stamped on a board document.
type Meta struct {
	UpdatedAt              time.Time
	LastEditedByID         string
	LastEditedByEmail      string
	LastEditedBySharedUser bool
	WriterID               string
	WriteSeq               int64
}

// DecodeMeta reads the write metadata of a board document.
func DecodeMeta(data map[string]any) Meta {
	seq, _ := number(data[FieldWriteSeq])
	shared, _ := data[FieldLastEditedBySharedUser].(bool)
	updated, _ := ParseTime(data[FieldUpdatedAt])
	return Meta{
		UpdatedAt:              updated,
		LastEditedByID:         str(data, FieldLastEditedByID),
		LastEditedByEmail:      str(data, FieldLastEditedByEmail),
		LastEditedBySharedUser: shared,
		WriterID:               str(data, FieldWriterID),
		WriteSeq:               int64(seq),
	}
}

// DecodeBoard builds a board from a stored document. It never fails:
// missing or malformed values are replaced with defaults, and dates that
// cannot be read become now. Time-in-column entry times are the exception
// and decode to zero so that tracking repair can restore them from the
// card's creation time.
func DecodeBoard(boardID string, data map[string]any, now time.Time) *model.Board {
	b := &model.Board{
		ID:        strOr(data, FieldID, boardID),
		Title:     str(data, FieldTitle),
		OwnerID:   str(data, FieldOwnerID),
		CreatedAt: timeOr(data[FieldCreatedAt], now),
		UpdatedAt: timeOr(data[FieldUpdatedAt], now),
		Columns:   []model.Column{},
		Cards:     map[string]model.Card{},
		Users:     []model.User{},
	}

	for _, raw := range list(data[FieldUsers]) {
		if m, ok := raw.(map[string]any); ok {
			b.Users = append(b.Users, model.User{
				ID:    str(m, "id"),
				Email: str(m, "email"),
				Name:  str(m, "name"),
			})
		}
	}

	for _, raw := range list(data[FieldColumns]) {
		if m, ok := raw.(map[string]any); ok {
			b.Columns = append(b.Columns, DecodeColumn(m))
		}
	}

	if cards, ok := data[FieldCards].(map[string]any); ok {
		for id, raw := range cards {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			b.Cards[id] = DecodeCard(id, m, now)
		}
	}

	b.ArchivedCards = DecodeCards(data[FieldArchivedCards], now)
	return b
}

// DecodeColumn reads one column.
func DecodeColumn(m map[string]any) model.Column {
	limit, _ := number(m["wipLimit"])
	collapsed, _ := m["isCollapsed"].(bool)
	estimation, _ := m["timeEstimationEnabled"].(bool)
	return model.Column{
		ID:                    str(m, "id"),
		Title:                 str(m, "title"),
		CardIDs:               stringList(m["cardIds"]),
		WIPLimit:              int(limit),
		IsCollapsed:           collapsed,
		Description:           str(m, "description"),
		TimeEstimationEnabled: estimation,
	}
}

// DecodeCards reads a card list such as archivedCards.
func DecodeCards(v any, now time.Time) []model.Card {
	cards := []model.Card{}
	for _, raw := range list(v) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := str(m, "id")
		if id == "" {
			continue
		}
		cards = append(cards, DecodeCard(id, m, now))
	}
	return cards
}

// DecodeCard reads one card stored under id.
func DecodeCard(id string, m map[string]any, now time.Time) model.Card {
	created := m["createdAt"]
	if created == nil {
		created = m["created"]
	}
	updated := m["updatedAt"]
	if updated == nil {
		updated = m["updated"]
	}

	c := model.Card{
		ID:              id,
		Title:           str(m, "title"),
		Description:     str(m, "description"),
		Priority:        model.Priority(strOr(m, "priority", string(model.PriorityNormal))),
		Type:            model.IssueType(strOr(m, "type", string(model.IssueTypeTask))),
		CreatedAt:       timeOr(created, now),
		UpdatedAt:       timeOr(updated, now),
		DueDate:         timePtr(m["dueDate"]),
		AssignedUsers:   stringList(m["assignedUsers"]),
		CurrentColumnID: str(m, "currentColumnId"),
		Labels:          []model.Label{},
		Checklist:       []model.ChecklistItem{},
		MovementHistory: []model.CardMovement{},
		TimeInColumns:   []model.CardTimeInColumn{},
		CodebaseContext: str(m, "codebaseContext"),
		DevTimeEstimate: str(m, "devTimeEstimate"),
	}
	if est, ok := number(m["timeEstimate"]); ok {
		c.TimeEstimate = &est
	}

	for _, raw := range list(m["labels"]) {
		if l, ok := raw.(map[string]any); ok {
			c.Labels = append(c.Labels, model.Label{ID: str(l, "id"), Name: str(l, "name"), Color: str(l, "color")})
		}
	}
	for _, raw := range list(m["checklist"]) {
		if item, ok := raw.(map[string]any); ok {
			completed, _ := item["completed"].(bool)
			checked, _ := item["checked"].(bool)
			c.Checklist = append(c.Checklist, model.ChecklistItem{
				ID:        str(item, "id"),
				Text:      str(item, "text"),
				Completed: completed || checked,
			})
		}
	}
	c.MovementHistory = DecodeMovements(id, m["movementHistory"], now)

	for _, raw := range list(m["timeInColumns"]) {
		e, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		entered, _ := ParseTime(e["enteredAt"])
		entry := model.CardTimeInColumn{
			ColumnID:  str(e, "columnId"),
			EnteredAt: entered,
			ExitedAt:  timePtr(e["exitedAt"]),
		}
		if d, ok := number(e["durationMs"]); ok {
			ms := int64(d)
			entry.DurationMs = &ms
		}
		c.TimeInColumns = append(c.TimeInColumns, entry)
	}
	return c
}

// DecodeMovements reads a movement log. Entries without card, source or
// destination ids are dropped; a missing actor becomes "unknown".
func DecodeMovements(cardID string, v any, now time.Time) []model.CardMovement {
	moves := []model.CardMovement{}
	for _, raw := range list(v) {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		mv := model.CardMovement{
			CardID:       str(m, "cardId"),
			FromColumnID: str(m, "fromColumnId"),
			ToColumnID:   str(m, "toColumnId"),
			MovedAt:      timeOr(m["movedAt"], now),
			MovedBy:      strOr(m, "movedBy", "unknown"),
		}
		if mv.CardID == "" || mv.FromColumnID == "" || mv.ToColumnID == "" {
			continue
		}
		moves = append(moves, mv)
	}
	return moves
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strOr(m map[string]any, key, def string) string {
	if s := str(m, key); s != "" {
		return s
	}
	return def
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func stringList(v any) []string {
	out := []string{}
	for _, raw := range list(v) {
		if s, ok := raw.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
