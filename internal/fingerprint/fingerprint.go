// Package fingerprint derives stable strings from the persisted parts of
// a board so that unchanged state can be recognised without comparing
// object identity.
//
// Fingerprints are JSON documents. encoding/json writes map keys in sorted
// order, which makes every fingerprint independent of map iteration order.
package fingerprint

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/nhle/kanban-board/internal/model"
)

// dueDateLayout normalises due dates to day precision.
const dueDateLayout = "2006-01-02"

type columnPrint struct {
	ID                    string   `json:"id"`
	Title                 string   `json:"title"`
	WIPLimit              int      `json:"wipLimit"`
	CardIDs               []string `json:"cardIds"`
	Description           string   `json:"description"`
	TimeEstimationEnabled bool     `json:"timeEstimationEnabled"`
}

type checklistPrint struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type cardPrint struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Priority      string           `json:"priority"`
	Type          string           `json:"type"`
	DueDate       *string          `json:"dueDate"`
	AssignedUsers []string         `json:"assignedUsers"`
	Checklist     []checklistPrint `json:"checklist"`
	Labels        []model.Label    `json:"labels"`
	TimeEstimate  *float64         `json:"timeEstimate"`
}

// Columns fingerprints the column structure. Column order is significant.
func Columns(columns []model.Column) string {
	prints := make([]columnPrint, len(columns))
	for i, col := range columns {
		ids := col.CardIDs
		if ids == nil {
			ids = []string{}
		}
		prints[i] = columnPrint{
			ID:                    col.ID,
			Title:                 col.Title,
			WIPLimit:              col.WIPLimit,
			CardIDs:               ids,
			Description:           col.Description,
			TimeEstimationEnabled: col.TimeEstimationEnabled,
		}
	}
	return encode(prints)
}

// Card fingerprints the content fields of one card. Tracking fields and
// timestamps other than the due date are excluded.
func Card(card model.Card) string {
	return encode(printCard(card))
}

// Cards fingerprints a card map keyed by card id.
func Cards(cards map[string]model.Card) string {
	prints := make(map[string]cardPrint, len(cards))
	for id, card := range cards {
		prints[id] = printCard(card)
	}
	return encode(prints)
}

// Archived fingerprints the ids of the archived cards in order.
func Archived(cards []model.Card) string {
	ids := make([]string, len(cards))
	for i, card := range cards {
		ids[i] = card.ID
	}
	return encode(ids)
}

func printCard(card model.Card) cardPrint {
	assignees := append([]string{}, card.AssignedUsers...)
	sort.Strings(assignees)

	checklist := make([]checklistPrint, len(card.Checklist))
	for i, item := range card.Checklist {
		checklist[i] = checklistPrint{ID: item.ID, Text: item.Text, Checked: item.Completed}
	}

	labels := card.Labels
	if labels == nil {
		labels = []model.Label{}
	}

	return cardPrint{
		Title:         card.Title,
		Description:   card.Description,
		Priority:      string(card.Priority),
		Type:          string(card.Type),
		DueDate:       normalizeDueDate(card.DueDate),
		AssignedUsers: assignees,
		Checklist:     checklist,
		Labels:        labels,
		TimeEstimate:  card.TimeEstimate,
	}
}

func normalizeDueDate(d *time.Time) *string {
	if d == nil || d.IsZero() {
		return nil
	}
	s := d.UTC().Format(dueDateLayout)
	return &s
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Only plain strings, numbers and bools reach here.
		panic("fingerprint: " + err.Error())
	}
	return string(b)
}
