package model

import "time"

// Priority is the urgency class of a card.
type Priority string

// Card priority constants. Emergency cards are additionally surfaced in the
// priority lane of the column that holds them.
const (
	PriorityEmergency     Priority = "emergency"
	PriorityHigh          Priority = "high"
	PriorityMedium        Priority = "medium"
	PriorityNormal        Priority = "normal"
	PriorityDateSensitive Priority = "date-sensitive"
	PriorityLow           Priority = "low"
)

// IssueType classifies the kind of work a card represents.
type IssueType string

const (
	IssueTypeBug     IssueType = "bug"
	IssueTypeTask    IssueType = "task"
	IssueTypeFeature IssueType = "feature"
)

// Label is a coloured tag attached to a card.
type Label struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// ChecklistItem is a single sub-step within a card.
type ChecklistItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// CardMovement is an append-only log entry describing one column transition.
type CardMovement struct {
	CardID       string    `json:"cardId"`
	FromColumnID string    `json:"fromColumnId"`
	ToColumnID   string    `json:"toColumnId"`
	MovedAt      time.Time `json:"movedAt"`
	MovedBy      string    `json:"movedBy"`
}

// CardTimeInColumn records one interval a card spent in a column.
// A zero EnteredAt marks an entry that was lost in serialization and
// still needs repair.
type CardTimeInColumn struct {
	ColumnID   string     `json:"columnId"`
	EnteredAt  time.Time  `json:"enteredAt"`
	ExitedAt   *time.Time `json:"exitedAt"`
	DurationMs *int64     `json:"durationMs,omitempty"`
}

// IsOpen reports whether the entry has not been closed yet.
func (e CardTimeInColumn) IsOpen() bool {
	return e.ExitedAt == nil
}

// Close returns a copy of the entry closed at exitedAt. The duration is
// clamped to zero when exitedAt precedes the entry time.
func (e CardTimeInColumn) Close(exitedAt time.Time) CardTimeInColumn {
	duration := exitedAt.Sub(e.EnteredAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	at := exitedAt
	e.ExitedAt = &at
	e.DurationMs = &duration
	return e
}

// Card is a unit of work on a board.
//
// Slices held by a Card are shared between successive board values and
// must be replaced, never modified in place.
type Card struct {
	// ID is used as a key in dotted document paths, so it cannot contain
	// '.' or '$'.
	ID          string    `json:"id" validate:"required,excludesall=.$"`
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description"`
	Priority    Priority  `json:"priority" validate:"omitempty,oneof=emergency high medium normal date-sensitive low"`
	Type        IssueType `json:"type" validate:"omitempty,oneof=bug task feature"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// DueDate is nil when the card has no deadline.
	DueDate *time.Time `json:"dueDate"`

	Labels        []Label         `json:"labels"`
	Checklist     []ChecklistItem `json:"checklist"`
	AssignedUsers []string        `json:"assignedUsers"`

	// CurrentColumnID is the column whose CardIDs holds this card. For
	// archived cards it is the last column the card occupied.
	CurrentColumnID string `json:"currentColumnId"`

	MovementHistory []CardMovement     `json:"movementHistory"`
	TimeInColumns   []CardTimeInColumn `json:"timeInColumns"`

	// Development planning fields produced by external estimators.
	CodebaseContext string   `json:"codebaseContext,omitempty"`
	DevTimeEstimate string   `json:"devTimeEstimate,omitempty"`
	TimeEstimate    *float64 `json:"timeEstimate,omitempty"`
}

// OpenEntryIndex returns the index of the open time-in-column entry for
// columnID, or -1 when there is none.
func (c Card) OpenEntryIndex(columnID string) int {
	for i, entry := range c.TimeInColumns {
		if entry.ColumnID == columnID && entry.IsOpen() {
			return i
		}
	}
	return -1
}

// IsEmergency reports whether the card belongs in the priority lane.
func (c Card) IsEmergency() bool {
	return c.Priority == PriorityEmergency
}
