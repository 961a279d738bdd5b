package model

import "time"

// AggregatedTimeInColumn is the total time a card spent in one column.
type AggregatedTimeInColumn struct {
	ColumnID        string `json:"columnId"`
	ColumnName      string `json:"columnName"`
	TotalDurationMs int64  `json:"totalDurationMs"`
}

// HistoricalCard is the long-term analytics record written when a card
// leaves the active board through archive or delete.
type HistoricalCard struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	BoardID     string          `json:"originalBoardId"`
	BoardTitle  string          `json:"boardTitle"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Type        IssueType       `json:"type"`
	Labels      []Label         `json:"labels"`
	Checklist   []ChecklistItem `json:"checklist"`
	DueDate     *time.Time      `json:"dueDate"`

	AggregatedTimeInColumns []AggregatedTimeInColumn `json:"aggregatedTimeInColumns"`

	CodebaseContext string   `json:"codebaseContext,omitempty"`
	DevTimeEstimate string   `json:"devTimeEstimate,omitempty"`
	TimeEstimate    *float64 `json:"timeEstimate,omitempty"`

	RecordedAt time.Time `json:"recordedAt"`
}
