package model

// Column is an ordered lane of card ids.
type Column struct {
	ID    string `json:"id" validate:"required"`
	Title string `json:"title" validate:"required"`

	// CardIDs is the display order of the cards in this column.
	CardIDs []string `json:"cardIds"`

	// WIPLimit caps the number of cards; zero or less means unlimited.
	WIPLimit int `json:"wipLimit" validate:"gte=0"`

	IsCollapsed           bool   `json:"isCollapsed"`
	Description           string `json:"description,omitempty"`
	TimeEstimationEnabled bool   `json:"timeEstimationEnabled"`
}

// Contains reports whether cardID is a member of the column.
func (c Column) Contains(cardID string) bool {
	for _, id := range c.CardIDs {
		if id == cardID {
			return true
		}
	}
	return false
}

// AtCapacity reports whether the column has reached its WIP limit.
// Unlimited columns are never at capacity.
func (c Column) AtCapacity() bool {
	return c.WIPLimit > 0 && len(c.CardIDs) >= c.WIPLimit
}

// DefaultColumns returns the column set for a freshly created board.
func DefaultColumns() []Column {
	return []Column{
		{ID: "column-dpq", Title: "DPQ", CardIDs: []string{}},
		{ID: "column-prioritized", Title: "Prioritized", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-design", Title: "Design", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-coding", Title: "Coding (Doing)", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-code-review", Title: "Code Review", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-qa", Title: "QA", CardIDs: []string{}, WIPLimit: 2},
		{ID: "column-ready-for-uat", Title: "Ready For UAT", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-uat", Title: "UAT", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-ready-for-release", Title: "Ready For Release", CardIDs: []string{}, WIPLimit: 5},
		{ID: "column-done", Title: "Done", CardIDs: []string{}},
	}
}
