package fingerprint

import (
	"encoding/json"
	"slices"

	"github.com/nhle/kanban-board/internal/model"
)

// HasImportantChange reports whether the card set described by current
// differs from previous in a way collaborators should see quickly: a card
// was added or removed, or a card's priority, title, description,
// assignees, type, due date, labels or checklist changed. An empty or
// unparsable fingerprint counts as an important change.
func HasImportantChange(current, previous string) bool {
	if current == "" || previous == "" {
		return true
	}

	var cur, prev map[string]cardPrint
	if err := json.Unmarshal([]byte(current), &cur); err != nil {
		return true
	}
	if err := json.Unmarshal([]byte(previous), &prev); err != nil {
		return true
	}

	if len(cur) != len(prev) {
		return true
	}
	for id, c := range cur {
		p, ok := prev[id]
		if !ok {
			return true
		}
		if importantFieldsDiffer(c, p) {
			return true
		}
	}
	return false
}

func importantFieldsDiffer(a, b cardPrint) bool {
	return a.Priority != b.Priority ||
		a.Title != b.Title ||
		a.Description != b.Description ||
		a.Type != b.Type ||
		!equalPtr(a.DueDate, b.DueDate) ||
		!slices.Equal(a.AssignedUsers, b.AssignedUsers) ||
		!slices.Equal(a.Labels, b.Labels) ||
		!slices.Equal(a.Checklist, b.Checklist)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Set is the fingerprint of everything the sync engine persists.
type Set struct {
	Title    string
	Columns  string
	Cards    string
	Archived string

	// PerCard maps each card id to its Card fingerprint.
	PerCard map[string]string
}

// Of fingerprints board.
func Of(board *model.Board) Set {
	per := make(map[string]string, len(board.Cards))
	for id, card := range board.Cards {
		per[id] = Card(card)
	}
	return Set{
		Title:    board.Title,
		Columns:  Columns(board.Columns),
		Cards:    Cards(board.Cards),
		Archived: Archived(board.ArchivedCards),
		PerCard:  per,
	}
}

// Equal reports whether both sets describe the same persisted state.
func (s Set) Equal(o Set) bool {
	return s.Title == o.Title &&
		s.Columns == o.Columns &&
		s.Cards == o.Cards &&
		s.Archived == o.Archived
}

// ChangedCards returns the sorted ids of cards whose fingerprint differs
// between s and prev, and the sorted ids present in prev but not in s.
func (s Set) ChangedCards(prev Set) (changed, removed []string) {
	for id, fp := range s.PerCard {
		if prev.PerCard[id] != fp {
			changed = append(changed, id)
		}
	}
	for id := range prev.PerCard {
		if _, ok := s.PerCard[id]; !ok {
			removed = append(removed, id)
		}
	}
	slices.Sort(changed)
	slices.Sort(removed)
	return changed, removed
}
