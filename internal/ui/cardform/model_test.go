package cardform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/testutil"
)

func TestCreateDefaults(t *testing.T) {
	m := New(80, 24)
	m.StartCreate(testutil.ColDoing)
	m.fb.title = "  Fix login "

	card := m.Card()
	assert.Empty(t, card.ID)
	assert.Equal(t, "Fix login", card.Title)
	assert.Equal(t, model.PriorityNormal, card.Priority)
	assert.Equal(t, model.IssueTypeTask, card.Type)
	assert.Nil(t, card.DueDate)
	assert.Nil(t, card.TimeEstimate)

	msg := m.submit()()
	assert.Equal(t, CardCreatedMsg{Card: card, ColumnID: testutil.ColDoing}, msg)
}

func TestEditKeepsHiddenFields(t *testing.T) {
	due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	est := 1.5
	orig := testutil.NewCard("c1", "One", testutil.ColTodo, testutil.Epoch)
	orig.DueDate = &due
	orig.TimeEstimate = &est
	orig.CodebaseContext = "auth module"

	m := New(80, 24)
	m.StartEdit(orig)
	assert.Equal(t, "2025-04-01", m.fb.dueDate)
	assert.Equal(t, "1.5", m.fb.timeEstimate)

	m.fb.title = "One, renamed"
	m.fb.dueDate = ""
	m.fb.timeEstimate = "3"

	card := m.Card()
	assert.Equal(t, "c1", card.ID)
	assert.Equal(t, "One, renamed", card.Title)
	assert.Equal(t, "auth module", card.CodebaseContext)
	assert.Equal(t, orig.TimeInColumns, card.TimeInColumns)
	assert.Nil(t, card.DueDate)
	require.NotNil(t, card.TimeEstimate)
	assert.Equal(t, 3.0, *card.TimeEstimate)

	_, ok := m.submit()().(CardUpdatedMsg)
	assert.True(t, ok)
}

func TestValidators(t *testing.T) {
	assert.Error(t, validateRequired("Title")("  "))
	assert.NoError(t, validateRequired("Title")("x"))

	assert.NoError(t, validateOptionalDate(""))
	assert.NoError(t, validateOptionalDate("2025-12-31"))
	assert.Error(t, validateOptionalDate("31/12/2025"))

	assert.NoError(t, validateOptionalHours(""))
	assert.NoError(t, validateOptionalHours("0.5"))
	assert.Error(t, validateOptionalHours("-1"))
	assert.Error(t, validateOptionalHours("soon"))
}
