package boardview

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/kanban-board/internal/board"
	"github.com/nhle/kanban-board/internal/keys"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/testutil"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newView(t *testing.T, b *model.Board) Model {
	t.Helper()
	m := New(keys.DefaultKeyMap(), func() time.Time { return testutil.Epoch.Add(time.Hour) }, 120, 30)
	m.SetBoard(b)
	return m
}

func fixture() *model.Board {
	urgent := testutil.NewCard("u1", "Urgent", testutil.ColTodo, testutil.Epoch)
	urgent.Priority = model.PriorityEmergency
	return testutil.ThreeColumnBoard(
		testutil.NewCard("a", "Alpha", testutil.ColTodo, testutil.Epoch),
		urgent,
		testutil.NewCard("b", "Beta", testutil.ColTodo, testutil.Epoch),
		testutil.NewCard("c", "Gamma", testutil.ColDoing, testutil.Epoch),
	)
}

func TestPriorityLaneComesFirst(t *testing.T) {
	b := fixture()
	assert.Equal(t, []string{"u1", "a", "b"}, displayOrder(b, b.Columns[0]))

	m := newView(t, b)
	card, ok := m.SelectedCard()
	require.True(t, ok)
	assert.Equal(t, "u1", card.ID)
}

func TestNavigation(t *testing.T) {
	m := newView(t, fixture())

	m, _ = m.Update(runes("j"))
	m, _ = m.Update(runes("j"))
	m, _ = m.Update(runes("j"))
	card, _ := m.SelectedCard()
	assert.Equal(t, "b", card.ID, "cursor stops at the last card")

	m, _ = m.Update(runes("l"))
	card, _ = m.SelectedCard()
	assert.Equal(t, "c", card.ID)

	m, _ = m.Update(runes("l"))
	col, _ := m.SelectedColumn()
	assert.Equal(t, testutil.ColDone, col.ID)
	_, ok := m.SelectedCard()
	assert.False(t, ok, "done is empty")

	m, _ = m.Update(runes("l"))
	col, _ = m.SelectedColumn()
	assert.Equal(t, testutil.ColDone, col.ID, "cursor stops at the last column")
}

func TestMoveKeysRequestMoves(t *testing.T) {
	m := newView(t, fixture())
	m, _ = m.Update(runes("j"))

	_, cmd := m.Update(runes("L"))
	require.NotNil(t, cmd)
	assert.Equal(t, MoveRequestMsg{CardID: "a", FromColumnID: testutil.ColTodo, ToColumnID: testutil.ColDoing, Index: -1}, cmd())

	_, cmd = m.Update(runes("H"))
	assert.Nil(t, cmd, "no column to the left")

	_, cmd = m.Update(runes("J"))
	require.NotNil(t, cmd)
	assert.Equal(t, MoveRequestMsg{CardID: "a", FromColumnID: testutil.ColTodo, ToColumnID: testutil.ColTodo, Index: 1}, cmd())

	_, cmd = m.Update(runes("K"))
	assert.Nil(t, cmd, "a is already first in the column")

	_, cmd = m.Update(runes("!"))
	require.NotNil(t, cmd)
	assert.Equal(t, board.DestinationExpedite, cmd().(MoveRequestMsg).ToColumnID)
}

func TestSelectionFollowsMovedCard(t *testing.T) {
	b := fixture()
	m := newView(t, b)
	m, _ = m.Update(runes("j"))

	moved := testutil.ThreeColumnBoard(
		testutil.NewCard("b", "Beta", testutil.ColTodo, testutil.Epoch),
		testutil.NewCard("c", "Gamma", testutil.ColDoing, testutil.Epoch),
		testutil.NewCard("a", "Alpha", testutil.ColDone, testutil.Epoch),
	)
	m.SetBoard(moved)

	card, ok := m.SelectedCard()
	require.True(t, ok)
	assert.Equal(t, "a", card.ID)
	col, _ := m.SelectedColumn()
	assert.Equal(t, testutil.ColDone, col.ID)
}

func TestSelectionSurvivesDeletedCard(t *testing.T) {
	m := newView(t, fixture())
	m, _ = m.Update(runes("l"))

	m.SetBoard(testutil.ThreeColumnBoard(testutil.NewCard("a", "Alpha", testutil.ColTodo, testutil.Epoch)))

	col, ok := m.SelectedColumn()
	require.True(t, ok)
	assert.Equal(t, testutil.ColDoing, col.ID)
	_, ok = m.SelectedCard()
	assert.False(t, ok)
}

func TestViewShowsWIPAndLane(t *testing.T) {
	b := fixture()
	b.Columns[0].WIPLimit = 3
	m := newView(t, b)

	out := m.View()
	assert.Contains(t, out, "To Do")
	assert.Contains(t, out, "3/3")
	assert.Contains(t, out, "priority")
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "1h 0m")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "long…", truncate("long title", 5))
	assert.Equal(t, "", truncate("x", 1))
}
