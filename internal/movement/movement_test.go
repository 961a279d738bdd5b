package movement

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordMovesCard(t *testing.T) {
	t0 := testutil.Epoch
	t1 := t0.Add(90 * time.Minute)
	board := testutil.ThreeColumnBoard(testutil.NewCard("c1", "One", testutil.ColTodo, t0))

	moved := Record(board, "c1", testutil.ColTodo, testutil.ColDoing, "ann@example.com", t1, nil)

	card := moved.Cards["c1"]
	assert.Equal(t, testutil.ColDoing, card.CurrentColumnID)
	assert.Equal(t, []model.CardMovement{{
		CardID: "c1", FromColumnID: testutil.ColTodo, ToColumnID: testutil.ColDoing,
		MovedAt: t1, MovedBy: "ann@example.com",
	}}, card.MovementHistory)

	require.Len(t, card.TimeInColumns, 2)
	closed := card.TimeInColumns[0]
	assert.Equal(t, testutil.ColTodo, closed.ColumnID)
	assert.Equal(t, t0, closed.EnteredAt)
	require.NotNil(t, closed.ExitedAt)
	assert.Equal(t, t1, *closed.ExitedAt)
	require.NotNil(t, closed.DurationMs)
	assert.Equal(t, t1.Sub(t0).Milliseconds(), *closed.DurationMs)
	assert.Equal(t, model.CardTimeInColumn{ColumnID: testutil.ColDoing, EnteredAt: t1}, card.TimeInColumns[1])

	assert.Empty(t, moved.Columns[0].CardIDs)
	assert.Equal(t, []string{"c1"}, moved.Columns[1].CardIDs)
	assert.Equal(t, t1, moved.LastMoveTimestamp)
}

func TestRecordLeavesInputUntouched(t *testing.T) {
	t0 := testutil.Epoch
	board := testutil.ThreeColumnBoard(testutil.NewCard("c1", "One", testutil.ColTodo, t0))

	_ = Record(board, "c1", testutil.ColTodo, testutil.ColDone, "ann", t0.Add(time.Hour), nil)

	assert.Equal(t, []string{"c1"}, board.Columns[0].CardIDs)
	assert.Empty(t, board.Columns[2].CardIDs)
	assert.Equal(t, testutil.ColTodo, board.Cards["c1"].CurrentColumnID)
	assert.Len(t, board.Cards["c1"].TimeInColumns, 1)
	assert.True(t, board.Cards["c1"].TimeInColumns[0].IsOpen())
	assert.Empty(t, board.Cards["c1"].MovementHistory)
	assert.True(t, board.LastMoveTimestamp.IsZero())
}

func TestRecordSameColumnIsNoop(t *testing.T) {
	board := testutil.ThreeColumnBoard(testutil.NewCard("c1", "One", testutil.ColTodo, testutil.Epoch))
	assert.Same(t, board, Record(board, "c1", testutil.ColTodo, testutil.ColTodo, "ann", time.Now(), nil))
}

func TestRecordUnknownCardLogs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	board := testutil.ThreeColumnBoard()

	got := Record(board, "ghost", testutil.ColTodo, testutil.ColDoing, "ann", time.Now(), log)

	assert.Same(t, board, got)
	assert.Contains(t, buf.String(), "unknown card")
	assert.Contains(t, buf.String(), "ghost")
}

func TestRecordTwiceKeepsStructure(t *testing.T) {
	t0 := testutil.Epoch
	now := t0.Add(time.Hour)
	board := testutil.ThreeColumnBoard(testutil.NewCard("c1", "One", testutil.ColTodo, t0))

	once := Record(board, "c1", testutil.ColTodo, testutil.ColDoing, "ann", now, nil)
	twice := Record(once, "c1", testutil.ColTodo, testutil.ColDoing, "ann", now, nil)

	for i := range once.Columns {
		assert.Equal(t, once.Columns[i].CardIDs, twice.Columns[i].CardIDs)
	}
	assert.Equal(t, testutil.ColDoing, twice.Cards["c1"].CurrentColumnID)
	assert.Len(t, twice.Cards["c1"].MovementHistory, 2)
	assertSingleOpenEntry(t, twice.Cards["c1"])
}

func TestRecordChainKeepsOneOpenEntry(t *testing.T) {
	t0 := testutil.Epoch
	board := testutil.ThreeColumnBoard(testutil.NewCard("c1", "One", testutil.ColTodo, t0))

	board = Record(board, "c1", testutil.ColTodo, testutil.ColDoing, "ann", t0.Add(time.Hour), nil)
	board = Record(board, "c1", testutil.ColDoing, testutil.ColDone, "ann", t0.Add(3*time.Hour), nil)
	board = Record(board, "c1", testutil.ColDone, testutil.ColTodo, "bob", t0.Add(4*time.Hour), nil)

	card := board.Cards["c1"]
	assert.Len(t, card.MovementHistory, 3)
	assert.Len(t, card.TimeInColumns, 4)
	assertSingleOpenEntry(t, card)
	assert.Equal(t, (2 * time.Hour).Milliseconds(), *card.TimeInColumns[1].DurationMs)
	assert.Equal(t, []string{"c1"}, board.Columns[0].CardIDs)
}

func TestRecordRepairsZeroEntryTime(t *testing.T) {
	t0 := testutil.Epoch
	card := testutil.NewCard("c1", "One", testutil.ColTodo, t0)
	card.TimeInColumns = []model.CardTimeInColumn{{ColumnID: testutil.ColTodo}}
	board := testutil.ThreeColumnBoard(card)

	moved := Record(board, "c1", testutil.ColTodo, testutil.ColDoing, "", t0.Add(time.Hour), nil)

	entries := moved.Cards["c1"].TimeInColumns
	assert.Equal(t, t0, entries[0].EnteredAt)
	assert.Equal(t, time.Hour.Milliseconds(), *entries[0].DurationMs)
	assert.Equal(t, UnknownActor, moved.Cards["c1"].MovementHistory[0].MovedBy)
}

func TestCloseOpen(t *testing.T) {
	t0 := testutil.Epoch
	card := testutil.NewCard("c1", "One", testutil.ColTodo, t0)

	entries := CloseOpen(card, testutil.ColTodo, t0.Add(time.Minute))
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsOpen())
	assert.Equal(t, int64(60_000), *entries[0].DurationMs)
	assert.True(t, card.TimeInColumns[0].IsOpen())

	same := CloseOpen(card, testutil.ColDone, t0.Add(time.Minute))
	assert.Equal(t, card.TimeInColumns, same)
}

func assertSingleOpenEntry(t *testing.T, card model.Card) {
	t.Helper()
	open := 0
	for _, e := range card.TimeInColumns {
		if e.IsOpen() {
			open++
		}
	}
	assert.Equal(t, 1, open)
}
