package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// viaJSON mimics what a document store does to written data.
func viaJSON(t *testing.T, v map[string]any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	return out
}

func TestBoardSurvivesStorage(t *testing.T) {
	t0 := testutil.Epoch
	due := t0.Add(48 * time.Hour)
	estimate := 3.5
	exited := t0.Add(time.Hour)
	dur := time.Hour.Milliseconds()

	card := testutil.NewCard("c1", "One", testutil.ColDoing, t0)
	card.DueDate = &due
	card.TimeEstimate = &estimate
	card.AssignedUsers = []string{"ann@example.com"}
	card.Labels = []model.Label{{ID: "l1", Name: "ui", Color: "#f00"}}
	card.Checklist = []model.ChecklistItem{{ID: "i1", Text: "write tests", Completed: true}}
	card.MovementHistory = []model.CardMovement{{
		CardID: "c1", FromColumnID: testutil.ColTodo, ToColumnID: testutil.ColDoing, MovedAt: exited, MovedBy: "ann",
	}}
	card.TimeInColumns = []model.CardTimeInColumn{
		{ColumnID: testutil.ColTodo, EnteredAt: t0, ExitedAt: &exited, DurationMs: &dur},
		{ColumnID: testutil.ColDoing, EnteredAt: exited},
	}
	board := testutil.ThreeColumnBoard(card)
	board.Columns[1].WIPLimit = 2
	board.Columns[1].Description = "in progress"
	board.ArchivedCards = []model.Card{testutil.NewCard("old", "Old", testutil.ColDone, t0)}

	decoded := DecodeBoard(board.ID, viaJSON(t, EncodeBoard(board)), time.Now())

	assert.Equal(t, board, decoded)
}

func TestDecodeBoardDefaults(t *testing.T) {
	now := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	data := map[string]any{
		"title":     "Imported",
		"createdAt": "garbage",
		"columns": []any{
			map[string]any{"id": "a", "title": "A", "cardIds": []any{"x", 7}},
			"not a column",
		},
		"cards": map[string]any{
			"x": map[string]any{
				"title":     "X",
				"createdAt": map[string]any{"seconds": float64(1_700_000_000)},
				"checklist": []any{map[string]any{"id": "i", "text": "t", "checked": true}},
				"timeInColumns": []any{
					map[string]any{"columnId": "a", "enteredAt": map[string]any{}},
				},
				"movementHistory": []any{
					map[string]any{"cardId": "x", "fromColumnId": "a", "toColumnId": "b", "movedAt": float64(1_700_000_100_000)},
					map[string]any{"cardId": "x", "toColumnId": "b"},
				},
			},
			"broken": "nope",
		},
	}

	b := DecodeBoard("b1", data, now)

	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, now, b.CreatedAt)
	assert.Empty(t, b.Users)
	require.Len(t, b.Columns, 1)
	assert.Equal(t, []string{"x"}, b.Columns[0].CardIDs)
	assert.Empty(t, b.ArchivedCards)

	require.Contains(t, b.Cards, "x")
	assert.NotContains(t, b.Cards, "broken")
	x := b.Cards["x"]
	assert.Equal(t, model.PriorityNormal, x.Priority)
	assert.Equal(t, model.IssueTypeTask, x.Type)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), x.CreatedAt)
	assert.Equal(t, now, x.UpdatedAt)
	assert.True(t, x.Checklist[0].Completed)
	require.Len(t, x.TimeInColumns, 1)
	assert.True(t, x.TimeInColumns[0].EnteredAt.IsZero(), "empty object decodes as needing repair")
	require.Len(t, x.MovementHistory, 1)
	assert.Equal(t, "unknown", x.MovementHistory[0].MovedBy)
	assert.Equal(t, time.UnixMilli(1_700_000_100_000).UTC(), x.MovementHistory[0].MovedAt)
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	valid := map[string]any{
		"rfc3339":  "2025-01-02T03:04:05Z",
		"offset":   "2025-01-02T04:04:05+01:00",
		"millis":   float64(want.UnixMilli()),
		"seconds":  map[string]any{"seconds": float64(want.Unix()), "nanoseconds": float64(0)},
		"_seconds": map[string]any{"_seconds": float64(want.Unix())},
	}
	for name, in := range valid {
		got, ok := ParseTime(in)
		assert.True(t, ok, name)
		assert.True(t, want.Equal(got), name)
	}

	for _, in := range []any{nil, "", "yesterday", map[string]any{}, float64(0), true} {
		_, ok := ParseTime(in)
		assert.False(t, ok, "%v", in)
	}
}

func TestDecodeMeta(t *testing.T) {
	meta := DecodeMeta(map[string]any{
		FieldWriterID:               "w1",
		FieldWriteSeq:               float64(42),
		FieldLastEditedByEmail:      "ann@example.com",
		FieldLastEditedBySharedUser: true,
		FieldUpdatedAt:              "2025-01-02T03:04:05Z",
	})
	assert.Equal(t, "w1", meta.WriterID)
	assert.Equal(t, int64(42), meta.WriteSeq)
	assert.Equal(t, "ann@example.com", meta.LastEditedByEmail)
	assert.True(t, meta.LastEditedBySharedUser)
	assert.False(t, meta.UpdatedAt.IsZero())
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "users/u1/boards/b1", BoardPath("u1", "b1"))
	assert.Equal(t, "sharedBoards/ann@example.com/boards/b1", SharedPointerPath("Ann@Example.com", "b1"))
	assert.Equal(t, "cards.c1", CardField("c1"))
}
