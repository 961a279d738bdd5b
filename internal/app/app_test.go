package app

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/kanban-board/internal/board"
	"github.com/nhle/kanban-board/internal/clock"
	"github.com/nhle/kanban-board/internal/logger"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/sync"
	"github.com/nhle/kanban-board/internal/testutil"
	"github.com/nhle/kanban-board/internal/ui/cardform"
	"github.com/nhle/kanban-board/internal/ui/command"
)

func newTestApp(t *testing.T) (Model, *board.Store) {
	t.Helper()
	ctx := context.Background()
	docs := testutil.NewTestStore(t)
	engine := sync.New(docs, nil,
		sync.WithClock(clock.Fake(testutil.Epoch)),
		sync.WithLogger(logger.Discard()),
		sync.WithUser(model.User{ID: "u1", Email: "u1@example.com", Name: "U1"}),
	)
	s := board.NewStore(engine, board.WithHistory(docs), board.WithLogger(logger.Discard()))
	t.Cleanup(func() {
		_ = s.Close(ctx)
		_ = engine.Close(ctx)
	})

	m := New(s, engine, sync.Ref{BoardID: "b1"})
	m = update(t, m, m.loadBoard()())
	m = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40})
	return m, s
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func press(t *testing.T, m Model, k string) Model {
	t.Helper()
	return update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
}

func TestLoadRendersBoard(t *testing.T) {
	m, s := newTestApp(t)

	require.NotNil(t, s.Board())
	assert.False(t, m.loading)
	out := m.View()
	assert.Contains(t, out, board.DefaultTitle)
	assert.Contains(t, out, s.Board().Columns[0].Title)
}

func TestLoadFailureIsShown(t *testing.T) {
	m, _ := newTestApp(t)

	m = update(t, m, boardLoadedMsg{err: errors.New("boom")})
	assert.True(t, m.failing)
	assert.Contains(t, m.statusLine(), "load failed: boom")
}

func TestCommandsMutateBoard(t *testing.T) {
	m, s := newTestApp(t)
	first := s.Board().Columns[0].ID

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbTitle, Arg: "Roadmap"}})
	assert.Equal(t, "Roadmap", s.Board().Title)

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbAddColumn, Arg: "Blocked", N: 2}})
	cols := s.Board().Columns
	last := cols[len(cols)-1]
	assert.Equal(t, "Blocked", last.Title)
	assert.Equal(t, 2, last.WIPLimit)

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbColumnWIP, N: 3}})
	col, ok := s.Board().Column(first)
	require.True(t, ok)
	assert.Equal(t, 3, col.WIPLimit)

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbRenameColumn, Arg: "Inbox"}})
	col, _ = s.Board().Column(first)
	assert.Equal(t, "Inbox", col.Title)
	assert.Empty(t, m.flash)

	m = update(t, m, command.CommandMsg{Err: errors.New("unknown command \"frob\"")})
	assert.Equal(t, "unknown command \"frob\"", m.flash)
	assert.False(t, m.failing)
}

func TestCardFormFlow(t *testing.T) {
	m, s := newTestApp(t)
	first := s.Board().Columns[0].ID

	m = press(t, m, "n")
	assert.Equal(t, ViewCardForm, m.currentView)

	m = update(t, m, cardform.CardCreatedMsg{Card: model.Card{Title: "Write docs"}, ColumnID: first})
	assert.Equal(t, ViewBoard, m.currentView)

	card, ok := m.boardView.SelectedCard()
	require.True(t, ok)
	assert.Equal(t, "Write docs", card.Title)
	assert.Equal(t, first, card.CurrentColumnID)

	card.Title = "Write more docs"
	m = update(t, m, cardform.CardUpdatedMsg{Card: card})
	got, ok := s.Card(card.ID)
	require.True(t, ok)
	assert.Equal(t, "Write more docs", got.Title)

	m = press(t, m, "e")
	assert.Equal(t, ViewCardForm, m.currentView)
	m = update(t, m, cardform.CancelMsg{})
	assert.Equal(t, ViewBoard, m.currentView)
}

func TestArchiveAndRestoreByTitle(t *testing.T) {
	m, s := newTestApp(t)
	first := s.Board().Columns[0].ID

	m = update(t, m, cardform.CardCreatedMsg{Card: model.Card{Title: "Old spike"}, ColumnID: first})
	card, ok := m.boardView.SelectedCard()
	require.True(t, ok)

	m = press(t, m, "a")
	require.Len(t, s.Board().ArchivedCards, 1)
	assert.NotContains(t, s.Board().Cards, card.ID)

	m = press(t, m, "A")
	assert.Equal(t, ViewArchive, m.currentView)
	assert.Contains(t, m.View(), "Old spike")

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbRestore, Arg: "nothing"}})
	assert.Contains(t, m.flash, "no archived card")

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbRestore, Arg: "Old"}})
	assert.Empty(t, m.flash)
	assert.Contains(t, s.Board().Cards, card.ID)
	assert.Empty(t, s.Board().ArchivedCards)
}

func TestMutationErrorsAreFlashed(t *testing.T) {
	m, s := newTestApp(t)
	first := s.Board().Columns[0].ID

	m = update(t, m, command.CommandMsg{Command: command.Command{Verb: command.VerbColumnWIP, N: 1}})
	m = update(t, m, cardform.CardCreatedMsg{Card: model.Card{Title: "One"}, ColumnID: first})
	m = update(t, m, cardform.CardCreatedMsg{Card: model.Card{Title: "Two"}, ColumnID: first})

	assert.Contains(t, m.flash, board.ErrWIPLimit.Error())
	col, _ := s.Board().Column(first)
	assert.Len(t, col.CardIDs, 1)
}

func TestSaveFailureShowsError(t *testing.T) {
	m, _ := newTestApp(t)

	m = update(t, m, sync.SaveResultMsg{BoardID: "b1", Err: errors.New("disk full")})
	assert.True(t, m.failing)
	assert.Contains(t, m.statusLine(), "save failed: disk full")

	m = update(t, m, sync.SaveResultMsg{BoardID: "b1", SavedAt: testutil.Epoch})
	assert.False(t, m.failing)
	assert.Empty(t, m.flash)
}

func TestHelpAndCommandViews(t *testing.T) {
	m, _ := newTestApp(t)

	m = press(t, m, "?")
	assert.Equal(t, ViewHelp, m.currentView)
	m = press(t, m, "?")
	assert.Equal(t, ViewBoard, m.currentView)

	m = press(t, m, ":")
	assert.Equal(t, ViewCommand, m.currentView)
	// Typed keys belong to the palette, not to board shortcuts.
	m = press(t, m, "q")
	assert.Equal(t, ViewCommand, m.currentView)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ViewBoard, m.currentView)
}

type stubEngine struct {
	status sync.Status
}

func (e stubEngine) Status() sync.Status { return e.status }
func (e stubEngine) WaitForResult() tea.Cmd { return nil }
func (e stubEngine) SaveNow() tea.Cmd { return nil }
func (e stubEngine) Now() time.Time { return testutil.Epoch }

func TestSyncStatus(t *testing.T) {
	saved := time.Date(2025, 3, 1, 10, 30, 0, 0, time.Local)
	tests := []struct {
		name   string
		status sync.Status
		want   string
	}{
		{"idle", sync.Status{}, "synced"},
		{"saving", sync.Status{Saving: true, HasUnsavedChanges: true}, "saving…"},
		{"failed", sync.Status{HasUnsavedChanges: true, LastError: "offline"}, "⚠ not saved"},
		{"dirty", sync.Status{HasUnsavedChanges: true}, "unsaved changes"},
		{"pending", sync.Status{PendingWrite: true}, "unsaved changes"},
		{"saved", sync.Status{LastSavedAt: saved}, "saved 10:30:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Model{engine: stubEngine{status: tt.status}}
			assert.Equal(t, tt.want, m.syncStatus())
		})
	}
}
