package app

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/kanban-board/internal/board"
	"github.com/nhle/kanban-board/internal/keys"
	"github.com/nhle/kanban-board/internal/sync"
	"github.com/nhle/kanban-board/internal/ui"
	"github.com/nhle/kanban-board/internal/ui/boardview"
	"github.com/nhle/kanban-board/internal/ui/cardform"
	"github.com/nhle/kanban-board/internal/ui/command"
	"github.com/nhle/kanban-board/internal/ui/detail"
	helpview "github.com/nhle/kanban-board/internal/ui/help"
)

const loadTimeout = 30 * time.Second

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewBoard ViewState = iota
	ViewDetail
	ViewArchive
	ViewHelp
	ViewCommand
	ViewCardForm
)

// Engine is the part of the sync engine the UI reads.
type Engine interface {
	Status() sync.Status
	WaitForResult() tea.Cmd
	SaveNow() tea.Cmd
	Now() time.Time
}

// boardLoadedMsg reports the end of the initial load.
type boardLoadedMsg struct{ err error }

// boardEventMsg carries a store event into the update loop.
type boardEventMsg struct{ event board.Event }

// Model is the root Bubble Tea model. It routes keys to the active view
// and turns user actions into board store mutations.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	store        *board.Store
	engine       Engine
	ref          sync.Ref
	keys         *keys.KeyMap
	events       chan board.Event
	unsubscribe  func()

	boardView   boardview.Model
	detail      detail.Model
	helpView    helpview.Model
	commandView command.Model
	cardForm    cardform.Model

	ready   bool
	loading bool
	flash   string
	failing bool
}

// New creates the root model for the board identified by ref.
func New(s *board.Store, engine Engine, ref sync.Ref) Model {
	k := keys.DefaultKeyMap()
	events := make(chan board.Event, 64)
	unsubscribe := s.Subscribe(func(ev board.Event) {
		select {
		case events <- ev:
		default:
			// The view re-reads the whole board, so a dropped event is
			// covered by any later one.
		}
	})

	return Model{
		currentView: ViewBoard,
		store:       s,
		engine:      engine,
		ref:         ref,
		keys:        k,
		events:      events,
		unsubscribe: unsubscribe,
		boardView:   boardview.New(k, engine.Now, 80, 24),
		detail:      detail.New(k, engine.Now, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		commandView: command.New(80, 24),
		cardForm:    cardform.New(80, 24),
		loading:     true,
	}
}

// Init loads the board and starts listening for store events and write
// results.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadBoard(),
		m.waitForEvent(),
		m.engine.WaitForResult(),
	)
}

func (m Model) loadBoard() tea.Cmd {
	s, ref := m.store, m.ref
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		return boardLoadedMsg{err: s.Load(ctx, ref)}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return boardEventMsg{event: ev}
	}
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.boardView.SetSize(w, h)
		m.detail.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		m.cardForm.SetSize(w, h)
		// Forward to the active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case boardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.setError(fmt.Sprintf("load failed: %v", msg.err))
			return m, nil
		}
		m.refresh()
		return m, nil

	case boardEventMsg:
		if msg.event.Kind != board.EventBoardSaved {
			m.refresh()
		}
		return m, m.waitForEvent()

	case sync.SaveResultMsg:
		m.store.HandleSaveResult(msg)
		if msg.Err != nil {
			m.setError(fmt.Sprintf("save failed: %v", msg.Err))
		} else if m.failing {
			m.clearFlash()
		}
		return m, m.engine.WaitForResult()

	case boardview.MoveRequestMsg:
		m.report(m.store.MoveCard(msg.CardID, msg.FromColumnID, msg.ToColumnID, msg.Index))
		return m, nil

	case cardform.CardCreatedMsg:
		m.currentView = ViewBoard
		card, err := m.store.AddCard(msg.Card, msg.ColumnID)
		if m.report(err) {
			m.refresh()
			m.boardView.Select(card.ID)
		}
		return m, nil

	case cardform.CardUpdatedMsg:
		m.currentView = ViewBoard
		m.report(m.store.UpdateCard(msg.Card))
		return m, nil

	case cardform.CancelMsg:
		m.currentView = ViewBoard
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewBoard
		return m, nil

	case command.CommandMsg:
		m.currentView = m.previousView
		if msg.Err != nil {
			m.setFlash(msg.Err.Error())
			return m, nil
		}
		return m, m.execute(msg.Command)

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey handles keys that are not delegated to the active view.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}

	// Text entry views own every other key.
	if m.currentView == ViewCardForm || m.currentView == ViewCommand {
		if key.Matches(msg, m.keys.Back) && m.currentView == ViewCommand {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Save):
		return m.engine.SaveNow(), true
	}

	if m.currentView == ViewHelp && key.Matches(msg, m.keys.Back) {
		m.currentView = m.previousView
		return nil, true
	}
	if m.currentView != ViewBoard {
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit(), true

	case key.Matches(msg, m.keys.New):
		col, ok := m.boardView.SelectedColumn()
		if !ok {
			return nil, true
		}
		if b := m.store.Board(); b != nil {
			m.cardForm.SetUsers(b.Users)
		}
		m.currentView = ViewCardForm
		return m.cardForm.StartCreate(col.ID), true

	case key.Matches(msg, m.keys.Edit):
		card, ok := m.boardView.SelectedCard()
		if !ok {
			return nil, true
		}
		if b := m.store.Board(); b != nil {
			m.cardForm.SetUsers(b.Users)
		}
		m.currentView = ViewCardForm
		return m.cardForm.StartEdit(card), true

	case key.Matches(msg, m.keys.Archive):
		if card, ok := m.boardView.SelectedCard(); ok {
			m.report(m.store.ArchiveCard(card.ID, card.CurrentColumnID))
		}
		return nil, true

	case key.Matches(msg, m.keys.Delete):
		if card, ok := m.boardView.SelectedCard(); ok {
			m.report(m.store.DeleteCard(card.ID, card.CurrentColumnID))
		}
		return nil, true

	case key.Matches(msg, m.keys.Select):
		card, ok := m.boardView.SelectedCard()
		if !ok {
			return nil, true
		}
		m.detail.SetCard(card, m.store.Board().Columns)
		m.currentView = ViewDetail
		return nil, true

	case key.Matches(msg, m.keys.ShowArchive):
		if b := m.store.Board(); b != nil {
			m.detail.SetArchive(b.ArchivedCards, b.Columns)
			m.currentView = ViewArchive
		}
		return nil, true
	}
	return nil, false
}

func (m *Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	return tea.Quit
}

// execute runs a palette command against the focused column or board.
func (m *Model) execute(c command.Command) tea.Cmd {
	col, hasCol := m.boardView.SelectedColumn()
	needCol := func() bool {
		if !hasCol {
			m.setFlash("no column selected")
		}
		return hasCol
	}

	switch c.Verb {
	case command.VerbSave:
		return m.engine.SaveNow()
	case command.VerbQuit:
		return m.quit()
	case command.VerbTitle:
		m.report(m.store.UpdateBoardTitle(c.Arg))
	case command.VerbAddColumn:
		_, err := m.store.AddColumn(c.Arg, c.N)
		m.report(err)
	case command.VerbRenameColumn:
		if needCol() {
			m.report(m.store.UpdateColumnTitle(col.ID, c.Arg))
		}
	case command.VerbColumnWIP:
		if needCol() {
			m.report(m.setWIP(col.ID, c.N))
		}
	case command.VerbDeleteColumn:
		if needCol() {
			m.report(m.store.DeleteColumn(col.ID))
		}
	case command.VerbRestore:
		m.report(m.restore(c.Arg))
	}
	return nil
}

func (m *Model) setWIP(columnID string, limit int) error {
	b := m.store.Board()
	if b == nil {
		return board.ErrNotReady
	}
	columns := b.CloneColumns()
	i := b.ColumnIndex(columnID)
	if i < 0 {
		return board.ErrUnknownColumn
	}
	columns[i].WIPLimit = limit
	return m.store.UpdateColumns(columns)
}

// restore accepts an archived card's id or a unique title prefix.
func (m *Model) restore(ref string) error {
	b := m.store.Board()
	if b == nil {
		return board.ErrNotReady
	}
	if b.ArchivedIndex(ref) >= 0 {
		return m.store.RestoreCard(ref, "")
	}
	var match string
	for _, card := range b.ArchivedCards {
		if len(card.Title) >= len(ref) && card.Title[:len(ref)] == ref {
			if match != "" {
				return fmt.Errorf("%q matches more than one archived card", ref)
			}
			match = card.ID
		}
	}
	if match == "" {
		return fmt.Errorf("no archived card %q", ref)
	}
	return m.store.RestoreCard(match, "")
}

// report shows err in the status bar and reports whether the action
// succeeded.
func (m *Model) report(err error) bool {
	if err != nil {
		m.setFlash(err.Error())
		return false
	}
	m.clearFlash()
	m.refresh()
	return true
}

func (m *Model) setFlash(s string) {
	m.flash = s
	m.failing = false
}

func (m *Model) setError(s string) {
	m.flash = s
	m.failing = true
}

func (m *Model) clearFlash() {
	m.flash = ""
	m.failing = false
}

// refresh re-reads the board into the views.
func (m *Model) refresh() {
	b := m.store.Board()
	m.boardView.SetBoard(b)
	if b != nil && m.currentView == ViewArchive {
		m.detail.SetArchive(b.ArchivedCards, b.Columns)
	}
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewBoard:
		m.boardView, cmd = m.boardView.Update(msg)
	case ViewDetail, ViewArchive:
		m.detail, cmd = m.detail.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewCardForm:
		m.cardForm, cmd = m.cardForm.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	title := "Kanban"
	if b := m.store.Board(); b != nil {
		title = b.Title
		if m.ref.Shared {
			title += " (shared)"
		}
	}
	header := m.layout.RenderHeader(title, m.syncStatus())
	statusBar := m.layout.RenderStatusBar(m.statusLine(), m.failing)

	return m.layout.RenderWithFrame(header, m.renderContent(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewDetail, ViewArchive:
		return m.detail.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewCardForm:
		return m.cardForm.View()
	default:
		if m.loading {
			return "Loading board..."
		}
		return m.boardView.View()
	}
}

// syncStatus describes the engine's save state for the header.
func (m Model) syncStatus() string {
	st := m.engine.Status()
	switch {
	case st.Saving:
		return "saving…"
	case st.LastError != "":
		return "⚠ not saved"
	case st.HasUnsavedChanges || st.PendingWrite:
		return "unsaved changes"
	case !st.LastSavedAt.IsZero():
		return "saved " + st.LastSavedAt.Local().Format("15:04:05")
	}
	return "synced"
}

// statusLine returns the flash message or keyboard hints for the status bar.
func (m Model) statusLine() string {
	if m.flash != "" {
		return m.flash
	}

	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewDetail, ViewArchive:
		return "esc back | j/k scroll"
	case ViewCardForm:
		return "enter submit | esc cancel"
	default:
		return m.helpView.ShortView()
	}
}
