// Package boardview renders the board as side-by-side columns and tracks
// the card cursor.
package boardview

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/kanban-board/internal/board"
	"github.com/nhle/kanban-board/internal/keys"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/theme"
	"github.com/nhle/kanban-board/internal/tracking"
	"github.com/nhle/kanban-board/internal/ui"
)

// MoveRequestMsg asks the parent to move a card.
type MoveRequestMsg struct {
	CardID       string
	FromColumnID string
	ToColumnID   string
	Index        int
}

// Model is the board view component.
type Model struct {
	board  *model.Board
	keys   *keys.KeyMap
	now    func() time.Time
	layout ui.Layout

	col      int
	row      int
	offset   int
	selected string
}

// New creates a board view. now supplies the time used for card ages.
func New(k *keys.KeyMap, now func() time.Time, width, height int) Model {
	return Model{
		keys:   k,
		now:    now,
		layout: ui.NewLayout(width, height),
	}
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.layout = ui.NewLayout(width, height)
	m.clampOffset()
}

// SetBoard replaces the rendered board. The cursor stays on the selected
// card when it still exists, following it across columns.
func (m *Model) SetBoard(b *model.Board) {
	m.board = b
	if b == nil {
		m.col, m.row, m.offset = 0, 0, 0
		return
	}
	if m.selected != "" {
		for i, col := range b.Columns {
			if j := indexOf(displayOrder(b, col), m.selected); j >= 0 {
				m.col, m.row = i, j
				m.clampOffset()
				return
			}
		}
	}
	m.clamp()
}

// SelectedColumn returns the column holding the cursor.
func (m Model) SelectedColumn() (model.Column, bool) {
	if m.board == nil || m.col >= len(m.board.Columns) {
		return model.Column{}, false
	}
	return m.board.Columns[m.col], true
}

// SelectedCard returns the card under the cursor.
func (m Model) SelectedCard() (model.Card, bool) {
	col, ok := m.SelectedColumn()
	if !ok {
		return model.Card{}, false
	}
	order := displayOrder(m.board, col)
	if m.row >= len(order) {
		return model.Card{}, false
	}
	card, ok := m.board.Cards[order[m.row]]
	return card, ok
}

// Select puts the cursor on cardID, typically after it was created.
func (m *Model) Select(cardID string) {
	m.selected = cardID
	m.SetBoard(m.board)
}

// Update handles navigation and card movement keys.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok || m.board == nil || len(m.board.Columns) == 0 {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, m.keys.Left):
		m.col--
		m.clamp()
	case key.Matches(keyMsg, m.keys.Right):
		m.col++
		m.clamp()
	case key.Matches(keyMsg, m.keys.Up):
		m.row--
		m.clamp()
	case key.Matches(keyMsg, m.keys.Down):
		m.row++
		m.clamp()
	case key.Matches(keyMsg, m.keys.MoveLeft):
		return m, m.moveAcross(-1)
	case key.Matches(keyMsg, m.keys.MoveRight):
		return m, m.moveAcross(1)
	case key.Matches(keyMsg, m.keys.MoveUp):
		return m, m.moveWithin(-1)
	case key.Matches(keyMsg, m.keys.MoveDown):
		return m, m.moveWithin(1)
	case key.Matches(keyMsg, m.keys.Expedite):
		card, ok := m.SelectedCard()
		if !ok {
			return m, nil
		}
		return m, request(MoveRequestMsg{
			CardID: card.ID, FromColumnID: card.CurrentColumnID, ToColumnID: board.DestinationExpedite, Index: 0,
		})
	}
	return m, nil
}

func (m Model) moveAcross(delta int) tea.Cmd {
	card, ok := m.SelectedCard()
	to := m.col + delta
	if !ok || to < 0 || to >= len(m.board.Columns) {
		return nil
	}
	return request(MoveRequestMsg{
		CardID:       card.ID,
		FromColumnID: m.board.Columns[m.col].ID,
		ToColumnID:   m.board.Columns[to].ID,
		Index:        -1,
	})
}

func (m Model) moveWithin(delta int) tea.Cmd {
	card, ok := m.SelectedCard()
	if !ok {
		return nil
	}
	col := m.board.Columns[m.col]
	i := indexOf(col.CardIDs, card.ID) + delta
	if i < 0 || i >= len(col.CardIDs) {
		return nil
	}
	return request(MoveRequestMsg{CardID: card.ID, FromColumnID: col.ID, ToColumnID: col.ID, Index: i})
}

func request(msg MoveRequestMsg) tea.Cmd {
	return func() tea.Msg { return msg }
}

func (m *Model) clamp() {
	if m.board == nil || len(m.board.Columns) == 0 {
		m.col, m.row, m.selected = 0, 0, ""
		return
	}
	m.col = max(0, min(m.col, len(m.board.Columns)-1))
	order := displayOrder(m.board, m.board.Columns[m.col])
	m.row = max(0, min(m.row, len(order)-1))
	m.selected = ""
	if m.row < len(order) {
		m.selected = order[m.row]
	}
	m.clampOffset()
}

func (m *Model) clampOffset() {
	if m.board == nil {
		return
	}
	visible, _ := m.layout.VisibleColumns(len(m.board.Columns))
	if m.col < m.offset {
		m.offset = m.col
	}
	if visible > 0 && m.col >= m.offset+visible {
		m.offset = m.col - visible + 1
	}
}

// displayOrder lists a column's cards with the priority lane first.
func displayOrder(b *model.Board, col model.Column) []string {
	order := make([]string, 0, len(col.CardIDs))
	for _, id := range col.CardIDs {
		if card, ok := b.Cards[id]; ok && card.IsEmergency() {
			order = append(order, id)
		}
	}
	for _, id := range col.CardIDs {
		if card, ok := b.Cards[id]; ok && !card.IsEmergency() {
			order = append(order, id)
		}
	}
	return order
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// View renders the visible columns.
func (m Model) View() string {
	if m.board == nil {
		return theme.HelpStyle.Render("No board loaded.")
	}
	if len(m.board.Columns) == 0 {
		return theme.HelpStyle.Render("This board has no columns. Add one with :column add <name>.")
	}

	visible, width := m.layout.VisibleColumns(len(m.board.Columns))
	rendered := make([]string, 0, visible)
	for i := m.offset; i < len(m.board.Columns) && i < m.offset+visible; i++ {
		rendered = append(rendered, m.renderColumn(i, width))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderColumn(i, width int) string {
	col := m.board.Columns[i]
	focused := i == m.col
	inner := width - 4

	count := fmt.Sprintf("%d", len(col.CardIDs))
	if col.WIPLimit > 0 {
		count = fmt.Sprintf("%d/%d", len(col.CardIDs), col.WIPLimit)
	}
	countStyle := theme.HelpStyle
	if col.AtCapacity() {
		countStyle = theme.AtCapacityStyle
	}
	header := theme.ColumnTitleStyle.Render(truncate(col.Title, inner-len(count)-1)) + " " + countStyle.Render(count)

	lines := []string{header, ""}
	order := displayOrder(m.board, col)
	lane := 0
	for _, id := range order {
		if m.board.Cards[id].IsEmergency() {
			lane++
		}
	}
	if lane > 0 {
		lines = append(lines, theme.LaneStyle.Render("▲ priority"))
	}
	for j, id := range order {
		if j == lane && lane > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, m.renderCard(m.board.Cards[id], focused && j == m.row, inner))
	}

	style := theme.ColumnStyle
	if focused {
		style = theme.FocusedColumnStyle
	}
	return style.
		Width(width - 2).
		Height(m.layout.Height - 2).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderCard(card model.Card, selected bool, width int) string {
	age := tracking.FormatDuration(tracking.TimeSinceLastMove(card, m.now()))
	marker := theme.PriorityStyle(card.Priority).Render("●")
	title := truncate(card.Title, width-len(age)-4)
	line := fmt.Sprintf("%s %s %s", marker, title, theme.HelpStyle.Render(age))

	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

func truncate(s string, n int) string {
	if n <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
