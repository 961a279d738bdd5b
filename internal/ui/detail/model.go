// Package detail shows one card, or the board's archive, in a scrollable
// panel.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/kanban-board/internal/keys"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/theme"
	"github.com/nhle/kanban-board/internal/tracking"
)

const timeLayout = "2006-01-02 15:04"

// BackMsg signals the parent to navigate back to the board.
type BackMsg struct{}

// Model is the card detail view component.
type Model struct {
	card     *model.Card
	archive  []model.Card
	columns  []model.Column
	viewport viewport.Model
	keys     *keys.KeyMap
	now      func() time.Time
	width    int
	height   int
}

// New creates a detail view. now is used for open time entries.
func New(k *keys.KeyMap, now func() time.Time, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     k,
		now:      now,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, m.keys.Back) {
		return m, func() tea.Msg { return BackMsg{} }
	}

	// Scrolling (j/k, up/down, pgup/pgdn) is left to the viewport.
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.card == nil && m.archive == nil {
		emptyStyle := lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray)
		return emptyStyle.Render("No card selected")
	}
	return m.viewport.View()
}

// SetCard shows card. columns name the column ids in its history.
func (m *Model) SetCard(card model.Card, columns []model.Column) {
	m.card = &card
	m.archive = nil
	m.columns = columns
	m.viewport.SetContent(m.renderCard())
	m.viewport.GotoTop()
}

// SetArchive shows the archived cards of a board.
func (m *Model) SetArchive(cards []model.Card, columns []model.Column) {
	m.card = nil
	m.archive = append([]model.Card{}, cards...)
	m.columns = columns
	m.viewport.SetContent(m.renderArchive())
	m.viewport.GotoTop()
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
}

func (m Model) columnName(id string) string {
	for _, col := range m.columns {
		if col.ID == id {
			return col.Title
		}
	}
	return tracking.UnknownColumnName
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginTop(1)
	metaStyle    = lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle     = lipgloss.NewStyle().Foreground(theme.ColorWhite)
)

func meta(label, value string) string {
	return fmt.Sprintf("%s %s", metaStyle.Render(fmt.Sprintf("%-10s", label+":")), valStyle.Render(value))
}

// renderCard builds the detail content for the viewport.
func (m Model) renderCard() string {
	card := m.card
	now := m.now()
	var sections []string

	sections = append(sections, titleStyle.Render(card.Title))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		theme.TypeStyle(card.Type).Render(strings.ToUpper(string(card.Type))),
		"  ",
		theme.PriorityStyle(card.Priority).Render(string(card.Priority)),
	))
	sections = append(sections, "")

	sections = append(sections, meta("Column", m.columnName(card.CurrentColumnID)))
	sections = append(sections, meta("Created", card.CreatedAt.Local().Format(timeLayout)))
	sections = append(sections, meta("Updated", card.UpdatedAt.Local().Format(timeLayout)))
	if card.DueDate != nil {
		sections = append(sections, meta("Due", card.DueDate.Format("2006-01-02")))
	}
	if len(card.AssignedUsers) > 0 {
		sections = append(sections, meta("Assigned", strings.Join(card.AssignedUsers, ", ")))
	}
	if card.TimeEstimate != nil {
		sections = append(sections, meta("Estimate", fmt.Sprintf("%gh", *card.TimeEstimate)))
	}
	if card.DevTimeEstimate != "" {
		sections = append(sections, meta("Dev time", card.DevTimeEstimate))
	}

	sections = append(sections, sectionStyle.Render("Description"))
	if card.Description == "" {
		sections = append(sections, theme.HelpStyle.Render("No description"))
	} else {
		sections = append(sections, card.Description)
	}

	if len(card.Checklist) > 0 {
		sections = append(sections, sectionStyle.Render("Checklist"))
		for _, item := range card.Checklist {
			box := "[ ]"
			if item.Completed {
				box = "[x]"
			}
			sections = append(sections, box+" "+item.Text)
		}
	}

	sections = append(sections, sectionStyle.Render(fmt.Sprintf(
		"Time in columns (total %s)", tracking.FormatDuration(tracking.TotalTimeInColumns(*card, now)))))
	for _, agg := range tracking.AggregateTimeInColumns(*card, m.columns, now) {
		d := time.Duration(agg.TotalDurationMs) * time.Millisecond
		sections = append(sections, meta(agg.ColumnName, tracking.FormatDuration(d)))
	}

	if len(card.MovementHistory) > 0 {
		sections = append(sections, sectionStyle.Render("History"))
		for i := len(card.MovementHistory) - 1; i >= 0; i-- {
			mv := card.MovementHistory[i]
			sections = append(sections, fmt.Sprintf("%s  %s → %s  %s",
				metaStyle.Render(mv.MovedAt.Local().Format(timeLayout)),
				m.columnName(mv.FromColumnID),
				m.columnName(mv.ToColumnID),
				metaStyle.Render(mv.MovedBy),
			))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderArchive() string {
	sections := []string{titleStyle.Render(fmt.Sprintf("Archived cards (%d)", len(m.archive)))}
	if len(m.archive) == 0 {
		sections = append(sections, theme.HelpStyle.Render("Nothing archived."))
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}
	sections = append(sections, theme.HelpStyle.Render("Restore with :restore <id>"), "")

	for i := len(m.archive) - 1; i >= 0; i-- {
		card := m.archive[i]
		sections = append(sections, fmt.Sprintf("%s %s  %s",
			theme.PriorityStyle(card.Priority).Render("●"),
			card.Title,
			metaStyle.Render(fmt.Sprintf("%s · from %s", card.ID, m.columnName(card.CurrentColumnID))),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
