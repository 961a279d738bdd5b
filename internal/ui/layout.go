package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/kanban-board/internal/theme"
)

// MinColumnWidth is the narrowest a board column is drawn.
const MinColumnWidth = 24

// Layout manages the terminal layout dimensions.
type Layout struct {
	Width           int
	Height          int
	HeaderHeight    int
	StatusBarHeight int
}

// NewLayout creates a Layout with the given terminal dimensions.
// HeaderHeight and StatusBarHeight default to 1.
func NewLayout(width, height int) Layout {
	return Layout{
		Width:           width,
		Height:          height,
		HeaderHeight:    1,
		StatusBarHeight: 1,
	}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the height available for the board, accounting
// for the header and status bar.
func (l Layout) ContentHeight() int {
	return l.Height - l.HeaderHeight - l.StatusBarHeight
}

// VisibleColumns returns how many of n columns fit side by side, and the
// width each one gets.
func (l Layout) VisibleColumns(n int) (count, width int) {
	if n <= 0 {
		return 0, l.Width
	}
	count = l.Width / MinColumnWidth
	if count < 1 {
		count = 1
	}
	if count > n {
		count = n
	}
	return count, l.Width / count
}

// RenderHeader renders the top bar with the board title on the left and
// the save status on the right.
func (l Layout) RenderHeader(title string, syncStatus string) string {
	titleRendered := theme.HeaderStyle.Render(title)

	statusRendered := theme.HeaderStyle.
		Align(lipgloss.Right).
		Render(syncStatus)

	return l.fill(theme.HeaderStyle, titleRendered, statusRendered)
}

// RenderStatusBar renders the bottom status bar with keyboard hints, or
// with msg in the error style when failing is set.
func (l Layout) RenderStatusBar(msg string, failing bool) string {
	style := theme.StatusBarStyle
	if failing {
		style = theme.ErrorBarStyle
	}
	return l.fill(style, style.Render(msg))
}

// fill joins parts and pads the gap before the last part with style's
// background so the bar spans the full width.
func (l Layout) fill(style lipgloss.Style, parts ...string) string {
	used := 0
	for _, p := range parts {
		used += lipgloss.Width(p)
	}
	gap := l.Width - used
	if gap < 0 {
		gap = 0
	}

	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	row := make([]string, 0, len(parts)+1)
	if len(parts) > 1 {
		row = append(row, parts[:len(parts)-1]...)
		row = append(row, filler, parts[len(parts)-1])
	} else {
		row = append(row, parts...)
		row = append(row, filler)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, row...)
}

// RenderWithFrame composes a full terminal view by vertically joining
// the header, content area, and status bar.
func (l Layout) RenderWithFrame(
	header string,
	content string,
	statusBar string,
) string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		header,
		content,
		statusBar,
	)
}
