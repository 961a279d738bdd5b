package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/kanban-board/internal/theme"
)

// Verb names a palette command.
type Verb string

const (
	VerbTitle        Verb = "title"
	VerbAddColumn    Verb = "column add"
	VerbRenameColumn Verb = "column rename"
	VerbColumnWIP    Verb = "column wip"
	VerbDeleteColumn Verb = "column delete"
	VerbRestore      Verb = "restore"
	VerbSave         Verb = "save"
	VerbQuit         Verb = "quit"
)

// Command is a parsed palette entry. Columns commands act on the focused
// column.
type Command struct {
	Verb Verb
	Arg  string
	N    int
}

// CommandMsg is emitted when the user executes a command.
type CommandMsg struct {
	Command Command
	Err     error
}

// Parse turns palette input into a Command.
func Parse(input string) (Command, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	rest := func(n int) string { return strings.Join(fields[n:], " ") }

	switch fields[0] {
	case "save", "w":
		return Command{Verb: VerbSave}, nil
	case "quit", "q":
		return Command{Verb: VerbQuit}, nil
	case "title":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("usage: title <name>")
		}
		return Command{Verb: VerbTitle, Arg: rest(1)}, nil
	case "restore":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("usage: restore <card>")
		}
		return Command{Verb: VerbRestore, Arg: rest(1)}, nil
	case "column", "col":
		return parseColumn(fields[1:])
	}
	return Command{}, fmt.Errorf("unknown command %q", fields[0])
}

func parseColumn(fields []string) (Command, error) {
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("usage: column add|rename|wip|delete")
	}
	switch fields[0] {
	case "add":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("usage: column add <name> [wip]")
		}
		name := fields[1:]
		wip := 0
		if len(name) > 1 {
			if n, err := strconv.Atoi(name[len(name)-1]); err == nil {
				wip = n
				name = name[:len(name)-1]
			}
		}
		return Command{Verb: VerbAddColumn, Arg: strings.Join(name, " "), N: wip}, nil
	case "rename":
		if len(fields) < 2 {
			return Command{}, fmt.Errorf("usage: column rename <name>")
		}
		return Command{Verb: VerbRenameColumn, Arg: strings.Join(fields[1:], " ")}, nil
	case "wip":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: column wip <n>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return Command{}, fmt.Errorf("wip limit must be a non-negative number, got %q", fields[1])
		}
		return Command{Verb: VerbColumnWIP, N: n}, nil
	case "delete":
		return Command{Verb: VerbDeleteColumn}, nil
	}
	return Command{}, fmt.Errorf("unknown column command %q", fields[0])
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "title, column add, restore, save..."
	ti.Prompt = ": "
	ti.Focus()
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		cmd, err := Parse(text)
		return m, func() tea.Msg {
			return CommandMsg{Command: cmd, Err: err}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Command Palette")
	input := m.input.View()

	content := lipgloss.JoinVertical(lipgloss.Left, title, input)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	return m.input.Focus()
}
