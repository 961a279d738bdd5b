// Package cardform is the create and edit form for cards.
package cardform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/theme"
)

const dateLayout = "2006-01-02"

// CardCreatedMsg is dispatched when the form creates a card.
type CardCreatedMsg struct {
	Card     model.Card
	ColumnID string
}

// CardUpdatedMsg is dispatched when the form edits a card.
type CardUpdatedMsg struct {
	Card model.Card
}

// CancelMsg is dispatched when the user cancels the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title        string
	description  string
	priority     model.Priority
	issueType    model.IssueType
	dueDate      string
	assignees    []string
	timeEstimate string
}

// Model is the Bubble Tea model for the card form.
type Model struct {
	form     *huh.Form
	fb       *formBindings
	editing  *model.Card
	columnID string
	users    []model.User
	width    int
	height   int
}

// New creates a card form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// SetUsers sets the board members offered as assignees.
func (m *Model) SetUsers(users []model.User) {
	m.users = users
}

// StartCreate initializes the form for a new card in columnID.
func (m *Model) StartCreate(columnID string) tea.Cmd {
	m.editing = nil
	m.columnID = columnID
	*m.fb = formBindings{priority: model.PriorityNormal, issueType: model.IssueTypeTask}
	m.form = m.buildForm()
	return m.form.Init()
}

// StartEdit initializes the form with an existing card.
func (m *Model) StartEdit(card model.Card) tea.Cmd {
	m.editing = &card
	m.columnID = card.CurrentColumnID
	*m.fb = formBindings{
		title:       card.Title,
		description: card.Description,
		priority:    card.Priority,
		issueType:   card.Type,
		assignees:   append([]string(nil), card.AssignedUsers...),
	}
	if card.DueDate != nil {
		m.fb.dueDate = card.DueDate.Format(dateLayout)
	}
	if card.TimeEstimate != nil {
		m.fb.timeEstimate = strconv.FormatFloat(*card.TimeEstimate, 'f', -1, 64)
	}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m, m.submit()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleText := "New Card"
	if m.editing != nil {
		titleText = "Edit Card"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render(titleText) + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("Title").
			Placeholder("What needs to be done?").
			Value(&m.fb.title).
			Validate(validateRequired("Title")),
		huh.NewText().
			Title("Description").
			Placeholder("Optional details...").
			Value(&m.fb.description),
		huh.NewSelect[model.Priority]().
			Title("Priority").
			Options(
				huh.NewOption("Emergency", model.PriorityEmergency),
				huh.NewOption("High", model.PriorityHigh),
				huh.NewOption("Medium", model.PriorityMedium),
				huh.NewOption("Normal", model.PriorityNormal),
				huh.NewOption("Date sensitive", model.PriorityDateSensitive),
				huh.NewOption("Low", model.PriorityLow),
			).
			Value(&m.fb.priority),
		huh.NewSelect[model.IssueType]().
			Title("Type").
			Options(
				huh.NewOption("Task", model.IssueTypeTask),
				huh.NewOption("Bug", model.IssueTypeBug),
				huh.NewOption("Feature", model.IssueTypeFeature),
			).
			Value(&m.fb.issueType),
		huh.NewInput().
			Title("Due Date").
			Placeholder("YYYY-MM-DD (optional)").
			Value(&m.fb.dueDate).
			Validate(validateOptionalDate),
		huh.NewInput().
			Title("Time Estimate (hours)").
			Placeholder("optional").
			Value(&m.fb.timeEstimate).
			Validate(validateOptionalHours),
	}
	if len(m.users) > 0 {
		opts := make([]huh.Option[string], len(m.users))
		for i, u := range m.users {
			label := u.Name
			if label == "" {
				label = u.Email
			}
			if label == "" {
				label = u.ID
			}
			opts[i] = huh.NewOption(label, u.ID)
		}
		fields = append(fields, huh.NewMultiSelect[string]().
			Title("Assignees").
			Options(opts...).
			Value(&m.fb.assignees))
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

// Card builds the card described by the current field values. For edits
// the fields the form does not show are carried over.
func (m Model) Card() model.Card {
	var card model.Card
	if m.editing != nil {
		card = *m.editing
	}
	card.Title = strings.TrimSpace(m.fb.title)
	card.Description = m.fb.description
	card.Priority = m.fb.priority
	card.Type = m.fb.issueType
	card.AssignedUsers = append([]string{}, m.fb.assignees...)

	card.DueDate = nil
	if s := strings.TrimSpace(m.fb.dueDate); s != "" {
		if t, err := time.Parse(dateLayout, s); err == nil {
			card.DueDate = &t
		}
	}
	card.TimeEstimate = nil
	if s := strings.TrimSpace(m.fb.timeEstimate); s != "" {
		if h, err := strconv.ParseFloat(s, 64); err == nil {
			card.TimeEstimate = &h
		}
	}
	return card
}

func (m Model) submit() tea.Cmd {
	card := m.Card()
	if m.editing != nil {
		return func() tea.Msg { return CardUpdatedMsg{Card: card} }
	}
	columnID := m.columnID
	return func() tea.Msg { return CardCreatedMsg{Card: card, ColumnID: columnID} }
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateOptionalDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date format, use YYYY-MM-DD")
	}
	return nil
}

func validateOptionalHours(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	h, err := strconv.ParseFloat(s, 64)
	if err != nil || h < 0 {
		return fmt.Errorf("estimate must be a non-negative number of hours")
	}
	return nil
}
