package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/everydev1618/weave"
)

// errPromptAborted is returned when the operator cancels a prompt with
// esc or ctrl+c. Steering treats it as an abort.
var errPromptAborted = errors.New("prompt aborted")

var promptTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#5B8DEF"))

// TUIPrompter implements weave.Prompter with small bubbletea programs, one
// per question. The scheduler is suspended while a prompt is on screen, so
// blocking here is fine.
type TUIPrompter struct{}

// NewTUIPrompter returns the interactive prompter.
func NewTUIPrompter() *TUIPrompter {
	return &TUIPrompter{}
}

// choiceItem wraps a weave.Choice for the list display.
type choiceItem struct {
	choice   weave.Choice
	selected bool
	multi    bool
}

func (i choiceItem) Title() string {
	if !i.multi {
		return i.choice.Label
	}
	mark := "[ ]"
	if i.selected {
		mark = "[x]"
	}
	return mark + " " + i.choice.Label
}

func (i choiceItem) Description() string { return i.choice.Detail }
func (i choiceItem) FilterValue() string { return i.choice.Label }

func newChoiceList(title string, options []weave.Choice, multi bool) list.Model {
	items := make([]list.Item, len(options))
	for i, c := range options {
		items[i] = choiceItem{choice: c, multi: multi}
	}
	delegate := list.NewDefaultDelegate()
	delegate.SetHeight(2)
	delegate.SetSpacing(0)
	l := list.New(items, delegate, 60, 2*len(options)+6)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)
	return l
}

type selectModel struct {
	list    list.Model
	picked  string
	aborted bool
}

func (m selectModel) Init() tea.Cmd { return nil }

func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(choiceItem); ok {
				m.picked = item.choice.Label
			}
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m selectModel) View() string {
	return m.list.View()
}

// Select implements weave.Prompter.
func (p *TUIPrompter) Select(question string, options []weave.Choice) (string, error) {
	final, err := tea.NewProgram(selectModel{list: newChoiceList(question, options, false)}).Run()
	if err != nil {
		return "", err
	}
	m := final.(selectModel)
	if m.aborted || m.picked == "" {
		return "", errPromptAborted
	}
	return m.picked, nil
}

type multiSelectModel struct {
	list    list.Model
	aborted bool
	done    bool
}

func (m multiSelectModel) Init() tea.Cmd { return nil }

func (m multiSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case " ":
			idx := m.list.Index()
			if item, ok := m.list.SelectedItem().(choiceItem); ok {
				item.selected = !item.selected
				return m, m.list.SetItem(idx, item)
			}
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m multiSelectModel) View() string {
	return m.list.View() + "\n  space toggles, enter confirms\n"
}

func (m multiSelectModel) picked() []string {
	var out []string
	for _, item := range m.list.Items() {
		if c, ok := item.(choiceItem); ok && c.selected {
			out = append(out, c.choice.Label)
		}
	}
	return out
}

// MultiSelect implements weave.Prompter.
func (p *TUIPrompter) MultiSelect(question string, options []weave.Choice) ([]string, error) {
	final, err := tea.NewProgram(multiSelectModel{list: newChoiceList(question, options, true)}).Run()
	if err != nil {
		return nil, err
	}
	m := final.(multiSelectModel)
	if m.aborted || !m.done {
		return nil, errPromptAborted
	}
	return m.picked(), nil
}

type inputModel struct {
	prompt  string
	input   textinput.Model
	aborted bool
	done    bool
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		case "enter":
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	return fmt.Sprintf("%s\n%s\n", promptTitleStyle.Render(m.prompt), m.input.View())
}

// Input implements weave.Prompter.
func (p *TUIPrompter) Input(prompt string) (string, error) {
	ti := textinput.New()
	ti.Placeholder = ""
	ti.Focus()
	ti.CharLimit = 0
	ti.Width = 80

	final, err := tea.NewProgram(inputModel{prompt: prompt, input: ti}).Run()
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	if m.aborted {
		return "", errPromptAborted
	}
	return strings.TrimSpace(m.input.Value()), nil
}

// Confirm implements weave.Prompter.
func (p *TUIPrompter) Confirm(question string) (bool, error) {
	label, err := p.Select(question, []weave.Choice{
		{Label: "yes"},
		{Label: "no"},
	})
	if err != nil {
		if errors.Is(err, errPromptAborted) {
			return false, nil
		}
		return false, err
	}
	return label == "yes", nil
}
