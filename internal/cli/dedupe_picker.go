package cli

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"media-relay/internal/model"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	pickerMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pickerSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
	pickerWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
)

type strategyChoice struct {
	Strategy model.Strategy
	Label    string
	Help     string
}

var strategyChoices = []strategyChoice{
	{model.StrategyListOnly, "list only", "report the groups and change nothing"},
	{model.StrategyKeepFirstTrash, "keep first, trash the rest", "recoverable from the store's trash"},
	{model.StrategyKeepFirstDelete, "keep first, delete the rest", "permanent removal"},
	{model.StrategyRenameParentSuffix, "rename with parent folder", "x.mp4 in FolderB becomes x_FolderB.mp4"},
}

type pickerModel struct {
	cursor   int
	chosen   model.Strategy
	done     bool
	canceled bool
}

func pickStrategy() (model.Strategy, error) {
	p := tea.NewProgram(pickerModel{})
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	m, ok := final.(pickerModel)
	if !ok || m.canceled || !m.done {
		return model.StrategyListOnly, nil
	}
	return m.chosen, nil
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(strategyChoices)-1 {
			m.cursor++
		}
	case "enter":
		m.chosen = strategyChoices[m.cursor].Strategy
		m.done = true
		return m, tea.Quit
	case "q", "esc", "ctrl+c":
		m.canceled = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(pickerTitleStyle.Render("Resolve duplicates"))
	b.WriteString("\n\n")
	for i, c := range strategyChoices {
		line := "  " + c.Label
		if i == m.cursor {
			line = pickerSelStyle.Render("> " + c.Label)
		}
		b.WriteString(line)
		b.WriteString("  ")
		b.WriteString(pickerMutedStyle.Render(c.Help))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(pickerMutedStyle.Render("enter: select   q: cancel (list only)"))
	b.WriteString("\n")
	return b.String()
}

// confirmModel requires the operator to type the destructive verb back
// before a batch may start.
type confirmModel struct {
	summary string
	verb    string
	input   textinput.Model
	ok      bool
	done    bool
}

func confirmTyped(summary, verb string) (bool, error) {
	ti := textinput.New()
	ti.Placeholder = verb
	ti.CharLimit = 32
	ti.Focus()

	p := tea.NewProgram(confirmModel{summary: summary, verb: verb, input: ti})
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(confirmModel)
	if !ok {
		return false, errors.New("confirmation aborted")
	}
	return m.done && m.ok, nil
}

func (m confirmModel) Init() tea.Cmd { return textinput.Blink }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.ok = strings.EqualFold(strings.TrimSpace(m.input.Value()), m.verb)
			m.done = true
			return m, tea.Quit
		case "esc", "ctrl+c":
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m confirmModel) View() string {
	var b strings.Builder
	b.WriteString(pickerWarnStyle.Render("About to " + m.summary))
	b.WriteString("\n\n")
	b.WriteString("Type \"" + m.verb + "\" to proceed, esc to abort:\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	return b.String()
}
