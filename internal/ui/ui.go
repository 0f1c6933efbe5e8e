// Package ui implements the interactive pseudonym picker shown when tailnym
// is invoked without a subcommand.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tailnym/internal/history"
	"tailnym/internal/model"
	"tailnym/internal/util"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
)

type pickerModel struct {
	table    model.Table
	names    []string
	filtered []string
	sel      int
	filter   textinput.Model
	filterOn bool
	choice   string
	quit     bool
}

func newPicker(table model.Table, lastUsed map[string]int64) pickerModel {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	names = history.SortRecent(names, lastUsed)

	ti := textinput.New()
	ti.Placeholder = "filter"
	ti.Prompt = "/"
	ti.CharLimit = 64

	m := pickerModel{table: table, names: names, filter: ti}
	m.applyFilter()
	return m
}

func (m *pickerModel) applyFilter() {
	f := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if f == "" {
		m.filtered = append([]string(nil), m.names...)
	} else {
		m.filtered = nil
		for _, name := range m.names {
			e := m.table[name]
			if strings.Contains(strings.ToLower(name), f) || strings.Contains(e.IP, f) {
				m.filtered = append(m.filtered, name)
			}
		}
	}
	if m.sel >= len(m.filtered) {
		m.sel = len(m.filtered) - 1
	}
	if m.sel < 0 {
		m.sel = 0
	}
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.filterOn {
		switch keyMsg.String() {
		case "enter", "esc":
			m.filterOn = false
			m.filter.Blur()
			return m, nil
		case "ctrl+c":
			m.quit = true
			return m, tea.Quit
		default:
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.applyFilter()
			return m, cmd
		}
	}

	switch keyMsg.String() {
	case "q", "esc", "ctrl+c":
		m.quit = true
		return m, tea.Quit
	case "j", "down":
		if m.sel < len(m.filtered)-1 {
			m.sel++
		}
	case "k", "up":
		if m.sel > 0 {
			m.sel--
		}
	case "/":
		m.filterOn = true
		m.filter.Focus()
		return m, textinput.Blink
	case "enter":
		if len(m.filtered) > 0 {
			m.choice = m.filtered[m.sel]
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("tailnym") + "\n\n")
	if m.filterOn || m.filter.Value() != "" {
		b.WriteString(m.filter.View() + "\n\n")
	}
	if len(m.filtered) == 0 {
		b.WriteString(noticeStyle.Render("no pseudonyms") + "\n")
	}
	for i, name := range m.filtered {
		e := m.table[name]
		line := fmt.Sprintf("%-20s %s", name, dimStyle.Render(fmt.Sprintf("%s:%d", util.EmptyDash(e.Target()), e.Port)))
		if i == m.sel {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("j/k move · / filter · enter connect · q quit") + "\n")
	return b.String()
}

// Run shows the picker and returns the chosen pseudonym. ok is false when the
// user quit without choosing.
func Run(table model.Table, lastUsed map[string]int64) (choice string, ok bool, err error) {
	p := tea.NewProgram(newPicker(table, lastUsed))
	final, err := p.Run()
	if err != nil {
		return "", false, err
	}
	m := final.(pickerModel)
	if m.quit || m.choice == "" {
		return "", false, nil
	}
	return m.choice, true, nil
}
