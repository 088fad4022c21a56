package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/mint"
	"github.com/zarlcorp/zpass/internal/passport"
)

type draftField int

const (
	draftName draftField = iota
	draftPlace
	draftDOB
	draftFieldCount
)

var draftLabels = [draftFieldCount]string{
	"full name",
	"born in",
	"born on",
}

// flashMsg clears the flash after a timeout.
type flashMsg struct{}

// submitDraftMsg asks the root to plan an issuance for the draft.
type submitDraftMsg struct {
	draft passport.Draft
}

// passportModel shows the connected identity's passport, or the form to
// create one when none exists.
type passportModel struct {
	address   string
	status    mint.Status
	walletErr string
	inputs    []textinput.Model
	focus     int
	flash     string
}

func newPassportModel(d passport.Draft, address string) passportModel {
	inputs := make([]textinput.Model, draftFieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.CharLimit = 128
		ti.Width = 40
		inputs[i] = ti
	}

	inputs[draftName].Placeholder = "Ada Lovelace"
	inputs[draftName].SetValue(d.FullName)
	inputs[draftPlace].Placeholder = "London"
	inputs[draftPlace].SetValue(d.PlaceOfBirth)
	inputs[draftDOB].Placeholder = "YYYY-MM-DD"
	inputs[draftDOB].CharLimit = 10
	inputs[draftDOB].SetValue(passport.FormatDate(d.DateOfBirth))

	inputs[0].Focus()

	return passportModel{address: address, inputs: inputs}
}

func (m passportModel) withStatus(st mint.Status, walletErr string) passportModel {
	m.status = st
	m.walletErr = walletErr
	return m
}

func (m passportModel) hasRecord() bool {
	return m.status.HasRecord && m.status.Record != nil
}

func (m passportModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m passportModel) Update(msg tea.Msg) (passportModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.hasRecord() {
			return m.handleCardKey(msg)
		}
		return m.handleFormKey(msg)

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	if m.hasRecord() {
		return m, nil
	}
	return m.updateInput(msg)
}

func (m passportModel) handleCardKey(msg tea.KeyMsg) (passportModel, tea.Cmd) {
	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}
	if key.Matches(msg, zstyle.KeyBack) {
		return m, func() tea.Msg { return navigateMsg{view: viewMenu} }
	}

	switch msg.String() {
	case "r":
		m.flash = "refreshing..."
		return m, func() tea.Msg { return refreshMsg{} }
	case "c":
		if err := copyToClipboard(m.address); err != nil {
			m.flash = err.Error()
		} else {
			m.flash = "address copied"
		}
		return m, clearFlashAfter()
	}
	return m, nil
}

func (m passportModel) handleFormKey(msg tea.KeyMsg) (passportModel, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}

	if msg.Type == tea.KeyEsc {
		return m, func() tea.Msg { return navigateMsg{view: viewMenu} }
	}

	if key.Matches(msg, zstyle.KeyTab) || msg.Type == tea.KeyDown {
		return m.nextField(), nil
	}

	if msg.Type == tea.KeyUp || msg.Type == tea.KeyShiftTab {
		return m.prevField(), nil
	}

	switch msg.String() {
	case "ctrl+s":
		return m.submit()
	case "ctrl+r":
		m.flash = "refreshing..."
		return m, func() tea.Msg { return refreshMsg{} }
	}

	if key.Matches(msg, zstyle.KeyEnter) {
		// enter on last field submits; otherwise advance
		if m.focus == int(draftFieldCount)-1 {
			return m.submit()
		}
		return m.nextField(), nil
	}

	return m.updateInput(msg)
}

func (m passportModel) draft() (passport.Draft, error) {
	d := passport.Draft{
		FullName:     strings.TrimSpace(m.inputs[draftName].Value()),
		PlaceOfBirth: strings.TrimSpace(m.inputs[draftPlace].Value()),
	}
	if v := strings.TrimSpace(m.inputs[draftDOB].Value()); v != "" {
		ts, err := passport.ParseDate(v)
		if err != nil {
			return d, err
		}
		d.DateOfBirth = ts
	}
	return d, d.Validate()
}

func (m passportModel) submit() (passportModel, tea.Cmd) {
	d, err := m.draft()
	if err != nil {
		m.flash = err.Error()
		return m, clearFlashAfter()
	}
	return m, func() tea.Msg { return submitDraftMsg{draft: d} }
}

func (m passportModel) nextField() passportModel {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + 1) % int(draftFieldCount)
	m.inputs[m.focus].Focus()
	return m
}

func (m passportModel) prevField() passportModel {
	m.inputs[m.focus].Blur()
	m.focus--
	if m.focus < 0 {
		m.focus = int(draftFieldCount) - 1
	}
	m.inputs[m.focus].Focus()
	return m
}

func (m passportModel) updateInput(msg tea.Msg) (passportModel, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m passportModel) View() string {
	s := "\n"

	switch {
	case m.walletErr != "":
		s += "  " + zstyle.StatusErr.Render("wallet: "+m.walletErr) + "\n\n"
	case m.address == "":
		s += "  " + zstyle.StatusWarn.Render("no wallet configured: open settings") + "\n\n"
	default:
		s += "  " + zstyle.MutedText.Render(m.address) + "\n\n"
	}

	if m.hasRecord() {
		s += m.viewCard()
	} else {
		s += m.viewForm()
	}

	if m.status.Err != nil && !m.hasRecord() {
		s += "\n  " + zstyle.StatusErr.Render("last attempt: "+m.status.Err.Error()) + "\n"
	}

	if m.flash != "" {
		s += "\n  " + zstyle.StatusOK.Render(m.flash) + "\n"
	} else {
		s += "\n"
	}
	return s
}

func (m passportModel) viewCard() string {
	rec := m.status.Record
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 2).
		MarginLeft(2)

	lines := []string{
		zstyle.Title.Render("PASSPORT"),
		"",
		cardLine("name", rec.Name),
		cardLine("born in", rec.PlaceOfBirth),
		cardLine("born on", passport.FormatDate(rec.DateOfBirth)),
		cardLine("issued", rec.Issued().Format("2006-01-02")),
	}
	return card.Render(strings.Join(lines, "\n")) + "\n"
}

func cardLine(label, value string) string {
	return zstyle.MutedText.Render(fmt.Sprintf("%-9s", label)) + " " + value
}

func (m passportModel) viewForm() string {
	accentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)

	s := "  " + zstyle.Subtitle.Render("no passport yet") + "\n\n"
	for i, input := range m.inputs {
		label := zstyle.MutedText.Render(fmt.Sprintf("  %-10s", draftLabels[i]))
		if i == m.focus {
			s += accentStyle.Render("▸") + " " + label + input.View() + "\n"
		} else {
			s += "  " + label + input.View() + "\n"
		}
	}
	return s
}

// clearFlashAfter clears flash messages after one second.
func clearFlashAfter() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return flashMsg{}
	})
}
