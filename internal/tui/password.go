package tui

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstore"
	"github.com/zarlcorp/core/pkg/zstyle"
)

// passwordModel unlocks the settings store. On first run the password is
// entered twice.
type passwordModel struct {
	input      textinput.Model
	firstRun   bool
	confirming bool
	firstPass  string
	errMsg     string
	attempts   int
}

// passwordSubmitMsg is sent when the user submits a password.
type passwordSubmitMsg struct {
	password string
}

// passwordErrMsg is sent when the store cannot be opened.
type passwordErrMsg struct {
	err error
}

func newPasswordModel(firstRun bool) passwordModel {
	ti := textinput.New()
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '*'
	ti.Focus()
	ti.CharLimit = 128
	ti.Width = 40

	return passwordModel{
		input:    ti,
		firstRun: firstRun,
	}
}

func (m passwordModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m passwordModel) Update(msg tea.Msg) (passwordModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if key.Matches(msg, zstyle.KeyEnter) {
			return m.submit()
		}

	case passwordErrMsg:
		m.attempts++
		m.errMsg = msg.err.Error()
		if errors.Is(msg.err, zstore.ErrWrongPassword) {
			m.errMsg = fmt.Sprintf("wrong password (%d)", m.attempts)
		}
		m.reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *passwordModel) reset() {
	m.input.SetValue("")
	m.confirming = false
	m.firstPass = ""
}

func (m passwordModel) submit() (passwordModel, tea.Cmd) {
	val := m.input.Value()
	if val == "" {
		return m, nil
	}

	if m.firstRun {
		if !m.confirming {
			m.firstPass = val
			m.confirming = true
			m.input.SetValue("")
			m.errMsg = ""
			return m, nil
		}
		if val != m.firstPass {
			m.reset()
			m.errMsg = "passwords do not match"
			return m, nil
		}
	}

	m.errMsg = ""
	return m, func() tea.Msg {
		return passwordSubmitMsg{password: val}
	}
}

func (m passwordModel) prompt() string {
	switch {
	case m.firstRun && m.confirming:
		return "confirm password:"
	case m.firstRun:
		return "create master password:"
	}
	return "master password:"
}

func (m passwordModel) View() string {
	indent := lipgloss.NewStyle().MarginLeft(2)
	logo := indent.Render(
		zstyle.StyledLogo(lipgloss.NewStyle().Foreground(accent)),
	)
	toolName := indent.Render(zstyle.MutedText.Render("zpass  digital passport"))

	s := fmt.Sprintf("\n%s\n%s\n\n  %s\n  %s\n", logo, toolName, m.prompt(), m.input.View())
	if m.firstRun && !m.confirming {
		s += "\n  " + zstyle.MutedText.Render("protects your wallet key and storage credentials") + "\n"
	}

	if m.errMsg != "" {
		s += "\n  " + zstyle.StatusErr.Render(m.errMsg)
	}

	s += "\n"
	return s
}
