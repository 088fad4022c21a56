package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/settings"
)

type settingsChoice int

const (
	settingsStorage settingsChoice = iota
	settingsWallet
	settingsBack
)

var settingsItems = []string{
	"storage",
	"wallet",
	"back",
}

// settingsModel displays the settings menu with configuration status.
type settingsModel struct {
	cursor    int
	storage   settings.Storage
	wallet    settings.Wallet
	connected bool
}

func newSettingsModel(st settings.Storage, w settings.Wallet, connected bool) settingsModel {
	return settingsModel{
		storage:   st,
		wallet:    w,
		connected: connected,
	}
}

func (m settingsModel) Init() tea.Cmd {
	return nil
}

func (m settingsModel) Update(msg tea.Msg) (settingsModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, zstyle.KeyQuit) {
			return m, tea.Quit
		}

		if key.Matches(msg, zstyle.KeyBack) {
			return m, func() tea.Msg { return navigateMsg{view: viewMenu} }
		}

		if key.Matches(msg, zstyle.KeyUp) {
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		}

		if key.Matches(msg, zstyle.KeyDown) {
			if m.cursor < len(settingsItems)-1 {
				m.cursor++
			}
			return m, nil
		}

		if key.Matches(msg, zstyle.KeyEnter) {
			return m, m.selectItem()
		}
	}

	return m, nil
}

func (m settingsModel) selectItem() tea.Cmd {
	switch settingsChoice(m.cursor) {
	case settingsStorage:
		return func() tea.Msg { return navigateMsg{view: viewSettingsStorage} }
	case settingsWallet:
		return func() tea.Msg { return navigateMsg{view: viewSettingsWallet} }
	case settingsBack:
		return func() tea.Msg { return navigateMsg{view: viewMenu} }
	}
	return nil
}

// statusFor returns the status label and whether it is healthy.
func (m settingsModel) statusFor(choice settingsChoice) (string, bool) {
	switch choice {
	case settingsStorage:
		if m.storage.Configured() {
			return m.storage.BackendName(), true
		}
	case settingsWallet:
		switch {
		case m.connected:
			return "connected", true
		case m.wallet.Configured():
			return "locked", false
		}
	}
	return "not configured", false
}

func (m settingsModel) View() string {
	s := "\n"

	for i, item := range settingsItems {
		choice := settingsChoice(i)

		mi := zstyle.MenuItem{
			Label:  item,
			Active: m.cursor == i,
		}
		line := zstyle.RenderMenuItem(mi, accent)

		if choice != settingsBack {
			status, ok := m.statusFor(choice)
			style := zstyle.StatusErr
			if ok {
				style = zstyle.StatusOK
			}
			line += " " + style.Render(status)
		}
		s += line + "\n"
	}

	return s
}
