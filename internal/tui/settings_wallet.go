package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/settings"
)

type walletField int

const (
	wlPrivateKey walletField = iota
	wlKeystore
	wlPassphrase
	wlFieldCount
)

var walletLabels = [wlFieldCount]string{
	"private key",
	"keystore",
	"passphrase",
}

// saveWalletMsg requests saving wallet settings. The passphrase unlocks a
// keystore for this session and is never stored.
type saveWalletMsg struct {
	settings   settings.Wallet
	passphrase string
}

// walletModel is the form for the signing key.
type walletModel struct {
	inputs []textinput.Model
	focus  int
	flash  string
}

func newWalletModel(cfg settings.Wallet) walletModel {
	inputs := make([]textinput.Model, wlFieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.CharLimit = 512
		ti.Width = 50
		inputs[i] = ti
	}

	inputs[wlPrivateKey].Placeholder = "0x... (hex)"
	inputs[wlPrivateKey].SetValue(cfg.PrivateKey)
	inputs[wlPrivateKey].EchoMode = textinput.EchoPassword
	inputs[wlPrivateKey].EchoCharacter = '*'

	inputs[wlKeystore].Placeholder = "path to keystore json"
	inputs[wlKeystore].SetValue(cfg.KeystorePath)

	inputs[wlPassphrase].Placeholder = "keystore only, not saved"
	inputs[wlPassphrase].EchoMode = textinput.EchoPassword
	inputs[wlPassphrase].EchoCharacter = '*'

	inputs[0].Focus()

	return walletModel{inputs: inputs}
}

func (m walletModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m walletModel) Update(msg tea.Msg) (walletModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}

		if msg.Type == tea.KeyEsc {
			return m, func() tea.Msg { return navigateMsg{view: viewSettings} }
		}

		if key.Matches(msg, zstyle.KeyTab) || msg.Type == tea.KeyDown {
			return m.nextField(), nil
		}

		if msg.Type == tea.KeyUp || msg.Type == tea.KeyShiftTab {
			return m.prevField(), nil
		}

		if msg.String() == "ctrl+s" {
			return m.save()
		}

		if key.Matches(msg, zstyle.KeyEnter) {
			// enter on last field saves; otherwise advance
			if m.focus == int(wlFieldCount)-1 {
				return m.save()
			}
			return m.nextField(), nil
		}

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	return m.updateInput(msg)
}

func (m walletModel) save() (walletModel, tea.Cmd) {
	s := settings.Wallet{
		PrivateKey:   strings.TrimSpace(m.inputs[wlPrivateKey].Value()),
		KeystorePath: strings.TrimSpace(m.inputs[wlKeystore].Value()),
	}
	pass := m.inputs[wlPassphrase].Value()

	if s.PrivateKey != "" && s.KeystorePath != "" {
		m.flash = "set a private key or a keystore, not both"
		return m, clearFlashAfter()
	}

	m.inputs[wlPassphrase].SetValue("")
	m.flash = "connecting..."
	return m, func() tea.Msg { return saveWalletMsg{settings: s, passphrase: pass} }
}

func (m walletModel) nextField() walletModel {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + 1) % int(wlFieldCount)
	m.inputs[m.focus].Focus()
	return m
}

func (m walletModel) prevField() walletModel {
	m.inputs[m.focus].Blur()
	m.focus--
	if m.focus < 0 {
		m.focus = int(wlFieldCount) - 1
	}
	m.inputs[m.focus].Focus()
	return m
}

func (m walletModel) updateInput(msg tea.Msg) (walletModel, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m walletModel) View() string {
	accentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)

	s := "\n  " + zstyle.MutedText.Render("the key signs passport and arrival transactions") + "\n\n"
	for i, input := range m.inputs {
		label := zstyle.MutedText.Render(fmt.Sprintf("  %-12s", walletLabels[i]))
		if i == m.focus {
			s += accentStyle.Render("▸") + " " + label + input.View() + "\n"
		} else {
			s += "  " + label + input.View() + "\n"
		}
	}

	s += "\n"
	if m.flash != "" {
		s += "  " + zstyle.StatusOK.Render(m.flash) + "\n"
	} else {
		s += "\n"
	}
	return s
}
