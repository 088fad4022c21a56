package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/attest"
	"github.com/zarlcorp/zpass/internal/chain"
)

type attestPhase int

const (
	attestForm attestPhase = iota
	attestRunning
	attestDone
)

type attestField int

const (
	attestCountry attestField = iota
	attestRecipient
	attestFieldCount
)

var attestLabels = [attestFieldCount]string{
	"country",
	"recipient",
}

// attestStartMsg asks the root to submit an arrival attestation.
type attestStartMsg struct {
	recipient common.Address
	payload   attest.Payload
}

// attestResultMsg carries the outcome of an attestation.
type attestResultMsg struct {
	tx    chain.TxHandle
	txURL string
	uid   common.Hash
	err   error
}

// attestModel records an arrival for a recipient, by default the
// connected wallet.
type attestModel struct {
	inputs   []textinput.Model
	focus    int
	phase    attestPhase
	spinner  spinner.Model
	approval approvalModel
	result   attestResultMsg
	flash    string
	now      func() time.Time

	// cancel abandons the attestation before it is signed.
	cancel     context.CancelFunc
	cancelling bool
}

func newAttestModel(address string) attestModel {
	inputs := make([]textinput.Model, attestFieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.CharLimit = 64
		ti.Width = 44
		inputs[i] = ti
	}

	inputs[attestCountry].Placeholder = attest.DefaultCountry
	inputs[attestRecipient].Placeholder = "0x..."
	inputs[attestRecipient].CharLimit = 42
	inputs[attestRecipient].SetValue(address)
	inputs[0].Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accent)

	return attestModel{inputs: inputs, spinner: sp, now: time.Now}
}

func (m attestModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m attestModel) Update(msg tea.Msg) (attestModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.phase {
		case attestRunning:
			if m.approval.pending != nil {
				m.approval, _ = m.approval.handleKey(msg)
				return m, nil
			}
			// once a signature is given the transaction may be on its way
			if msg.Type == tea.KeyEsc && m.cancel != nil && !m.cancelling && !m.approval.answered {
				m.cancel()
				m.cancelling = true
			}
			return m, nil
		case attestDone:
			return m, func() tea.Msg { return navigateMsg{view: viewMenu} }
		}
		return m.handleFormKey(msg)

	case attestResultMsg:
		m.result = msg
		m.phase = attestDone
		return m, nil

	case spinner.TickMsg:
		if m.phase != attestRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	if m.phase != attestForm {
		return m, nil
	}
	return m.updateInput(msg)
}

func (m attestModel) handleFormKey(msg tea.KeyMsg) (attestModel, tea.Cmd) {
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

	if key.Matches(msg, zstyle.KeyEnter) {
		return m.submit()
	}

	return m.updateInput(msg)
}

func (m attestModel) submit() (attestModel, tea.Cmd) {
	recipient := strings.TrimSpace(m.inputs[attestRecipient].Value())
	if !common.IsHexAddress(recipient) {
		m.flash = "recipient must be a 0x address"
		return m, clearFlashAfter()
	}

	country := strings.TrimSpace(m.inputs[attestCountry].Value())
	start := attestStartMsg{
		recipient: common.HexToAddress(recipient),
		payload:   attest.NewPayload(country, m.now()),
	}

	m.phase = attestRunning
	m.flash = ""
	return m, func() tea.Msg { return start }
}

func (m attestModel) nextField() attestModel {
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + 1) % int(attestFieldCount)
	m.inputs[m.focus].Focus()
	return m
}

func (m attestModel) prevField() attestModel {
	m.inputs[m.focus].Blur()
	m.focus--
	if m.focus < 0 {
		m.focus = int(attestFieldCount) - 1
	}
	m.inputs[m.focus].Focus()
	return m
}

func (m attestModel) updateInput(msg tea.Msg) (attestModel, tea.Cmd) {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m attestModel) View() string {
	switch m.phase {
	case attestRunning:
		s := "\n  " + m.spinner.View() + " recording arrival...\n"
		if m.cancelling {
			s += "\n  " + zstyle.MutedText.Render("cancelling...") + "\n"
		}
		return s + m.approval.View()
	case attestDone:
		return m.viewDone()
	}

	accentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)

	s := "\n  " + zstyle.MutedText.Render("arrival time is stamped when you press enter") + "\n\n"
	for i, input := range m.inputs {
		label := zstyle.MutedText.Render(fmt.Sprintf("  %-10s", attestLabels[i]))
		if i == m.focus {
			s += accentStyle.Render("▸") + " " + label + input.View() + "\n"
		} else {
			s += "  " + label + input.View() + "\n"
		}
	}

	s += "\n"
	if m.flash != "" {
		s += "  " + zstyle.StatusErr.Render(m.flash) + "\n"
	}
	return s
}

func (m attestModel) viewDone() string {
	var b strings.Builder
	r := m.result

	if r.err != nil {
		b.WriteString("\n  " + zstyle.StatusErr.Render("attestation failed: "+r.err.Error()) + "\n")
	} else {
		b.WriteString("\n  " + zstyle.StatusOK.Render("arrival recorded") + "\n")
		b.WriteString("  uid " + r.uid.Hex() + "\n")
	}
	if r.txURL != "" {
		b.WriteString("  " + zstyle.MutedText.Render(r.txURL) + "\n")
	}

	b.WriteString("\n  " + zstyle.MutedText.Render("press any key to continue") + "\n")
	return b.String()
}
