package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/wallet"
)

// approvalMsg carries a signing request from the wallet.
type approvalMsg struct {
	pending *wallet.Pending
}

// listenApprovals waits for the next signing request.
func listenApprovals(p *wallet.Prompt) tea.Cmd {
	return func() tea.Msg {
		return approvalMsg{pending: <-p.Requests()}
	}
}

// approvalModel shows one signing request and answers it with y/n.
type approvalModel struct {
	pending  *wallet.Pending
	answered bool // a request has been answered in this attempt
}

func (a approvalModel) ask(p *wallet.Pending) approvalModel {
	if a.pending != nil {
		// one request at a time; a second one is refused
		p.Answer(false)
		return a
	}
	a.pending = p
	return a
}

// handleKey answers the request on y or n. handled is false for other keys.
func (a approvalModel) handleKey(msg tea.KeyMsg) (approvalModel, bool) {
	if a.pending == nil {
		return a, false
	}
	switch msg.String() {
	case "y", "Y":
		a.pending.Answer(true)
	case "n", "N", "esc":
		a.pending.Answer(false)
	default:
		return a, true
	}
	a.pending = nil
	a.answered = true
	return a, true
}

func (a approvalModel) View() string {
	if a.pending == nil {
		return ""
	}
	req := a.pending.Request

	s := "\n  " + zstyle.Subtitle.Render("wallet signature requested") + "\n\n"
	s += fmt.Sprintf("  %s\n", req.Summary())
	s += "\n  " + zstyle.StatusWarn.Render("sign and send?") + " (y/n)\n"
	return s
}

// statusTickMsg polls the orchestrator while an attempt runs.
type statusTickMsg struct{}

func statusTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}
