package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/mint"
	"github.com/zarlcorp/zpass/internal/passport"
)

type mintPhase int

const (
	mintConfirm mintPhase = iota
	mintRunning
	mintDone
)

// mintStartMsg asks the root to run the planned attempt.
type mintStartMsg struct{}

// mintStatusMsg carries a live orchestrator snapshot.
type mintStatusMsg struct {
	status mint.Status
}

// mintResultMsg carries the outcome of an attempt.
type mintResultMsg struct {
	status mint.Status
	err    error
}

// mintModel confirms the plan, follows the attempt and shows its outcome.
type mintModel struct {
	draft    passport.Draft
	plan     []string
	phase    mintPhase
	spinner  spinner.Model
	status   mint.Status
	err      error
	approval approvalModel

	// cancel abandons the running attempt; only effective before the
	// transaction is submitted.
	cancel     context.CancelFunc
	cancelling bool
}

func newMintModel(d passport.Draft, plan []string) mintModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accent)

	return mintModel{
		draft:   d,
		plan:    plan,
		phase:   mintConfirm,
		spinner: sp,
	}
}

func (m mintModel) running() bool {
	return m.phase == mintRunning
}

// cancellable reports whether esc can still abandon the attempt.
func (m mintModel) cancellable() bool {
	if !m.running() || m.cancel == nil || m.cancelling || m.approval.pending != nil {
		return false
	}
	return m.status.Phase == mint.Building || m.status.Phase == mint.Uploading
}

func (m mintModel) Init() tea.Cmd {
	return nil
}

func (m mintModel) Update(msg tea.Msg) (mintModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case mintStatusMsg:
		m.status = msg.status
		return m, nil

	case mintResultMsg:
		m.status = msg.status
		m.err = msg.err
		m.phase = mintDone
		return m, nil

	case spinner.TickMsg:
		if m.phase != mintRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m mintModel) handleKey(msg tea.KeyMsg) (mintModel, tea.Cmd) {
	switch m.phase {
	case mintConfirm:
		return m.handleConfirmKey(msg)
	case mintRunning:
		if m.approval.pending != nil {
			m.approval, _ = m.approval.handleKey(msg)
			return m, nil
		}
		if msg.Type == tea.KeyEsc && m.cancellable() {
			m.cancel()
			m.cancelling = true
		}
		return m, nil
	case mintDone:
		// any key returns to the passport view
		return m, func() tea.Msg { return navigateMsg{view: viewPassport} }
	}
	return m, nil
}

func (m mintModel) handleConfirmKey(msg tea.KeyMsg) (mintModel, tea.Cmd) {
	// quit always works
	if key.Matches(msg, zstyle.KeyQuit) {
		return m, tea.Quit
	}

	switch msg.String() {
	case "y":
		m.phase = mintRunning
		m.status = mint.Status{Phase: mint.Building}
		return m, func() tea.Msg { return mintStartMsg{} }
	default:
		// any other key cancels, back to the form
		return m, func() tea.Msg { return navigateMsg{view: viewPassport} }
	}
}

func (m mintModel) View() string {
	switch m.phase {
	case mintConfirm:
		return m.viewConfirm()
	case mintRunning:
		return m.viewRunning()
	case mintDone:
		return m.viewDone()
	}
	return ""
}

func (m mintModel) viewConfirm() string {
	s := "\n  " + zstyle.Subtitle.Render("issue passport for "+m.draft.FullName+"?") + "\n\n"
	s += fmt.Sprintf("  %s, %s\n\n", m.draft.PlaceOfBirth, passport.FormatDate(m.draft.DateOfBirth))

	s += "  " + zstyle.MutedText.Render("this will:") + "\n"
	for _, step := range m.plan {
		s += fmt.Sprintf("  %s %s\n", zstyle.StatusWarn.Render("-"), step)
	}

	s += "\n"
	s += "  " + zstyle.StatusWarn.Render("a passport can only be issued once.") + " (y/n)\n"
	return s
}

// phaseSteps lists the in-flight phases in order.
var phaseSteps = []mint.Phase{
	mint.Building,
	mint.Uploading,
	mint.Submitting,
	mint.AwaitingSettlement,
}

func (m mintModel) viewRunning() string {
	var b strings.Builder
	b.WriteString("\n")

	current := -1
	for i, p := range phaseSteps {
		if p == m.status.Phase {
			current = i
		}
	}

	for i, p := range phaseSteps {
		switch {
		case i < current:
			b.WriteString("  " + zstyle.StatusOK.Render("✓") + " " + p.String() + "\n")
		case i == current:
			b.WriteString("  " + m.spinner.View() + " " + p.String() + "\n")
		default:
			b.WriteString("  " + zstyle.MutedText.Render("· "+p.String()) + "\n")
		}
	}

	if m.status.Tx.Hash != ([32]byte{}) {
		b.WriteString("\n  " + zstyle.MutedText.Render("tx "+m.status.Tx.String()) + "\n")
	}

	switch {
	case m.cancelling:
		b.WriteString("\n  " + zstyle.MutedText.Render("cancelling...") + "\n")
	case m.cancellable():
		b.WriteString("\n  " + zstyle.MutedText.Render("esc to cancel before anything is sent") + "\n")
	}

	b.WriteString(m.approval.View())
	return b.String()
}

func (m mintModel) viewDone() string {
	var b strings.Builder

	switch {
	case m.err == nil:
		b.WriteString("\n  " + zstyle.StatusOK.Render("passport issued") + "\n\n")
	case errors.Is(m.err, context.Canceled):
		b.WriteString("\n  " + zstyle.StatusWarn.Render("cancelled: nothing was sent") + "\n\n")
	default:
		b.WriteString("\n  " + zstyle.StatusErr.Render("issuance failed: "+m.err.Error()) + "\n\n")
		if m.status.HasRecord {
			b.WriteString("  " + zstyle.StatusWarn.Render("a passport exists on chain for this wallet") + "\n")
		} else if !passport.SafeToRetry(m.err) {
			b.WriteString("  " + zstyle.StatusWarn.Render("chain state may have changed: refresh before retrying") + "\n")
		}
	}

	if m.status.Tx.Hash != ([32]byte{}) {
		b.WriteString("  tx " + m.status.Tx.String() + "\n")
	}
	if m.status.Locator != "" {
		b.WriteString("  " + zstyle.MutedText.Render(m.status.Locator.String()) + "\n")
	}

	b.WriteString("\n")
	b.WriteString("  " + zstyle.MutedText.Render("press any key to continue") + "\n")
	return b.String()
}
