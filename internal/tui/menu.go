package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/mint"
)

type menuChoice int

const (
	menuPassport menuChoice = iota
	menuAttest
	menuSettings
	menuQuit
)

var menuItems = []string{
	"Passport",
	"Record arrival",
	"Settings",
	"Quit",
}

// menuModel is the main menu view.
type menuModel struct {
	cursor    int
	version   string
	address   string
	walletErr string
	status    mint.Status
}

// navigateMsg tells the root model to switch views.
type navigateMsg struct {
	view viewID
}

func newMenuModel(version string) menuModel {
	return menuModel{version: version}
}

func (m menuModel) Init() tea.Cmd {
	return nil
}

func (m menuModel) Update(msg tea.Msg) (menuModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, zstyle.KeyQuit) {
			return m, tea.Quit
		}

		if key.Matches(msg, zstyle.KeyUp) {
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		}

		if key.Matches(msg, zstyle.KeyDown) {
			if m.cursor < len(menuItems)-1 {
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

func (m menuModel) selectItem() tea.Cmd {
	switch menuChoice(m.cursor) {
	case menuPassport:
		return func() tea.Msg { return navigateMsg{view: viewPassport} }
	case menuAttest:
		return func() tea.Msg { return navigateMsg{view: viewAttest} }
	case menuSettings:
		return func() tea.Msg { return navigateMsg{view: viewSettings} }
	case menuQuit:
		return tea.Quit
	}
	return nil
}

// walletLine summarizes the connected identity.
func (m menuModel) walletLine() string {
	switch {
	case m.walletErr != "":
		return zstyle.StatusErr.Render("wallet: " + m.walletErr)
	case m.address == "":
		return zstyle.StatusWarn.Render("no wallet configured")
	}

	state := zstyle.MutedText.Render("checking passport...")
	switch {
	case m.status.Phase == mint.Reconciled && m.status.HasRecord:
		state = zstyle.StatusOK.Render("passport issued")
	case m.status.Phase == mint.Reconciled:
		state = zstyle.StatusWarn.Render("no passport")
	case !m.status.Resting():
		state = zstyle.StatusWarn.Render(m.status.Phase.String())
	}
	return zstyle.MutedText.Render(m.address) + "  " + state
}

func (m menuModel) View() string {
	title := zstyle.Title.Render("zpass")
	ver := zstyle.MutedText.Render(m.version)

	s := fmt.Sprintf("\n  %s %s\n  %s\n\n", title, ver, m.walletLine())

	for i, item := range menuItems {
		mi := zstyle.MenuItem{Label: item, Active: m.cursor == i}
		s += zstyle.RenderMenuItem(mi, accent) + "\n"
	}

	s += "\n  " + zstyle.MutedText.Render("j/k navigate  enter select  q quit") + "\n\n"
	return s
}
