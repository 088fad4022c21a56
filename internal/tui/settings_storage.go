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

type storageField int

const (
	stToken storageField = iota
	stBaseURL
	stBucket
	stRegion
	stEndpoint
	stAccessKey
	stSecretKey
	stFieldCount
)

var storageLabels = [stFieldCount]string{
	"api token",
	"api url",
	"bucket",
	"region",
	"endpoint",
	"access key",
	"secret key",
}

var backendFields = map[string][]storageField{
	settings.BackendNFTStorage: {stToken, stBaseURL},
	settings.BackendS3:         {stBucket, stRegion, stEndpoint, stAccessKey, stSecretKey},
}

// saveStorageMsg requests saving storage settings.
type saveStorageMsg struct {
	settings settings.Storage
}

// storageModel is the form for the artifact store. Focus 0 is the backend
// selector; the rest are the inputs of the selected backend.
type storageModel struct {
	backend string
	inputs  []textinput.Model
	focus   int
	flash   string
}

func newStorageModel(cfg settings.Storage) storageModel {
	inputs := make([]textinput.Model, stFieldCount)
	for i := range inputs {
		ti := textinput.New()
		ti.CharLimit = 512
		ti.Width = 50
		inputs[i] = ti
	}

	inputs[stToken].SetValue(cfg.Token)
	inputs[stToken].EchoMode = textinput.EchoPassword
	inputs[stToken].EchoCharacter = '*'
	inputs[stBaseURL].Placeholder = "https://api.nft.storage"
	inputs[stBaseURL].SetValue(cfg.BaseURL)
	inputs[stBucket].SetValue(cfg.Bucket)
	inputs[stRegion].Placeholder = "us-east-1"
	inputs[stRegion].SetValue(cfg.Region)
	inputs[stEndpoint].Placeholder = "optional, for S3-compatible stores"
	inputs[stEndpoint].SetValue(cfg.Endpoint)
	inputs[stAccessKey].SetValue(cfg.AccessKeyID)
	inputs[stSecretKey].SetValue(cfg.SecretAccessKey)
	inputs[stSecretKey].EchoMode = textinput.EchoPassword
	inputs[stSecretKey].EchoCharacter = '*'

	return storageModel{backend: cfg.BackendName(), inputs: inputs}
}

func (m storageModel) Init() tea.Cmd {
	return textinput.Blink
}

// visible returns the inputs of the selected backend.
func (m storageModel) visible() []storageField {
	return backendFields[m.backend]
}

// field returns the focused input, or false on the backend selector.
func (m storageModel) field() (storageField, bool) {
	if m.focus == 0 {
		return 0, false
	}
	return m.visible()[m.focus-1], true
}

func (m storageModel) Update(msg tea.Msg) (storageModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}

		if msg.Type == tea.KeyEsc {
			return m, func() tea.Msg { return navigateMsg{view: viewSettings} }
		}

		if key.Matches(msg, zstyle.KeyTab) || msg.Type == tea.KeyDown {
			return m.moveFocus(1), nil
		}

		if msg.Type == tea.KeyUp || msg.Type == tea.KeyShiftTab {
			return m.moveFocus(-1), nil
		}

		if msg.String() == "ctrl+s" {
			return m.save()
		}

		if m.focus == 0 {
			if key.Matches(msg, zstyle.KeyEnter) || msg.String() == " " {
				return m.toggleBackend(), nil
			}
			return m, nil
		}

		if key.Matches(msg, zstyle.KeyEnter) {
			return m.moveFocus(1), nil
		}

	case flashMsg:
		m.flash = ""
		return m, nil
	}

	return m.updateInput(msg)
}

func (m storageModel) toggleBackend() storageModel {
	if m.backend == settings.BackendS3 {
		m.backend = settings.BackendNFTStorage
	} else {
		m.backend = settings.BackendS3
	}
	return m
}

func (m storageModel) moveFocus(delta int) storageModel {
	if f, ok := m.field(); ok {
		m.inputs[f].Blur()
	}
	n := len(m.visible()) + 1
	m.focus = (m.focus + delta + n) % n
	if f, ok := m.field(); ok {
		m.inputs[f].Focus()
	}
	return m
}

func (m storageModel) value(f storageField) string {
	return strings.TrimSpace(m.inputs[f].Value())
}

func (m storageModel) save() (storageModel, tea.Cmd) {
	s := settings.Storage{Backend: m.backend}
	if m.backend == settings.BackendS3 {
		s.Bucket = m.value(stBucket)
		s.Region = m.value(stRegion)
		s.Endpoint = m.value(stEndpoint)
		s.AccessKeyID = m.value(stAccessKey)
		s.SecretAccessKey = m.value(stSecretKey)
	} else {
		s.Token = m.value(stToken)
		s.BaseURL = m.value(stBaseURL)
	}

	if !s.Configured() {
		if m.backend == settings.BackendS3 {
			m.flash = "bucket, access key and secret key are required"
		} else {
			m.flash = "api token is required"
		}
		return m, clearFlashAfter()
	}

	return m, func() tea.Msg { return saveStorageMsg{settings: s} }
}

func (m storageModel) updateInput(msg tea.Msg) (storageModel, tea.Cmd) {
	f, ok := m.field()
	if !ok {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[f], cmd = m.inputs[f].Update(msg)
	return m, cmd
}

func (m storageModel) View() string {
	accentStyle := lipgloss.NewStyle().Foreground(accent).Bold(true)
	s := "\n"

	backend := "NFT.Storage"
	if m.backend == settings.BackendS3 {
		backend = "S3"
	}
	label := zstyle.MutedText.Render(fmt.Sprintf("  %-12s", "backend"))
	if m.focus == 0 {
		s += accentStyle.Render("▸") + " " + label + zstyle.Highlight.Render("< "+backend+" >") + "\n\n"
	} else {
		s += "  " + label + backend + "\n\n"
	}

	for i, f := range m.visible() {
		label := zstyle.MutedText.Render(fmt.Sprintf("  %-12s", storageLabels[f]))
		if i+1 == m.focus {
			s += accentStyle.Render("▸") + " " + label + m.inputs[f].View() + "\n"
		} else {
			s += "  " + label + m.inputs[f].View() + "\n"
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
