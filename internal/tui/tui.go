// Package tui implements the root Bubble Tea model for zpass.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/ethereum/go-ethereum/common"
	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstore"
	"github.com/zarlcorp/core/pkg/zstyle"

	"github.com/zarlcorp/zpass/internal/attest"
	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/config"
	"github.com/zarlcorp/zpass/internal/mint"
	"github.com/zarlcorp/zpass/internal/passport"
	"github.com/zarlcorp/zpass/internal/settings"
	"github.com/zarlcorp/zpass/internal/wallet"
)

// accent is passport gold.
var accent = lipgloss.Color("#c9a227")

type viewID int

const (
	viewPassword viewID = iota
	viewMenu
	viewPassport
	viewMint
	viewAttest
	viewSettings
	viewSettingsStorage
	viewSettingsWallet
)

// Chain reads and mints passports. *chain.Client satisfies it.
type Chain interface {
	mint.Reader
	mint.Minter
}

// Attester issues arrival attestations. *attest.Submitter satisfies it.
type Attester interface {
	Submit(ctx context.Context, signer chain.Signer, recipient common.Address, schemaUID common.Hash, p attest.Payload) (attest.Handle, error)
	Await(ctx context.Context, h attest.Handle) (common.Hash, error)
}

// Services are the network collaborators of the TUI.
type Services struct {
	Net    config.Network
	Chain  Chain
	Attest Attester
	Log    *slog.Logger

	// Context is the parent of every mint and attestation attempt. Nil
	// uses context.Background().
	Context context.Context

	// NewUploader builds the artifact store from settings. Nil uses
	// settings.Storage.NewUploader.
	NewUploader func(ctx context.Context, s settings.Storage) (settings.Uploader, error)
}

// Model is the root TUI model.
type Model struct {
	version  string
	dataDir  string
	firstRun bool
	svc      Services
	log      *slog.Logger

	store   *zstore.Store
	configs *settings.Collection

	orch     *mint.Orchestrator
	uploader *storageUploader
	prompt   *wallet.Prompt
	wallet   *wallet.Wallet

	// cached settings state
	storageCfg settings.Storage
	walletCfg  settings.Wallet
	walletErr  string
	status     mint.Status

	active          viewID
	password        passwordModel
	menu            menuModel
	passport        passportModel
	mint            mintModel
	attest          attestModel
	settings        settingsModel
	settingsStorage storageModel
	settingsWallet  walletModel

	// terminal dimensions
	width  int
	height int
}

// New creates the root TUI model.
func New(version, dataDir string, firstRun bool, svc Services) Model {
	log := svc.Log
	if log == nil {
		log = slog.Default()
	}

	up := &storageUploader{build: svc.NewUploader}
	orch := mint.New(mint.Deps{
		Uploader: up,
		Reader:   svc.Chain,
		Minter:   svc.Chain,
		Price:    svc.Net.MintPrice,
	},
		mint.WithLogger(log),
		mint.WithPollInterval(svc.Net.PollInterval),
		mint.WithSettlementTimeout(svc.Net.SettlementTimeout),
	)

	return Model{
		version:  version,
		dataDir:  dataDir,
		firstRun: firstRun,
		svc:      svc,
		log:      log,
		orch:     orch,
		uploader: up,
		prompt:   wallet.NewPrompt(),
		active:   viewPassword,
		password: newPasswordModel(firstRun),
		menu:     newMenuModel(version),
	}
}

func (m Model) Init() tea.Cmd {
	return m.password.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case passwordSubmitMsg:
		return m.openStore(msg.password)

	case navigateMsg:
		return m.navigate(msg.view)

	case connectedMsg:
		return m.handleConnected(msg)

	case refreshMsg:
		return m, m.refreshCmd()

	case refreshedMsg:
		return m.handleRefreshed(msg)

	case submitDraftMsg:
		return m.handleSubmitDraft(msg.draft)

	case mintStartMsg:
		return m.startMint()

	case mintResultMsg:
		m.status = msg.status
		m.mint, _ = m.mint.Update(msg)
		return m, nil

	case statusTickMsg:
		if m.active != viewMint || !m.mint.running() {
			return m, nil
		}
		m.mint, _ = m.mint.Update(mintStatusMsg{status: m.orch.Status()})
		return m, statusTick()

	case attestStartMsg:
		return m.startAttest(msg)

	case approvalMsg:
		return m.handleApproval(msg)

	case saveStorageMsg:
		return m.handleSaveStorage(msg.settings)

	case saveWalletMsg:
		return m.handleSaveWallet(msg)
	}

	return m.updateActive(msg)
}

func (m Model) View() string {
	// password and menu include the logo, render directly
	switch m.active {
	case viewPassword:
		return m.password.View()
	case viewMenu:
		return m.menu.View()
	}

	// all other views: header + separator + content + footer
	var content string
	switch m.active {
	case viewPassport:
		content = m.passport.View()
	case viewMint:
		content = m.mint.View()
	case viewAttest:
		content = m.attest.View()
	case viewSettings:
		content = m.settings.View()
	case viewSettingsStorage:
		content = m.settingsStorage.View()
	case viewSettingsWallet:
		content = m.settingsWallet.View()
	}

	header := zstyle.RenderHeader("zpass", viewTitle(m.active), accent)
	sep := zstyle.RenderSeparator(m.width)
	footer := zstyle.RenderFooter(m.helpFor(m.active))

	return "\n" + header + "\n" + sep + "\n" + content + "\n" + footer + "\n"
}

// viewTitle returns the display title for each view.
func viewTitle(id viewID) string {
	switch id {
	case viewPassport:
		return "Passport"
	case viewMint:
		return "Issue Passport"
	case viewAttest:
		return "Arrival"
	case viewSettings:
		return "Settings"
	case viewSettingsStorage:
		return "Storage"
	case viewSettingsWallet:
		return "Wallet"
	}
	return ""
}

// helpFor returns keybinding pairs for each view's footer.
func (m Model) helpFor(id viewID) []zstyle.HelpPair {
	switch id {
	case viewPassport:
		if m.passport.hasRecord() {
			return []zstyle.HelpPair{
				{Key: "c", Desc: "copy address"},
				{Key: "r", Desc: "refresh"},
				{Key: "esc", Desc: "back"},
				{Key: "q", Desc: "quit"},
			}
		}
		return []zstyle.HelpPair{
			{Key: "tab", Desc: "next"},
			{Key: "ctrl+s", Desc: "issue"},
			{Key: "ctrl+r", Desc: "refresh"},
			{Key: "esc", Desc: "back"},
		}
	case viewMint, viewAttest:
		if m.active == id && m.pendingApproval() {
			return []zstyle.HelpPair{
				{Key: "y", Desc: "sign"},
				{Key: "n", Desc: "reject"},
			}
		}
		if id == viewMint && m.mint.cancellable() {
			return []zstyle.HelpPair{
				{Key: "esc", Desc: "cancel"},
			}
		}
		if id == viewMint {
			return []zstyle.HelpPair{
				{Key: "y", Desc: "confirm"},
				{Key: "n", Desc: "cancel"},
			}
		}
		return []zstyle.HelpPair{
			{Key: "tab", Desc: "next"},
			{Key: "enter", Desc: "attest"},
			{Key: "esc", Desc: "back"},
		}
	case viewSettings:
		return []zstyle.HelpPair{
			{Key: "j/k", Desc: "navigate"},
			{Key: "enter", Desc: "select"},
			{Key: "esc", Desc: "back"},
			{Key: "q", Desc: "quit"},
		}
	case viewSettingsStorage:
		return []zstyle.HelpPair{
			{Key: "tab", Desc: "next"},
			{Key: "space", Desc: "backend"},
			{Key: "ctrl+s", Desc: "save"},
			{Key: "esc", Desc: "back"},
		}
	case viewSettingsWallet:
		return []zstyle.HelpPair{
			{Key: "tab", Desc: "next"},
			{Key: "ctrl+s", Desc: "save"},
			{Key: "esc", Desc: "back"},
		}
	}
	return nil
}

func (m Model) pendingApproval() bool {
	switch m.active {
	case viewMint:
		return m.mint.approval.pending != nil
	case viewAttest:
		return m.attest.approval.pending != nil
	}
	return false
}

func (m Model) updateActive(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.active {
	case viewPassword:
		m.password, cmd = m.password.Update(msg)
	case viewMenu:
		m.menu, cmd = m.menu.Update(msg)
	case viewPassport:
		m.passport, cmd = m.passport.Update(msg)
	case viewMint:
		m.mint, cmd = m.mint.Update(msg)
	case viewAttest:
		m.attest, cmd = m.attest.Update(msg)
	case viewSettings:
		m.settings, cmd = m.settings.Update(msg)
	case viewSettingsStorage:
		m.settingsStorage, cmd = m.settingsStorage.Update(msg)
	case viewSettingsWallet:
		m.settingsWallet, cmd = m.settingsWallet.Update(msg)
	}

	return m, cmd
}

func (m Model) openStore(password string) (tea.Model, tea.Cmd) {
	if err := os.MkdirAll(m.dataDir, 0o700); err != nil {
		m.password, _ = m.password.Update(passwordErrMsg{
			err: fmt.Errorf("create data dir: %w", err),
		})
		return m, nil
	}

	fsys := zfilesystem.NewOSFileSystem(m.dataDir)
	s, err := zstore.Open(fsys, []byte(password))
	if err != nil {
		m.password, _ = m.password.Update(passwordErrMsg{err: err})
		return m, nil
	}

	cfgCol, err := settings.Open(s)
	if err != nil {
		s.Close()
		m.password, _ = m.password.Update(passwordErrMsg{err: err})
		return m, nil
	}

	m.store = s
	m.configs = cfgCol
	m.loadSettings()
	m.active = viewMenu

	cmd := m.connectWallet("")
	m.menu = m.menuModel()
	return m, tea.Batch(cmd, listenApprovals(m.prompt))
}

// loadSettings reads storage and wallet settings from the store.
// Missing settings are silently ignored (zero value = unconfigured).
func (m *Model) loadSettings() {
	m.storageCfg = settings.Load[settings.Storage](m.configs, settings.KeyStorage)
	m.walletCfg = settings.Load[settings.Wallet](m.configs, settings.KeyWallet)
	m.uploader.set(m.storageCfg)
}

// connectWallet opens the configured wallet and connects it to the
// orchestrator. Keystore wallets stay locked until a passphrase is given.
func (m *Model) connectWallet(passphrase string) tea.Cmd {
	if m.wallet != nil {
		m.orch.Disconnect()
		m.wallet.Close()
		m.wallet = nil
	}
	m.status = mint.Status{}
	m.walletErr = ""

	if !m.walletCfg.Configured() {
		return nil
	}
	if m.walletCfg.PrivateKey == "" && passphrase == "" {
		m.walletErr = "locked: enter the keystore passphrase in settings"
		return nil
	}

	w, err := m.walletCfg.Open(func() (string, error) { return passphrase, nil }, m.prompt)
	if err != nil {
		m.walletErr = err.Error()
		m.log.Warn("open wallet", "err", err)
		return nil
	}
	m.wallet = w

	orch := m.orch
	return func() tea.Msg {
		st, err := orch.Connect(context.Background(), w)
		return connectedMsg{status: st, err: err}
	}
}

// connectedMsg carries the first read after a wallet connects.
type connectedMsg struct {
	status mint.Status
	err    error
}

func (m Model) handleConnected(msg connectedMsg) (tea.Model, tea.Cmd) {
	m.status = msg.status
	if msg.err != nil {
		m.walletErr = msg.err.Error()
		m.log.Warn("connect wallet", "err", msg.err)
	}
	if m.active == viewMenu {
		m.menu = m.menuModel()
	}
	if m.active == viewPassport {
		m.passport = m.passport.withStatus(m.status, m.walletErr)
	}
	return m, nil
}

func (m Model) menuModel() menuModel {
	mm := newMenuModel(m.version)
	mm.walletErr = m.walletErr
	if m.wallet != nil {
		mm.address = m.wallet.Address().Hex()
	}
	mm.status = m.status
	return mm
}

func (m Model) navigate(view viewID) (tea.Model, tea.Cmd) {
	switch view {
	case viewMenu:
		m.menu = m.menuModel()
		m.active = viewMenu
		return m, tea.ClearScreen

	case viewPassport:
		m.passport = newPassportModel(m.orch.Draft(), m.address())
		m.passport = m.passport.withStatus(m.status, m.walletErr)
		m.active = viewPassport
		return m, tea.Batch(tea.ClearScreen, m.passport.Init())

	case viewAttest:
		m.attest = newAttestModel(m.address())
		m.active = viewAttest
		return m, tea.Batch(tea.ClearScreen, m.attest.Init())

	case viewSettings:
		m.settings = newSettingsModel(m.storageCfg, m.walletCfg, m.wallet != nil)
		m.active = viewSettings
		return m, tea.ClearScreen

	case viewSettingsStorage:
		m.settingsStorage = newStorageModel(m.storageCfg)
		m.active = viewSettingsStorage
		return m, tea.Batch(tea.ClearScreen, m.settingsStorage.Init())

	case viewSettingsWallet:
		m.settingsWallet = newWalletModel(m.walletCfg)
		m.active = viewSettingsWallet
		return m, tea.Batch(tea.ClearScreen, m.settingsWallet.Init())
	}

	return m, nil
}

func (m Model) address() string {
	if m.wallet == nil {
		return ""
	}
	return m.wallet.Address().Hex()
}

// refreshMsg asks for a fresh read of the connected identity.
type refreshMsg struct{}

// refreshedMsg carries the result of a refresh.
type refreshedMsg struct {
	status mint.Status
	err    error
}

func (m Model) refreshCmd() tea.Cmd {
	orch := m.orch
	return func() tea.Msg {
		st, err := orch.Refresh(context.Background())
		return refreshedMsg{status: st, err: err}
	}
}

func (m Model) handleRefreshed(msg refreshedMsg) (tea.Model, tea.Cmd) {
	m.status = msg.status
	if m.active != viewPassport {
		return m, nil
	}
	m.passport = m.passport.withStatus(m.status, m.walletErr)
	if msg.err != nil {
		m.passport.flash = "refresh: " + msg.err.Error()
		return m, clearFlashAfter()
	}
	m.passport.flash = "refreshed"
	return m, clearFlashAfter()
}

func (m Model) handleSubmitDraft(d passport.Draft) (tea.Model, tea.Cmd) {
	m.orch.SetDraft(d)

	var reason string
	switch {
	case !m.orch.Connected():
		reason = "no wallet connected: configure one in settings"
	case !m.storageCfg.Configured():
		reason = "storage not configured: open settings"
	case !m.orch.Status().Known:
		reason = "passport state unknown: press ctrl+r to refresh"
	case !m.orch.CanSubmit():
		if err := d.Validate(); err != nil {
			reason = err.Error()
		} else {
			reason = "cannot issue: passport exists or a submission is running"
		}
	}
	if reason != "" {
		m.passport.flash = reason
		return m, clearFlashAfter()
	}

	m.mint = newMintModel(d, m.orch.Plan())
	m.active = viewMint
	return m, tea.ClearScreen
}

// attemptContext derives a cancellable context for one attempt.
func (m Model) attemptContext() (context.Context, context.CancelFunc) {
	parent := m.svc.Context
	if parent == nil {
		parent = context.Background()
	}
	return context.WithCancel(parent)
}

func (m Model) startMint() (tea.Model, tea.Cmd) {
	ctx, cancel := m.attemptContext()
	m.mint.cancel = cancel

	orch := m.orch
	run := func() tea.Msg {
		defer cancel()
		st, err := orch.Submit(ctx)
		return mintResultMsg{status: st, err: err}
	}
	return m, tea.Batch(run, m.mint.spinner.Tick, statusTick())
}

func (m Model) startAttest(msg attestStartMsg) (tea.Model, tea.Cmd) {
	if m.wallet == nil {
		m.attest.flash = "no wallet connected: configure one in settings"
		m.attest.phase = attestForm
		return m, clearFlashAfter()
	}

	ctx, cancel := m.attemptContext()
	m.attest.cancel = cancel

	svc := m.svc
	w := m.wallet
	log := m.log.With("recipient", msg.recipient.Hex(), "country", msg.payload.Country)
	run := func() tea.Msg {
		defer cancel()
		h, err := svc.Attest.Submit(ctx, w, msg.recipient, svc.Net.SchemaUID, msg.payload)
		if err != nil {
			log.Warn("attestation failed", "err", err)
			return attestResultMsg{err: err}
		}
		log.Info("attestation submitted", "tx", h.Tx.String())

		// the transaction exists, so settlement is observed past a cancel
		awaitCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), svc.Net.SettlementTimeout)
		defer stop()
		uid, err := svc.Attest.Await(awaitCtx, h)
		if err != nil {
			log.Warn("attestation not settled", "tx", h.Tx.String(), "err", err)
		} else {
			log.Info("attestation settled", "uid", uid.Hex())
		}
		return attestResultMsg{tx: h.Tx, txURL: svc.Net.TxURL(h.Tx.Hash), uid: uid, err: err}
	}
	return m, tea.Batch(run, m.attest.spinner.Tick)
}

// handleApproval routes a signing request to the running view. Requests
// that arrive with no running view are rejected.
func (m Model) handleApproval(msg approvalMsg) (tea.Model, tea.Cmd) {
	next := listenApprovals(m.prompt)

	switch {
	case m.active == viewMint && m.mint.running():
		m.mint.approval = m.mint.approval.ask(msg.pending)
	case m.active == viewAttest && m.attest.phase == attestRunning:
		m.attest.approval = m.attest.approval.ask(msg.pending)
	default:
		msg.pending.Answer(false)
	}
	return m, next
}

func (m Model) handleSaveStorage(s settings.Storage) (tea.Model, tea.Cmd) {
	if err := settings.Save(m.configs, settings.KeyStorage, s); err != nil {
		m.settingsStorage.flash = "save: " + err.Error()
		return m, clearFlashAfter()
	}

	m.storageCfg = s
	m.uploader.set(s)
	m.settingsStorage.flash = "saved"
	return m, clearFlashAfter()
}

func (m Model) handleSaveWallet(msg saveWalletMsg) (tea.Model, tea.Cmd) {
	if err := settings.Save(m.configs, settings.KeyWallet, msg.settings); err != nil {
		m.settingsWallet.flash = "save: " + err.Error()
		return m, clearFlashAfter()
	}

	m.walletCfg = msg.settings
	cmd := m.connectWallet(msg.passphrase)
	switch {
	case m.walletErr != "":
		m.settingsWallet.flash = "saved, " + m.walletErr
	case m.wallet != nil:
		m.settingsWallet.flash = "saved, connected " + m.wallet.Address().Hex()
	default:
		m.settingsWallet.flash = "saved"
	}
	return m, tea.Batch(cmd, clearFlashAfter())
}

// Close cleans up resources. Call after the program exits.
func (m Model) Close() {
	if m.wallet != nil {
		m.wallet.Close()
	}
	if m.store != nil {
		m.store.Close()
	}
}
