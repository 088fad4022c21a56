package tui

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstore"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/attest"
	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/config"
	"github.com/zarlcorp/zpass/internal/mint"
	"github.com/zarlcorp/zpass/internal/passport"
	"github.com/zarlcorp/zpass/internal/settings"
	"github.com/zarlcorp/zpass/internal/wallet"
)

// helpers

func keyMsg(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func specialKey(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func enterKey() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEnter}
}

func escKey() tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyEsc}
}

// fakes

type fakeChain struct {
	mu      sync.Mutex
	records map[common.Address]*passport.Record
	staged  map[common.Address]*passport.Record
	mintErr error
	readErr error
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		records: make(map[common.Address]*passport.Record),
		staged:  make(map[common.Address]*passport.Record),
	}
}

func (f *fakeChain) Passport(_ context.Context, id common.Address) (*passport.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.records[id], nil
}

func (f *fakeChain) CreatePassport(_ context.Context, s chain.Signer, d passport.Draft, _ passport.Locator, _ *big.Int) (chain.TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return chain.TxHandle{}, f.mintErr
	}
	f.staged[s.Address()] = &passport.Record{
		Name:         d.FullName,
		PlaceOfBirth: d.PlaceOfBirth,
		DateOfBirth:  d.DateOfBirth,
		IssueDate:    1700000000,
	}
	return chain.TxHandle{Hash: common.HexToHash("0xfeed")}, nil
}

func (f *fakeChain) Receipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for addr, rec := range f.staged {
		f.records[addr] = rec
	}
	f.staged = make(map[common.Address]*passport.Record)
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(context.Context, artifact.Artifact) (passport.Locator, error) {
	return "ipfs://bafy/metadata.json", nil
}

// blockingUploader waits until the attempt is cancelled.
type blockingUploader struct {
	started chan struct{}
}

func (u blockingUploader) Upload(ctx context.Context, _ artifact.Artifact) (passport.Locator, error) {
	close(u.started)
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeAttester struct {
	mu        sync.Mutex
	recipient common.Address
	payload   attest.Payload
	err       error
}

func (f *fakeAttester) Submit(_ context.Context, _ chain.Signer, recipient common.Address, _ common.Hash, p attest.Payload) (attest.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return attest.Handle{}, f.err
	}
	f.recipient = recipient
	f.payload = p
	return attest.Handle{Tx: chain.TxHandle{Hash: common.HexToHash("0xbeef")}, Recipient: recipient, Payload: p}, nil
}

func (f *fakeAttester) Await(context.Context, attest.Handle) (common.Hash, error) {
	return common.HexToHash("0x1234"), nil
}

func testServices(fc *fakeChain, fa *fakeAttester) Services {
	net := config.Default()
	net.PollInterval = time.Millisecond
	net.SettlementTimeout = time.Second

	return Services{
		Net:    net,
		Chain:  fc,
		Attest: fa,
		Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		NewUploader: func(context.Context, settings.Storage) (settings.Uploader, error) {
			return fakeUploader{}, nil
		},
	}
}

func testRequest() wallet.Request {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return wallet.Request{
		Purpose: "mint passport",
		From:    common.HexToAddress("0x00000000000000000000000000000000000000bb"),
		To:      &to,
		Value:   big.NewInt(80000000000000000),
		Gas:     210000,
		FeeCap:  big.NewInt(2000000000),
		ChainID: big.NewInt(11155111),
	}
}

func cardStatus() mint.Status {
	return mint.Status{
		Phase:     mint.Reconciled,
		HasRecord: true,
		Record: &passport.Record{
			Name:         "Ada Lovelace",
			PlaceOfBirth: "London",
			DateOfBirth:  -4728211200,
			IssueDate:    1700000000,
		},
	}
}

// openTestStore opens a real zstore backed by OSFileSystem in a temp dir.
func openTestStore(t *testing.T, password string) *zstore.Store {
	t.Helper()
	fs := zfilesystem.NewOSFileSystem(t.TempDir())
	s, err := zstore.Open(fs, []byte(password))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// setupModel creates a root Model with a real zstore, bypassing the
// password flow.
func setupModel(t *testing.T, fc *fakeChain, fa *fakeAttester) Model {
	t.Helper()
	s := openTestStore(t, "testpass")

	col, err := settings.Open(s)
	if err != nil {
		t.Fatal(err)
	}

	m := New("1.0", t.TempDir(), false, testServices(fc, fa))
	m.store = s
	m.configs = col
	m.active = viewMenu
	return m
}

// connect loads a fresh wallet and runs the first read.
func connect(t *testing.T, m Model) Model {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	m.walletCfg = settings.Wallet{PrivateKey: hex.EncodeToString(crypto.FromECDSA(key))}

	cmd := m.connectWallet("")
	if cmd == nil {
		t.Fatalf("no connect command: %s", m.walletErr)
	}
	t.Cleanup(func() {
		if m.wallet != nil {
			m.wallet.Close()
		}
	})
	return processMsg(t, m, cmd())
}

func configureStorage(m Model) Model {
	m.storageCfg = settings.Storage{Token: "tok"}
	m.uploader.set(m.storageCfg)
	return m
}

// processMsg sends a message through the model and returns the updated model.
func processMsg(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	result, _ := m.Update(msg)
	rm, ok := result.(Model)
	if !ok {
		t.Fatalf("expected Model, got %T", result)
	}
	return rm
}

// firstMsg runs only the first command of a batch.
func firstMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		return batch[0]()
	}
	return msg
}

// password view tests

func TestPasswordViewShowsPrompt(t *testing.T) {
	m := newPasswordModel(false)
	view := m.View()

	if !strings.Contains(view, "master password") {
		t.Error("view should show master password prompt")
	}
	if strings.Contains(view, "create") {
		t.Error("non-first-run view should not contain 'create'")
	}
	if !strings.Contains(view, "zpass") {
		t.Error("view should show title")
	}
}

func TestPasswordFirstRunConfirm(t *testing.T) {
	m := newPasswordModel(true)
	if !strings.Contains(m.View(), "create master password") {
		t.Error("first-run view should show 'create master password'")
	}

	m.input.SetValue("secret")
	m, _ = m.Update(enterKey())
	if !m.confirming {
		t.Fatal("should be in confirming state after first entry")
	}

	m.input.SetValue("secret")
	_, cmd := m.Update(enterKey())
	if cmd == nil {
		t.Fatal("should emit command on matching passwords")
	}
	if submit, ok := cmd().(passwordSubmitMsg); !ok || submit.password != "secret" {
		t.Errorf("got %#v, want passwordSubmitMsg{secret}", cmd())
	}
}

func TestPasswordFirstRunMismatch(t *testing.T) {
	m := newPasswordModel(true)

	m.input.SetValue("secret1")
	m, _ = m.Update(enterKey())
	m.input.SetValue("secret2")
	m, _ = m.Update(enterKey())

	if !strings.Contains(m.View(), "passwords do not match") {
		t.Error("should show mismatch error")
	}
	if m.confirming {
		t.Error("should reset confirming state")
	}
}

func TestPasswordWrongPassword(t *testing.T) {
	m := newPasswordModel(false)
	m.input.SetValue("nope")

	m, _ = m.Update(passwordErrMsg{err: zstore.ErrWrongPassword})
	m, _ = m.Update(passwordErrMsg{err: zstore.ErrWrongPassword})

	if !strings.Contains(m.View(), "wrong password (2)") {
		t.Errorf("view should count attempts:\n%s", m.View())
	}
	if m.input.Value() != "" {
		t.Error("input should be cleared")
	}
}

func TestPasswordQuit(t *testing.T) {
	m := newPasswordModel(false)
	_, cmd := m.Update(specialKey(tea.KeyCtrlC))
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected QuitMsg")
	}
}

// menu tests

func TestMenuNavigation(t *testing.T) {
	m := newMenuModel("1.0")

	m, _ = m.Update(keyMsg('j'))
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	m, _ = m.Update(keyMsg('k'))
	m, _ = m.Update(keyMsg('k'))
	if m.cursor != 0 {
		t.Errorf("cursor should clamp at 0, got %d", m.cursor)
	}
	for range menuItems {
		m, _ = m.Update(keyMsg('j'))
	}
	if m.cursor != len(menuItems)-1 {
		t.Errorf("cursor should clamp at %d, got %d", len(menuItems)-1, m.cursor)
	}
}

func TestMenuSelect(t *testing.T) {
	tests := []struct {
		cursor int
		want   viewID
	}{
		{int(menuPassport), viewPassport},
		{int(menuAttest), viewAttest},
		{int(menuSettings), viewSettings},
	}

	for _, tt := range tests {
		m := newMenuModel("1.0")
		m.cursor = tt.cursor
		_, cmd := m.Update(enterKey())
		nav, ok := cmd().(navigateMsg)
		if !ok || nav.view != tt.want {
			t.Errorf("cursor %d: got %#v, want view %d", tt.cursor, cmd(), tt.want)
		}
	}
}

func TestMenuWalletLine(t *testing.T) {
	m := newMenuModel("1.0")
	if !strings.Contains(m.View(), "no wallet configured") {
		t.Error("menu should say no wallet is configured")
	}

	m.address = "0xABC"
	m.status.Phase = mint.Reconciled
	m.status.HasRecord = true
	if !strings.Contains(m.View(), "passport issued") {
		t.Errorf("menu should show passport state:\n%s", m.View())
	}
}

// root tests

func TestRootStartsAtPassword(t *testing.T) {
	m := New("1.0", t.TempDir(), true, testServices(newFakeChain(), &fakeAttester{}))
	if m.active != viewPassword {
		t.Errorf("active = %d, want viewPassword", m.active)
	}
}

func TestRootOpenStore(t *testing.T) {
	m := New("1.0", t.TempDir(), true, testServices(newFakeChain(), &fakeAttester{}))
	t.Cleanup(m.Close)

	m = processMsg(t, m, passwordSubmitMsg{password: "pw"})
	if m.active != viewMenu {
		t.Fatalf("active = %d, want viewMenu", m.active)
	}
	if m.store == nil || m.configs == nil {
		t.Fatal("store should be open")
	}
}

func TestRootConnectReadsPassport(t *testing.T) {
	fc := newFakeChain()
	m := connect(t, setupModel(t, fc, &fakeAttester{}))

	if !m.orch.Connected() {
		t.Fatal("orchestrator should be connected")
	}
	if m.status.HasRecord {
		t.Error("fresh wallet should have no passport")
	}
	if !strings.Contains(m.View(), "no passport") {
		t.Errorf("menu should show no passport:\n%s", m.View())
	}
}

func TestRootKeystoreLocked(t *testing.T) {
	m := setupModel(t, newFakeChain(), &fakeAttester{})
	m.walletCfg = settings.Wallet{KeystorePath: "/tmp/key.json"}

	if cmd := m.connectWallet(""); cmd != nil {
		t.Error("locked keystore should not connect")
	}
	if !strings.Contains(m.walletErr, "locked") {
		t.Errorf("walletErr = %q", m.walletErr)
	}
}

func TestPassportFormValidation(t *testing.T) {
	m := newPassportModel(passport.Draft{}, "0xabc")
	m.inputs[draftName].SetValue("Ada Lovelace")
	m.inputs[draftDOB].SetValue("1815-12-10")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !strings.Contains(m.flash, "place of birth") {
		t.Errorf("flash = %q", m.flash)
	}
	if cmd == nil {
		t.Fatal("expected flash clear command")
	}

	m.inputs[draftPlace].SetValue("London")
	m.inputs[draftDOB].SetValue("10/12/1815")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !strings.Contains(m.flash, "YYYY-MM-DD") {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestPassportFormSubmit(t *testing.T) {
	m := newPassportModel(passport.Draft{}, "0xabc")
	m.inputs[draftName].SetValue(" Ada Lovelace ")
	m.inputs[draftPlace].SetValue("London")
	m.inputs[draftDOB].SetValue("1815-12-10")
	m.focus = int(draftDOB)

	_, cmd := m.Update(enterKey())
	msg, ok := cmd().(submitDraftMsg)
	if !ok {
		t.Fatalf("got %#v, want submitDraftMsg", cmd())
	}
	if msg.draft.FullName != "Ada Lovelace" || passport.FormatDate(msg.draft.DateOfBirth) != "1815-12-10" {
		t.Errorf("draft = %+v", msg.draft)
	}
}

func TestSubmitDraftNeedsWallet(t *testing.T) {
	m := configureStorage(setupModel(t, newFakeChain(), &fakeAttester{}))
	m = processMsg(t, m, navigateMsg{view: viewPassport})

	m = processMsg(t, m, submitDraftMsg{draft: passport.Draft{FullName: "A", PlaceOfBirth: "B", DateOfBirth: 1}})
	if m.active != viewPassport {
		t.Fatalf("active = %d, want viewPassport", m.active)
	}
	if !strings.Contains(m.passport.flash, "no wallet") {
		t.Errorf("flash = %q", m.passport.flash)
	}
}

func TestSubmitDraftNeedsStorage(t *testing.T) {
	m := connect(t, setupModel(t, newFakeChain(), &fakeAttester{}))
	m = processMsg(t, m, navigateMsg{view: viewPassport})

	m = processMsg(t, m, submitDraftMsg{draft: passport.Draft{FullName: "A", PlaceOfBirth: "B", DateOfBirth: 1}})
	if !strings.Contains(m.passport.flash, "storage") {
		t.Errorf("flash = %q", m.passport.flash)
	}
}

func TestMintFlow(t *testing.T) {
	fc := newFakeChain()
	m := configureStorage(connect(t, setupModel(t, fc, &fakeAttester{})))
	m = processMsg(t, m, navigateMsg{view: viewPassport})

	dob, err := passport.ParseDate("1815-12-10")
	if err != nil {
		t.Fatal(err)
	}
	d := passport.Draft{FullName: "Ada Lovelace", PlaceOfBirth: "London", DateOfBirth: dob}
	m = processMsg(t, m, submitDraftMsg{draft: d})
	if m.active != viewMint {
		t.Fatalf("active = %d, want viewMint (flash %q)", m.active, m.passport.flash)
	}
	view := m.View()
	for _, want := range []string{"Ada Lovelace", "0.08 ETH", "(y/n)"} {
		if !strings.Contains(view, want) {
			t.Errorf("confirm view missing %q", want)
		}
	}

	result, cmd := m.Update(keyMsg('y'))
	m = result.(Model)
	if _, ok := cmd().(mintStartMsg); !ok {
		t.Fatal("y should start the attempt")
	}
	if !m.mint.running() {
		t.Fatal("mint should be running")
	}

	st, err := m.orch.Submit(context.Background())
	m = processMsg(t, m, mintResultMsg{status: st, err: err})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(m.View(), "passport issued") {
		t.Errorf("done view:\n%s", m.View())
	}

	result, cmd = m.Update(keyMsg('x'))
	m = processMsg(t, result.(Model), cmd())
	if m.active != viewPassport {
		t.Fatalf("active = %d, want viewPassport", m.active)
	}
	if !m.passport.hasRecord() {
		t.Fatal("passport view should show the record")
	}
	if !strings.Contains(m.View(), "PASSPORT") || !strings.Contains(m.View(), "1815-12-10") {
		t.Errorf("card view:\n%s", m.View())
	}
}

func TestSubmitDraftUnknownState(t *testing.T) {
	fc := newFakeChain()
	fc.readErr = passport.ErrReadUnavailable
	m := configureStorage(connect(t, setupModel(t, fc, &fakeAttester{})))
	m = processMsg(t, m, navigateMsg{view: viewPassport})

	fc.mu.Lock()
	fc.readErr = nil
	fc.mu.Unlock()

	m = processMsg(t, m, submitDraftMsg{draft: passport.Draft{FullName: "A", PlaceOfBirth: "B", DateOfBirth: 1}})
	if m.active != viewPassport {
		t.Fatalf("active = %d, want viewPassport", m.active)
	}
	if !strings.Contains(m.passport.flash, "unknown") {
		t.Errorf("flash = %q", m.passport.flash)
	}
}

func TestMintCancelDuringUpload(t *testing.T) {
	m := configureStorage(connect(t, setupModel(t, newFakeChain(), &fakeAttester{})))
	started := make(chan struct{})
	m.uploader.build = func(context.Context, settings.Storage) (settings.Uploader, error) {
		return blockingUploader{started: started}, nil
	}
	m = processMsg(t, m, navigateMsg{view: viewPassport})

	dob, err := passport.ParseDate("1815-12-10")
	if err != nil {
		t.Fatal(err)
	}
	m = processMsg(t, m, submitDraftMsg{draft: passport.Draft{FullName: "Ada Lovelace", PlaceOfBirth: "London", DateOfBirth: dob}})
	m = processMsg(t, m, keyMsg('y'))

	result, cmd := m.Update(mintStartMsg{})
	m = result.(Model)
	first := cmd()
	batch, ok := first.(tea.BatchMsg)
	if !ok {
		t.Fatalf("expected a batch, got %T", first)
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- batch[0]() }()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("upload never started")
	}

	m = processMsg(t, m, statusTickMsg{})
	if !m.mint.cancellable() {
		t.Fatalf("upload should be cancellable, phase %s", m.mint.status.Phase)
	}
	m = processMsg(t, m, escKey())

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(time.Second):
		t.Fatal("attempt not cancelled")
	}
	m = processMsg(t, m, msg)

	if !strings.Contains(m.View(), "cancelled: nothing was sent") {
		t.Errorf("done view:\n%s", m.View())
	}
	if st := m.orch.Status(); st.Phase != mint.Idle || !st.Known {
		t.Errorf("status after cancel: %+v", st)
	}
	if !m.orch.CanSubmit() {
		t.Error("a cancelled upload should allow another attempt")
	}
}

func TestMintEscIgnoredOnceSubmitting(t *testing.T) {
	called := false
	m := newMintModel(passport.Draft{FullName: "A"}, nil)
	m.phase = mintRunning
	m.cancel = func() { called = true }
	m.status = mint.Status{Phase: mint.Submitting}

	m, _ = m.Update(escKey())
	if called || m.cancelling {
		t.Error("esc must not cancel once the transaction is being submitted")
	}
}

func TestMintConfirmCancel(t *testing.T) {
	m := newMintModel(passport.Draft{FullName: "A"}, []string{"step"})
	_, cmd := m.Update(keyMsg('n'))
	nav, ok := cmd().(navigateMsg)
	if !ok || nav.view != viewPassport {
		t.Errorf("got %#v, want navigate to passport", cmd())
	}
}

func TestMintFailureView(t *testing.T) {
	m := newMintModel(passport.Draft{FullName: "A"}, nil)
	m.phase = mintRunning
	m, _ = m.Update(mintResultMsg{err: passport.ErrSettlementTimeout})

	if !strings.Contains(m.View(), "refresh before retrying") {
		t.Errorf("chain failures should warn about diverged state:\n%s", m.View())
	}

	m = newMintModel(passport.Draft{FullName: "A"}, nil)
	m.phase = mintRunning
	m, _ = m.Update(mintResultMsg{err: passport.ErrUserRejected})
	if strings.Contains(m.View(), "refresh before retrying") {
		t.Error("rejections are safe to retry")
	}
}

func TestApprovalRouting(t *testing.T) {
	m := connect(t, setupModel(t, newFakeChain(), &fakeAttester{}))
	m.mint = newMintModel(passport.Draft{FullName: "A"}, nil)
	m.mint.phase = mintRunning
	m.active = viewMint

	answer := make(chan bool, 1)
	go func() {
		ok, _ := m.prompt.Approve(context.Background(), testRequest())
		answer <- ok
	}()
	pending := <-m.prompt.Requests()

	m = processMsg(t, m, approvalMsg{pending: pending})
	if !strings.Contains(m.View(), "wallet signature requested") {
		t.Fatalf("approval should be shown:\n%s", m.View())
	}

	m = processMsg(t, m, keyMsg('y'))
	select {
	case ok := <-answer:
		if !ok {
			t.Error("y should approve")
		}
	case <-time.After(time.Second):
		t.Fatal("request not answered")
	}
	if m.mint.approval.pending != nil {
		t.Error("approval should be cleared")
	}
}

func TestApprovalRejectedWhenIdle(t *testing.T) {
	m := setupModel(t, newFakeChain(), &fakeAttester{})

	answer := make(chan bool, 1)
	go func() {
		ok, _ := m.prompt.Approve(context.Background(), testRequest())
		answer <- ok
	}()
	pending := <-m.prompt.Requests()

	processMsg(t, m, approvalMsg{pending: pending})
	select {
	case ok := <-answer:
		if ok {
			t.Error("request with no running view should be refused")
		}
	case <-time.After(time.Second):
		t.Fatal("request not answered")
	}
}

func TestAttestFlow(t *testing.T) {
	fa := &fakeAttester{}
	m := connect(t, setupModel(t, newFakeChain(), fa))
	m = processMsg(t, m, navigateMsg{view: viewAttest})

	if got := m.attest.inputs[attestRecipient].Value(); got != m.address() {
		t.Errorf("recipient should default to the wallet: %q", got)
	}

	m.attest.now = func() time.Time { return time.UnixMilli(1700000000123) }
	m.attest.inputs[attestCountry].SetValue("Japan")

	result, cmd := m.Update(enterKey())
	m = result.(Model)
	start, ok := cmd().(attestStartMsg)
	if !ok {
		t.Fatalf("got %#v, want attestStartMsg", cmd())
	}

	result, cmd = m.Update(start)
	m = processMsg(t, result.(Model), firstMsg(t, cmd))

	if fa.payload.Country != "Japan" || fa.payload.ArrivalTime != 1700000000123 {
		t.Errorf("payload = %+v", fa.payload)
	}
	view := m.View()
	if !strings.Contains(view, "arrival recorded") || !strings.Contains(view, "/tx/") {
		t.Errorf("done view:\n%s", view)
	}
}

func TestAttestInvalidRecipient(t *testing.T) {
	m := newAttestModel("")
	m.inputs[attestRecipient].SetValue("not-an-address")

	m, _ = m.Update(enterKey())
	if m.phase != attestForm {
		t.Error("should stay on the form")
	}
	if !strings.Contains(m.flash, "0x address") {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestAttestFailure(t *testing.T) {
	fa := &fakeAttester{err: passport.ErrUserRejected}
	m := connect(t, setupModel(t, newFakeChain(), fa))
	m = processMsg(t, m, navigateMsg{view: viewAttest})

	result, cmd := m.Update(enterKey())
	start := cmd().(attestStartMsg)
	result, cmd = result.(Model).Update(start)
	m = processMsg(t, result.(Model), firstMsg(t, cmd))

	if !strings.Contains(m.View(), "attestation failed") {
		t.Errorf("view:\n%s", m.View())
	}
}

// settings tests

func TestSettingsStatus(t *testing.T) {
	m := newSettingsModel(settings.Storage{}, settings.Wallet{KeystorePath: "k.json"}, false)
	view := m.View()
	if !strings.Contains(view, "not configured") || !strings.Contains(view, "locked") {
		t.Errorf("view:\n%s", view)
	}

	m = newSettingsModel(settings.Storage{Backend: settings.BackendS3, Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}, settings.Wallet{PrivateKey: "00"}, true)
	view = m.View()
	if !strings.Contains(view, "s3") || !strings.Contains(view, "connected") {
		t.Errorf("view:\n%s", view)
	}
}

func TestStorageFormToggleAndSave(t *testing.T) {
	m := newStorageModel(settings.Storage{})
	if m.backend != settings.BackendNFTStorage {
		t.Fatalf("default backend = %s", m.backend)
	}

	m, _ = m.Update(keyMsg(' '))
	if m.backend != settings.BackendS3 {
		t.Fatalf("space should toggle backend, got %s", m.backend)
	}

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !strings.Contains(m.flash, "bucket") {
		t.Errorf("flash = %q", m.flash)
	}

	m.inputs[stBucket].SetValue("passports")
	m.inputs[stAccessKey].SetValue("AKIA")
	m.inputs[stSecretKey].SetValue("secret")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	msg, ok := cmd().(saveStorageMsg)
	if !ok {
		t.Fatalf("got %#v, want saveStorageMsg", cmd())
	}
	if msg.settings.Bucket != "passports" || msg.settings.Token != "" {
		t.Errorf("settings = %+v", msg.settings)
	}
}

func TestStorageFormFocusFollowsBackend(t *testing.T) {
	m := newStorageModel(settings.Storage{})
	for range backendFields[settings.BackendNFTStorage] {
		m = m.moveFocus(1)
	}
	if f, ok := m.field(); !ok || f != stBaseURL {
		t.Errorf("focus = %v, want api url", f)
	}
	m = m.moveFocus(1)
	if _, ok := m.field(); ok {
		t.Error("focus should wrap to the backend selector")
	}
}

func TestRootSaveStorage(t *testing.T) {
	m := setupModel(t, newFakeChain(), &fakeAttester{})
	m = processMsg(t, m, navigateMsg{view: viewSettingsStorage})

	want := settings.Storage{Backend: settings.BackendNFTStorage, Token: "tok"}
	m = processMsg(t, m, saveStorageMsg{settings: want})

	if got := settings.Load[settings.Storage](m.configs, settings.KeyStorage); got != want {
		t.Errorf("stored %+v, want %+v", got, want)
	}
	if m.settingsStorage.flash != "saved" {
		t.Errorf("flash = %q", m.settingsStorage.flash)
	}
	if _, err := m.uploader.Upload(context.Background(), artifact.Artifact{}); err != nil {
		t.Errorf("upload after save: %v", err)
	}
}

func TestRootSaveWallet(t *testing.T) {
	m := setupModel(t, newFakeChain(), &fakeAttester{})
	m = processMsg(t, m, navigateMsg{view: viewSettingsWallet})

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	m = processMsg(t, m, saveWalletMsg{settings: settings.Wallet{PrivateKey: hex.EncodeToString(crypto.FromECDSA(key))}})
	t.Cleanup(func() {
		if m.wallet != nil {
			m.wallet.Close()
		}
	})

	if m.wallet == nil || m.wallet.Address() != addr {
		t.Fatalf("wallet not connected: %s", m.walletErr)
	}
	if !strings.Contains(m.settingsWallet.flash, addr.Hex()) {
		t.Errorf("flash = %q", m.settingsWallet.flash)
	}
	if got := settings.Load[settings.Wallet](m.configs, settings.KeyWallet); !got.Configured() {
		t.Error("wallet settings not stored")
	}
}

func TestRootSaveWalletInvalidKey(t *testing.T) {
	m := setupModel(t, newFakeChain(), &fakeAttester{})
	m = processMsg(t, m, navigateMsg{view: viewSettingsWallet})

	m = processMsg(t, m, saveWalletMsg{settings: settings.Wallet{PrivateKey: "zz"}})
	if m.wallet != nil {
		t.Error("invalid key should not connect")
	}
	if !strings.Contains(m.settingsWallet.flash, "wallet unavailable") {
		t.Errorf("flash = %q", m.settingsWallet.flash)
	}
}

func TestWalletFormRejectsBoth(t *testing.T) {
	m := newWalletModel(settings.Wallet{})
	m.inputs[wlPrivateKey].SetValue("00")
	m.inputs[wlKeystore].SetValue("key.json")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	if !strings.Contains(m.flash, "not both") {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestStorageUploaderUnconfigured(t *testing.T) {
	u := &storageUploader{}
	_, err := u.Upload(context.Background(), artifact.Artifact{})
	if !errors.Is(err, passport.ErrStorageAuth) {
		t.Errorf("got %v, want ErrStorageAuth", err)
	}
}

func TestStorageUploaderBuildFailure(t *testing.T) {
	u := &storageUploader{
		cfg: settings.Storage{Token: "tok"},
		build: func(context.Context, settings.Storage) (settings.Uploader, error) {
			return nil, errors.New("no route to host")
		},
	}
	_, err := u.Upload(context.Background(), artifact.Artifact{})
	if !errors.Is(err, passport.ErrStorageUnavailable) {
		t.Fatalf("got %v, want ErrStorageUnavailable", err)
	}
	if !passport.SafeToRetry(err) {
		t.Error("storage failures are safe to retry")
	}
}

func TestRefreshFromCard(t *testing.T) {
	m := newPassportModel(passport.Draft{}, "0xabc")
	m = m.withStatus(cardStatus(), "")

	_, cmd := m.Update(keyMsg('r'))
	if _, ok := cmd().(refreshMsg); !ok {
		t.Error("r should request a refresh")
	}

	_, cmd = m.Update(escKey())
	nav, ok := cmd().(navigateMsg)
	if !ok || nav.view != viewMenu {
		t.Error("esc should go back to the menu")
	}
}
