// Package mint sequences passport issuance: render the card, upload it,
// submit the paid mint transaction and reconcile against the on-chain
// record. The record read from the chain is the only source of truth for
// whether the connected identity holds a passport.
package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/zarlcorp/zpass/internal/artifact"
	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/passport"
)

// Phase is a step of the issuance state machine.
type Phase int

const (
	Idle Phase = iota
	Building
	Uploading
	Submitting
	AwaitingSettlement
	Reconciled
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Building:
		return "building"
	case Uploading:
		return "uploading"
	case Submitting:
		return "submitting"
	case AwaitingSettlement:
		return "awaiting settlement"
	case Reconciled:
		return "reconciled"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// ErrInFlight is returned when a submission is already running.
var ErrInFlight = errors.New("submission already in flight")

// Uploader stores a rendered artifact and returns its locator.
type Uploader interface {
	Upload(ctx context.Context, a artifact.Artifact) (passport.Locator, error)
}

// Reader reads the authoritative passport record. A nil record means the
// identity has not minted.
type Reader interface {
	Passport(ctx context.Context, identity common.Address) (*passport.Record, error)
}

// Minter submits the mint transaction and reports its receipt.
type Minter interface {
	CreatePassport(ctx context.Context, signer chain.Signer, d passport.Draft, loc passport.Locator, value *big.Int) (chain.TxHandle, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Builder renders the passport card.
type Builder func(fullName, placeOfBirth string) artifact.Artifact

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Build    Builder // nil uses artifact.Build
	Uploader Uploader
	Reader   Reader
	Minter   Minter
	Price    *big.Int
}

// Status is a snapshot of the orchestrator.
type Status struct {
	Phase     Phase
	HasRecord bool
	Record    *passport.Record
	Err       error
	Kind      passport.Kind
	Attempt   string
	Locator   passport.Locator
	Tx        chain.TxHandle

	// Known is set once a read of the connected identity has succeeded
	// and nothing since has left its on-chain state in doubt.
	Known bool
}

// Resting reports whether a new submission may start from this status.
func (s Status) Resting() bool {
	switch s.Phase {
	case Idle, Failed:
		return true
	case Reconciled:
		return !s.HasRecord
	}
	return false
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithPollInterval sets how often settlement is checked.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.poll = d }
}

// WithSettlementTimeout bounds how long a submitted transaction is observed.
func WithSettlementTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithObserver registers fn to receive every status change. fn is called
// without the orchestrator lock held.
func WithObserver(fn func(Status)) Option {
	return func(o *Orchestrator) { o.observe = fn }
}

// Orchestrator runs one issuance attempt at a time for the connected
// identity.
type Orchestrator struct {
	deps    Deps
	log     *slog.Logger
	poll    time.Duration
	timeout time.Duration
	observe func(Status)

	mu       sync.Mutex
	identity chain.Signer
	gen      uint64 // bumped on every identity change
	draft    passport.Draft
	status   Status
	inFlight bool
}

// New creates an Orchestrator in Idle with no identity connected.
func New(deps Deps, opts ...Option) *Orchestrator {
	if deps.Build == nil {
		deps.Build = artifact.Build
	}
	o := &Orchestrator{
		deps:    deps,
		log:     slog.Default(),
		poll:    2 * time.Second,
		timeout: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Connect switches to identity and reads its passport state.
func (o *Orchestrator) Connect(ctx context.Context, identity chain.Signer) (Status, error) {
	o.mu.Lock()
	if o.inFlight {
		st := o.status
		o.mu.Unlock()
		return st, ErrInFlight
	}
	o.identity = identity
	o.gen++
	o.status = Status{Phase: Idle}
	st := o.status
	o.mu.Unlock()

	o.notify(st)
	if identity == nil {
		return st, nil
	}
	o.log.Info("identity connected", "identity", identity.Address().Hex())
	return o.Refresh(ctx)
}

// Disconnect drops the identity and returns to Idle. An attempt already
// past submission keeps running but no longer updates the status.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	o.identity = nil
	o.gen++
	o.status = Status{Phase: Idle}
	st := o.status
	o.mu.Unlock()

	o.notify(st)
	o.log.Info("identity disconnected")
}

// Connected reports whether an identity is connected.
func (o *Orchestrator) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.identity != nil
}

// Identity returns the connected identity's address, or the zero address.
func (o *Orchestrator) Identity() common.Address {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.identity == nil {
		return common.Address{}
	}
	return o.identity.Address()
}

// SetDraft replaces the draft. A running attempt keeps its own copy.
func (o *Orchestrator) SetDraft(d passport.Draft) {
	o.mu.Lock()
	o.draft = d
	o.mu.Unlock()
}

// Draft returns the current draft. It survives failed attempts.
func (o *Orchestrator) Draft() passport.Draft {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.draft
}

// Status returns the latest snapshot.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// CanSubmit reports whether Submit would start an attempt.
func (o *Orchestrator) CanSubmit() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.precheck() == nil
}

// precheck must be called with o.mu held.
func (o *Orchestrator) precheck() error {
	if o.inFlight {
		return ErrInFlight
	}
	if o.identity == nil {
		return fmt.Errorf("submit: %w", passport.ErrNotConnected)
	}
	if o.status.HasRecord {
		return fmt.Errorf("submit: %w", passport.ErrAlreadyHasPassport)
	}
	if !o.status.Known {
		return fmt.Errorf("submit: %w: refresh before submitting", passport.ErrReadUnavailable)
	}
	if !o.status.Resting() {
		return ErrInFlight
	}
	if err := o.draft.Validate(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Plan lists what Submit will do, for a confirmation dialog.
func (o *Orchestrator) Plan() []string {
	d := o.Draft()
	name := strings.TrimSpace(d.FullName)

	steps := []string{
		fmt.Sprintf("render passport card for %s", name),
		"upload card and metadata to storage",
	}
	if o.deps.Price != nil {
		steps = append(steps, fmt.Sprintf("mint passport paying %s plus gas", chain.FormatEther(o.deps.Price)))
	} else {
		steps = append(steps, "mint passport")
	}
	steps = append(steps, "wait for settlement and re-read the passport")
	return steps
}

// Submit runs one issuance attempt. It returns ErrInFlight without side
// effects while another attempt runs, and a validation error without
// contacting any service when the draft is incomplete, no identity is
// connected, or the identity already holds a passport.
//
// Cancelling ctx abandons the attempt only before the transaction exists.
// Once submitted, settlement is observed until it completes or the
// settlement timeout elapses.
func (o *Orchestrator) Submit(ctx context.Context) (Status, error) {
	o.mu.Lock()
	if err := o.precheck(); err != nil {
		st := o.status
		o.mu.Unlock()
		return st, err
	}

	signer := o.identity
	draft := o.draft
	gen := o.gen
	attempt := uuid.NewString()

	o.inFlight = true
	o.status = Status{Phase: Building, Attempt: attempt, Known: o.status.Known}
	st := o.status
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	o.notify(st)

	a := &run{
		o:        o,
		gen:      gen,
		signer:   signer,
		identity: signer.Address(),
		draft:    draft,
		st:       st,
		log: o.log.With(
			"attempt", attempt,
			"identity", signer.Address().Hex(),
		),
	}
	return a.execute(ctx)
}

// Refresh reads the identity's record and reconciles to it. On failure the
// status is left unchanged and an error wrapping passport.ErrReadUnavailable
// is returned.
func (o *Orchestrator) Refresh(ctx context.Context) (Status, error) {
	o.mu.Lock()
	if o.inFlight {
		st := o.status
		o.mu.Unlock()
		return st, ErrInFlight
	}
	if o.identity == nil {
		st := o.status
		o.mu.Unlock()
		return st, fmt.Errorf("refresh: %w", passport.ErrNotConnected)
	}
	identity := o.identity.Address()
	gen := o.gen
	o.mu.Unlock()

	rec, err := o.deps.Reader.Passport(ctx, identity)

	o.mu.Lock()
	if gen != o.gen || o.inFlight {
		st := o.status
		o.mu.Unlock()
		return st, nil
	}
	if err != nil {
		st := o.status
		o.mu.Unlock()
		o.log.Warn("refresh failed", "identity", identity.Hex(), "err", err)
		return st, readError(err)
	}
	o.status = Status{Phase: Reconciled, HasRecord: rec != nil, Record: rec, Known: true}
	st := o.status
	o.mu.Unlock()

	o.notify(st)
	o.log.Debug("reconciled", "identity", identity.Hex(), "has_record", rec != nil)
	return st, nil
}

// publish makes st the current status if the identity has not changed
// since the attempt started.
func (o *Orchestrator) publish(gen uint64, st Status) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.status = st
	o.mu.Unlock()

	o.notify(st)
}

func (o *Orchestrator) notify(st Status) {
	if o.observe != nil {
		o.observe(st)
	}
}

func readError(err error) error {
	if passport.KindOf(err) == passport.KindRead {
		return err
	}
	return fmt.Errorf("%w: %v", passport.ErrReadUnavailable, err)
}
