package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/passport"
)

// run is a single issuance attempt.
type run struct {
	o        *Orchestrator
	gen      uint64
	signer   chain.Signer
	identity common.Address
	draft    passport.Draft
	st       Status
	log      *slog.Logger
}

func (r *run) execute(ctx context.Context) (Status, error) {
	o := r.o
	r.log.Info("mint started")

	// building
	if err := ctx.Err(); err != nil {
		return r.abandon(err)
	}
	art := o.deps.Build(r.draft.FullName, r.draft.PlaceOfBirth)

	// uploading
	r.phase(Uploading)
	loc, err := o.deps.Uploader.Upload(ctx, art)
	if err != nil {
		if ctx.Err() != nil {
			return r.abandon(ctx.Err())
		}
		return r.fail(Uploading, fmt.Errorf("upload: %w", err))
	}
	r.log.Info("artifact uploaded", "locator", loc)

	// submitting
	if err := ctx.Err(); err != nil {
		return r.abandon(err)
	}
	r.update(func(s *Status) {
		s.Phase = Submitting
		s.Locator = loc
	})

	h, err := o.deps.Minter.CreatePassport(ctx, r.signer, r.draft, loc, o.deps.Price)
	if err != nil {
		return r.reconcileAfter(ctx, Submitting, fmt.Errorf("mint: %w", err))
	}
	r.log.Info("mint submitted", "locator", loc, "tx", h.String())

	// awaiting settlement
	r.update(func(s *Status) {
		s.Phase = AwaitingSettlement
		s.Tx = h
	})

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()

	rec, err := r.settle(settleCtx, h)
	if err != nil {
		return r.reconcileAfter(ctx, AwaitingSettlement, err)
	}

	r.log.Info("mint settled", "tx", h.String())
	st := r.update(func(s *Status) {
		s.Phase = Reconciled
		s.HasRecord = true
		s.Record = rec
		s.Err = nil
		s.Kind = passport.KindNone
		s.Known = true
	})
	return st, nil
}

// update applies fn to the attempt's status and publishes it. The attempt
// keeps its own status even after the identity changes.
func (r *run) update(fn func(*Status)) Status {
	fn(&r.st)
	r.o.publish(r.gen, r.st)
	return r.st
}

func (r *run) phase(p Phase) {
	r.log.Debug("phase", "phase", p.String())
	r.update(func(s *Status) { s.Phase = p })
}

// settle waits for the receipt and then for the record to become readable.
func (r *run) settle(ctx context.Context, h chain.TxHandle) (*passport.Record, error) {
	t := time.NewTicker(r.o.poll)
	defer t.Stop()

	var last error
	mined := false
	for {
		if !mined {
			_, err := r.o.deps.Minter.Receipt(ctx, h.Hash)
			switch {
			case err == nil:
				mined = true
			case errors.Is(err, passport.ErrTransactionReverted):
				return nil, fmt.Errorf("settle: %w", err)
			case !errors.Is(err, chain.ErrPending):
				last = err
				r.log.Warn("receipt poll failed", "tx", h.String(), "err", err)
			}
		}

		if mined {
			rec, err := r.o.deps.Reader.Passport(ctx, r.identity)
			switch {
			case err != nil:
				last = err
				r.log.Warn("settlement read failed", "err", err)
			case rec != nil:
				return rec, nil
			}
		}

		select {
		case <-ctx.Done():
			if last != nil {
				return nil, fmt.Errorf("settle: %w (last error: %v)", passport.ErrSettlementTimeout, last)
			}
			return nil, fmt.Errorf("settle: %w", passport.ErrSettlementTimeout)
		case <-t.C:
		}
	}
}

// abandon ends an attempt cancelled before any transaction existed. The
// draft is untouched and nothing was sent on-chain.
func (r *run) abandon(cause error) (Status, error) {
	r.log.Info("mint abandoned", "err", cause)
	st := r.update(func(s *Status) {
		*s = Status{Phase: Idle, Err: cause, Attempt: s.Attempt, Locator: s.Locator, Known: s.Known}
	})
	return st, cause
}

// fail records a failure that happened before the transaction was built.
func (r *run) fail(at Phase, err error) (Status, error) {
	r.log.Error("mint failed", "phase", at.String(), "kind", passport.KindOf(err).String(), "err", err)
	st := r.update(func(s *Status) {
		s.Phase = Failed
		s.Err = err
		s.Kind = passport.KindOf(err)
	})
	return st, err
}

// reconcileAfter re-reads the record once after a failure at or past
// submission. A transaction that looked failed may still have minted.
func (r *run) reconcileAfter(ctx context.Context, at Phase, cause error) (Status, error) {
	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.timeout)
	defer cancel()

	rec, err := r.o.deps.Reader.Passport(readCtx, r.identity)
	if err == nil && rec != nil {
		r.log.Warn("mint reported an error but the passport exists", "phase", at.String(), "err", cause)
		st := r.update(func(s *Status) {
			s.Phase = Reconciled
			s.HasRecord = true
			s.Record = rec
			s.Err = cause
			s.Kind = passport.KindOf(cause)
			s.Known = true
		})
		return st, cause
	}
	// without a successful read the mint may or may not have landed
	r.st.Known = err == nil
	if err != nil {
		r.log.Warn("reconciliation read failed", "err", err)
	}
	return r.fail(at, cause)
}
