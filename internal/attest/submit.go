package attest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zarlcorp/zpass/internal/chain"
	"github.com/zarlcorp/zpass/internal/passport"
)

const registryABI = `[
  {"type":"function","name":"attest","stateMutability":"payable",
   "inputs":[{"name":"request","type":"tuple","components":[
     {"name":"schema","type":"bytes32"},
     {"name":"data","type":"tuple","components":[
       {"name":"recipient","type":"address"},
       {"name":"expirationTime","type":"uint64"},
       {"name":"revocable","type":"bool"},
       {"name":"refUID","type":"bytes32"},
       {"name":"data","type":"bytes"},
       {"name":"value","type":"uint256"}]}]}],
   "outputs":[{"name":"","type":"bytes32"}]},
  {"type":"event","name":"Attested","anonymous":false,"inputs":[
     {"name":"recipient","type":"address","indexed":true},
     {"name":"attester","type":"address","indexed":true},
     {"name":"uid","type":"bytes32","indexed":false},
     {"name":"schemaUID","type":"bytes32","indexed":true}]},
  {"type":"error","name":"AccessDenied","inputs":[]},
  {"type":"error","name":"InsufficientValue","inputs":[]},
  {"type":"error","name":"InvalidAttestation","inputs":[]},
  {"type":"error","name":"InvalidExpirationTime","inputs":[]},
  {"type":"error","name":"InvalidLength","inputs":[]},
  {"type":"error","name":"InvalidSchema","inputs":[]},
  {"type":"error","name":"Irrevocable","inputs":[]},
  {"type":"error","name":"NotPayable","inputs":[]}
]`

// attestationRequest mirrors the registry's AttestationRequest tuple.
type attestationRequest struct {
	Schema [32]byte
	Data   attestationData
}

type attestationData struct {
	Recipient      common.Address
	ExpirationTime uint64
	Revocable      bool
	RefUID         [32]byte
	Data           []byte
	Value          *big.Int
}

// Transactor sends registry calls and observes their receipts.
// *chain.Client satisfies it.
type Transactor interface {
	Transact(ctx context.Context, signer chain.Signer, call chain.Call) (chain.TxHandle, error)
	Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Handle is a submitted attestation transaction.
type Handle struct {
	Tx        chain.TxHandle
	Recipient common.Address
	Payload   Payload
}

// Submitter issues attestations to the registry at a fixed address.
type Submitter struct {
	tx       Transactor
	registry common.Address
	abi      abi.ABI
	poll     time.Duration
}

// NewSubmitter creates a Submitter. poll is the receipt polling interval
// used by Await.
func NewSubmitter(tx Transactor, registry common.Address, poll time.Duration) (*Submitter, error) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Submitter{tx: tx, registry: registry, abi: parsed, poll: poll}, nil
}

// Submit attests p about recipient under schemaUID. The attestation never
// expires and cannot be revoked.
func (s *Submitter) Submit(ctx context.Context, signer chain.Signer, recipient common.Address, schemaUID common.Hash, p Payload) (Handle, error) {
	if signer == nil {
		return Handle{}, fmt.Errorf("attest: %w", passport.ErrWalletUnavailable)
	}

	data, err := Encode(p.Country, p.ArrivalTime)
	if err != nil {
		return Handle{}, err
	}

	input, err := s.abi.Pack("attest", attestationRequest{
		Schema: schemaUID,
		Data: attestationData{
			Recipient:      recipient,
			ExpirationTime: 0,
			Revocable:      false,
			Data:           data,
			Value:          new(big.Int),
		},
	})
	if err != nil {
		return Handle{}, fmt.Errorf("pack attest: %w", err)
	}

	h, err := s.tx.Transact(ctx, signer, chain.Call{
		To:       s.registry,
		Data:     input,
		Purpose:  fmt.Sprintf("attest arrival in %s for %s", p.Country, recipient.Hex()),
		Contract: &s.abi,
	})
	if err != nil {
		return Handle{}, fmt.Errorf("attest: %w", err)
	}

	return Handle{Tx: h, Recipient: recipient, Payload: p}, nil
}

// Await waits for h to be mined and returns the attestation UID from the
// registry's Attested event.
func (s *Submitter) Await(ctx context.Context, h Handle) (common.Hash, error) {
	t := time.NewTicker(s.poll)
	defer t.Stop()

	for {
		r, err := s.tx.Receipt(ctx, h.Tx.Hash)
		switch {
		case err == nil:
			return s.uid(r)
		case !errors.Is(err, chain.ErrPending):
			return common.Hash{}, fmt.Errorf("await attestation: %w", err)
		}

		select {
		case <-ctx.Done():
			return common.Hash{}, fmt.Errorf("await attestation: %w: %v", passport.ErrSettlementTimeout, ctx.Err())
		case <-t.C:
		}
	}
}

func (s *Submitter) uid(r *types.Receipt) (common.Hash, error) {
	event := s.abi.Events["Attested"]
	for _, l := range r.Logs {
		if l.Address != s.registry || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		vals, err := s.abi.Unpack("Attested", l.Data)
		if err != nil || len(vals) != 1 {
			return common.Hash{}, fmt.Errorf("decode Attested: %v", err)
		}
		uid, ok := vals[0].([32]byte)
		if !ok {
			return common.Hash{}, errors.New("decode Attested: uid is not bytes32")
		}
		return common.Hash(uid), nil
	}
	return common.Hash{}, errors.New("attestation receipt has no Attested event")
}
