// Package chain talks to the passport contract over JSON-RPC: reading the
// connected identity's record and submitting paid transactions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/zarlcorp/zpass/internal/passport"
)

// Backend is the subset of *ethclient.Client the client needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer is a connected identity able to authorize transactions.
// SignTx returns an error wrapping passport.ErrUserRejected when the user
// declines; purpose is shown to them when asking.
type Signer interface {
	Address() common.Address
	SignTx(ctx context.Context, purpose string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// TxHandle identifies a submitted transaction. It does not imply success.
type TxHandle struct {
	Hash common.Hash
}

func (h TxHandle) String() string { return h.Hash.Hex() }

// Call describes a state-mutating contract call.
type Call struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	Purpose  string
	Contract *abi.ABI // used to decode custom revert errors, may be nil
}

// Config holds the passport contract location and its fixed price.
type Config struct {
	Passport  common.Address
	MintPrice *big.Int // nil reads MINT_PRICE() from the contract
	ChainID   *big.Int // nil asks the node
}

// Client reads and writes the passport contract.
type Client struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI

	mu      sync.Mutex
	price   *big.Int
	chainID *big.Int

	closer func()
}

// NewClient creates a client for the passport contract at cfg.Passport.
func NewClient(backend Backend, cfg Config) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(passportABI))
	if err != nil {
		return nil, fmt.Errorf("parse passport abi: %w", err)
	}
	c := &Client{
		backend:  backend,
		contract: cfg.Passport,
		price:    cfg.MintPrice,
		abi:      parsed,
	}
	if cfg.ChainID != nil {
		c.chainID = new(big.Int).Set(cfg.ChainID)
	}
	return c, nil
}

// Dial connects to the JSON-RPC node at rawurl and returns a client for the
// passport contract. The connection is released by Close.
func Dial(ctx context.Context, rawurl string, cfg Config) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rawurl)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %v", rawurl, passport.ErrChainUnavailable, err)
	}
	c, err := NewClient(eth, cfg)
	if err != nil {
		eth.Close()
		return nil, err
	}
	c.closer = eth.Close
	return c, nil
}

// Close releases the node connection opened by Dial.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Passport reads the record held by identity. A nil record with a nil
// error means the identity has not minted.
func (c *Client) Passport(ctx context.Context, identity common.Address) (*passport.Record, error) {
	input, err := c.abi.Pack("getPassport")
	if err != nil {
		return nil, fmt.Errorf("pack getPassport: %w", err)
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		From: identity,
		To:   &c.contract,
		Data: input,
	}, nil)
	if err != nil {
		if data, ok := revertData(err); ok && revertName(&c.abi, data) == "PassportNotMinted" {
			return nil, nil
		}
		return nil, fmt.Errorf("get passport: %w: %v", passport.ErrReadUnavailable, err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	vals, err := c.abi.Unpack("getPassport", out)
	if err != nil || len(vals) != 4 {
		return nil, fmt.Errorf("decode passport: %w: %v", passport.ErrReadUnavailable, err)
	}

	name, _ := vals[0].(string)
	place, _ := vals[1].(string)
	dob, _ := vals[2].(*big.Int)
	issued, _ := vals[3].(*big.Int)
	if name == "" {
		return nil, nil
	}

	return &passport.Record{
		Name:         name,
		PlaceOfBirth: place,
		DateOfBirth:  wordDate(dob),
		IssueDate:    wordDate(issued),
	}, nil
}

// MintPrice returns the configured price, reading MINT_PRICE() when none
// was configured.
func (c *Client) MintPrice(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	known := c.price
	c.mu.Unlock()
	if known != nil {
		return new(big.Int).Set(known), nil
	}

	input, err := c.abi.Pack("MINT_PRICE")
	if err != nil {
		return nil, fmt.Errorf("pack MINT_PRICE: %w", err)
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("mint price: %w: %v", passport.ErrReadUnavailable, err)
	}
	vals, err := c.abi.Unpack("MINT_PRICE", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decode mint price: %w: %v", passport.ErrReadUnavailable, err)
	}
	price, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode mint price: %w", passport.ErrReadUnavailable)
	}

	c.mu.Lock()
	c.price = price
	c.mu.Unlock()
	return new(big.Int).Set(price), nil
}

// CreatePassport submits the paid createPassport transaction. The draft and
// value are checked before the signer is asked anything.
func (c *Client) CreatePassport(ctx context.Context, signer Signer, d passport.Draft, loc passport.Locator, value *big.Int) (TxHandle, error) {
	if err := d.Validate(); err != nil {
		return TxHandle{}, err
	}
	if signer == nil {
		return TxHandle{}, fmt.Errorf("create passport: %w", passport.ErrWalletUnavailable)
	}

	price, err := c.MintPrice(ctx)
	if err != nil {
		return TxHandle{}, err
	}
	if value == nil || value.Cmp(price) != 0 {
		return TxHandle{}, fmt.Errorf("create passport: %w: got %v, want %v", passport.ErrPriceMismatch, value, price)
	}

	input, err := c.abi.Pack("createPassport",
		strings.TrimSpace(d.FullName),
		strings.TrimSpace(d.PlaceOfBirth),
		dateWord(d.DateOfBirth),
		loc.String(),
	)
	if err != nil {
		return TxHandle{}, fmt.Errorf("pack createPassport: %w", err)
	}

	return c.Transact(ctx, signer, Call{
		To:       c.contract,
		Value:    value,
		Data:     input,
		Purpose:  fmt.Sprintf("mint passport for %s", strings.TrimSpace(d.FullName)),
		Contract: &c.abi,
	})
}

// Transact estimates, prices, signs and sends an EIP-1559 transaction.
func (c *Client) Transact(ctx context.Context, signer Signer, call Call) (TxHandle, error) {
	if signer == nil {
		return TxHandle{}, fmt.Errorf("transact: %w", passport.ErrWalletUnavailable)
	}
	from := signer.Address()
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}

	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &call.To,
		Value: value,
		Data:  call.Data,
	})
	if err != nil {
		return TxHandle{}, fmt.Errorf("estimate gas: %w", classifyCall(call.Contract, err))
	}
	gas += gas / 5

	tip, err := c.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return TxHandle{}, fmt.Errorf("suggest tip: %w", classifyNode(err))
	}
	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return TxHandle{}, fmt.Errorf("latest header: %w", classifyNode(err))
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	balance, err := c.backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return TxHandle{}, fmt.Errorf("balance: %w", classifyNode(err))
	}
	cost := new(big.Int).Mul(feeCap, new(big.Int).SetUint64(gas))
	cost.Add(cost, value)
	if balance.Cmp(cost) < 0 {
		return TxHandle{}, fmt.Errorf("transact: %w: balance %v, need %v", passport.ErrInsufficientFunds, balance, cost)
	}

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return TxHandle{}, fmt.Errorf("nonce: %w", classifyNode(err))
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return TxHandle{}, err
	}

	to := call.To
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      call.Data,
	})

	signed, err := signer.SignTx(ctx, call.Purpose, tx, chainID)
	if err != nil {
		if passport.KindOf(err) == passport.KindNone {
			err = fmt.Errorf("%w: %v", passport.ErrWalletUnavailable, err)
		}
		return TxHandle{}, fmt.Errorf("sign: %w", err)
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "already known") {
			return TxHandle{}, fmt.Errorf("send: %w", classifyNode(err))
		}
	}

	return TxHandle{Hash: signed.Hash()}, nil
}

// Receipt returns the mined receipt for hash. It returns ErrPending while
// the transaction is unmined and wraps passport.ErrTransactionReverted for
// failed receipts.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	r, err := c.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrPending
	}
	if err != nil {
		return nil, fmt.Errorf("receipt: %w", classifyNode(err))
	}
	if r.Status != types.ReceiptStatusSuccessful {
		return r, fmt.Errorf("receipt %s: %w", hash.Hex(), passport.ErrTransactionReverted)
	}
	return r, nil
}

// ChainID returns the configured chain id, asking the node once if unset.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", classifyNode(err))
	}
	c.chainID = new(big.Int).Set(id)
	return id, nil
}
