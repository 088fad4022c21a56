// Package wallet is the connected signing identity. A wallet holds one
// secp256k1 key and asks its Approver before every signature.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/zarlcorp/core/pkg/zcrypto"

	"github.com/zarlcorp/zpass/internal/passport"
)

// Wallet signs transactions for a single address.
type Wallet struct {
	address  common.Address
	approver Approver

	mu     sync.Mutex
	key    *ecdsa.PrivateKey
	raw    []byte
	closed bool
}

// FromHex loads a wallet from a hex private key, with or without 0x.
func FromHex(hexKey string, a Approver) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, fmt.Errorf("load key: %w: no private key configured", passport.ErrWalletUnavailable)
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("load key: %w: %v", passport.ErrWalletUnavailable, err)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		zcrypto.Erase(raw)
		return nil, fmt.Errorf("load key: %w: %v", passport.ErrWalletUnavailable, err)
	}
	return newWallet(key, raw, a), nil
}

// FromKeystore decrypts a keystore v3 JSON document.
func FromKeystore(keyJSON []byte, passphrase string, a Approver) (*Wallet, error) {
	k, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w: %v", passport.ErrWalletUnavailable, err)
	}
	return newWallet(k.PrivateKey, crypto.FromECDSA(k.PrivateKey), a), nil
}

func newWallet(key *ecdsa.PrivateKey, raw []byte, a Approver) *Wallet {
	if a == nil {
		a = Deny
	}
	return &Wallet{
		address:  crypto.PubkeyToAddress(key.PublicKey),
		approver: a,
		key:      key,
		raw:      raw,
	}
}

// Address returns the wallet's account.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx asks the approver, then signs tx for chainID.
func (w *Wallet) SignTx(ctx context.Context, purpose string, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("sign: %w: wallet closed", passport.ErrWalletUnavailable)
	}

	req := Request{
		Purpose: purpose,
		From:    w.address,
		To:      tx.To(),
		Value:   tx.Value(),
		Gas:     tx.Gas(),
		FeeCap:  tx.GasFeeCap(),
		ChainID: chainID,
	}

	ok, err := w.approver.Approve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sign: %w: %v", passport.ErrUserRejected, err)
	}
	if !ok {
		return nil, fmt.Errorf("sign: %w", passport.ErrUserRejected)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, fmt.Errorf("sign: %w: wallet closed", passport.ErrWalletUnavailable)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w: %v", passport.ErrWalletUnavailable, err)
	}
	return signed, nil
}

// Close wipes the key from memory. The wallet cannot sign afterwards.
func (w *Wallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.closed = true

	zcrypto.Erase(w.raw)
	words := w.key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	w.key = nil
	w.raw = nil
}
