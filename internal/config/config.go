// Package config holds the network settings zpass is built against. They
// are loaded once at startup and passed to the components that need them.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"

	"github.com/zarlcorp/zpass/internal/chain"
)

// Sepolia deployment of the passport contract and the EAS registry.
const (
	DefaultRPCURL      = "https://ethereum-sepolia-rpc.publicnode.com"
	DefaultChainID     = 11155111
	DefaultPassport    = "0x4Fe53000B1De1CF7b02800A3F539b26491E7A53B"
	DefaultRegistry    = "0xC2679fBD37d54388Ce493F1DB75320D236e1815e"
	DefaultSchemaUID   = "0x704ddf62a38cf398a044d09f4cb12b0cbbd57ac1f761dc50d526835081ce85d0"
	DefaultExplorerURL = "https://sepolia.etherscan.io"
)

// DefaultMintPrice is 0.08 ether.
var DefaultMintPrice = new(big.Int).Mul(big.NewInt(8), big.NewInt(params.Ether/100))

// Network is the immutable chain configuration.
type Network struct {
	RPCURL            string
	ChainID           *big.Int
	Passport          common.Address
	Registry          common.Address
	SchemaUID         common.Hash
	MintPrice         *big.Int
	ExplorerURL       string
	PollInterval      time.Duration
	SettlementTimeout time.Duration
}

// Default returns the Sepolia network.
func Default() Network {
	return Network{
		RPCURL:            DefaultRPCURL,
		ChainID:           big.NewInt(DefaultChainID),
		Passport:          common.HexToAddress(DefaultPassport),
		Registry:          common.HexToAddress(DefaultRegistry),
		SchemaUID:         common.HexToHash(DefaultSchemaUID),
		MintPrice:         new(big.Int).Set(DefaultMintPrice),
		ExplorerURL:       DefaultExplorerURL,
		PollInterval:      2 * time.Second,
		SettlementTimeout: 3 * time.Minute,
	}
}

// Load builds the network from defaults overridden by ZPASS_* variables
// read through getenv (usually os.Getenv).
func Load(getenv func(string) string) (Network, error) {
	n := Default()

	if v := getenv("ZPASS_RPC_URL"); v != "" {
		n.RPCURL = v
	}
	if v := getenv("ZPASS_EXPLORER_URL"); v != "" {
		n.ExplorerURL = v
	}

	if v := getenv("ZPASS_CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok || id.Sign() <= 0 {
			return Network{}, fmt.Errorf("ZPASS_CHAIN_ID: invalid chain id %q", v)
		}
		n.ChainID = id
	}

	var err error
	if n.Passport, err = address(getenv, "ZPASS_PASSPORT_CONTRACT", n.Passport); err != nil {
		return Network{}, err
	}
	if n.Registry, err = address(getenv, "ZPASS_EAS_CONTRACT", n.Registry); err != nil {
		return Network{}, err
	}

	if v := getenv("ZPASS_SCHEMA_UID"); v != "" {
		b := common.FromHex(v)
		if len(b) != common.HashLength {
			return Network{}, fmt.Errorf("ZPASS_SCHEMA_UID: want 32 bytes, got %d", len(b))
		}
		n.SchemaUID = common.BytesToHash(b)
	}

	if v := getenv("ZPASS_MINT_PRICE_WEI"); v != "" {
		p, ok := new(big.Int).SetString(v, 10)
		if !ok || p.Sign() < 0 {
			return Network{}, fmt.Errorf("ZPASS_MINT_PRICE_WEI: invalid amount %q", v)
		}
		n.MintPrice = p
	}

	if n.PollInterval, err = duration(getenv, "ZPASS_POLL_INTERVAL", n.PollInterval); err != nil {
		return Network{}, err
	}
	if n.SettlementTimeout, err = duration(getenv, "ZPASS_SETTLEMENT_TIMEOUT", n.SettlementTimeout); err != nil {
		return Network{}, err
	}

	return n, nil
}

// TxURL links a transaction on the block explorer.
func (n Network) TxURL(hash common.Hash) string {
	return n.ExplorerURL + "/tx/" + hash.Hex()
}

// PriceEther formats the mint price in ether.
func (n Network) PriceEther() string {
	return chain.FormatEther(n.MintPrice)
}

func address(getenv func(string) string, key string, def common.Address) (common.Address, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", key, v)
	}
	return common.HexToAddress(v), nil
}

var errNonPositive = errors.New("must be positive")

func duration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are seconds
		secs, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: %w", key, errNonPositive)
	}
	return d, nil
}
