package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// FormatEther renders wei as ether, e.g. "0.08 ETH".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		wei = new(big.Int)
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', -1) + " ETH"
}
