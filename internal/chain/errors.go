package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/zarlcorp/zpass/internal/passport"
)

// ErrPending is returned by Receipt while a transaction is not yet mined.
var ErrPending = errors.New("transaction pending")

// custom contract errors with a meaning beyond a generic revert
var revertSentinels = map[string]error{
	"PassportAlreadyMinted": passport.ErrAlreadyMinted,
	"InsufficientValue":     passport.ErrPriceMismatch,
	"InsufficientAmount":    passport.ErrPriceMismatch,
}

// revertData extracts the raw revert payload carried by a JSON-RPC error.
func revertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	s, ok := de.ErrorData().(string)
	if !ok {
		return nil, false
	}
	data, decErr := hexutil.Decode(s)
	if decErr != nil || len(data) < 4 {
		return nil, false
	}
	return data, true
}

// revertName resolves revert data to a custom error name or an
// Error(string) reason. Unknown selectors yield "".
func revertName(contract *abi.ABI, data []byte) string {
	if contract != nil {
		for name, e := range contract.Errors {
			if len(data) >= 4 && string(e.ID[:4]) == string(data[:4]) {
				return name
			}
		}
	}
	if reason, err := abi.UnpackRevert(data); err == nil {
		return reason
	}
	return ""
}

// classifyCall maps a failed eth_call or gas estimation to the taxonomy.
func classifyCall(contract *abi.ABI, err error) error {
	if data, ok := revertData(err); ok {
		name := revertName(contract, data)
		if sentinel, ok := revertSentinels[name]; ok {
			return fmt.Errorf("%w: %s", sentinel, name)
		}
		if name == "" {
			name = hexutil.Encode(data[:4])
		}
		return fmt.Errorf("%w: %s", passport.ErrTransactionReverted, name)
	}
	return classifyNode(err)
}

// classifyNode maps errors reported as plain node messages.
func classifyNode(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%w: %v", passport.ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"):
		return fmt.Errorf("%w: %v", passport.ErrTransactionReverted, err)
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "replacement transaction underpriced"):
		return fmt.Errorf("%w: %v", passport.ErrTransactionReverted, err)
	}
	return fmt.Errorf("%w: %v", passport.ErrChainUnavailable, err)
}
