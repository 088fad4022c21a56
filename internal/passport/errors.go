package passport

import "errors"

// Kind classifies pipeline failures.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindStorage
	KindSigning
	KindChain
	KindRead
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindSigning:
		return "signing"
	case KindChain:
		return "chain"
	case KindRead:
		return "read"
	}
	return "none"
}

// validation: resolved locally, never reaches an external service
var (
	ErrIncompleteDraft    = errors.New("incomplete draft")
	ErrNotConnected       = errors.New("no identity connected")
	ErrAlreadyHasPassport = errors.New("identity already holds a passport")
)

// storage
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrStorageAuth        = errors.New("storage credential rejected")
)

// signing
var (
	ErrUserRejected      = errors.New("request rejected by user")
	ErrWalletUnavailable = errors.New("wallet unavailable")
)

// chain
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadyMinted       = errors.New("passport already minted")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrPriceMismatch       = errors.New("payment does not match mint price")
	ErrSettlementTimeout   = errors.New("transaction not settled in time")
	ErrChainUnavailable    = errors.New("chain node unavailable")
)

// read
var ErrReadUnavailable = errors.New("passport state unavailable")

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrIncompleteDraft, ErrNotConnected, ErrAlreadyHasPassport}},
	{KindStorage, []error{ErrStorageUnavailable, ErrStorageAuth}},
	{KindSigning, []error{ErrUserRejected, ErrWalletUnavailable}},
	{KindChain, []error{ErrInsufficientFunds, ErrAlreadyMinted, ErrTransactionReverted, ErrPriceMismatch, ErrSettlementTimeout, ErrChainUnavailable}},
	{KindRead, []error{ErrReadUnavailable}},
}

// KindOf classifies err. Errors outside the taxonomy are KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		for _, e := range k.errs {
			if errors.Is(err, e) {
				return k.kind
			}
		}
	}
	return KindNone
}

// SafeToRetry reports whether the same attempt can be repeated unchanged.
// Chain and read failures may have left on-chain state diverged from what
// the client believes, so callers must re-read before retrying those.
func SafeToRetry(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindStorage, KindSigning:
		return true
	}
	return false
}
