package rootchain

import (
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

// Rejections of root chain calls. Every rejection leaves state unchanged; the
// caller fixes its inputs and resubmits.
var (
	ErrInvalidOwner        = errors.New("rootchain: caller is not the owner of the output")
	ErrInsufficientBond    = errors.New("rootchain: exit bond below minimum")
	ErrAlreadyExited       = errors.New("rootchain: output already has a pending exit")
	ErrReopenFinalized     = errors.New("rootchain: output exit already finalized")
	ErrInvalidProof        = errors.New("rootchain: invalid transaction proof")
	ErrDoubleSpend         = errors.New("rootchain: transaction spends an output that has already exited")
	ErrExitNotFound        = errors.New("rootchain: exit not found")
	ErrBlockNotFound       = errors.New("rootchain: child block not found")
	ErrNotAuthority        = errors.New("rootchain: caller is not the authority")
	ErrInvalidDeposit      = errors.New("rootchain: invalid deposit transaction")
	ErrDepositLimit        = errors.New("rootchain: deposit blocks exhausted for this interval")
	ErrClockRewind         = errors.New("rootchain: logical time cannot go backwards")
	ErrInsufficientReserve = errors.New("rootchain: child chain balance cannot cover exit")
	ErrOverflow            = errors.New("rootchain: 256-bit overflow")
	ErrStoreClosed         = errors.New("rootchain: store is closed")
)

// Error kinds reported to callers.
const (
	KindInvalidOwner     = "InvalidOwner"
	KindInsufficientBond = "InsufficientBond"
	KindAlreadyExited    = "AlreadyExited"
	KindInvalidProof     = "InvalidProof"
	KindDoubleSpend      = "DoubleSpendDetected"
	KindNotFound         = "NotFound"
	KindUnauthorized     = "Unauthorized"
	KindInvalidRequest   = "InvalidRequest"
	KindInternal         = "Internal"
)

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidOwner):
		return KindInvalidOwner
	case errors.Is(err, ErrInsufficientBond):
		return KindInsufficientBond
	case errors.Is(err, ErrAlreadyExited), errors.Is(err, ErrReopenFinalized):
		return KindAlreadyExited
	case errors.Is(err, ErrInvalidProof):
		return KindInvalidProof
	case errors.Is(err, ErrDoubleSpend):
		return KindDoubleSpend
	case errors.Is(err, ErrExitNotFound), errors.Is(err, ErrBlockNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotAuthority):
		return KindUnauthorized
	case errors.Is(err, ErrInvalidDeposit), errors.Is(err, ErrDepositLimit), errors.Is(err, ErrClockRewind),
		errors.Is(err, protocol.ErrMalformedTx):
		return KindInvalidRequest
	default:
		return KindInternal
	}
}
