package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OutputRef identifies one spendable transaction output on the child chain
type OutputRef struct {
	BlockNumber uint64 `json:"block_number"`
	TxIndex     uint16 `json:"tx_index"`
	OutputIndex uint8  `json:"output_index"`
}

// OutputRefLength is the size of the fixed-width binary form of an OutputRef
const OutputRefLength = 8 + 2 + 1

// MaxOutputIndex is the highest output index; every transaction has two outputs.
const MaxOutputIndex = 1

// Bytes returns the big-endian fixed-width encoding (block ‖ tx ‖ output)
func (r OutputRef) Bytes() []byte {
	buf := make([]byte, OutputRefLength)
	binary.BigEndian.PutUint64(buf[0:8], r.BlockNumber)
	binary.BigEndian.PutUint16(buf[8:10], r.TxIndex)
	buf[10] = r.OutputIndex
	return buf
}

func (r OutputRef) String() string {
	return fmt.Sprintf("%d/%d/%d", r.BlockNumber, r.TxIndex, r.OutputIndex)
}

// PositionToRef validates a [block, txIndex, outputIndex] triple as received from
// callers and converts it to an OutputRef.
func PositionToRef(pos [3]uint64) (OutputRef, error) {
	if pos[1] > 0xffff {
		return OutputRef{}, fmt.Errorf("tx index %d out of range", pos[1])
	}
	if pos[2] > MaxOutputIndex {
		return OutputRef{}, fmt.Errorf("output index %d out of range", pos[2])
	}
	return OutputRef{BlockNumber: pos[0], TxIndex: uint16(pos[1]), OutputIndex: uint8(pos[2])}, nil
}

// ExitState is the lifecycle state of an exit record
type ExitState uint8

const (
	ExitNonExistent ExitState = 0
	ExitPending     ExitState = 1
	// ExitCancelled is terminal: the exit was dropped from the queue unpaid and
	// its bond stays in the child chain balance.
	ExitCancelled ExitState = 2
	ExitFinalized ExitState = 3
)

func (s ExitState) String() string {
	switch s {
	case ExitNonExistent:
		return "nonexistent"
	case ExitPending:
		return "pending"
	case ExitCancelled:
		return "cancelled"
	case ExitFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Live reports whether the exit still holds or has taken its output's value
func (s ExitState) Live() bool {
	return s == ExitPending || s == ExitFinalized
}

// Exit is the record kept for every started exit, keyed by its priority
type Exit struct {
	Owner     common.Address
	Amount    *uint256.Int
	Bond      *uint256.Int
	State     ExitState
	CreatedAt uint64
	Output    OutputRef
	Spends    []OutputRef `rlp:"optional"` // inputs of the exiting transaction
}

// Total is the value released to the owner on finalization
func (e *Exit) Total() *uint256.Int {
	return new(uint256.Int).Add(e.Amount, e.Bond)
}

// MaturesAt returns the logical time from which the exit may be finalized
func (e *Exit) MaturesAt(period uint64) uint64 {
	if e.CreatedAt > math.MaxUint64-period {
		return math.MaxUint64
	}
	return e.CreatedAt + period
}

// Copy returns a deep copy so callers cannot alias stored amounts
func (e *Exit) Copy() *Exit {
	cpy := *e
	cpy.Amount = new(uint256.Int).Set(e.Amount)
	cpy.Bond = new(uint256.Int).Set(e.Bond)
	cpy.Spends = append([]OutputRef(nil), e.Spends...)
	return &cpy
}
