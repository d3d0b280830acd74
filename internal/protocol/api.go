package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Request and response bodies of the root chain HTTP API. 256-bit values travel
// as decimal strings.

// DepositRequest locks Value on the root chain for the deposit transaction
type DepositRequest struct {
	From    common.Address `json:"from"`
	TxBytes hexutil.Bytes  `json:"tx_bytes"`
	Value   string         `json:"value"`
}

// DepositResponse returns the deposit block number
type DepositResponse struct {
	BlockNumber uint64 `json:"block_number"`
}

// SubmitBlockRequest commits a child block root; From must be the authority
type SubmitBlockRequest struct {
	From common.Address `json:"from"`
	Root common.Hash    `json:"root"`
}

// BlockResponse describes a committed child block
type BlockResponse struct {
	Number    uint64      `json:"number"`
	Root      common.Hash `json:"root"`
	CreatedAt uint64      `json:"created_at"`
	Deposit   bool        `json:"deposit"`
}

// CurrentBlockResponse reports the next block numbers
type CurrentBlockResponse struct {
	CurrentChildBlock   uint64 `json:"current_child_block"`
	CurrentDepositBlock uint64 `json:"current_deposit_block"`
}

// StartExitRequest starts an exit of output TxPos = [block, txIndex, outputIndex]
type StartExitRequest struct {
	From    common.Address `json:"from"`
	TxPos   [3]uint64      `json:"tx_pos"`
	TxBytes hexutil.Bytes  `json:"tx_bytes"`
	Proof   hexutil.Bytes  `json:"proof"`
	Sigs    hexutil.Bytes  `json:"sigs"`
	Bond    string         `json:"bond"`
}

// ExitResponse describes an exit record
type ExitResponse struct {
	Priority  string         `json:"priority"`
	Owner     common.Address `json:"owner"`
	Amount    string         `json:"amount"`
	Bond      string         `json:"bond"`
	State     ExitState      `json:"state"`
	StateName string         `json:"state_name"`
	CreatedAt uint64         `json:"created_at"`
	Output    OutputRef      `json:"output"`
	Spends    []OutputRef    `json:"spends,omitempty"`
}

// NewExitResponse renders an exit record under its key
func NewExitResponse(priority string, e *Exit) ExitResponse {
	return ExitResponse{
		Priority:  priority,
		Owner:     e.Owner,
		Amount:    e.Amount.Dec(),
		Bond:      e.Bond.Dec(),
		State:     e.State,
		StateName: e.State.String(),
		CreatedAt: e.CreatedAt,
		Output:    e.Output,
		Spends:    e.Spends,
	}
}

// FinalizeResponse summarizes one finalization sweep
type FinalizeResponse struct {
	Finalized []string `json:"finalized"`
	Cancelled []string `json:"cancelled"`
	Credited  string   `json:"credited"`
	Halt      string   `json:"halt"`
	Remaining int      `json:"remaining"`
}

// WithdrawRequest withdraws the caller's whole balance
type WithdrawRequest struct {
	From common.Address `json:"from"`
}

// AmountResponse carries a single 256-bit value
type AmountResponse struct {
	Amount string `json:"amount"`
}

// PriorityRequest asks for the priority of an encoded transaction
type PriorityRequest struct {
	TxBytes hexutil.Bytes `json:"tx_bytes"`
}

// PriorityResponse carries a priority key
type PriorityResponse struct {
	Priority string `json:"priority"`
}

// ClockRequest advances the logical clock to Time
type ClockRequest struct {
	Time uint64 `json:"time"`
}

// ClockResponse reports the logical clock
type ClockResponse struct {
	Time uint64 `json:"time"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
