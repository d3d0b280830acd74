package protocol

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// ErrMalformedTx is returned for transaction bytes that do not decode to a valid
// child chain transaction.
var ErrMalformedTx = errors.New("malformed transaction")

// Transaction is the child chain transaction as it is RLP encoded: two inputs,
// two outputs and a fee.
type Transaction struct {
	Blknum1       uint64
	TxIndex1      uint64
	Oindex1       uint64
	DepositNonce1 uint64
	Amount1       *uint256.Int

	Blknum2       uint64
	TxIndex2      uint64
	Oindex2       uint64
	DepositNonce2 uint64
	Amount2       *uint256.Int

	NewOwner1 []byte // 0 or 20 bytes
	Denom1    *uint256.Int
	NewOwner2 []byte
	Denom2    *uint256.Int
	Fee       *uint256.Int
}

// Input is one spent output together with its deposit nonce
type Input struct {
	Ref          OutputRef
	DepositNonce uint64
}

// DecodeTransaction decodes and validates RLP transaction bytes
func DecodeTransaction(txBytes []byte) (*Transaction, error) {
	var tx Transaction
	if err := rlp.DecodeBytes(txBytes, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	for i, owner := range [][]byte{tx.NewOwner1, tx.NewOwner2} {
		if len(owner) != 0 && len(owner) != common.AddressLength {
			return nil, fmt.Errorf("%w: owner %d has %d bytes", ErrMalformedTx, i+1, len(owner))
		}
	}
	// input positions only need to fit the key fields; output-index limits are
	// enforced when an output is exited
	for i, pos := range [][2]uint64{{tx.TxIndex1, tx.Oindex1}, {tx.TxIndex2, tx.Oindex2}} {
		if pos[0] > 0xffff || pos[1] > 0xff {
			return nil, fmt.Errorf("%w: input %d position out of range", ErrMalformedTx, i+1)
		}
	}
	tx.normalize()
	return &tx, nil
}

// Encode returns the RLP encoding of the transaction
func (tx *Transaction) Encode() ([]byte, error) {
	tx.normalize()
	return rlp.EncodeToBytes(tx)
}

func (tx *Transaction) normalize() {
	for _, v := range []**uint256.Int{&tx.Amount1, &tx.Amount2, &tx.Denom1, &tx.Denom2, &tx.Fee} {
		if *v == nil {
			*v = new(uint256.Int)
		}
	}
}

func (tx *Transaction) input(n int) Input {
	if n == 0 {
		return Input{
			Ref:          OutputRef{BlockNumber: tx.Blknum1, TxIndex: uint16(tx.TxIndex1), OutputIndex: uint8(tx.Oindex1)},
			DepositNonce: tx.DepositNonce1,
		}
	}
	return Input{
		Ref:          OutputRef{BlockNumber: tx.Blknum2, TxIndex: uint16(tx.TxIndex2), OutputIndex: uint8(tx.Oindex2)},
		DepositNonce: tx.DepositNonce2,
	}
}

// Inputs returns the inputs that reference a block; empty slots are skipped
func (tx *Transaction) Inputs() []Input {
	var inputs []Input
	for n := 0; n < 2; n++ {
		if in := tx.input(n); in.Ref.BlockNumber != 0 {
			inputs = append(inputs, in)
		}
	}
	return inputs
}

// IsDeposit reports whether the transaction spends nothing
func (tx *Transaction) IsDeposit() bool {
	return len(tx.Inputs()) == 0
}

// HasSecondInput reports whether the second input slot is used
func (tx *Transaction) HasSecondInput() bool {
	return tx.Blknum2 != 0
}

// Owner returns the new owner of output oindex (zero address if unset)
func (tx *Transaction) Owner(oindex uint8) common.Address {
	if oindex == 0 {
		return common.BytesToAddress(tx.NewOwner1)
	}
	return common.BytesToAddress(tx.NewOwner2)
}

// Denom returns the value of output oindex
func (tx *Transaction) Denom(oindex uint8) *uint256.Int {
	if oindex == 0 {
		return new(uint256.Int).Set(tx.Denom1)
	}
	return new(uint256.Int).Set(tx.Denom2)
}

// Priority is the largest input priority of the transaction, both input slots
// included, with the deposit nonce as the low word.
func (tx *Transaction) Priority() *uint256.Int {
	p := EncodePriority(tx.input(0).Ref, tx.DepositNonce1)
	return Max(p, EncodePriority(tx.input(1).Ref, tx.DepositNonce2))
}
