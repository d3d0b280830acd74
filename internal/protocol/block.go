package protocol

import (
	"github.com/ethereum/go-ethereum/common"
)

// ChildBlock is a child chain block commitment recorded on the root chain
type ChildBlock struct {
	Number    uint64
	Root      common.Hash
	CreatedAt uint64
	Deposit   bool
}

// DepositRoot is the block root committed for a deposit transaction: the root of
// a tree holding only the deposit leaf with empty signatures.
func DepositRoot(txBytes []byte) common.Hash {
	leaf := LeafHash(txBytes, make([]byte, SignaturesLength))
	// the proof length is fixed, so this cannot fail
	root, _ := ComputeRoot(leaf, 0, DepositProof())
	return root
}
