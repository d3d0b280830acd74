package protocol

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// MerkleDepth is the height of the transaction tree of a child block
const MerkleDepth = 16

// MaxBlockTxs is the number of leaves in a child block's transaction tree
const MaxBlockTxs = 1 << MerkleDepth

// ProofLength is the byte length of an inclusion proof
const ProofLength = MerkleDepth * common.HashLength

// SignaturesLength is the byte length of the two input signatures attached to a leaf
const SignaturesLength = 2 * 65

var ErrProofLength = errors.New("merkle proof has wrong length")

// zeroHashes[i] is the root of an empty subtree of height i
var zeroHashes = func() [MerkleDepth + 1]common.Hash {
	var zh [MerkleDepth + 1]common.Hash
	for i := 1; i <= MerkleDepth; i++ {
		zh[i] = Keccak(zh[i-1][:], zh[i-1][:])
	}
	return zh
}()

// Keccak hashes the concatenation of data with legacy Keccak-256
func Keccak(data ...[]byte) (h common.Hash) {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	d.Sum(h[:0])
	return h
}

// TxHash is the hash signed by input owners
func TxHash(txBytes []byte) common.Hash {
	return Keccak(txBytes)
}

// LeafHash is the tree leaf for a transaction and its signatures
func LeafHash(txBytes, sigs []byte) common.Hash {
	txHash := TxHash(txBytes)
	return Keccak(txHash[:], sigs)
}

// ComputeRoot folds a leaf at the given index up the tree with the proof's siblings
func ComputeRoot(leaf common.Hash, index uint64, proof []byte) (common.Hash, error) {
	if len(proof) != ProofLength {
		return common.Hash{}, fmt.Errorf("%w: %d bytes", ErrProofLength, len(proof))
	}
	cur := leaf
	for level := 0; level < MerkleDepth; level++ {
		sibling := proof[level*common.HashLength : (level+1)*common.HashLength]
		if index&1 == 0 {
			cur = Keccak(cur[:], sibling)
		} else {
			cur = Keccak(sibling, cur[:])
		}
		index >>= 1
	}
	return cur, nil
}

// DepositProof is the inclusion proof of the single leaf of a deposit block
func DepositProof() []byte {
	proof := make([]byte, 0, ProofLength)
	for i := 0; i < MerkleDepth; i++ {
		proof = append(proof, zeroHashes[i][:]...)
	}
	return proof
}

// MerkleTree is a fixed-depth transaction tree, filled from index 0
type MerkleTree struct {
	levels [][]common.Hash
}

// NewMerkleTree builds the tree over leaves; absent leaves are zero hashes
func NewMerkleTree(leaves []common.Hash) (*MerkleTree, error) {
	if len(leaves) > MaxBlockTxs {
		return nil, fmt.Errorf("too many leaves: %d", len(leaves))
	}
	levels := make([][]common.Hash, MerkleDepth+1)
	levels[0] = append([]common.Hash(nil), leaves...)
	for h := 0; h < MerkleDepth; h++ {
		below := levels[h]
		next := make([]common.Hash, (len(below)+1)/2)
		for i := range next {
			left := below[2*i]
			right := zeroHashes[h]
			if 2*i+1 < len(below) {
				right = below[2*i+1]
			}
			next[i] = Keccak(left[:], right[:])
		}
		levels[h+1] = next
	}
	return &MerkleTree{levels: levels}, nil
}

// Root returns the tree root
func (t *MerkleTree) Root() common.Hash {
	if top := t.levels[MerkleDepth]; len(top) > 0 {
		return top[0]
	}
	return zeroHashes[MerkleDepth]
}

// Proof returns the sibling path of the leaf at index
func (t *MerkleTree) Proof(index uint64) ([]byte, error) {
	if index >= uint64(len(t.levels[0])) {
		return nil, fmt.Errorf("leaf %d not in tree", index)
	}
	proof := make([]byte, 0, ProofLength)
	for h := 0; h < MerkleDepth; h++ {
		sib := index ^ 1
		node := zeroHashes[h]
		if sib < uint64(len(t.levels[h])) {
			node = t.levels[h][sib]
		}
		proof = append(proof, node[:]...)
		index >>= 1
	}
	return proof, nil
}
