package protocol

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeccakMatchesGethCrypto(t *testing.T) {
	data := []byte("plasma")
	assert.Equal(t, crypto.Keccak256Hash(data, data), Keccak(data, data))
}

func TestDepositRoot_ChainsZeroHashes(t *testing.T) {
	txBytes := []byte{0xc0}
	leaf := LeafHash(txBytes, make([]byte, SignaturesLength))

	// fold the leaf by hand the way an operator would
	cur := leaf
	for i := 0; i < MerkleDepth; i++ {
		cur = Keccak(cur[:], zeroHashes[i][:])
	}
	assert.Equal(t, cur, DepositRoot(txBytes))

	tree, err := NewMerkleTree([]common.Hash{leaf})
	require.NoError(t, err)
	assert.Equal(t, cur, tree.Root())
}

func TestMerkleTree_Proofs(t *testing.T) {
	var leaves []common.Hash
	for i := 0; i < 5; i++ {
		leaves = append(leaves, Keccak([]byte{byte(i)}))
	}
	tree, err := NewMerkleTree(leaves)
	require.NoError(t, err)

	for i, leaf := range leaves {
		proof, err := tree.Proof(uint64(i))
		require.NoError(t, err)
		root, err := ComputeRoot(leaf, uint64(i), proof)
		require.NoError(t, err)
		assert.Equal(t, tree.Root(), root, "leaf %d", i)

		// the same proof does not verify at another index
		other, err := ComputeRoot(leaf, uint64(i+1), proof)
		require.NoError(t, err)
		assert.NotEqual(t, tree.Root(), other)
	}

	_, err = tree.Proof(5)
	assert.Error(t, err)
}

func TestComputeRoot_ProofLength(t *testing.T) {
	_, err := ComputeRoot(common.Hash{}, 0, make([]byte, ProofLength-1))
	assert.ErrorIs(t, err, ErrProofLength)
}

func TestMerkleTree_Empty(t *testing.T) {
	tree, err := NewMerkleTree(nil)
	require.NoError(t, err)
	assert.Equal(t, zeroHashes[MerkleDepth], tree.Root())
}
