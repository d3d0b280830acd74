package rootchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

// VerifiedOutput is an output whose inclusion in a committed block has been proven
type VerifiedOutput struct {
	Ref    protocol.OutputRef
	Owner  common.Address
	Amount *uint256.Int
	Tx     *protocol.Transaction
}

// Verifier proves that an output at pos is part of the child chain
type Verifier interface {
	Verify(pos [3]uint64, txBytes, proof, sigs []byte) (*VerifiedOutput, error)
}

// BlockReader gives access to committed child blocks
type BlockReader interface {
	Block(num uint64) (*protocol.ChildBlock, error)
}

// MerkleVerifier checks signatures and the Merkle inclusion proof against the
// committed block root.
type MerkleVerifier struct {
	blocks BlockReader
}

func NewMerkleVerifier(blocks BlockReader) *MerkleVerifier {
	return &MerkleVerifier{blocks: blocks}
}

func (v *MerkleVerifier) Verify(pos [3]uint64, txBytes, proof, sigs []byte) (*VerifiedOutput, error) {
	ref, err := protocol.PositionToRef(pos)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProof, err.Error())
	}
	tx, err := protocol.DecodeTransaction(txBytes)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProof, err.Error())
	}

	blk, err := v.blocks.Block(ref.BlockNumber)
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, errors.Wrapf(ErrInvalidProof, "block %d not committed", ref.BlockNumber)
	}

	sig1, sig2, err := protocol.SplitSignatures(sigs)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProof, err.Error())
	}
	txHash := protocol.TxHash(txBytes)
	if tx.IsDeposit() {
		if !protocol.IsZero(sigs) {
			return nil, errors.Wrap(ErrInvalidProof, "deposit carries signatures")
		}
	} else {
		if _, err := protocol.RecoverSigner(txHash, sig1); err != nil {
			return nil, errors.Wrap(ErrInvalidProof, err.Error())
		}
		if tx.HasSecondInput() {
			if _, err := protocol.RecoverSigner(txHash, sig2); err != nil {
				return nil, errors.Wrap(ErrInvalidProof, err.Error())
			}
		}
	}

	root, err := protocol.ComputeRoot(protocol.LeafHash(txBytes, sigs), uint64(ref.TxIndex), proof)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidProof, err.Error())
	}
	if root != blk.Root {
		return nil, errors.Wrapf(ErrInvalidProof, "root %s does not match block %d", root.Hex(), blk.Number)
	}

	return &VerifiedOutput{
		Ref:    ref,
		Owner:  tx.Owner(ref.OutputIndex),
		Amount: tx.Denom(ref.OutputIndex),
		Tx:     tx,
	}, nil
}
