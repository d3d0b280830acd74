package rootchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChain_BlockNumbering(t *testing.T) {
	rc := newTestRootChain(t)

	d1, _ := deposit(t, rc, alice, 10)
	d2, _ := deposit(t, rc, alice, 10)
	assert.Equal(t, uint64(1), d1)
	assert.Equal(t, uint64(2), d2)

	num, err := rc.SubmitBlock(testAuthority, common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), num)

	d3, _ := deposit(t, rc, alice, 10)
	assert.Equal(t, uint64(1001), d3)

	num, err = rc.SubmitBlock(testAuthority, common.HexToHash("0x02"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), num)

	child, err := rc.CurrentChildBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), child)
	dep, err := rc.CurrentDepositBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dep)

	blk, err := rc.ChildBlock(1000)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x01"), blk.Root)
	assert.False(t, blk.Deposit)

	blk, err = rc.ChildBlock(1001)
	require.NoError(t, err)
	assert.True(t, blk.Deposit)

	_, err = rc.ChildBlock(1500)
	assert.True(t, errors.Is(err, ErrBlockNotFound))
	assert.Equal(t, KindNotFound, ErrorKind(err))
}

func TestChain_DepositRoot(t *testing.T) {
	rc := newTestRootChain(t)
	num, txBytes := deposit(t, rc, alice, 5000)

	blk, err := rc.ChildBlock(num)
	require.NoError(t, err)
	assert.Equal(t, protocol.DepositRoot(txBytes), blk.Root)

	custody, err := rc.ContractBalance()
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), custody.Uint64())
}

func TestChain_OnlyAuthoritySubmits(t *testing.T) {
	rc := newTestRootChain(t)

	_, err := rc.SubmitBlock(alice, common.HexToHash("0x01"))
	assert.True(t, errors.Is(err, ErrNotAuthority))
	assert.Equal(t, KindUnauthorized, ErrorKind(err))

	child, err := rc.CurrentChildBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(ChildBlockInterval), child)
}

func TestChain_InvalidDeposits(t *testing.T) {
	rc := newTestRootChain(t)

	encode := func(tx *protocol.Transaction) []byte {
		enc, err := tx.Encode()
		require.NoError(t, err)
		return enc
	}

	tests := []struct {
		name    string
		caller  common.Address
		txBytes []byte
		value   uint64
	}{
		{"undecodable", alice, []byte{0xc0 + 1, 0x80}, 10},
		{"owner is not the depositor", bob, depositTx(t, alice, 10), 10},
		{"value mismatch", alice, depositTx(t, alice, 10), 11},
		{"zero value", alice, depositTx(t, alice, 0), 0},
		{"spends an input", alice, encode(&protocol.Transaction{
			Blknum1:   1,
			NewOwner1: alice.Bytes(),
			Denom1:    uint256.NewInt(10),
		}), 10},
		{"second output used", alice, encode(&protocol.Transaction{
			NewOwner1: alice.Bytes(),
			Denom1:    uint256.NewInt(10),
			NewOwner2: bob.Bytes(),
			Denom2:    uint256.NewInt(1),
		}), 10},
		{"no owner", alice, encode(&protocol.Transaction{Denom1: uint256.NewInt(10)}), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rc.Deposit(tt.caller, tt.txBytes, uint256.NewInt(tt.value))
			assert.True(t, errors.Is(err, ErrInvalidDeposit), "got %v", err)
			assert.Equal(t, KindInvalidRequest, ErrorKind(err))
			assert.Equal(t, uint64(0), childChainBalance(t, rc))
		})
	}

	dep, err := rc.CurrentDepositBlock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), dep)
}

func TestChain_DepositLimit(t *testing.T) {
	rc := newTestRootChain(t)

	for i := 1; i < ChildBlockInterval; i++ {
		deposit(t, rc, alice, 1)
	}
	txBytes := depositTx(t, alice, 1)
	_, err := rc.Deposit(alice, txBytes, uint256.NewInt(1))
	assert.True(t, errors.Is(err, ErrDepositLimit))
	assert.Equal(t, uint64(ChildBlockInterval-1), childChainBalance(t, rc))

	// a new operator block opens the next interval
	_, err = rc.SubmitBlock(testAuthority, common.Hash{})
	require.NoError(t, err)
	num, err := rc.Deposit(alice, txBytes, uint256.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(ChildBlockInterval+1), num)
}
