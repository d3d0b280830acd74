package rootchain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/plasma-experiment/rootchain/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExit(owner common.Address, ref protocol.OutputRef) *protocol.Exit {
	return &protocol.Exit{
		Owner:     owner,
		Amount:    uint256.NewInt(5000),
		Bond:      uint256.NewInt(testMinBond),
		State:     protocol.ExitPending,
		CreatedAt: 7,
		Output:    ref,
	}
}

func TestStore_InMemory(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()

	ref := protocol.OutputRef{BlockNumber: 3, TxIndex: 1, OutputIndex: 1}
	key := protocol.ComputePriority(ref, 7)

	got, err := store.Exit(key)
	require.NoError(t, err)
	assert.Nil(t, got)
	_, ok, err := store.ExitKeyByOutput(ref)
	require.NoError(t, err)
	assert.False(t, ok)

	exit := testExit(alice, ref)
	b := store.NewBatch()
	b.PutExit(key, exit)
	b.IndexOutput(ref, key)
	b.Enqueue(key)
	require.NoError(t, b.Write())

	got, err = store.Exit(key)
	require.NoError(t, err)
	assert.Equal(t, exit, got)

	byRef, ok, err := store.ExitKeyByOutput(ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, byRef.Eq(key))

	queued, err := store.QueuedKeys()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.True(t, queued[0].Eq(key))
}

func TestStore_UnwrittenBatchHasNoEffect(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()

	b := store.NewBatch()
	b.PutBalance(alice, uint256.NewInt(10))
	b.PutClock(99)

	bal, err := store.Balance(alice)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
	now, err := store.Clock()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), now)
}

func TestStore_QueuedKeysAscending(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()

	refs := []protocol.OutputRef{
		{BlockNumber: 2000},
		{BlockNumber: 3, TxIndex: 0xffff, OutputIndex: 1},
		{BlockNumber: 1000, TxIndex: 5},
		{BlockNumber: 1},
	}
	b := store.NewBatch()
	for i, ref := range refs {
		b.Enqueue(protocol.ComputePriority(ref, uint64(100-i)))
	}
	require.NoError(t, b.Write())

	keys, err := store.QueuedKeys()
	require.NoError(t, err)
	require.Len(t, keys, len(refs))
	for i := 1; i < len(keys); i++ {
		assert.True(t, keys[i-1].Lt(keys[i]), "keys out of order at %d", i)
	}

	b = store.NewBatch()
	b.Dequeue(keys[0])
	require.NoError(t, b.Write())
	rest, err := store.QueuedKeys()
	require.NoError(t, err)
	assert.Len(t, rest, len(refs)-1)
	assert.True(t, rest[0].Eq(keys[1]))
}

func TestStore_Scalars(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()

	child, deposit, err := store.ChainCounters()
	require.NoError(t, err)
	assert.Equal(t, uint64(ChildBlockInterval), child)
	assert.Equal(t, uint64(1), deposit)

	big := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	b := store.NewBatch()
	b.PutChildChainBalance(big)
	b.PutContractBalance(uint256.NewInt(3))
	b.PutHoldings(bob, uint256.NewInt(4))
	b.PutChainCounters(3000, 17)
	b.PutClock(1234)
	b.PutBlock(&protocol.ChildBlock{Number: 2000, Root: common.HexToHash("0xabc"), CreatedAt: 5})
	require.NoError(t, b.Write())

	ccb, err := store.ChildChainBalance()
	require.NoError(t, err)
	assert.True(t, ccb.Eq(big))
	custody, err := store.ContractBalance()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), custody.Uint64())
	held, err := store.Holdings(bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), held.Uint64())

	child, deposit, err = store.ChainCounters()
	require.NoError(t, err)
	assert.Equal(t, uint64(3000), child)
	assert.Equal(t, uint64(17), deposit)
	now, err := store.Clock()
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), now)

	blk, err := store.Block(2000)
	require.NoError(t, err)
	require.NotNil(t, blk)
	assert.Equal(t, common.HexToHash("0xabc"), blk.Root)
	missing, err := store.Block(1000)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_Persistent(t *testing.T) {
	dir := t.TempDir()
	ref := protocol.OutputRef{BlockNumber: 1}
	key := protocol.ComputePriority(ref, 0)

	store, err := NewStore(dir)
	require.NoError(t, err)
	b := store.NewBatch()
	b.PutExit(key, testExit(alice, ref))
	b.Enqueue(key)
	b.PutBalance(alice, uint256.NewInt(77))
	require.NoError(t, b.Write())
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Exit(key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice, got.Owner)
	bal, err := store.Balance(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), bal.Uint64())
	keys, err := store.QueuedKeys()
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestStore_Closed(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	_, err = store.Balance(alice)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = store.QueuedKeys()
	assert.ErrorIs(t, err, ErrStoreClosed)

	b := store.NewBatch()
	b.PutClock(1)
	assert.ErrorIs(t, b.Write(), ErrStoreClosed)
}
