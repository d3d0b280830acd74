package rootchain

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/config"
	"github.com/plasma-experiment/rootchain/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_ReleaseNeverUnderflows(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()
	ledger := NewLedger(store, nil)

	b := store.NewBatch()
	require.NoError(t, ledger.escrow(b, uint256.NewInt(100)))
	require.NoError(t, b.Write())

	b = store.NewBatch()
	err = ledger.release(b, alice, uint256.NewInt(101))
	assert.True(t, errors.Is(err, ErrInsufficientReserve))

	b = store.NewBatch()
	require.NoError(t, ledger.release(b, alice, uint256.NewInt(100)))
	require.NoError(t, b.Write())

	ccb, err := ledger.ChildChainBalance()
	require.NoError(t, err)
	assert.True(t, ccb.IsZero())
	bal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), bal.Uint64())
}

func TestLedger_EscrowOverflow(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()
	ledger := NewLedger(store, nil)

	full := new(uint256.Int).SetAllOne()
	b := store.NewBatch()
	require.NoError(t, ledger.escrow(b, full))
	require.NoError(t, b.Write())

	b = store.NewBatch()
	assert.ErrorIs(t, ledger.escrow(b, uint256.NewInt(1)), ErrOverflow)
}

func TestLedger_WithdrawBooksHoldings(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()
	ledger := NewLedger(store, nil)

	b := store.NewBatch()
	b.PutBalance(alice, uint256.NewInt(40))
	b.PutContractBalance(uint256.NewInt(100))
	require.NoError(t, b.Write())

	for i := 0; i < 2; i++ {
		amount, err := ledger.Withdraw(alice)
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, uint64(40), amount.Uint64())
		} else {
			assert.True(t, amount.IsZero())
		}
	}

	held, err := ledger.Holdings(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), held.Uint64())
	custody, err := ledger.ContractBalance()
	require.NoError(t, err)
	assert.Equal(t, uint64(60), custody.Uint64())
}

func TestLedger_WithdrawBooksInOneBatch(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()
	ledger := NewLedger(store, nil)

	// booking would overflow the holdings, so nothing may be written
	full := new(uint256.Int).SetAllOne()
	b := store.NewBatch()
	b.PutBalance(alice, uint256.NewInt(40))
	b.PutContractBalance(uint256.NewInt(100))
	b.PutHoldings(alice, full)
	require.NoError(t, b.Write())

	_, err = ledger.Withdraw(alice)
	assert.ErrorIs(t, err, ErrOverflow)

	bal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), bal.Uint64())
	custody, err := ledger.ContractBalance()
	require.NoError(t, err)
	assert.Equal(t, uint64(100), custody.Uint64())
	held, err := ledger.Holdings(alice)
	require.NoError(t, err)
	assert.True(t, held.Eq(full))
}

// queueExit writes a pending exit straight into the store
func queueExit(t *testing.T, store *Store, key *uint256.Int, exit *protocol.Exit) {
	t.Helper()
	b := store.NewBatch()
	b.PutExit(key, exit)
	b.IndexOutput(exit.Output, key)
	for _, ref := range exit.Spends {
		b.MarkSpent(ref, key)
	}
	if exit.State == protocol.ExitPending {
		b.Enqueue(key)
	}
	require.NoError(t, b.Write())
}

func TestFinalizer_CancelsExitReserveCannotCover(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()
	ledger := NewLedger(store, nil)

	inflatedRef := protocol.OutputRef{BlockNumber: 1}
	inflated := protocol.ComputePriority(inflatedRef, 0)
	queueExit(t, store, inflated, testExit(alice, inflatedRef))

	honestRef := protocol.OutputRef{BlockNumber: 2}
	honest := protocol.ComputePriority(honestRef, 0)
	honestExit := testExit(bob, honestRef)
	honestExit.Amount = uint256.NewInt(1000)
	queueExit(t, store, honest, honestExit)

	// the reserve only backs the honest exit
	b := store.NewBatch()
	b.PutChildChainBalance(honestExit.Total())
	require.NoError(t, b.Write())

	queue := NewExitQueue([]*uint256.Int{inflated, honest})
	f := NewFinalizer(store, queue, ledger, testExitPeriod, 0, config.PolicyStopAtFirstImmature)

	report, err := f.FinalizeExits(testExitPeriod + 7)
	require.NoError(t, err)
	assert.Equal(t, HaltEmpty, report.Halt)
	require.Len(t, report.Cancelled, 1)
	assert.True(t, report.Cancelled[0].Eq(inflated))
	require.Len(t, report.Finalized, 1)
	assert.True(t, report.Finalized[0].Eq(honest))
	assert.Equal(t, 0, queue.Len())

	exit, err := store.Exit(inflated)
	require.NoError(t, err)
	assert.Equal(t, protocol.ExitCancelled, exit.State)
	bal, err := store.Balance(alice)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	bal, err = store.Balance(bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(11000), bal.Uint64())
	ccb, err := store.ChildChainBalance()
	require.NoError(t, err)
	assert.True(t, ccb.IsZero())

	// a restart does not bring the cancelled exit back
	keys, err := store.QueuedKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestFinalizer_CancelsExitOfSpentValue(t *testing.T) {
	depositRef := protocol.OutputRef{BlockNumber: 1}
	spendRef := protocol.OutputRef{BlockNumber: ChildBlockInterval}

	tests := []struct {
		name           string
		finalizedFirst bool // true: the deposit exit was paid before the spend exit comes up
	}{
		{"input already exited", true},
		{"output already spent", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewStore("")
			require.NoError(t, err)
			defer store.Close()
			ledger := NewLedger(store, nil)

			depositKey := protocol.ComputePriority(depositRef, 0)
			depExit := testExit(alice, depositRef)
			spendKey := protocol.ComputePriority(spendRef, 0)
			spExit := testExit(bob, spendRef)
			spExit.Spends = []protocol.OutputRef{depositRef}

			paid, pending := depositKey, spendKey
			if tt.finalizedFirst {
				depExit.State = protocol.ExitFinalized
			} else {
				spExit.State = protocol.ExitFinalized
				paid, pending = spendKey, depositKey
			}
			queueExit(t, store, depositKey, depExit)
			queueExit(t, store, spendKey, spExit)

			b := store.NewBatch()
			b.PutChildChainBalance(uint256.NewInt(100000))
			require.NoError(t, b.Write())

			queue := NewExitQueue([]*uint256.Int{pending})
			f := NewFinalizer(store, queue, ledger, testExitPeriod, 0, config.PolicyStopAtFirstImmature)

			report, err := f.FinalizeExits(testExitPeriod + 7)
			require.NoError(t, err)
			assert.Empty(t, report.Finalized)
			require.Len(t, report.Cancelled, 1)
			assert.True(t, report.Cancelled[0].Eq(pending))

			exit, err := store.Exit(pending)
			require.NoError(t, err)
			assert.Equal(t, protocol.ExitCancelled, exit.State)
			exit, err = store.Exit(paid)
			require.NoError(t, err)
			assert.Equal(t, protocol.ExitFinalized, exit.State)

			ccb, err := store.ChildChainBalance()
			require.NoError(t, err)
			assert.Equal(t, uint64(100000), ccb.Uint64())
		})
	}
}
