package rootchain

import (
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/plasma-experiment/rootchain/config"
	"github.com/plasma-experiment/rootchain/internal/protocol"
	"github.com/stretchr/testify/require"
)

const (
	testExitPeriod = 604800
	testMinBond    = 10000
)

var (
	testAuthority = common.HexToAddress("0xa000000000000000000000000000000000000001")
	alice         = common.HexToAddress("0xa11ce00000000000000000000000000000000001")
	bob           = common.HexToAddress("0xb0b0000000000000000000000000000000000002")
)

func testOptions() Options {
	return Options{
		Authority:          testAuthority,
		ExitPeriod:         testExitPeriod,
		MinExitBond:        uint256.NewInt(testMinBond),
		MaxFinalizePerCall: 0,
		Policy:             config.PolicyStopAtFirstImmature,
	}
}

// newTestRootChain opens a root chain over an in-memory store
func newTestRootChain(t *testing.T, mutate ...func(*Options)) *RootChain {
	t.Helper()
	store, err := NewStore("")
	require.NoError(t, err)

	opts := testOptions()
	for _, m := range mutate {
		m(&opts)
	}
	rc, err := New(store, opts)
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })
	return rc
}

func depositTx(t *testing.T, owner common.Address, amount uint64) []byte {
	t.Helper()
	tx := &protocol.Transaction{
		NewOwner1: owner.Bytes(),
		Denom1:    uint256.NewInt(amount),
	}
	enc, err := tx.Encode()
	require.NoError(t, err)
	return enc
}

// deposit locks amount for owner and returns the deposit block number
func deposit(t *testing.T, rc *RootChain, owner common.Address, amount uint64) (uint64, []byte) {
	t.Helper()
	txBytes := depositTx(t, owner, amount)
	num, err := rc.Deposit(owner, txBytes, uint256.NewInt(amount))
	require.NoError(t, err)
	return num, txBytes
}

func depositExit(caller common.Address, blk uint64, txBytes []byte, bond uint64) ExitRequest {
	return ExitRequest{
		Caller:  caller,
		Pos:     [3]uint64{blk, 0, 0},
		TxBytes: txBytes,
		Proof:   protocol.DepositProof(),
		Sigs:    make([]byte, protocol.SignaturesLength),
		Bond:    uint256.NewInt(bond),
	}
}

// depositAndExit deposits amount for owner and starts an exit of it
func depositAndExit(t *testing.T, rc *RootChain, owner common.Address, amount uint64) *uint256.Int {
	t.Helper()
	blk, txBytes := deposit(t, rc, owner, amount)
	key, err := rc.StartExit(depositExit(owner, blk, txBytes, testMinBond))
	require.NoError(t, err)
	return key
}

// spendTx builds a transaction moving output [blk,0,0] to newOwner, signed by
// key, and the signature blob committed with it
func spendTx(t *testing.T, blk uint64, newOwner common.Address, amount uint64, key *ecdsa.PrivateKey) ([]byte, []byte) {
	t.Helper()
	tx := &protocol.Transaction{
		Blknum1:   blk,
		Amount1:   uint256.NewInt(amount),
		NewOwner1: newOwner.Bytes(),
		Denom1:    uint256.NewInt(amount),
	}
	txBytes, err := tx.Encode()
	require.NoError(t, err)
	sig, err := protocol.SignTx(txBytes, key)
	require.NoError(t, err)
	sigs := append(sig, make([]byte, protocol.SignatureLength)...)
	return txBytes, sigs
}

// submitSingleTxBlock commits an operator block holding one transaction and
// returns the block number and the inclusion proof of the transaction
func submitSingleTxBlock(t *testing.T, rc *RootChain, txBytes, sigs []byte) (uint64, []byte) {
	t.Helper()
	tree, err := protocol.NewMerkleTree([]common.Hash{protocol.LeafHash(txBytes, sigs)})
	require.NoError(t, err)
	proof, err := tree.Proof(0)
	require.NoError(t, err)
	num, err := rc.SubmitBlock(testAuthority, tree.Root())
	require.NoError(t, err)
	return num, proof
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func balanceOf(t *testing.T, rc *RootChain, addr common.Address) uint64 {
	t.Helper()
	bal, err := rc.BalanceOf(addr)
	require.NoError(t, err)
	return bal.Uint64()
}

func childChainBalance(t *testing.T, rc *RootChain) uint64 {
	t.Helper()
	ccb, err := rc.ChildChainBalance()
	require.NoError(t, err)
	return ccb.Uint64()
}

func exitState(t *testing.T, rc *RootChain, key *uint256.Int) protocol.ExitState {
	t.Helper()
	exit, err := rc.GetExit(key)
	require.NoError(t, err)
	return exit.State
}
