package rootchain

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

const (
	// StoreCacheMB is the LevelDB block cache size in MB.
	StoreCacheMB = 16

	// StoreHandles is the maximum number of open file handles for LevelDB.
	StoreHandles = 16

	// exitCacheBytes bounds the decoded-record cache in front of the database.
	exitCacheBytes = 8 * 1024 * 1024
)

// Key layout. Priority keys are 32-byte big-endian so prefix iteration over
// queuePrefix yields the exit queue in ascending priority order.
var (
	exitPrefix     = []byte("e") // e ‖ priority -> rlp(Exit)
	outputPrefix   = []byte("o") // o ‖ output ref -> priority
	spentPrefix    = []byte("s") // s ‖ input ref -> priority of the exit spending it
	queuePrefix    = []byte("q") // q ‖ priority -> {}
	balancePrefix  = []byte("b") // b ‖ address -> uint256
	holdingsPrefix = []byte("h") // h ‖ address -> uint256
	blockPrefix    = []byte("B") // B ‖ block number -> rlp(ChildBlock)

	childChainBalanceKey = []byte("m:child-chain-balance")
	contractBalanceKey   = []byte("m:contract-balance")
	clockKey             = []byte("m:clock")
	currentChildKey      = []byte("m:current-child-block")
	currentDepositKey    = []byte("m:current-deposit-block")
)

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

func exitKey(priority *uint256.Int) []byte {
	return prefixed(exitPrefix, protocol.PriorityKeyBytes(priority))
}

func outputKey(ref protocol.OutputRef) []byte {
	return prefixed(outputPrefix, ref.Bytes())
}

func spentKey(ref protocol.OutputRef) []byte {
	return prefixed(spentPrefix, ref.Bytes())
}

func queueKey(priority *uint256.Int) []byte {
	return prefixed(queuePrefix, protocol.PriorityKeyBytes(priority))
}

func balanceKey(addr common.Address) []byte {
	return prefixed(balancePrefix, addr.Bytes())
}

func holdingsKey(addr common.Address) []byte {
	return prefixed(holdingsPrefix, addr.Bytes())
}

func blockKey(num uint64) []byte {
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], num)
	return prefixed(blockPrefix, enc[:])
}

// Store is the durable ledger state of the root chain: exit registry, exit
// queue, balances, child blocks and the logical clock. All mutations go through
// a Batch so that each operation is written atomically.
type Store struct {
	db     ethdb.Database
	cache  *fastcache.Cache // encoded exit records by exit key
	mu     sync.RWMutex
	closed bool
}

// NewStore opens the store. An empty path gives an in-memory database.
func NewStore(path string) (*Store, error) {
	var db ethdb.Database

	if path != "" {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, errors.Wrapf(err, "create store directory %s", path)
		}
		ldb, err := leveldb.New(path, StoreCacheMB, StoreHandles, "", false)
		if err != nil {
			return nil, errors.Wrapf(err, "open leveldb at %s", path)
		}
		db = rawdb.NewDatabase(ldb)
		logger.Info("Opened persistent store", "path", path)
	} else {
		db = rawdb.NewMemoryDatabase()
		logger.Info("Using in-memory store (no path specified)")
	}

	return &Store{
		db:    db,
		cache: fastcache.New(exitCacheBytes),
	}, nil
}

// Close gracefully closes the underlying database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.cache.Reset()
	return s.db.Close()
}

// get returns the value under key, or ok=false if it is absent
func (s *Store) get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}
	has, err := s.db.Has(key)
	if err != nil || !has {
		return nil, false, err
	}
	val, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	return common.CopyBytes(val), true, nil
}

func (s *Store) getUint256(key []byte) (*uint256.Int, error) {
	val, ok, err := s.get(key)
	if err != nil || !ok {
		return new(uint256.Int), err
	}
	return new(uint256.Int).SetBytes(val), nil
}

func (s *Store) getUint64(key []byte, def uint64) (uint64, error) {
	v, ok, err := s.get(key)
	if err != nil || !ok {
		return def, err
	}
	n := new(uint256.Int).SetBytes(v)
	if !n.IsUint64() {
		return 0, errors.Errorf("stored value under %q exceeds uint64", key)
	}
	return n.Uint64(), nil
}

// Exit returns the exit record under priority, or nil if there is none
func (s *Store) Exit(priority *uint256.Int) (*protocol.Exit, error) {
	key := exitKey(priority)
	enc, ok := s.cache.HasGet(nil, key)
	if !ok {
		var err error
		enc, ok, err = s.get(key)
		if err != nil {
			return nil, errors.Wrap(err, "read exit")
		}
		if !ok {
			return nil, nil
		}
		s.cache.Set(key, enc)
	}
	var exit protocol.Exit
	if err := rlp.DecodeBytes(enc, &exit); err != nil {
		return nil, errors.Wrap(err, "decode exit")
	}
	return &exit, nil
}

// ExitKeyByOutput returns the key of the exit started for ref, if any
func (s *Store) ExitKeyByOutput(ref protocol.OutputRef) (*uint256.Int, bool, error) {
	val, ok, err := s.get(outputKey(ref))
	if err != nil || !ok {
		return nil, false, err
	}
	return new(uint256.Int).SetBytes(val), true, nil
}

// SpenderOf returns the key of the exit whose transaction spends ref, if any
func (s *Store) SpenderOf(ref protocol.OutputRef) (*uint256.Int, bool, error) {
	val, ok, err := s.get(spentKey(ref))
	if err != nil || !ok {
		return nil, false, err
	}
	return new(uint256.Int).SetBytes(val), true, nil
}

// OutputExitState returns the state of the exit started for ref, or
// ExitNonExistent when there is none
func (s *Store) OutputExitState(ref protocol.OutputRef) (protocol.ExitState, error) {
	key, ok, err := s.ExitKeyByOutput(ref)
	if err != nil || !ok {
		return protocol.ExitNonExistent, err
	}
	return s.exitState(key)
}

// SpenderState returns the state of the exit spending ref, or
// ExitNonExistent when no exit spends it
func (s *Store) SpenderState(ref protocol.OutputRef) (protocol.ExitState, error) {
	key, ok, err := s.SpenderOf(ref)
	if err != nil || !ok {
		return protocol.ExitNonExistent, err
	}
	return s.exitState(key)
}

func (s *Store) exitState(key *uint256.Int) (protocol.ExitState, error) {
	exit, err := s.Exit(key)
	if err != nil || exit == nil {
		return protocol.ExitNonExistent, err
	}
	return exit.State, nil
}

// QueuedKeys returns every queued priority in ascending order
func (s *Store) QueuedKeys() ([]*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	it := s.db.NewIterator(queuePrefix, nil)
	defer it.Release()

	var keys []*uint256.Int
	for it.Next() {
		keys = append(keys, new(uint256.Int).SetBytes(it.Key()[len(queuePrefix):]))
	}
	return keys, it.Error()
}

// Balance returns the withdrawable balance of addr
func (s *Store) Balance(addr common.Address) (*uint256.Int, error) {
	return s.getUint256(balanceKey(addr))
}

// Holdings returns the value paid out to addr
func (s *Store) Holdings(addr common.Address) (*uint256.Int, error) {
	return s.getUint256(holdingsKey(addr))
}

// ChildChainBalance returns the value escrowed for pending and future exits
func (s *Store) ChildChainBalance() (*uint256.Int, error) {
	return s.getUint256(childChainBalanceKey)
}

// ContractBalance returns the native value held in custody
func (s *Store) ContractBalance() (*uint256.Int, error) {
	return s.getUint256(contractBalanceKey)
}

// Clock returns the persisted logical time
func (s *Store) Clock() (uint64, error) {
	return s.getUint64(clockKey, 0)
}

// ChainCounters returns the next operator block number and the deposit counter
func (s *Store) ChainCounters() (uint64, uint64, error) {
	child, err := s.getUint64(currentChildKey, ChildBlockInterval)
	if err != nil {
		return 0, 0, err
	}
	deposit, err := s.getUint64(currentDepositKey, 1)
	return child, deposit, err
}

// Block returns the child block with the given number, or nil
func (s *Store) Block(num uint64) (*protocol.ChildBlock, error) {
	enc, ok, err := s.get(blockKey(num))
	if err != nil || !ok {
		return nil, err
	}
	var blk protocol.ChildBlock
	if err := rlp.DecodeBytes(enc, &blk); err != nil {
		return nil, errors.Wrap(err, "decode block")
	}
	return &blk, nil
}

// Batch collects the writes of one operation
type Batch struct {
	s      *Store
	b      ethdb.Batch
	cached map[string][]byte
	err    error
}

// NewBatch starts an atomic write
func (s *Store) NewBatch() *Batch {
	return &Batch{s: s, b: s.db.NewBatch(), cached: make(map[string][]byte)}
}

func (b *Batch) put(key, val []byte) {
	if b.err == nil {
		b.err = b.b.Put(key, val)
	}
}

func (b *Batch) del(key []byte) {
	if b.err == nil {
		b.err = b.b.Delete(key)
	}
}

// PutExit stores an exit record under its priority
func (b *Batch) PutExit(priority *uint256.Int, exit *protocol.Exit) {
	enc, err := rlp.EncodeToBytes(exit)
	if err != nil {
		if b.err == nil {
			b.err = errors.Wrap(err, "encode exit")
		}
		return
	}
	key := exitKey(priority)
	b.put(key, enc)
	b.cached[string(key)] = enc
}

// IndexOutput records that ref has an exit under priority
func (b *Batch) IndexOutput(ref protocol.OutputRef, priority *uint256.Int) {
	b.put(outputKey(ref), protocol.PriorityKeyBytes(priority))
}

// MarkSpent records that the exit under priority spends ref
func (b *Batch) MarkSpent(ref protocol.OutputRef, priority *uint256.Int) {
	b.put(spentKey(ref), protocol.PriorityKeyBytes(priority))
}

// Enqueue marks priority as queued
func (b *Batch) Enqueue(priority *uint256.Int) {
	b.put(queueKey(priority), []byte{})
}

// Dequeue removes priority from the durable queue
func (b *Batch) Dequeue(priority *uint256.Int) {
	b.del(queueKey(priority))
}

// PutBalance sets the withdrawable balance of addr
func (b *Batch) PutBalance(addr common.Address, v *uint256.Int) {
	b.putUint256(balanceKey(addr), v)
}

// PutHoldings sets the paid-out value of addr
func (b *Batch) PutHoldings(addr common.Address, v *uint256.Int) {
	b.putUint256(holdingsKey(addr), v)
}

// PutChildChainBalance sets the aggregate child chain reserve
func (b *Batch) PutChildChainBalance(v *uint256.Int) {
	b.putUint256(childChainBalanceKey, v)
}

// PutContractBalance sets the value held in custody
func (b *Batch) PutContractBalance(v *uint256.Int) {
	b.putUint256(contractBalanceKey, v)
}

// PutClock sets the logical time
func (b *Batch) PutClock(t uint64) {
	b.putUint256(clockKey, uint256.NewInt(t))
}

// PutChainCounters sets the next operator block number and deposit counter
func (b *Batch) PutChainCounters(child, deposit uint64) {
	b.putUint256(currentChildKey, uint256.NewInt(child))
	b.putUint256(currentDepositKey, uint256.NewInt(deposit))
}

// PutBlock records a child block
func (b *Batch) PutBlock(blk *protocol.ChildBlock) {
	enc, err := rlp.EncodeToBytes(blk)
	if err != nil {
		if b.err == nil {
			b.err = errors.Wrap(err, "encode block")
		}
		return
	}
	b.put(blockKey(blk.Number), enc)
}

func (b *Batch) putUint256(key []byte, v *uint256.Int) {
	b.put(key, v.Bytes())
}

// Write commits the batch. Nothing is written if any step failed.
func (b *Batch) Write() error {
	if b.err != nil {
		return b.err
	}
	b.s.mu.RLock()
	defer b.s.mu.RUnlock()

	if b.s.closed {
		return ErrStoreClosed
	}
	if err := b.b.Write(); err != nil {
		return errors.Wrap(err, "write batch")
	}
	for k, v := range b.cached {
		b.s.cache.Set([]byte(k), v)
	}
	return nil
}
