package rootchain

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/config"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

var logger = log.New("pkg", "rootchain")

// Options configure a RootChain
type Options struct {
	Authority          common.Address
	ExitPeriod         uint64
	MinExitBond        *uint256.Int
	MaxFinalizePerCall int
	Policy             string
	Payout             Payout // nil books payouts in the store
}

// OptionsFromConfig converts the file configuration
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	if cfg.Authority != "" && !common.IsHexAddress(cfg.Authority) {
		return Options{}, errors.Errorf("invalid authority address %q", cfg.Authority)
	}
	return Options{
		Authority:          common.HexToAddress(cfg.Authority),
		ExitPeriod:         cfg.ExitPeriod,
		MinExitBond:        uint256.NewInt(cfg.MinExitBond),
		MaxFinalizePerCall: cfg.MaxFinalizePerCall,
		Policy:             cfg.FinalizePolicy,
	}, nil
}

// RootChain is the root chain ledger: child block commitments, deposits, the
// exit game and withdrawable balances. Mutations are serialized by a single
// writer lock and each one is applied fully or not at all.
type RootChain struct {
	mu sync.RWMutex

	store     *Store
	queue     *ExitQueue
	ledger    *Ledger
	chain     *Chain
	registry  *Registry
	finalizer *Finalizer
	opts      Options
}

// New opens a root chain over store, restoring the exit queue from it
func New(store *Store, opts Options) (*RootChain, error) {
	initPrometheusMetrics()

	if opts.MinExitBond == nil {
		opts.MinExitBond = new(uint256.Int)
	}
	keys, err := store.QueuedKeys()
	if err != nil {
		return nil, errors.Wrap(err, "restore exit queue")
	}

	queue := NewExitQueue(keys)
	ledger := NewLedger(store, opts.Payout)
	rc := &RootChain{
		store:     store,
		queue:     queue,
		ledger:    ledger,
		chain:     NewChain(store, ledger, opts.Authority),
		registry:  NewRegistry(store, queue, ledger, NewMerkleVerifier(store), opts.MinExitBond),
		finalizer: NewFinalizer(store, queue, ledger, opts.ExitPeriod, opts.MaxFinalizePerCall, opts.Policy),
		opts:      opts,
	}
	rc.updateGauges()

	logger.Info("Root chain ready", "authority", opts.Authority.Hex(), "exitPeriod", opts.ExitPeriod,
		"minBond", opts.MinExitBond, "pending", queue.Len())
	return rc, nil
}

func (rc *RootChain) updateGauges() {
	prometheusQueueDepth.Set(float64(rc.queue.Len()))
	if ccb, err := rc.ledger.ChildChainBalance(); err == nil {
		prometheusChildChainBalance.Set(ccb.Float64())
	}
}

func reject(function string, err error) error {
	prometheusRejections.WithLabelValues(function, ErrorKind(err)).Inc()
	return err
}

// Deposit locks value for a deposit transaction and returns its block number
func (rc *RootChain) Deposit(caller common.Address, txBytes []byte, value *uint256.Int) (uint64, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now, err := rc.store.Clock()
	if err != nil {
		return 0, err
	}
	blk, err := rc.chain.Deposit(caller, txBytes, value, now)
	if err != nil {
		return 0, reject("deposit", err)
	}
	prometheusDeposits.Inc()
	rc.updateGauges()
	return blk.Number, nil
}

// SubmitBlock commits an operator block root
func (rc *RootChain) SubmitBlock(caller common.Address, root common.Hash) (uint64, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now, err := rc.store.Clock()
	if err != nil {
		return 0, err
	}
	blk, err := rc.chain.SubmitBlock(caller, root, now)
	if err != nil {
		return 0, reject("submitBlock", err)
	}
	return blk.Number, nil
}

// StartExit registers an exit and returns its priority key
func (rc *RootChain) StartExit(req ExitRequest) (*uint256.Int, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now, err := rc.store.Clock()
	if err != nil {
		return nil, err
	}
	key, err := rc.registry.StartExit(req, now)
	if err != nil {
		logger.Debug("Rejected exit", "caller", req.Caller.Hex(), "pos", req.Pos, "err", err)
		return nil, reject("startExit", err)
	}
	prometheusExitsStarted.Inc()
	rc.updateGauges()
	return key, nil
}

// FinalizeExits pays out matured exits at the current logical time
func (rc *RootChain) FinalizeExits() (*FinalizeReport, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now, err := rc.store.Clock()
	if err != nil {
		return nil, err
	}
	report, err := rc.finalizer.FinalizeExits(now)
	if report != nil {
		prometheusExitsFinalized.Add(float64(len(report.Finalized)))
		prometheusExitsCancelled.Add(float64(len(report.Cancelled)))
		prometheusSweepSize.Observe(float64(len(report.Finalized)))
		rc.updateGauges()
	}
	if err != nil {
		return report, reject("finalizeExits", err)
	}
	if len(report.Finalized) > 0 || len(report.Cancelled) > 0 {
		logger.Info("Finalization sweep", "finalized", len(report.Finalized), "cancelled", len(report.Cancelled),
			"credited", report.Credited, "halt", report.Halt, "remaining", report.Remaining)
	}
	return report, nil
}

// Withdraw pays out the caller's whole balance
func (rc *RootChain) Withdraw(caller common.Address) (*uint256.Int, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	amount, err := rc.ledger.Withdraw(caller)
	if err != nil {
		return nil, reject("withdraw", err)
	}
	if !amount.IsZero() {
		prometheusWithdrawals.Inc()
		logger.Info("Withdrawal", "owner", caller.Hex(), "amount", amount)
	}
	return amount, nil
}

// AdvanceTime moves the logical clock forward to t
func (rc *RootChain) AdvanceTime(t uint64) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	now, err := rc.store.Clock()
	if err != nil {
		return err
	}
	if t < now {
		return errors.Wrapf(ErrClockRewind, "now %d, requested %d", now, t)
	}
	if t == now {
		return nil
	}
	b := rc.store.NewBatch()
	b.PutClock(t)
	return b.Write()
}

// Now returns the logical time
func (rc *RootChain) Now() (uint64, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.store.Clock()
}

// GetExit returns a copy of the exit record under key
func (rc *RootChain) GetExit(key *uint256.Int) (*protocol.Exit, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.registry.GetExit(key)
}

// ExitByOutput returns the exit started for ref
func (rc *RootChain) ExitByOutput(ref protocol.OutputRef) (*uint256.Int, *protocol.Exit, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.registry.ExitByOutput(ref)
}

func (rc *RootChain) BalanceOf(addr common.Address) (*uint256.Int, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.ledger.BalanceOf(addr)
}

func (rc *RootChain) ChildChainBalance() (*uint256.Int, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.ledger.ChildChainBalance()
}

func (rc *RootChain) ContractBalance() (*uint256.Int, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.ledger.ContractBalance()
}

func (rc *RootChain) Holdings(addr common.Address) (*uint256.Int, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.ledger.Holdings(addr)
}

// CalculatePriority returns the priority of an encoded transaction
func (rc *RootChain) CalculatePriority(txBytes []byte) (*uint256.Int, error) {
	return protocol.CalculatePriority(txBytes)
}

func (rc *RootChain) ChildBlock(n uint64) (*protocol.ChildBlock, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.chain.ChildBlock(n)
}

func (rc *RootChain) CurrentChildBlock() (uint64, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.chain.CurrentChildBlock()
}

func (rc *RootChain) CurrentDepositBlock() (uint64, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.chain.CurrentDepositBlock()
}

// QueueLen returns the number of pending exits
func (rc *RootChain) QueueLen() int {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return rc.queue.Len()
}

// ExitPeriod is the logical time an exit waits before it can be finalized
func (rc *RootChain) ExitPeriod() uint64 {
	return rc.opts.ExitPeriod
}

// Close closes the underlying store
func (rc *RootChain) Close() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.store.Close()
}
