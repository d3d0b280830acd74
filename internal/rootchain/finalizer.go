package rootchain

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/config"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

// HaltReason says why a finalization sweep stopped
type HaltReason string

const (
	HaltEmpty    HaltReason = "empty"    // queue exhausted
	HaltImmature HaltReason = "immature" // next exit still inside its exit period
	HaltLimit    HaltReason = "limit"    // per-call iteration cap reached
)

// FinalizeReport summarizes one sweep
type FinalizeReport struct {
	Finalized []*uint256.Int
	Cancelled []*uint256.Int
	Credited  *uint256.Int
	Skipped   int
	Halt      HaltReason
	Remaining int
}

// Finalizer pays out matured exits in ascending priority order
type Finalizer struct {
	store  *Store
	queue  *ExitQueue
	ledger *Ledger
	period uint64
	limit  int
	policy string
}

func NewFinalizer(store *Store, queue *ExitQueue, ledger *Ledger, period uint64, limit int, policy string) *Finalizer {
	if policy == "" {
		policy = config.PolicyStopAtFirstImmature
	}
	return &Finalizer{store: store, queue: queue, ledger: ledger, period: period, limit: limit, policy: policy}
}

// FinalizeExits sweeps the queue at logical time now. Under the default policy
// the sweep halts at the first immature exit, so no exit is paid before an
// older one. Each exit is written in its own batch; a sweep stopped early
// leaves every exit pending and queued, finalized and credited, or cancelled.
//
// A matured exit is cancelled instead of paid when a finalized exit already
// took the value of its output or of one of its inputs, or when the child chain
// balance cannot cover it. Cancelled exits leave the queue so later exits
// still finalize.
func (f *Finalizer) FinalizeExits(now uint64) (*FinalizeReport, error) {
	report := &FinalizeReport{Credited: new(uint256.Int)}
	var deferred []*uint256.Int
	defer func() {
		for _, key := range deferred {
			f.queue.Insert(key)
		}
		report.Remaining = f.queue.Len()
	}()

	for iter := 0; ; iter++ {
		if f.limit > 0 && iter >= f.limit {
			report.Halt = HaltLimit
			return report, nil
		}
		key, ok := f.queue.PeekMin()
		if !ok {
			report.Halt = HaltEmpty
			if len(deferred) > 0 {
				report.Halt = HaltImmature
			}
			return report, nil
		}

		exit, err := f.store.Exit(key)
		if err != nil {
			return report, err
		}
		if exit == nil || exit.State != protocol.ExitPending {
			return report, errors.Errorf("queued priority %s has no pending exit", key.Dec())
		}

		if exit.MaturesAt(f.period) > now {
			if f.policy != config.PolicySkipImmature {
				report.Halt = HaltImmature
				return report, nil
			}
			f.queue.PopMin()
			deferred = append(deferred, key)
			report.Skipped++
			continue
		}

		total := exit.Total()
		b := f.store.NewBatch()
		reason, err := f.conflict(key, exit)
		if err != nil {
			return report, err
		}
		if reason == "" {
			if err := f.ledger.release(b, exit.Owner, total); err != nil {
				if !errors.Is(err, ErrInsufficientReserve) {
					return report, err
				}
				reason = err.Error()
				b = f.store.NewBatch()
			}
		}
		if reason != "" {
			exit.State = protocol.ExitCancelled
		} else {
			exit.State = protocol.ExitFinalized
		}
		b.PutExit(key, exit)
		b.Dequeue(key)
		if err := b.Write(); err != nil {
			return report, err
		}
		f.queue.PopMin()

		if reason != "" {
			report.Cancelled = append(report.Cancelled, key)
			logger.Warn("Cancelled exit", "priority", key, "owner", exit.Owner.Hex(), "reason", reason)
			continue
		}
		report.Finalized = append(report.Finalized, key)
		report.Credited.Add(report.Credited, total)
		logger.Info("Finalized exit", "priority", key, "owner", exit.Owner.Hex(), "credited", total)
	}
}

// conflict returns why the exit under key must not be paid, or "" if it may be
func (f *Finalizer) conflict(key *uint256.Int, exit *protocol.Exit) (string, error) {
	spender, ok, err := f.store.SpenderOf(exit.Output)
	if err != nil {
		return "", err
	}
	if ok && !spender.Eq(key) {
		state, err := f.store.exitState(spender)
		if err != nil {
			return "", err
		}
		if state == protocol.ExitFinalized {
			return fmt.Sprintf("output %s spent by finalized exit %s", exit.Output, spender.Dec()), nil
		}
	}
	for _, ref := range exit.Spends {
		state, err := f.store.OutputExitState(ref)
		if err != nil {
			return "", err
		}
		if state == protocol.ExitFinalized {
			return fmt.Sprintf("input %s already exited", ref), nil
		}
		other, ok, err := f.store.SpenderOf(ref)
		if err != nil {
			return "", err
		}
		if !ok || other.Eq(key) {
			continue
		}
		if state, err = f.store.exitState(other); err != nil {
			return "", err
		}
		if state == protocol.ExitFinalized {
			return fmt.Sprintf("input %s spent by finalized exit %s", ref, other.Dec()), nil
		}
	}
	return "", nil
}
