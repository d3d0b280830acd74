package rootchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

// ExitRequest is a call to start an exit of the output at Pos
type ExitRequest struct {
	Caller  common.Address
	Pos     [3]uint64
	TxBytes []byte
	Proof   []byte
	Sigs    []byte
	Bond    *uint256.Int
}

// Registry owns exit records and admits new exits into the queue
type Registry struct {
	store    *Store
	queue    *ExitQueue
	ledger   *Ledger
	verifier Verifier
	minBond  *uint256.Int
}

func NewRegistry(store *Store, queue *ExitQueue, ledger *Ledger, verifier Verifier, minBond *uint256.Int) *Registry {
	return &Registry{
		store:    store,
		queue:    queue,
		ledger:   ledger,
		verifier: verifier,
		minBond:  new(uint256.Int).Set(minBond),
	}
}

// StartExit validates req and registers a pending exit created at now. The
// bond is escrowed with the record; the output amount was escrowed by its deposit.
func (r *Registry) StartExit(req ExitRequest, now uint64) (*uint256.Int, error) {
	if req.Bond == nil || req.Bond.Lt(r.minBond) {
		return nil, errors.Wrapf(ErrInsufficientBond, "minimum %s", r.minBond.Dec())
	}

	out, err := r.verifier.Verify(req.Pos, req.TxBytes, req.Proof, req.Sigs)
	if err != nil {
		return nil, err
	}
	if out.Owner != req.Caller {
		return nil, errors.Wrapf(ErrInvalidOwner, "output %s owned by %s", out.Ref, out.Owner.Hex())
	}

	if key, ok, err := r.store.ExitKeyByOutput(out.Ref); err != nil {
		return nil, err
	} else if ok {
		existing, err := r.store.Exit(key)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.State == protocol.ExitFinalized {
			return nil, errors.Wrapf(ErrReopenFinalized, "output %s", out.Ref)
		}
		if existing != nil && existing.State == protocol.ExitCancelled {
			return nil, errors.Wrapf(ErrAlreadyExited, "output %s exit was cancelled", out.Ref)
		}
		return nil, errors.Wrapf(ErrAlreadyExited, "output %s", out.Ref)
	}

	spends, err := r.checkConflicts(out)
	if err != nil {
		return nil, err
	}

	key := protocol.ComputePriority(out.Ref, now)
	exit := &protocol.Exit{
		Owner:     req.Caller,
		Amount:    out.Amount,
		Bond:      new(uint256.Int).Set(req.Bond),
		State:     protocol.ExitPending,
		CreatedAt: now,
		Output:    out.Ref,
		Spends:    spends,
	}

	b := r.store.NewBatch()
	if err := r.ledger.escrow(b, exit.Bond); err != nil {
		return nil, err
	}
	b.PutExit(key, exit)
	b.IndexOutput(out.Ref, key)
	for _, ref := range spends {
		b.MarkSpent(ref, key)
	}
	b.Enqueue(key)
	if err := b.Write(); err != nil {
		return nil, err
	}
	r.queue.Insert(key)

	logger.Info("Started exit", "priority", key, "output", out.Ref.String(), "owner", exit.Owner.Hex(),
		"amount", exit.Amount, "bond", exit.Bond)
	return key, nil
}

// checkConflicts rejects an exit whose value another live exit holds: its
// output is spent by an exiting transaction, or one of its inputs has exited
// or is spent by another exiting transaction. It returns the inputs to mark.
func (r *Registry) checkConflicts(out *VerifiedOutput) ([]protocol.OutputRef, error) {
	state, err := r.store.SpenderState(out.Ref)
	if err != nil {
		return nil, err
	}
	if state.Live() {
		return nil, errors.Wrapf(ErrDoubleSpend, "output %s spent by a %s exit", out.Ref, state)
	}

	var spends []protocol.OutputRef
	for _, in := range out.Tx.Inputs() {
		if state, err = r.store.OutputExitState(in.Ref); err != nil {
			return nil, err
		}
		if state.Live() {
			return nil, errors.Wrapf(ErrDoubleSpend, "input %s has a %s exit", in.Ref, state)
		}
		if state, err = r.store.SpenderState(in.Ref); err != nil {
			return nil, err
		}
		if state.Live() {
			return nil, errors.Wrapf(ErrDoubleSpend, "input %s spent by a %s exit", in.Ref, state)
		}
		spends = append(spends, in.Ref)
	}
	return spends, nil
}

// GetExit returns the record under key
func (r *Registry) GetExit(key *uint256.Int) (*protocol.Exit, error) {
	exit, err := r.store.Exit(key)
	if err != nil {
		return nil, err
	}
	if exit == nil {
		return nil, errors.Wrapf(ErrExitNotFound, "priority %s", key.Dec())
	}
	return exit, nil
}

// ExitByOutput returns the key and record of the exit started for ref
func (r *Registry) ExitByOutput(ref protocol.OutputRef) (*uint256.Int, *protocol.Exit, error) {
	key, ok, err := r.store.ExitKeyByOutput(ref)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, errors.Wrapf(ErrExitNotFound, "output %s", ref)
	}
	exit, err := r.GetExit(key)
	if err != nil {
		return nil, nil, err
	}
	return key, exit, nil
}
