package rootchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/plasma-experiment/rootchain/internal/protocol"
)

// ChildBlockInterval is the spacing of operator block numbers. Deposit blocks
// take the numbers in between.
const ChildBlockInterval = 1000

// Chain records child block commitments: operator blocks submitted by the
// authority and single-transaction deposit blocks.
type Chain struct {
	store     *Store
	ledger    *Ledger
	authority common.Address
}

func NewChain(store *Store, ledger *Ledger, authority common.Address) *Chain {
	return &Chain{store: store, ledger: ledger, authority: authority}
}

// SubmitBlock commits an operator block root. Only the authority may submit.
func (c *Chain) SubmitBlock(caller common.Address, root common.Hash, now uint64) (*protocol.ChildBlock, error) {
	if caller != c.authority {
		return nil, errors.Wrapf(ErrNotAuthority, "caller %s", caller.Hex())
	}
	child, _, err := c.store.ChainCounters()
	if err != nil {
		return nil, err
	}

	blk := &protocol.ChildBlock{Number: child, Root: root, CreatedAt: now}
	b := c.store.NewBatch()
	b.PutBlock(blk)
	b.PutChainCounters(child+ChildBlockInterval, 1)
	if err := b.Write(); err != nil {
		return nil, err
	}
	logger.Info("Submitted child block", "number", blk.Number, "root", root)
	return blk, nil
}

// Deposit locks value for a deposit transaction and commits its deposit block.
// The transaction must spend nothing and pay value to caller in its first output.
func (c *Chain) Deposit(caller common.Address, txBytes []byte, value *uint256.Int, now uint64) (*protocol.ChildBlock, error) {
	tx, err := protocol.DecodeTransaction(txBytes)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidDeposit, err.Error())
	}
	if err := checkDeposit(tx, caller, value); err != nil {
		return nil, err
	}

	child, deposit, err := c.store.ChainCounters()
	if err != nil {
		return nil, err
	}
	if deposit >= ChildBlockInterval {
		return nil, errors.Wrapf(ErrDepositLimit, "child block %d", child)
	}

	blk := &protocol.ChildBlock{
		Number:    child - ChildBlockInterval + deposit,
		Root:      protocol.DepositRoot(txBytes),
		CreatedAt: now,
		Deposit:   true,
	}
	b := c.store.NewBatch()
	if err := c.ledger.escrow(b, value); err != nil {
		return nil, err
	}
	b.PutBlock(blk)
	b.PutChainCounters(child, deposit+1)
	if err := b.Write(); err != nil {
		return nil, err
	}
	logger.Info("Deposit", "block", blk.Number, "owner", caller.Hex(), "value", value)
	return blk, nil
}

func checkDeposit(tx *protocol.Transaction, caller common.Address, value *uint256.Int) error {
	switch {
	case !tx.IsDeposit():
		return errors.Wrap(ErrInvalidDeposit, "deposit spends an input")
	case len(tx.NewOwner1) == 0 || tx.Owner(0) != caller:
		return errors.Wrap(ErrInvalidDeposit, "first output not owned by depositor")
	case !tx.Denom1.Eq(value):
		return errors.Wrapf(ErrInvalidDeposit, "output %s does not match value %s", tx.Denom1.Dec(), value.Dec())
	case value.IsZero():
		return errors.Wrap(ErrInvalidDeposit, "zero value")
	case len(tx.NewOwner2) != 0 || !tx.Denom2.IsZero():
		return errors.Wrap(ErrInvalidDeposit, "second output must be empty")
	}
	return nil
}

// ChildBlock returns the committed block n
func (c *Chain) ChildBlock(n uint64) (*protocol.ChildBlock, error) {
	blk, err := c.store.Block(n)
	if err != nil {
		return nil, err
	}
	if blk == nil {
		return nil, errors.Wrapf(ErrBlockNotFound, "block %d", n)
	}
	return blk, nil
}

// CurrentChildBlock is the number the next operator block will get
func (c *Chain) CurrentChildBlock() (uint64, error) {
	child, _, err := c.store.ChainCounters()
	return child, err
}

// CurrentDepositBlock is the deposit counter within the current interval
func (c *Chain) CurrentDepositBlock() (uint64, error) {
	_, deposit, err := c.store.ChainCounters()
	return deposit, err
}
