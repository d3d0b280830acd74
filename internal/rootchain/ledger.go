package rootchain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Payout moves native value out of the root chain's custody to an account's
// external holdings.
type Payout interface {
	Pay(to common.Address, amount *uint256.Int) error
}

// bookPayout records payouts in the store's external holdings book
type bookPayout struct {
	store *Store
}

func (p *bookPayout) Pay(to common.Address, amount *uint256.Int) error {
	b := p.store.NewBatch()
	if err := p.book(b, to, amount); err != nil {
		return err
	}
	return b.Write()
}

// book adds amount to the holdings of to within b
func (p *bookPayout) book(b *Batch, to common.Address, amount *uint256.Int) error {
	held, err := p.store.Holdings(to)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(held, amount)
	if overflow {
		return ErrOverflow
	}
	b.PutHoldings(to, sum)
	return nil
}

// Ledger tracks withdrawable balances, the aggregate child chain reserve and
// the value held in custody.
type Ledger struct {
	store  *Store
	payout Payout
}

// NewLedger creates a ledger. A nil payout books transfers in the store.
func NewLedger(store *Store, payout Payout) *Ledger {
	if payout == nil {
		payout = &bookPayout{store: store}
	}
	return &Ledger{store: store, payout: payout}
}

// BalanceOf returns the withdrawable balance of addr
func (l *Ledger) BalanceOf(addr common.Address) (*uint256.Int, error) {
	return l.store.Balance(addr)
}

// ChildChainBalance returns the value escrowed for pending and future exits
func (l *Ledger) ChildChainBalance() (*uint256.Int, error) {
	return l.store.ChildChainBalance()
}

// ContractBalance returns the value held in custody
func (l *Ledger) ContractBalance() (*uint256.Int, error) {
	return l.store.ContractBalance()
}

// Holdings returns the value paid out to addr by the default payout
func (l *Ledger) Holdings(addr common.Address) (*uint256.Int, error) {
	return l.store.Holdings(addr)
}

// escrow takes value into custody and adds it to the child chain reserve
func (l *Ledger) escrow(b *Batch, value *uint256.Int) error {
	ccb, err := l.store.ChildChainBalance()
	if err != nil {
		return err
	}
	custody, err := l.store.ContractBalance()
	if err != nil {
		return err
	}
	newCCB, o1 := new(uint256.Int).AddOverflow(ccb, value)
	newCustody, o2 := new(uint256.Int).AddOverflow(custody, value)
	if o1 || o2 {
		return ErrOverflow
	}
	b.PutChildChainBalance(newCCB)
	b.PutContractBalance(newCustody)
	return nil
}

// release moves amount from the child chain reserve to owner's balance. The
// reserve never goes negative.
func (l *Ledger) release(b *Batch, owner common.Address, amount *uint256.Int) error {
	ccb, err := l.store.ChildChainBalance()
	if err != nil {
		return err
	}
	bal, err := l.store.Balance(owner)
	if err != nil {
		return err
	}
	newCCB, underflow := new(uint256.Int).SubOverflow(ccb, amount)
	if underflow {
		return errors.Wrapf(ErrInsufficientReserve, "reserve %s, exit %s", ccb.Dec(), amount.Dec())
	}
	newBal, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return ErrOverflow
	}
	b.PutChildChainBalance(newCCB)
	b.PutBalance(owner, newBal)
	return nil
}

// Withdraw pays out the whole balance of addr and zeroes it. A zero balance is
// a no-op. The built-in book is credited in the same batch that clears the
// balance. An external payout runs after the balance is cleared; if it fails
// the balance is restored.
func (l *Ledger) Withdraw(addr common.Address) (*uint256.Int, error) {
	bal, err := l.store.Balance(addr)
	if err != nil {
		return nil, err
	}
	if bal.IsZero() {
		return bal, nil
	}
	custody, err := l.store.ContractBalance()
	if err != nil {
		return nil, err
	}
	newCustody, underflow := new(uint256.Int).SubOverflow(custody, bal)
	if underflow {
		return nil, errors.Errorf("custody %s cannot cover balance %s", custody.Dec(), bal.Dec())
	}

	b := l.store.NewBatch()
	b.PutBalance(addr, new(uint256.Int))
	b.PutContractBalance(newCustody)
	if book, ok := l.payout.(*bookPayout); ok {
		if err := book.book(b, addr, bal); err != nil {
			return nil, errors.Wrap(err, "payout")
		}
		if err := b.Write(); err != nil {
			return nil, err
		}
		return bal, nil
	}
	if err := b.Write(); err != nil {
		return nil, err
	}

	if err := l.payout.Pay(addr, bal); err != nil {
		undo := l.store.NewBatch()
		undo.PutBalance(addr, bal)
		undo.PutContractBalance(custody)
		if uerr := undo.Write(); uerr != nil {
			logger.Crit("Failed to restore balance after payout error", "addr", addr, "amount", bal, "err", uerr)
		}
		return nil, errors.Wrap(err, "payout")
	}
	return bal, nil
}
