package staking

import (
	"errors"
	"fmt"
	"math/big"

	"stakingrewards/core/events"
	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/crypto"
	"stakingrewards/native/bank"
)

type recordKey [crypto.AddressLength]byte

// txn holds the working copies of one transition. Nothing reaches State
// until the closure passed to execute returns without error.
type txn struct {
	state   State
	now     uint64
	program *Program
	before  *Program

	accounts  map[recordKey]*Account
	originals map[recordKey]*Account
	order     []crypto.Address

	transfers []transfer
	events    []events.Event
	paid      *big.Int
	rejection string
}

// transfer is a ledger interaction queued until bookkeeping is committed.
// A non-zero spender selects TransferFrom.
type transfer struct {
	token   bank.Token
	from    crypto.Address
	spender crypto.Address
	to      crypto.Address
	amount  *big.Int
}

func (t transfer) apply() error {
	if !t.spender.IsZero() {
		return t.token.TransferFrom(t.from, t.spender, t.to, t.amount)
	}
	return t.token.Transfer(t.from, t.to, t.amount)
}

func (e *Engine) begin() (*txn, error) {
	stored, ok, err := e.state.Program()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoProgram
	}
	tx := &txn{
		state:     e.state,
		now:       e.clock(),
		program:   stored.Clone(),
		before:    stored,
		accounts:  make(map[recordKey]*Account),
		originals: make(map[recordKey]*Account),
		paid:      big.NewInt(0),
	}
	checkpoint(tx.program, tx.now)
	return tx, nil
}

// account returns the working copy for addr, settled against the program
// accumulator. With create set a missing record is started fresh.
func (tx *txn) account(addr crypto.Address, create bool) (*Account, bool, error) {
	key := recordKey(addr.Key())
	if acct, ok := tx.accounts[key]; ok {
		return acct, true, nil
	}
	stored, ok, err := tx.state.Account(addr)
	if err != nil {
		return nil, false, err
	}
	var acct *Account
	switch {
	case ok:
		acct = stored.Clone()
		tx.originals[key] = stored
	case create:
		acct = newAccount(addr)
		tx.originals[key] = nil
	default:
		return nil, false, nil
	}
	settle(tx.program, acct)
	tx.accounts[key] = acct
	tx.order = append(tx.order, addr)
	return acct, true, nil
}

// pull moves amount from owner into program custody using the allowance
// granted to the program address.
func (tx *txn) pull(token bank.Token, owner crypto.Address, amount *big.Int) {
	tx.transfers = append(tx.transfers, transfer{
		token:   token,
		from:    owner,
		spender: tx.program.Address,
		to:      tx.program.Address,
		amount:  cloneBig(amount),
	})
}

func (tx *txn) push(token bank.Token, from, to crypto.Address, amount *big.Int) {
	tx.transfers = append(tx.transfers, transfer{token: token, from: from, to: to, amount: cloneBig(amount)})
}

func (tx *txn) emit(evt events.Event) {
	tx.events = append(tx.events, evt)
}

func (tx *txn) changeSet() ChangeSet {
	cs := ChangeSet{Program: tx.program}
	for _, addr := range tx.order {
		cs.Accounts = append(cs.Accounts, tx.accounts[recordKey(addr.Key())])
	}
	return cs
}

// undoSet restores the records as they were before the transition and drops
// any account it created.
func (tx *txn) undoSet() ChangeSet {
	cs := ChangeSet{Program: tx.before}
	for _, addr := range tx.order {
		original := tx.originals[recordKey(addr.Key())]
		if original == nil {
			cs.Deleted = append(cs.Deleted, addr)
			continue
		}
		cs.Accounts = append(cs.Accounts, original)
	}
	return cs
}

// execute runs fn under the engine lock. Bookkeeping is committed before any
// ledger interaction; a failed interaction reverts the ledgers and restores
// the previous records.
func (e *Engine) execute(op string, fn func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := e.begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		e.reject(op, tx, err)
		return err
	}
	if err := e.state.Commit(tx.changeSet()); err != nil {
		e.metrics.ObserveOperation(op, "error")
		e.logger.Error("staking commit failed", "op", op, "error", err)
		return fmt.Errorf("staking engine: %s: %w", op, err)
	}
	if err := e.interact(tx); err != nil {
		if undoErr := e.state.Commit(tx.undoSet()); undoErr != nil {
			e.logger.Error("staking rollback failed", "op", op, "error", undoErr)
			err = errors.Join(err, undoErr)
		}
		e.metrics.ObserveOperation(op, "transfer_failed")
		e.logger.Warn("staking transfer failed", "op", op, "error", err)
		return err
	}
	e.finish(op, tx)
	return nil
}

func (e *Engine) reject(op string, tx *txn, err error) {
	e.metrics.ObserveOperation(op, "rejected")
	if tx.rejection != "" {
		e.metrics.ObserveRejection(tx.rejection)
	}
	e.logger.Info("staking operation rejected",
		"op", op,
		"code", stakingerrors.Code(err),
		"error", err,
	)
}

func (e *Engine) finish(op string, tx *txn) {
	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	e.metrics.ObserveOperation(op, "ok")
	e.metrics.SetProgram(tx.program.TotalStaked, tx.program.RewardRate)
	e.metrics.AddRewardsPaid(tx.paid)
	e.logger.Debug("staking transition committed",
		"op", op,
		"totalStaked", tx.program.TotalStaked.String(),
		"rewardPerToken", tx.program.RewardPerTokenStored.String(),
		"accounts", len(tx.order),
		"transfers", len(tx.transfers),
	)
}

type journalScope struct {
	journal bank.Journal
	id      int
}

// interact performs the queued transfers in order. Journaled tokens are
// reverted on failure; other tokens get compensating transfers for the
// steps that already went through.
func (e *Engine) interact(tx *txn) error {
	if len(tx.transfers) == 0 {
		return nil
	}
	tokens := []bank.Token{e.stake}
	if e.reward != e.stake {
		tokens = append(tokens, e.reward)
	}
	var scopes []journalScope
	for _, token := range tokens {
		if j, ok := token.(bank.Journal); ok {
			scopes = append(scopes, journalScope{journal: j, id: j.Snapshot()})
		}
	}
	for i, t := range tx.transfers {
		if err := t.apply(); err != nil {
			err = fmt.Errorf("%w: %s %s to %s: %w", stakingerrors.ErrTransferFailed, t.token.Symbol(), t.amount, t.to, err)
			for _, scope := range scopes {
				if revertErr := scope.journal.RevertToSnapshot(scope.id); revertErr != nil {
					e.logger.Error("staking ledger revert failed", "error", revertErr)
					err = errors.Join(err, revertErr)
				}
			}
			e.compensate(tx.transfers[:i])
			return err
		}
	}
	for _, scope := range scopes {
		scope.journal.Release(scope.id)
	}
	return nil
}

func (e *Engine) compensate(done []transfer) {
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		if _, ok := t.token.(bank.Journal); ok {
			continue
		}
		if err := t.token.Transfer(t.to, t.from, t.amount); err != nil {
			e.logger.Error("staking compensation failed",
				"asset", t.token.Symbol(),
				"amount", t.amount.String(),
				"error", err,
			)
		}
	}
}
