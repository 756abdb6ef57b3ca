package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"stakingrewards/crypto"
	"stakingrewards/storage"
)

// Ledger is a single-asset balance book persisted in a storage.Database. It
// records every write in an undo journal while a snapshot is open so callers
// can roll back a failed multi-step interaction.
type Ledger struct {
	db     storage.Database
	symbol string
	prefix string

	mu      sync.RWMutex
	journal []undoEntry
	open    int
}

type undoEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// NewLedger opens the ledger for symbol backed by db.
func NewLedger(db storage.Database, symbol string) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("bank: database not configured")
	}
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return nil, fmt.Errorf("bank: symbol required")
	}
	return &Ledger{db: db, symbol: normalized, prefix: "bank/" + normalized + "/"}, nil
}

// Symbol returns the asset ticker.
func (l *Ledger) Symbol() string { return l.symbol }

// BalanceOf returns the balance held by addr. Read failures surface as zero.
func (l *Ledger) BalanceOf(addr crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value, _ := l.read(l.balanceKey(addr))
	return value
}

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value, _ := l.read(l.supplyKey())
	return value
}

// Allowance returns how much spender may move on behalf of owner.
func (l *Ledger) Allowance(owner, spender crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	value, _ := l.read(l.allowanceKey(owner, spender))
	return value
}

// Approve sets the allowance of spender over owner's funds.
func (l *Ledger) Approve(owner, spender crypto.Address, amount *big.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.write(map[string]*big.Int{string(l.allowanceKey(owner, spender)): amount})
}

// Mint credits new units to addr. Used to seed genesis balances.
func (l *Ledger) Mint(to crypto.Address, amount *big.Int) error {
	if to.IsZero() {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.read(l.balanceKey(to))
	if err != nil {
		return err
	}
	supply, err := l.read(l.supplyKey())
	if err != nil {
		return err
	}
	return l.write(map[string]*big.Int{
		string(l.balanceKey(to)): balance.Add(balance, amount),
		string(l.supplyKey()):    supply.Add(supply, amount),
	})
}

// Transfer moves amount from the from account to the to account.
func (l *Ledger) Transfer(from, to crypto.Address, amount *big.Int) error {
	if from.IsZero() || to.IsZero() {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount, nil)
}

// TransferFrom moves amount from owner to to on behalf of spender, consuming
// allowance unless it was set to MaxAllowance.
func (l *Ledger) TransferFrom(owner, spender, to crypto.Address, amount *big.Int) error {
	if owner.IsZero() || spender.IsZero() || to.IsZero() {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowanceKey := l.allowanceKey(owner, spender)
	allowance, err := l.read(allowanceKey)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowance, amount)
	}
	extra := map[string]*big.Int{}
	if allowance.Cmp(MaxAllowance) != 0 {
		extra[string(allowanceKey)] = new(big.Int).Sub(allowance, amount)
	}
	return l.move(owner, to, amount, extra)
}

func (l *Ledger) move(from, to crypto.Address, amount *big.Int, extra map[string]*big.Int) error {
	fromKey, toKey := l.balanceKey(from), l.balanceKey(to)
	fromBal, err := l.read(fromKey)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, fromBal, amount)
	}
	updates := map[string]*big.Int{}
	for k, v := range extra {
		updates[k] = v
	}
	if from.Equal(to) {
		return l.write(updates)
	}
	toBal, err := l.read(toKey)
	if err != nil {
		return err
	}
	updates[string(fromKey)] = fromBal.Sub(fromBal, amount)
	updates[string(toKey)] = toBal.Add(toBal, amount)
	return l.write(updates)
}

// Snapshot opens a journal scope and returns its identifier.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open++
	return len(l.journal)
}

// RevertToSnapshot undoes every write recorded since id and closes the scope.
func (l *Ledger) RevertToSnapshot(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		return fmt.Errorf("bank: unknown snapshot %d", id)
	}
	batch := l.db.NewBatch()
	for i := len(l.journal) - 1; i >= id; i-- {
		entry := l.journal[i]
		if entry.existed {
			batch.Put(entry.key, entry.prev)
		} else {
			batch.Delete(entry.key)
		}
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("bank: revert %s journal: %w", l.symbol, err)
	}
	l.journal = l.journal[:id]
	l.closeScope()
	return nil
}

// Release closes the scope opened by Snapshot and keeps its writes.
func (l *Ledger) Release(int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeScope()
}

func (l *Ledger) closeScope() {
	if l.open > 0 {
		l.open--
	}
	if l.open == 0 {
		l.journal = nil
	}
}

func (l *Ledger) read(key []byte) (*big.Int, error) {
	raw, err := l.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return big.NewInt(0), fmt.Errorf("bank: read %s: %w", key, err)
	}
	value, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return big.NewInt(0), fmt.Errorf("bank: corrupt value at %s", key)
	}
	return value, nil
}

func (l *Ledger) write(updates map[string]*big.Int) error {
	if len(updates) == 0 {
		return nil
	}
	batch := l.db.NewBatch()
	var undo []undoEntry
	for key, value := range updates {
		if l.open > 0 {
			prev, err := l.db.Get([]byte(key))
			switch {
			case err == nil:
				undo = append(undo, undoEntry{key: []byte(key), prev: prev, existed: true})
			case errors.Is(err, storage.ErrNotFound):
				undo = append(undo, undoEntry{key: []byte(key)})
			default:
				return fmt.Errorf("bank: read %s: %w", key, err)
			}
		}
		batch.Put([]byte(key), []byte(value.String()))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("bank: write: %w", err)
	}
	l.journal = append(l.journal, undo...)
	return nil
}

func (l *Ledger) balanceKey(addr crypto.Address) []byte {
	return []byte(l.prefix + "balance/" + addr.Hex())
}

func (l *Ledger) allowanceKey(owner, spender crypto.Address) []byte {
	return []byte(l.prefix + "allowance/" + owner.Hex() + "/" + spender.Hex())
}

func (l *Ledger) supplyKey() []byte {
	return []byte(l.prefix + "supply")
}
