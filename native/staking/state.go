package staking

import (
	"bytes"
	"sort"
	"sync"

	"stakingrewards/crypto"
)

// State persists the program and account records. Implementations must apply
// a ChangeSet atomically.
type State interface {
	Program() (*Program, bool, error)
	Account(addr crypto.Address) (*Account, bool, error)
	Accounts() ([]*Account, error)
	Commit(cs ChangeSet) error
}

// ChangeSet is the unit of work produced by a single engine call.
type ChangeSet struct {
	Program  *Program
	Accounts []*Account
	// Deleted lists accounts to drop. Only used when rolling back records
	// created by a call whose ledger interaction failed.
	Deleted []crypto.Address
}

// memState keeps records in process memory.
type memState struct {
	mu       sync.RWMutex
	program  *Program
	accounts map[[crypto.AddressLength]byte]*Account
}

// NewMemState returns an empty in-memory State.
func NewMemState() State {
	return &memState{accounts: make(map[[crypto.AddressLength]byte]*Account)}
}

func (s *memState) Program() (*Program, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.program == nil {
		return nil, false, nil
	}
	return s.program.Clone(), true, nil
}

func (s *memState) Account(addr crypto.Address) (*Account, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[addr.Key()]
	if !ok {
		return nil, false, nil
	}
	return acct.Clone(), true, nil
}

func (s *memState) Accounts() ([]*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		out = append(out, acct.Clone())
	}
	sortAccounts(out)
	return out, nil
}

func (s *memState) Commit(cs ChangeSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs.Program != nil {
		s.program = cs.Program.Clone()
	}
	for _, acct := range cs.Accounts {
		s.accounts[acct.Address.Key()] = acct.Clone()
	}
	for _, addr := range cs.Deleted {
		delete(s.accounts, addr.Key())
	}
	return nil
}

func sortAccounts(accounts []*Account) {
	sort.Slice(accounts, func(i, j int) bool {
		a, b := accounts[i].Address.Key(), accounts[j].Address.Key()
		return bytes.Compare(a[:], b[:]) < 0
	})
}
