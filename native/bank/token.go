package bank

import (
	"errors"
	"math/big"

	"stakingrewards/crypto"
)

var (
	ErrInvalidAmount         = errors.New("bank: amount must not be negative")
	ErrInsufficientFunds     = errors.New("bank: insufficient funds")
	ErrInsufficientAllowance = errors.New("bank: insufficient allowance")
	ErrInvalidAccount        = errors.New("bank: account required")
)

// MaxAllowance is treated as an unlimited approval and is never decremented.
var MaxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Token is the minimal fungible balance/transfer surface the staking program
// depends on. Transfer moves funds owned by from; TransferFrom moves funds of
// owner on behalf of spender and requires a prior Approve.
type Token interface {
	Symbol() string
	BalanceOf(addr crypto.Address) *big.Int
	Allowance(owner, spender crypto.Address) *big.Int
	Approve(owner, spender crypto.Address, amount *big.Int) error
	Transfer(from, to crypto.Address, amount *big.Int) error
	TransferFrom(owner, spender, to crypto.Address, amount *big.Int) error
}

// Journal is implemented by tokens that can undo writes made after a snapshot.
// Every Snapshot must be closed by exactly one successful RevertToSnapshot or
// by Release. A failed revert leaves the scope open so it can be retried.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int) error
	Release(id int)
}
