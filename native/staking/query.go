package staking

import (
	"math/big"

	"stakingrewards/core/rewards"
	"stakingrewards/crypto"
	"stakingrewards/native/bank"
)

// view runs fn against a projection of the state at the current time. The
// projection is discarded afterwards.
func (e *Engine) view(fn func(tx *txn) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.begin()
	if err != nil {
		return err
	}
	return fn(tx)
}

// Program returns the program record checkpointed to now.
func (e *Engine) Program() (*Program, error) {
	var out *Program
	err := e.view(func(tx *txn) error {
		out = tx.program.Clone()
		return nil
	})
	return out, err
}

// Account returns the account record with rewards settled up to now. The
// second result is false when addr never staked.
func (e *Engine) Account(addr crypto.Address) (*Account, bool, error) {
	var (
		out   *Account
		found bool
	)
	err := e.view(func(tx *txn) error {
		acct, ok, err := tx.account(addr, false)
		if err != nil || !ok {
			return err
		}
		out, found = acct.Clone(), true
		return nil
	})
	return out, found, err
}

// Accounts lists every account record ever created, settled up to now.
func (e *Engine) Accounts() ([]*Account, error) {
	var out []*Account
	err := e.view(func(tx *txn) error {
		stored, err := tx.state.Accounts()
		if err != nil {
			return err
		}
		for _, record := range stored {
			acct, _, err := tx.account(record.Address, false)
			if err != nil {
				return err
			}
			out = append(out, acct.Clone())
		}
		return nil
	})
	return out, err
}

// BalanceOf returns the stake held by addr.
func (e *Engine) BalanceOf(addr crypto.Address) (*big.Int, error) {
	acct, ok, err := e.Account(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return acct.Staked, nil
}

// TotalStaked returns the sum of all staked balances.
func (e *Engine) TotalStaked() (*big.Int, error) {
	p, err := e.Program()
	if err != nil {
		return nil, err
	}
	return p.TotalStaked, nil
}

// Earned returns the reward addr could claim now.
func (e *Engine) Earned(addr crypto.Address) (*big.Int, error) {
	acct, ok, err := e.Account(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return acct.Settled, nil
}

// UnclaimedRewards is an alias of Earned.
func (e *Engine) UnclaimedRewards(addr crypto.Address) (*big.Int, error) {
	return e.Earned(addr)
}

func (e *Engine) HasParticipated(addr crypto.Address) (bool, error) {
	acct, ok, err := e.Account(addr)
	if err != nil || !ok {
		return false, err
	}
	return acct.HasParticipated, nil
}

// StakeStartTime returns when the current stake of addr began, or zero.
func (e *Engine) StakeStartTime(addr crypto.Address) (uint64, error) {
	acct, ok, err := e.Account(addr)
	if err != nil || !ok {
		return 0, err
	}
	return acct.StakeStartTime, nil
}

// RewardPerToken returns the accumulator projected to now.
func (e *Engine) RewardPerToken() (*big.Int, error) {
	p, err := e.Program()
	if err != nil {
		return nil, err
	}
	return p.RewardPerTokenStored, nil
}

func (e *Engine) LastTimeRewardApplicable() (uint64, error) {
	var out uint64
	err := e.view(func(tx *txn) error {
		out = rewards.LastTimeApplicable(tx.now, tx.program.PeriodFinish)
		return nil
	})
	return out, err
}

// RewardForDuration is the total emission of a full period at the current
// rate.
func (e *Engine) RewardForDuration() (*big.Int, error) {
	p, err := e.Program()
	if err != nil {
		return nil, err
	}
	return new(big.Int).Mul(p.RewardRate, new(big.Int).SetUint64(p.RewardsDuration)), nil
}

// RewardsAvailable returns the reward balance held for the program, net of
// staked principal when both assets coincide.
func (e *Engine) RewardsAvailable() (*big.Int, error) {
	var out *big.Int
	err := e.view(func(tx *txn) error {
		out = e.heldRewards(tx.program)
		return nil
	})
	return out, err
}

// GateKeeper reports whether the reward pool could back a stake of amount.
func (e *Engine) GateKeeper(amount *big.Int) (bool, error) {
	var ok bool
	err := e.view(func(tx *txn) error {
		ok = checkSolvency(admission{
			program: tx.program,
			amount:  cloneBig(amount),
			now:     tx.now,
			held:    e.heldRewards(tx.program),
		}) == nil
		return nil
	})
	return ok, err
}

// Now returns the engine clock in unix seconds.
func (e *Engine) Now() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock()
}

func (e *Engine) Status() (Status, error) {
	var out Status
	err := e.view(func(tx *txn) error {
		out = tx.program.Status(tx.now)
		return nil
	})
	return out, err
}

// Token resolves one of the program assets by symbol.
func (e *Engine) Token(symbol string) (bank.Token, bool) {
	switch {
	case equalSymbol(symbol, e.stake.Symbol()):
		return e.stake, true
	case equalSymbol(symbol, e.reward.Symbol()):
		return e.reward, true
	}
	return nil, false
}
