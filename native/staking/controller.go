package staking

import (
	"fmt"
	"math/big"

	"stakingrewards/core/events"
	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/core/rewards"
	"stakingrewards/crypto"
)

func requireOwner(p *Program, caller crypto.Address) error {
	if caller.IsZero() || !caller.Equal(p.Owner) {
		return stakingerrors.ErrNotOwner
	}
	return nil
}

// NotifyRewardAmount starts a new reward period funded with amount. Reward
// not yet emitted from a running period is rolled into the new one. The
// reward tokens must already be held by the program address.
func (e *Engine) NotifyRewardAmount(caller crypto.Address, amount *big.Int) (*big.Int, error) {
	if amount != nil && amount.Sign() < 0 {
		return nil, stakingerrors.ErrZeroAmount
	}
	amt := cloneBig(amount)
	var rate *big.Int
	err := e.execute("notify", func(tx *txn) error {
		p := tx.program
		if caller.IsZero() || (!caller.Equal(p.Owner) && !caller.Equal(p.Distributor)) {
			return stakingerrors.ErrNotOwner
		}
		if p.Mode == ModeTerminated {
			return stakingerrors.ErrProgramTerminated
		}
		next := rewards.NextRate(amt, p.RewardRate, p.RewardsDuration, tx.now, p.PeriodFinish)
		required := new(big.Int).Mul(next, new(big.Int).SetUint64(p.RewardsDuration))
		required.Add(required, p.Outstanding())
		held := e.heldRewards(p)
		if required.Cmp(held) > 0 {
			return fmt.Errorf("%w: requires %s, held %s", stakingerrors.ErrRewardTooHigh, required, held)
		}
		p.RewardRate = next
		p.PeriodStart = tx.now
		p.PeriodFinish = tx.now + p.RewardsDuration
		p.LastUpdateTime = tx.now
		p.TotalRewardInjected.Add(p.TotalRewardInjected, amt)
		rate = cloneBig(next)
		tx.emit(events.RewardAdded{
			Caller:       caller,
			Amount:       amt,
			RewardRate:   cloneBig(next),
			PeriodStart:  p.PeriodStart,
			PeriodFinish: p.PeriodFinish,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rate, nil
}

// SetRewardsDuration changes the length of the next reward period. The
// current period must have finished.
func (e *Engine) SetRewardsDuration(caller crypto.Address, duration uint64) error {
	return e.execute("set_duration", func(tx *txn) error {
		p := tx.program
		if err := requireOwner(p, caller); err != nil {
			return err
		}
		if duration == 0 {
			return stakingerrors.ErrInvalidDuration
		}
		if tx.now < p.PeriodFinish {
			return fmt.Errorf("%w: period finishes at %d", stakingerrors.ErrPeriodActive, p.PeriodFinish)
		}
		p.RewardsDuration = duration
		tx.emit(events.RewardsDurationUpdated{Caller: caller, Duration: duration})
		return nil
	})
}

// AdjustMaxStakeAmount sets the per-account ceiling; nil removes it. A
// ceiling below an existing balance is refused so the cap always holds.
func (e *Engine) AdjustMaxStakeAmount(caller crypto.Address, limit *big.Int) error {
	return e.execute("adjust_max_stake", func(tx *txn) error {
		p := tx.program
		if err := requireOwner(p, caller); err != nil {
			return err
		}
		if err := validateCap(limit); err != nil {
			return err
		}
		if limit != nil {
			accounts, err := tx.state.Accounts()
			if err != nil {
				return err
			}
			for _, acct := range accounts {
				if acct.Staked.Cmp(limit) > 0 {
					return fmt.Errorf("%w: %s holds %s", stakingerrors.ErrMaxStakeExceeded, acct.Address, acct.Staked)
				}
			}
		}
		p.MaxStakePerAccount = cloneOptional(limit)
		tx.emit(events.CapUpdated{Caller: caller, Kind: events.CapKindAccount, Value: cloneOptional(limit)})
		return nil
	})
}

// AdjustProgramCap sets the program-wide ceiling; nil removes it.
func (e *Engine) AdjustProgramCap(caller crypto.Address, limit *big.Int) error {
	return e.execute("adjust_program_cap", func(tx *txn) error {
		p := tx.program
		if err := requireOwner(p, caller); err != nil {
			return err
		}
		if err := validateCap(limit); err != nil {
			return err
		}
		if limit != nil && p.TotalStaked.Cmp(limit) > 0 {
			return fmt.Errorf("%w: total staked %s", stakingerrors.ErrProgramCapExceeded, p.TotalStaked)
		}
		p.MaxProgramCap = cloneOptional(limit)
		tx.emit(events.CapUpdated{Caller: caller, Kind: events.CapKindProgram, Value: cloneOptional(limit)})
		return nil
	})
}

func validateCap(limit *big.Int) error {
	if limit != nil && limit.Sign() < 0 {
		return fmt.Errorf("%w: cap must not be negative", stakingerrors.ErrZeroAmount)
	}
	return nil
}

// SetPaused toggles admission of new stake. A terminated program stays
// terminated: pausing it again is a no-op and unpausing fails.
func (e *Engine) SetPaused(caller crypto.Address, paused bool) error {
	return e.execute("set_paused", func(tx *txn) error {
		p := tx.program
		if err := requireOwner(p, caller); err != nil {
			return err
		}
		if p.Mode == ModeTerminated {
			if paused {
				return nil
			}
			return stakingerrors.ErrProgramTerminated
		}
		next := ModeActive
		if paused {
			next = ModePaused
		}
		if p.Mode == next {
			return nil
		}
		p.Mode = next
		tx.emit(events.PauseToggled{Caller: caller, Paused: paused, Mode: next.String()})
		return nil
	})
}

// EmergencyWithdraw returns every staked balance to its owner and terminates
// the program. Settled rewards stay claimable. It returns the total principal
// returned.
func (e *Engine) EmergencyWithdraw(caller crypto.Address) (*big.Int, error) {
	total := big.NewInt(0)
	err := e.execute("emergency_withdraw", func(tx *txn) error {
		p := tx.program
		if err := requireOwner(p, caller); err != nil {
			return err
		}
		if p.Mode == ModeTerminated {
			return stakingerrors.ErrProgramTerminated
		}
		stored, err := tx.state.Accounts()
		if err != nil {
			return err
		}
		for _, record := range stored {
			acct, _, err := tx.account(record.Address, false)
			if err != nil {
				return err
			}
			if acct.Staked.Sign() == 0 {
				continue
			}
			amount := cloneBig(acct.Staked)
			acct.Staked = big.NewInt(0)
			acct.StakeStartTime = 0
			total.Add(total, amount)
			tx.push(e.stake, p.Address, acct.Address, amount)
			tx.emit(events.EmergencyWithdrawn{Caller: caller, Account: acct.Address, Amount: amount})
		}
		p.TotalStaked = big.NewInt(0)
		p.Mode = ModeTerminated
		tx.emit(events.PauseToggled{Caller: caller, Paused: true, Mode: ModeTerminated.String()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// TransferOwnership hands the privileged role to next.
func (e *Engine) TransferOwnership(caller, next crypto.Address) error {
	return e.execute("transfer_ownership", func(tx *txn) error {
		p := tx.program
		if err := requireOwner(p, caller); err != nil {
			return err
		}
		if next.IsZero() {
			return stakingerrors.ErrInvalidAddress
		}
		previous := p.Owner
		p.Owner = next
		tx.emit(events.OwnershipTransferred{Previous: previous, Next: next})
		return nil
	})
}
