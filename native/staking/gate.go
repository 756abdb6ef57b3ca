package staking

import (
	"fmt"
	"math/big"

	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/core/rewards"
)

// admission is the input evaluated by each gate predicate. The program and
// account must already be checkpointed to now.
type admission struct {
	program *Program
	account *Account
	amount  *big.Int
	now     uint64
	// held is the reward balance available to back liabilities.
	held *big.Int
}

type predicate struct {
	reason string
	check  func(in admission) error
}

// admissionGate is evaluated in order and stops at the first failure.
var admissionGate = []predicate{
	{reason: "zero_amount", check: checkAmount},
	{reason: "paused", check: checkMode},
	{reason: "ended", check: checkPeriod},
	{reason: "reward_pool", check: checkSolvency},
	{reason: "program_cap", check: checkProgramCap},
	{reason: "account_cap", check: checkAccountCap},
	{reason: "active_stake", check: checkSingleStake},
}

// admit runs the gate and returns the first failure together with the
// predicate name used for metrics.
func admit(in admission) (string, error) {
	for _, p := range admissionGate {
		if err := p.check(in); err != nil {
			return p.reason, err
		}
	}
	return "", nil
}

func checkAmount(in admission) error {
	if in.amount == nil || in.amount.Sign() <= 0 {
		return stakingerrors.ErrZeroAmount
	}
	return nil
}

func checkMode(in admission) error {
	switch in.program.Mode {
	case ModeTerminated:
		return stakingerrors.ErrProgramTerminated
	case ModePaused:
		return stakingerrors.ErrProgramPaused
	}
	return nil
}

func checkPeriod(in admission) error {
	if in.now >= in.program.PeriodFinish {
		return stakingerrors.ErrProgramEnded
	}
	return nil
}

func checkSolvency(in admission) error {
	liability := projectedLiability(in.program, in.amount, in.now)
	if liability.Cmp(in.held) > 0 {
		return fmt.Errorf("%w: liability %s, held %s", stakingerrors.ErrInsufficientRewardPool, liability, in.held)
	}
	return nil
}

func checkProgramCap(in admission) error {
	limit := in.program.MaxProgramCap
	if limit == nil {
		return nil
	}
	next := new(big.Int).Add(in.program.TotalStaked, in.amount)
	if next.Cmp(limit) > 0 {
		return fmt.Errorf("%w: total %s, cap %s", stakingerrors.ErrProgramCapExceeded, next, limit)
	}
	return nil
}

func checkAccountCap(in admission) error {
	limit := in.program.MaxStakePerAccount
	if limit == nil {
		return nil
	}
	next := new(big.Int).Add(in.account.Staked, in.amount)
	if next.Cmp(limit) > 0 {
		return fmt.Errorf("%w: balance %s, cap %s", stakingerrors.ErrMaxStakeExceeded, next, limit)
	}
	return nil
}

func checkSingleStake(in admission) error {
	if in.program.SingleStake && in.account.Staked.Sign() > 0 {
		return stakingerrors.ErrActiveStake
	}
	return nil
}

// projectedLiability is the reward the program owes once amount joins the
// pool: everything released but unpaid plus the emission left in the period.
// Emission only becomes a liability when someone is staked to receive it.
func projectedLiability(p *Program, amount *big.Int, now uint64) *big.Int {
	liability := p.Outstanding()
	nextTotal := new(big.Int).Add(p.TotalStaked, cloneBig(amount))
	if nextTotal.Sign() > 0 {
		liability.Add(liability, rewards.Remaining(p.RewardRate, now, p.PeriodFinish))
	}
	return liability
}
