package staking

import (
	"math/big"

	"stakingrewards/crypto"
)

// Mode is the administrative state of the program. Time-based expiry is
// derived from the reward period and never stored here.
type Mode uint8

const (
	// ModeActive admits new stake while the reward period runs.
	ModeActive Mode = iota
	// ModePaused blocks admissions until the owner unpauses.
	ModePaused
	// ModeTerminated is entered by an emergency withdrawal and is final.
	ModeTerminated
)

// String returns a lowercase label for the mode.
func (m Mode) String() string {
	switch m {
	case ModeActive:
		return "active"
	case ModePaused:
		return "paused"
	case ModeTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Status summarises the program lifecycle at a point in time.
type Status string

const (
	StatusCreated    Status = "created"
	StatusActive     Status = "active"
	StatusEnded      Status = "ended"
	StatusPaused     Status = "paused"
	StatusTerminated Status = "terminated"
)

// Program is the global state of one staking program. Amounts are denominated
// in the smallest unit of their asset; timestamps are unix seconds.
type Program struct {
	// Owner may invoke privileged controller operations.
	Owner crypto.Address
	// Distributor may inject reward budget in addition to the owner.
	Distributor crypto.Address
	// Address is the custody identity holding staked and reward funds.
	Address crypto.Address

	StakeAsset  string
	RewardAsset string

	// RewardRate is the pool-wide reward emitted per second.
	RewardRate      *big.Int
	RewardsDuration uint64
	PeriodStart     uint64
	PeriodFinish    uint64
	LastUpdateTime  uint64
	// RewardPerTokenStored is the accumulator scaled by rewards.Scale().
	RewardPerTokenStored *big.Int

	TotalStaked *big.Int
	// MaxStakePerAccount and MaxProgramCap are unbounded when nil.
	MaxStakePerAccount *big.Int
	MaxProgramCap      *big.Int

	Mode         Mode
	SingleStake  bool
	ProgramStart uint64

	TotalRewardInjected *big.Int
	TotalRewardAccrued  *big.Int
	TotalRewardPaid     *big.Int
}

// Account is the per-participant record. Records are never deleted so
// participation history stays queryable.
type Account struct {
	Address            crypto.Address
	Staked             *big.Int
	RewardPerTokenPaid *big.Int
	Settled            *big.Int
	HasParticipated    bool
	StakeStartTime     uint64
	TotalClaimed       *big.Int
}

// Status derives the lifecycle status of the program at now.
func (p *Program) Status(now uint64) Status {
	switch {
	case p.Mode == ModeTerminated:
		return StatusTerminated
	case p.Mode == ModePaused:
		return StatusPaused
	case p.PeriodFinish == 0:
		return StatusCreated
	case now >= p.PeriodFinish:
		return StatusEnded
	default:
		return StatusActive
	}
}

// Outstanding is the reward released to stakers and not yet paid out.
func (p *Program) Outstanding() *big.Int {
	out := new(big.Int).Sub(p.TotalRewardAccrued, p.TotalRewardPaid)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// Clone returns a deep copy of the program.
func (p *Program) Clone() *Program {
	if p == nil {
		return nil
	}
	clone := *p
	clone.RewardRate = cloneBig(p.RewardRate)
	clone.RewardPerTokenStored = cloneBig(p.RewardPerTokenStored)
	clone.TotalStaked = cloneBig(p.TotalStaked)
	clone.MaxStakePerAccount = cloneOptional(p.MaxStakePerAccount)
	clone.MaxProgramCap = cloneOptional(p.MaxProgramCap)
	clone.TotalRewardInjected = cloneBig(p.TotalRewardInjected)
	clone.TotalRewardAccrued = cloneBig(p.TotalRewardAccrued)
	clone.TotalRewardPaid = cloneBig(p.TotalRewardPaid)
	return &clone
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Staked = cloneBig(a.Staked)
	clone.RewardPerTokenPaid = cloneBig(a.RewardPerTokenPaid)
	clone.Settled = cloneBig(a.Settled)
	clone.TotalClaimed = cloneBig(a.TotalClaimed)
	return &clone
}

func newAccount(addr crypto.Address) *Account {
	return &Account{
		Address:            addr,
		Staked:             big.NewInt(0),
		RewardPerTokenPaid: big.NewInt(0),
		Settled:            big.NewInt(0),
		TotalClaimed:       big.NewInt(0),
	}
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func cloneOptional(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
