package staking

import (
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"stakingrewards/core/events"
	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/core/rewards"
	"stakingrewards/crypto"
	"stakingrewards/native/bank"
	"stakingrewards/observability/metrics"
)

var (
	errNilState  = errors.New("staking engine: state not configured")
	errNilToken  = errors.New("staking engine: stake and reward tokens required")
	errNoProgram = errors.New("staking engine: program not initialised")

	// ErrUnknownAsset is returned for an asset that is neither the stake nor
	// the reward asset of the program.
	ErrUnknownAsset = errors.New("staking engine: unknown asset")
)

// Params are the construction parameters of a program. They only apply when
// the backing State holds no program yet; a persisted program keeps its own
// settings.
type Params struct {
	Owner       crypto.Address
	Distributor crypto.Address
	// Address is the custody identity that holds stake and reward funds.
	Address     crypto.Address
	StakeToken  bank.Token
	RewardToken bank.Token

	RewardsDuration    uint64
	MaxStakePerAccount *big.Int
	MaxProgramCap      *big.Int
	SingleStake        bool
	// ProgramStart defaults to the engine clock when zero.
	ProgramStart uint64
}

// Engine serialises every state transition of one staking program.
type Engine struct {
	mu      sync.Mutex
	state   State
	stake   bank.Token
	reward  bank.Token
	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.StakingMetrics
	now     func() time.Time
}

// NewEngine opens the program held by state, creating it from params when
// state is empty.
func NewEngine(params Params, state State) (*Engine, error) {
	if state == nil {
		return nil, errNilState
	}
	if params.StakeToken == nil || params.RewardToken == nil {
		return nil, errNilToken
	}
	e := &Engine{
		state:   state,
		stake:   params.StakeToken,
		reward:  params.RewardToken,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		now:     time.Now,
	}
	existing, ok, err := state.Program()
	if err != nil {
		return nil, err
	}
	if ok {
		if !equalSymbol(existing.StakeAsset, e.stake.Symbol()) || !equalSymbol(existing.RewardAsset, e.reward.Symbol()) {
			return nil, fmt.Errorf("staking engine: stored program uses %s/%s, got %s/%s",
				existing.StakeAsset, existing.RewardAsset, e.stake.Symbol(), e.reward.Symbol())
		}
		return e, nil
	}
	program, err := newProgram(params, e.stake.Symbol(), e.reward.Symbol(), e.clock())
	if err != nil {
		return nil, err
	}
	if err := state.Commit(ChangeSet{Program: program}); err != nil {
		return nil, err
	}
	return e, nil
}

func newProgram(params Params, stakeAsset, rewardAsset string, now uint64) (*Program, error) {
	if params.Owner.IsZero() || params.Address.IsZero() {
		return nil, fmt.Errorf("%w: owner and program address required", stakingerrors.ErrInvalidAddress)
	}
	if params.RewardsDuration == 0 {
		return nil, stakingerrors.ErrInvalidDuration
	}
	for _, limit := range []*big.Int{params.MaxStakePerAccount, params.MaxProgramCap} {
		if limit != nil && limit.Sign() < 0 {
			return nil, fmt.Errorf("staking engine: negative cap %s", limit)
		}
	}
	start := params.ProgramStart
	if start == 0 {
		start = now
	}
	distributor := params.Distributor
	if distributor.IsZero() {
		distributor = params.Owner
	}
	return &Program{
		Owner:                params.Owner,
		Distributor:          distributor,
		Address:              params.Address,
		StakeAsset:           stakeAsset,
		RewardAsset:          rewardAsset,
		RewardRate:           big.NewInt(0),
		RewardsDuration:      params.RewardsDuration,
		LastUpdateTime:       start,
		RewardPerTokenStored: big.NewInt(0),
		TotalStaked:          big.NewInt(0),
		MaxStakePerAccount:   cloneOptional(params.MaxStakePerAccount),
		MaxProgramCap:        cloneOptional(params.MaxProgramCap),
		Mode:                 ModeActive,
		SingleStake:          params.SingleStake,
		ProgramStart:         start,
		TotalRewardInjected:  big.NewInt(0),
		TotalRewardAccrued:   big.NewInt(0),
		TotalRewardPaid:      big.NewInt(0),
	}, nil
}

// SetNowFunc overrides the clock used to timestamp transitions.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetEmitter wires the sink receiving events of committed transitions.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil || logger == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.logger = logger
}

func (e *Engine) SetMetrics(m *metrics.StakingMetrics) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

func (e *Engine) clock() uint64 {
	ts := e.now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// Stake deposits amount of the stake asset from caller. The caller must have
// approved the program address beforehand.
func (e *Engine) Stake(caller crypto.Address, amount *big.Int) error {
	if caller.IsZero() {
		return stakingerrors.ErrInvalidAddress
	}
	amt := cloneBig(amount)
	return e.execute("stake", func(tx *txn) error {
		acct, _, err := tx.account(caller, true)
		if err != nil {
			return err
		}
		reason, err := admit(admission{
			program: tx.program,
			account: acct,
			amount:  amt,
			now:     tx.now,
			held:    e.heldRewards(tx.program),
		})
		if err != nil {
			tx.rejection = reason
			return err
		}
		if acct.Staked.Sign() == 0 {
			acct.StakeStartTime = tx.now
		}
		acct.Staked.Add(acct.Staked, amt)
		acct.HasParticipated = true
		tx.program.TotalStaked.Add(tx.program.TotalStaked, amt)
		tx.pull(e.stake, caller, amt)
		tx.emit(events.Staked{
			Account:     caller,
			Amount:      amt,
			Balance:     cloneBig(acct.Staked),
			TotalStaked: cloneBig(tx.program.TotalStaked),
		})
		return nil
	})
}

// Withdraw returns amount of staked principal to caller. It stays available
// while the program is paused, ended or terminated.
func (e *Engine) Withdraw(caller crypto.Address, amount *big.Int) error {
	if caller.IsZero() {
		return stakingerrors.ErrInvalidAddress
	}
	amt := cloneBig(amount)
	return e.execute("withdraw", func(tx *txn) error {
		if amt.Sign() <= 0 {
			return stakingerrors.ErrZeroAmount
		}
		acct, ok, err := tx.account(caller, false)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: have 0, need %s", stakingerrors.ErrInsufficientBalance, amt)
		}
		return e.withdraw(tx, acct, amt)
	})
}

// GetReward pays out the settled reward of caller and returns the amount
// paid. A repeat call without elapsed time pays zero.
func (e *Engine) GetReward(caller crypto.Address) (*big.Int, error) {
	if caller.IsZero() {
		return nil, stakingerrors.ErrInvalidAddress
	}
	paid := big.NewInt(0)
	err := e.execute("claim", func(tx *txn) error {
		acct, ok, err := tx.account(caller, false)
		if err != nil || !ok {
			return err
		}
		paid = e.payReward(tx, acct)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Exit withdraws the full stake of caller and pays the settled reward in one
// atomic transition.
func (e *Engine) Exit(caller crypto.Address) (withdrawn *big.Int, paid *big.Int, err error) {
	if caller.IsZero() {
		return nil, nil, stakingerrors.ErrInvalidAddress
	}
	withdrawn, paid = big.NewInt(0), big.NewInt(0)
	err = e.execute("exit", func(tx *txn) error {
		acct, ok, err := tx.account(caller, false)
		if err != nil {
			return err
		}
		if !ok || (acct.Staked.Sign() == 0 && acct.Settled.Sign() == 0) {
			return stakingerrors.ErrZeroAmount
		}
		if acct.Staked.Sign() > 0 {
			withdrawn = cloneBig(acct.Staked)
			if err := e.withdraw(tx, acct, withdrawn); err != nil {
				return err
			}
		}
		paid = e.payReward(tx, acct)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return withdrawn, paid, nil
}

func (e *Engine) withdraw(tx *txn, acct *Account, amt *big.Int) error {
	if acct.Staked.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, need %s", stakingerrors.ErrInsufficientBalance, acct.Staked, amt)
	}
	acct.Staked.Sub(acct.Staked, amt)
	if acct.Staked.Sign() == 0 {
		acct.StakeStartTime = 0
	}
	tx.program.TotalStaked.Sub(tx.program.TotalStaked, amt)
	tx.push(e.stake, tx.program.Address, acct.Address, amt)
	tx.emit(events.Withdrawn{
		Account:     acct.Address,
		Amount:      cloneBig(amt),
		Balance:     cloneBig(acct.Staked),
		TotalStaked: cloneBig(tx.program.TotalStaked),
	})
	return nil
}

func (e *Engine) payReward(tx *txn, acct *Account) *big.Int {
	amount := cloneBig(acct.Settled)
	if amount.Sign() <= 0 {
		return amount
	}
	acct.Settled = big.NewInt(0)
	acct.TotalClaimed.Add(acct.TotalClaimed, amount)
	tx.program.TotalRewardPaid.Add(tx.program.TotalRewardPaid, amount)
	tx.paid.Add(tx.paid, amount)
	tx.push(e.reward, tx.program.Address, acct.Address, amount)
	tx.emit(events.RewardPaid{Account: acct.Address, Amount: cloneBig(amount)})
	return amount
}

// heldRewards is the reward balance backing liabilities. When both assets are
// the same ledger the staked principal is excluded.
func (e *Engine) heldRewards(p *Program) *big.Int {
	held := cloneBig(e.reward.BalanceOf(p.Address))
	if e.sameAsset() {
		held.Sub(held, p.TotalStaked)
	}
	if held.Sign() < 0 {
		return big.NewInt(0)
	}
	return held
}

func (e *Engine) sameAsset() bool {
	return equalSymbol(e.stake.Symbol(), e.reward.Symbol())
}

// checkpoint advances the global accumulator to now. Repeated calls within
// one transition are no-ops.
func checkpoint(p *Program, now uint64) {
	applicable := rewards.LastTimeApplicable(now, p.PeriodFinish)
	if applicable <= p.LastUpdateTime {
		return
	}
	if p.TotalStaked.Sign() > 0 {
		p.TotalRewardAccrued.Add(p.TotalRewardAccrued, rewards.Released(p.RewardRate, p.LastUpdateTime, applicable))
	}
	p.RewardPerTokenStored = rewards.RewardPerToken(p.RewardPerTokenStored, p.RewardRate, p.TotalStaked, p.LastUpdateTime, applicable)
	p.LastUpdateTime = applicable
}

// settle freezes the reward acct earned up to the program accumulator.
func settle(p *Program, acct *Account) {
	acct.Settled = rewards.Earned(acct.Staked, p.RewardPerTokenStored, acct.RewardPerTokenPaid, acct.Settled)
	acct.RewardPerTokenPaid = cloneBig(p.RewardPerTokenStored)
}
