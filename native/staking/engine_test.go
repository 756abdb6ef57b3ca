package staking

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"
	"time"

	"stakingrewards/core/events"
	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/crypto"
	"stakingrewards/native/bank"
	"stakingrewards/storage"
)

const (
	testStart    = int64(1_700_000_000)
	testDuration = uint64(1000)
)

type testClock struct{ now int64 }

func (c *testClock) Now() time.Time     { return time.Unix(c.now, 0) }
func (c *testClock) Advance(secs int64) { c.now += secs }

// flakyToken fails outgoing transfers, and optionally journal reverts, on
// demand while keeping the ledger journal of the wrapped ledger.
type flakyToken struct {
	*bank.Ledger
	fail       bool
	failRevert bool
}

var errRevertOffline = errors.New("journal store offline")

func (f *flakyToken) RevertToSnapshot(id int) error {
	if f.failRevert {
		return errRevertOffline
	}
	return f.Ledger.RevertToSnapshot(id)
}

func (f *flakyToken) Transfer(from, to crypto.Address, amount *big.Int) error {
	if f.fail {
		return errors.New("ledger offline")
	}
	return f.Ledger.Transfer(from, to, amount)
}

type fixture struct {
	engine   *Engine
	state    State
	stake    *bank.Ledger
	reward   *flakyToken
	clock    *testClock
	recorder *events.Recorder
	owner    crypto.Address
	program  crypto.Address
}

func testAddr(label string) crypto.Address {
	return crypto.DeriveAddress(crypto.AccountPrefix, label)
}

func newFixture(t *testing.T, opts ...func(*Params)) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	stake, err := bank.NewLedger(db, "STK")
	if err != nil {
		t.Fatalf("stake ledger: %v", err)
	}
	rewardLedger, err := bank.NewLedger(db, "RWD")
	if err != nil {
		t.Fatalf("reward ledger: %v", err)
	}
	f := &fixture{
		state:    NewMemState(),
		stake:    stake,
		reward:   &flakyToken{Ledger: rewardLedger},
		clock:    &testClock{now: testStart},
		recorder: &events.Recorder{},
		owner:    testAddr("owner"),
		program:  crypto.DeriveAddress(crypto.ProgramPrefix, "program"),
	}
	params := Params{
		Owner:           f.owner,
		Distributor:     testAddr("distributor"),
		Address:         f.program,
		StakeToken:      f.stake,
		RewardToken:     f.reward,
		RewardsDuration: testDuration,
		ProgramStart:    uint64(testStart),
	}
	for _, opt := range opts {
		opt(&params)
	}
	engine, err := NewEngine(params, f.state)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.SetNowFunc(f.clock.Now)
	engine.SetEmitter(f.recorder)
	f.engine = engine
	return f
}

// fund mints stake to addr and approves the program for all of it.
func (f *fixture) fund(t *testing.T, addr crypto.Address, amount int64) {
	t.Helper()
	if err := f.stake.Mint(addr, big.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.stake.Approve(addr, f.program, bank.MaxAllowance); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

// notify deposits amount into the reward pool and starts a period.
func (f *fixture) notify(t *testing.T, amount int64) *big.Int {
	t.Helper()
	if err := f.reward.Mint(f.program, big.NewInt(amount)); err != nil {
		t.Fatalf("mint reward: %v", err)
	}
	rate, err := f.engine.NotifyRewardAmount(f.owner, big.NewInt(amount))
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	return rate
}

func (f *fixture) mustStake(t *testing.T, addr crypto.Address, amount int64) {
	t.Helper()
	if err := f.engine.Stake(addr, big.NewInt(amount)); err != nil {
		t.Fatalf("stake %d: %v", amount, err)
	}
}

func (f *fixture) earned(t *testing.T, addr crypto.Address) *big.Int {
	t.Helper()
	earned, err := f.engine.Earned(addr)
	if err != nil {
		t.Fatalf("earned: %v", err)
	}
	return earned
}

func (f *fixture) programState(t *testing.T) *Program {
	t.Helper()
	p, err := f.engine.Program()
	if err != nil {
		t.Fatalf("program: %v", err)
	}
	return p
}

func expectErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}

func TestSoleStakerEarnsFullEmission(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 10)

	rate := f.notify(t, 1_000_000)
	if rate.Int64() != 1000 {
		t.Fatalf("unexpected rate %s", rate)
	}
	f.mustStake(t, alice, 3)
	f.clock.Advance(100)

	expected := big.NewInt(100_000)
	diff := new(big.Int).Sub(expected, f.earned(t, alice))
	if diff.Sign() < 0 || diff.Cmp(big.NewInt(1)) > 0 {
		t.Fatalf("earned off by %s", diff)
	}
}

func TestEqualStakesEarnEqually(t *testing.T) {
	f := newFixture(t)
	alice, bob := testAddr("alice"), testAddr("bob")
	f.fund(t, alice, 500)
	f.fund(t, bob, 500)
	f.notify(t, 1_000_000)

	f.mustStake(t, alice, 250)
	f.mustStake(t, bob, 250)
	f.clock.Advance(333)

	a, b := f.earned(t, alice), f.earned(t, bob)
	if a.Cmp(b) != 0 {
		t.Fatalf("expected equal rewards, got %s and %s", a, b)
	}
	if a.Int64() != 166_500 {
		t.Fatalf("unexpected reward %s", a)
	}
}

func TestZeroStakeRejectedWithoutEffect(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.recorder.Reset()

	expectErr(t, f.engine.Stake(alice, big.NewInt(0)), stakingerrors.ErrZeroAmount)
	expectErr(t, f.engine.Stake(alice, nil), stakingerrors.ErrZeroAmount)
	expectErr(t, f.engine.Stake(alice, big.NewInt(-5)), stakingerrors.ErrZeroAmount)

	if _, ok, _ := f.engine.Account(alice); ok {
		t.Fatalf("rejected stake must not create an account")
	}
	if f.programState(t).TotalStaked.Sign() != 0 {
		t.Fatalf("total staked changed")
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("rejected stake emitted events")
	}
	if f.stake.BalanceOf(alice).Int64() != 100 {
		t.Fatalf("ledger balance changed")
	}
}

func TestProgramCapHeadroom(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.MaxProgramCap = big.NewInt(1000) })
	alice, bob := testAddr("alice"), testAddr("bob")
	f.fund(t, alice, 1000)
	f.fund(t, bob, 1000)
	f.notify(t, 1_000_000)

	f.mustStake(t, alice, 600)
	expectErr(t, f.engine.Stake(bob, big.NewInt(401)), stakingerrors.ErrProgramCapExceeded)
	f.mustStake(t, bob, 400)

	if total := f.programState(t).TotalStaked; total.Int64() != 1000 {
		t.Fatalf("expected total at cap, got %s", total)
	}
	expectErr(t, f.engine.Stake(alice, big.NewInt(1)), stakingerrors.ErrProgramCapExceeded)
}

func TestPauseBlocksOnlyAdmission(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 50)
	f.clock.Advance(10)

	if err := f.engine.SetPaused(f.owner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	expectErr(t, f.engine.Stake(alice, big.NewInt(10)), stakingerrors.ErrProgramPaused)

	if err := f.engine.Withdraw(alice, big.NewInt(20)); err != nil {
		t.Fatalf("withdraw while paused: %v", err)
	}
	paid, err := f.engine.GetReward(alice)
	if err != nil {
		t.Fatalf("claim while paused: %v", err)
	}
	if paid.Int64() != 10_000 {
		t.Fatalf("unexpected payout %s", paid)
	}
	if f.reward.BalanceOf(alice).Cmp(paid) != 0 {
		t.Fatalf("reward not delivered")
	}

	if err := f.engine.SetPaused(f.owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	f.mustStake(t, alice, 10)
}

func TestExitClearsPositionKeepsHistory(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)
	f.clock.Advance(50)

	withdrawn, paid, err := f.engine.Exit(alice)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if withdrawn.Int64() != 100 || paid.Int64() != 50_000 {
		t.Fatalf("unexpected exit amounts %s/%s", withdrawn, paid)
	}
	acct, ok, err := f.engine.Account(alice)
	if err != nil || !ok {
		t.Fatalf("account lookup: %v %v", ok, err)
	}
	if acct.Staked.Sign() != 0 || acct.Settled.Sign() != 0 {
		t.Fatalf("exit left balance %s / reward %s", acct.Staked, acct.Settled)
	}
	if !acct.HasParticipated {
		t.Fatalf("participation flag must persist")
	}
	if acct.StakeStartTime != 0 {
		t.Fatalf("stake start should reset, got %d", acct.StakeStartTime)
	}
	if f.stake.BalanceOf(alice).Int64() != 100 {
		t.Fatalf("principal not returned")
	}
	_, _, err = f.engine.Exit(alice)
	expectErr(t, err, stakingerrors.ErrZeroAmount)
}

func TestGetRewardIsIdempotent(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)
	f.clock.Advance(20)

	first, err := f.engine.GetReward(alice)
	if err != nil || first.Sign() <= 0 {
		t.Fatalf("first claim: %v %v", first, err)
	}
	second, err := f.engine.GetReward(alice)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second.Sign() != 0 {
		t.Fatalf("second claim paid %s", second)
	}
	paid, err := f.engine.GetReward(testAddr("stranger"))
	if err != nil || paid.Sign() != 0 {
		t.Fatalf("claim for unknown account: %v %v", paid, err)
	}
}

func TestEarnedMonotonicUntilPeriodEnd(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 7)

	prev := big.NewInt(0)
	for i := 0; i < 15; i++ {
		f.clock.Advance(97)
		current := f.earned(t, alice)
		if current.Cmp(prev) < 0 {
			t.Fatalf("earned decreased from %s to %s", prev, current)
		}
		prev = current
	}
	f.clock.Advance(500)
	if f.earned(t, alice).Cmp(prev) != 0 {
		t.Fatalf("earned must stop growing after the period")
	}
	if prev.Int64() > 1_000_000 {
		t.Fatalf("earned %s exceeds injected budget", prev)
	}
}

func TestRewardsConserved(t *testing.T) {
	f := newFixture(t)
	alice, bob := testAddr("alice"), testAddr("bob")
	f.fund(t, alice, 1000)
	f.fund(t, bob, 1000)
	f.notify(t, 1_000_000)

	f.mustStake(t, alice, 100)
	f.clock.Advance(250)
	f.mustStake(t, bob, 300)
	f.clock.Advance(int64(testDuration))

	total := big.NewInt(0)
	for _, addr := range []crypto.Address{alice, bob} {
		_, paid, err := f.engine.Exit(addr)
		if err != nil {
			t.Fatalf("exit: %v", err)
		}
		total.Add(total, paid)
	}
	p := f.programState(t)
	if total.Cmp(p.TotalRewardInjected) > 0 {
		t.Fatalf("paid %s exceeds injected %s", total, p.TotalRewardInjected)
	}
	if p.TotalRewardPaid.Cmp(total) != 0 {
		t.Fatalf("paid counter %s, payouts %s", p.TotalRewardPaid, total)
	}
	if dust := new(big.Int).Sub(p.TotalRewardInjected, total); dust.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("rounding lost %s", dust)
	}
	held := f.reward.BalanceOf(f.program)
	if new(big.Int).Add(held, total).Int64() != 1_000_000 {
		t.Fatalf("reward ledger does not balance: held %s paid %s", held, total)
	}
}

func TestAdmissionGateOrder(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.MaxProgramCap = big.NewInt(10)
	})
	alice := testAddr("alice")
	f.fund(t, alice, 100)

	// not funded yet
	expectErr(t, f.engine.Stake(alice, big.NewInt(1)), stakingerrors.ErrProgramEnded)
	f.notify(t, 1_000_000)

	if err := f.engine.SetPaused(f.owner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	expectErr(t, f.engine.Stake(alice, big.NewInt(0)), stakingerrors.ErrZeroAmount)
	f.clock.Advance(int64(testDuration))
	expectErr(t, f.engine.Stake(alice, big.NewInt(50)), stakingerrors.ErrProgramPaused)

	if err := f.engine.SetPaused(f.owner, false); err != nil {
		t.Fatalf("unpause: %v", err)
	}
	expectErr(t, f.engine.Stake(alice, big.NewInt(50)), stakingerrors.ErrProgramEnded)
}

func TestInsufficientRewardPool(t *testing.T) {
	f := newFixture(t)
	alice, bob := testAddr("alice"), testAddr("bob")
	f.fund(t, alice, 100)
	f.fund(t, bob, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)

	ok, err := f.engine.GateKeeper(big.NewInt(100))
	if err != nil || !ok {
		t.Fatalf("funded pool should pass: %v %v", ok, err)
	}

	f.clock.Advance(100)
	if err := f.reward.Ledger.Transfer(f.program, testAddr("drain"), big.NewInt(600_000)); err != nil {
		t.Fatalf("drain: %v", err)
	}
	ok, err = f.engine.GateKeeper(big.NewInt(100))
	if err != nil || ok {
		t.Fatalf("drained pool should fail: %v %v", ok, err)
	}
	err = f.engine.Stake(bob, big.NewInt(100))
	expectErr(t, err, stakingerrors.ErrInsufficientRewardPool)
	if code := stakingerrors.Code(err); code != "InsufficientRewardPool" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestAccountCapAndTopUp(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.MaxStakePerAccount = big.NewInt(150) })
	alice := testAddr("alice")
	f.fund(t, alice, 500)
	f.notify(t, 1_000_000)

	f.mustStake(t, alice, 100)
	start, _ := f.engine.StakeStartTime(alice)
	f.clock.Advance(5)
	expectErr(t, f.engine.Stake(alice, big.NewInt(60)), stakingerrors.ErrMaxStakeExceeded)
	f.mustStake(t, alice, 50)

	balance, err := f.engine.BalanceOf(alice)
	if err != nil || balance.Int64() != 150 {
		t.Fatalf("unexpected balance %v %v", balance, err)
	}
	if again, _ := f.engine.StakeStartTime(alice); again != start {
		t.Fatalf("top-up moved stake start from %d to %d", start, again)
	}
}

func TestSingleStakeMode(t *testing.T) {
	f := newFixture(t, func(p *Params) { p.SingleStake = true })
	alice := testAddr("alice")
	f.fund(t, alice, 500)
	f.notify(t, 1_000_000)

	f.mustStake(t, alice, 100)
	expectErr(t, f.engine.Stake(alice, big.NewInt(50)), stakingerrors.ErrActiveStake)
	if err := f.engine.Withdraw(alice, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.mustStake(t, alice, 50)
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)

	expectErr(t, f.engine.Withdraw(alice, big.NewInt(1)), stakingerrors.ErrInsufficientBalance)
	f.mustStake(t, alice, 40)
	expectErr(t, f.engine.Withdraw(alice, big.NewInt(41)), stakingerrors.ErrInsufficientBalance)
	expectErr(t, f.engine.Withdraw(alice, big.NewInt(0)), stakingerrors.ErrZeroAmount)
	expectErr(t, f.engine.Withdraw(crypto.Address{}, big.NewInt(1)), stakingerrors.ErrInvalidAddress)
}

func TestStakeWithoutAllowanceRollsBack(t *testing.T) {
	f := newFixture(t)
	carol := testAddr("carol")
	if err := f.stake.Mint(carol, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.notify(t, 1_000_000)
	f.recorder.Reset()

	err := f.engine.Stake(carol, big.NewInt(100))
	expectErr(t, err, stakingerrors.ErrTransferFailed)
	expectErr(t, err, bank.ErrInsufficientAllowance)

	if _, ok, _ := f.engine.Account(carol); ok {
		t.Fatalf("failed stake left an account record")
	}
	if f.programState(t).TotalStaked.Sign() != 0 {
		t.Fatalf("failed stake changed total")
	}
	if len(f.recorder.Events()) != 0 {
		t.Fatalf("failed stake emitted events")
	}
}

func TestExitRollsBackWhenRewardTransferFails(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)
	f.clock.Advance(10)

	before, _, _ := f.engine.Account(alice)
	f.reward.fail = true
	_, _, err := f.engine.Exit(alice)
	expectErr(t, err, stakingerrors.ErrTransferFailed)

	after, _, _ := f.engine.Account(alice)
	if after.Staked.Cmp(before.Staked) != 0 || after.Settled.Cmp(before.Settled) != 0 {
		t.Fatalf("account changed after failed exit: %+v", after)
	}
	if f.stake.BalanceOf(alice).Sign() != 0 {
		t.Fatalf("stake ledger was not reverted")
	}
	if f.programState(t).TotalStaked.Int64() != 100 {
		t.Fatalf("total staked changed after failed exit")
	}

	f.reward.fail = false
	if _, _, err := f.engine.Exit(alice); err != nil {
		t.Fatalf("exit after recovery: %v", err)
	}
}

func TestExitReportsFailedLedgerRevert(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)
	f.clock.Advance(10)

	f.reward.fail = true
	f.reward.failRevert = true
	_, _, err := f.engine.Exit(alice)
	expectErr(t, err, stakingerrors.ErrTransferFailed)
	if !errors.Is(err, errRevertOffline) {
		t.Fatalf("expected revert failure to be reported, got %v", err)
	}
	if f.stake.BalanceOf(alice).Sign() != 0 {
		t.Fatalf("stake ledger was not reverted")
	}
	if f.programState(t).TotalStaked.Int64() != 100 {
		t.Fatalf("program state not rolled back")
	}
}

func TestSharedAssetExcludesPrincipalFromPool(t *testing.T) {
	db := storage.NewMemDB()
	token, err := bank.NewLedger(db, "MOFI")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	owner, alice := testAddr("owner"), testAddr("alice")
	program := crypto.DeriveAddress(crypto.ProgramPrefix, "mofi")
	clock := &testClock{now: testStart}
	engine, err := NewEngine(Params{
		Owner:           owner,
		Address:         program,
		StakeToken:      token,
		RewardToken:     token,
		RewardsDuration: testDuration,
		ProgramStart:    uint64(testStart),
	}, NewMemState())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.SetNowFunc(clock.Now)

	if err := token.Mint(program, big.NewInt(100_000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := engine.NotifyRewardAmount(owner, big.NewInt(100_000)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := token.Mint(alice, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := engine.Approve("mofi", alice, program, big.NewInt(1000)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := engine.Stake(alice, big.NewInt(1000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	available, err := engine.RewardsAvailable()
	if err != nil || available.Int64() != 100_000 {
		t.Fatalf("principal counted as reward: %v %v", available, err)
	}

	clock.Advance(int64(testDuration))
	withdrawn, paid, err := engine.Exit(alice)
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if withdrawn.Int64() != 1000 || paid.Int64() != 100_000 {
		t.Fatalf("unexpected exit %s/%s", withdrawn, paid)
	}
	if token.BalanceOf(alice).Int64() != 101_000 {
		t.Fatalf("unexpected final balance %s", token.BalanceOf(alice))
	}
}

func TestRandomisedInvariants(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.MaxStakePerAccount = big.NewInt(200)
		p.MaxProgramCap = big.NewInt(500)
	})
	users := []crypto.Address{testAddr("u1"), testAddr("u2"), testAddr("u3"), testAddr("u4")}
	for _, u := range users {
		f.fund(t, u, 10_000)
	}
	f.notify(t, 1_000_000)

	rng := rand.New(rand.NewSource(7))
	lastRPT := big.NewInt(0)
	for step := 0; step < 300; step++ {
		u := users[rng.Intn(len(users))]
		var err error
		switch rng.Intn(5) {
		case 0, 1:
			err = f.engine.Stake(u, big.NewInt(int64(rng.Intn(80))))
		case 2:
			err = f.engine.Withdraw(u, big.NewInt(int64(rng.Intn(80))))
		case 3:
			_, err = f.engine.GetReward(u)
		case 4:
			p := f.programState(t)
			if p.Status(uint64(f.clock.now)) == StatusEnded {
				f.notify(t, 500_000)
			}
		}
		if err != nil {
			code := stakingerrors.Code(err)
			if code == "" || code == "TransferFailed" {
				t.Fatalf("step %d: unexpected error %v", step, err)
			}
		}
		f.clock.Advance(int64(rng.Intn(20)))

		p := f.programState(t)
		accounts, err := f.engine.Accounts()
		if err != nil {
			t.Fatalf("accounts: %v", err)
		}
		sum := big.NewInt(0)
		for _, acct := range accounts {
			if acct.Staked.Cmp(p.MaxStakePerAccount) > 0 {
				t.Fatalf("step %d: account cap violated", step)
			}
			sum.Add(sum, acct.Staked)
		}
		if sum.Cmp(p.TotalStaked) != 0 {
			t.Fatalf("step %d: total %s != sum %s", step, p.TotalStaked, sum)
		}
		if p.TotalStaked.Cmp(p.MaxProgramCap) > 0 {
			t.Fatalf("step %d: program cap violated", step)
		}
		if p.RewardPerTokenStored.Cmp(lastRPT) < 0 {
			t.Fatalf("step %d: accumulator decreased", step)
		}
		if p.TotalRewardPaid.Cmp(p.TotalRewardInjected) > 0 {
			t.Fatalf("step %d: paid %s exceeds injected %s", step, p.TotalRewardPaid, p.TotalRewardInjected)
		}
		lastRPT = p.RewardPerTokenStored
	}
}

func TestEventsEmittedForCommittedTransitions(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)
	f.clock.Advance(10)
	if _, _, err := f.engine.Exit(alice); err != nil {
		t.Fatalf("exit: %v", err)
	}

	wantCounts := map[string]int{
		events.TypeRewardAdded: 1,
		events.TypeStaked:      1,
		events.TypeWithdrawn:   1,
		events.TypeRewardPaid:  1,
	}
	for typ, want := range wantCounts {
		if got := len(f.recorder.OfType(typ)); got != want {
			t.Fatalf("%s: expected %d events, got %d", typ, want, got)
		}
	}
	paid := f.recorder.OfType(events.TypeRewardPaid)[0].Event()
	if paid.Attributes["account"] != alice.String() || paid.Attributes["amount"] != "10000" {
		t.Fatalf("unexpected reward event %+v", paid.Attributes)
	}
}

func TestLedgerWritesCannotSpendProgramCustody(t *testing.T) {
	f := newFixture(t)
	alice, mallory := testAddr("alice"), testAddr("mallory")
	f.fund(t, alice, 100)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)

	if err := f.engine.Transfer("STK", f.program, mallory, big.NewInt(100)); !errors.Is(err, stakingerrors.ErrProgramCustody) {
		t.Fatalf("expected custody error moving principal, got %v", err)
	}
	if err := f.engine.Transfer("rwd", f.program, mallory, big.NewInt(1_000_000)); !errors.Is(err, stakingerrors.ErrProgramCustody) {
		t.Fatalf("expected custody error moving reward pool, got %v", err)
	}
	if err := f.engine.Approve("STK", f.program, mallory, bank.MaxAllowance); !errors.Is(err, stakingerrors.ErrProgramCustody) {
		t.Fatalf("expected custody error approving from program, got %v", err)
	}
	if got := f.stake.BalanceOf(mallory).Sign() + f.reward.BalanceOf(mallory).Sign(); got != 0 {
		t.Fatalf("mallory should hold nothing")
	}
	if got := f.stake.Allowance(f.program, mallory).Sign(); got != 0 {
		t.Fatalf("unexpected allowance from program")
	}

	// Funding the pool stays open to anyone.
	if err := f.reward.Mint(mallory, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := f.engine.Transfer("RWD", mallory, f.program, big.NewInt(50)); err != nil {
		t.Fatalf("fund pool: %v", err)
	}

	f.clock.Advance(10)
	if err := f.engine.Withdraw(alice, big.NewInt(100)); err != nil {
		t.Fatalf("withdraw after rejected drain: %v", err)
	}
	if got := f.stake.BalanceOf(alice).Int64(); got != 100 {
		t.Fatalf("expected principal returned, got %d", got)
	}
	paid, err := f.engine.GetReward(alice)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Int64() != 10_000 {
		t.Fatalf("unexpected reward %s", paid)
	}
}
