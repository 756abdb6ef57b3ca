package staking

import (
	"errors"
	"math/big"
	"testing"

	"stakingrewards/core/events"
	stakingerrors "stakingrewards/core/errors"
)

func TestControllerRequiresOwner(t *testing.T) {
	f := newFixture(t)
	mallory := testAddr("mallory")

	checks := map[string]error{
		"pause":        f.engine.SetPaused(mallory, true),
		"maxStake":     f.engine.AdjustMaxStakeAmount(mallory, big.NewInt(1)),
		"programCap":   f.engine.AdjustProgramCap(mallory, big.NewInt(1)),
		"duration":     f.engine.SetRewardsDuration(mallory, 10),
		"transferRole": f.engine.TransferOwnership(mallory, mallory),
	}
	_, err := f.engine.EmergencyWithdraw(mallory)
	checks["emergency"] = err
	_, err = f.engine.NotifyRewardAmount(mallory, big.NewInt(1))
	checks["notify"] = err

	for name, err := range checks {
		if !errors.Is(err, stakingerrors.ErrNotOwner) {
			t.Fatalf("%s: expected ErrNotOwner, got %v", name, err)
		}
		if stakingerrors.Code(err) != "NotOwner" {
			t.Fatalf("%s: unexpected code %q", name, stakingerrors.Code(err))
		}
	}
}

func TestNotifyRewardAmountBlendsLeftover(t *testing.T) {
	f := newFixture(t)
	if rate := f.notify(t, 1_000_000); rate.Int64() != 1000 {
		t.Fatalf("unexpected first rate %s", rate)
	}
	f.clock.Advance(500)
	rate := f.notify(t, 1_000_000)
	if rate.Int64() != 1500 {
		t.Fatalf("expected blended rate 1500, got %s", rate)
	}
	p := f.programState(t)
	if p.PeriodStart != uint64(f.clock.now) || p.PeriodFinish != uint64(f.clock.now)+testDuration {
		t.Fatalf("period not reset: %d-%d", p.PeriodStart, p.PeriodFinish)
	}
	if p.TotalRewardInjected.Int64() != 2_000_000 {
		t.Fatalf("unexpected injected total %s", p.TotalRewardInjected)
	}
	forDuration, err := f.engine.RewardForDuration()
	if err != nil || forDuration.Int64() != 1_500_000 {
		t.Fatalf("unexpected reward for duration %v %v", forDuration, err)
	}
}

func TestNotifyRewardAmountRejectsUnbackedBudget(t *testing.T) {
	f := newFixture(t)
	if err := f.reward.Mint(f.program, big.NewInt(1000)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_, err := f.engine.NotifyRewardAmount(f.owner, big.NewInt(2000))
	if !errors.Is(err, stakingerrors.ErrRewardTooHigh) {
		t.Fatalf("expected ErrRewardTooHigh, got %v", err)
	}
	if f.programState(t).PeriodFinish != 0 {
		t.Fatalf("rejected notify started a period")
	}

	distributor := testAddr("distributor")
	if _, err := f.engine.NotifyRewardAmount(distributor, big.NewInt(1000)); err != nil {
		t.Fatalf("distributor notify: %v", err)
	}
	status, _ := f.engine.Status()
	if status != StatusActive {
		t.Fatalf("expected active status, got %s", status)
	}
}

func TestSetRewardsDuration(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetRewardsDuration(f.owner, 0); !errors.Is(err, stakingerrors.ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	f.notify(t, 1_000_000)
	if err := f.engine.SetRewardsDuration(f.owner, 500); !errors.Is(err, stakingerrors.ErrPeriodActive) {
		t.Fatalf("expected ErrPeriodActive, got %v", err)
	}
	f.clock.Advance(int64(testDuration))
	if err := f.engine.SetRewardsDuration(f.owner, 500); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	if rate := f.notify(t, 1_000_000); rate.Int64() != 2000 {
		t.Fatalf("expected rate over new duration, got %s", rate)
	}
	if n := len(f.recorder.OfType(events.TypeRewardsDurationUpdated)); n != 1 {
		t.Fatalf("expected one duration event, got %d", n)
	}
}

func TestAdjustCapsNeverUndercutBalances(t *testing.T) {
	f := newFixture(t)
	alice := testAddr("alice")
	f.fund(t, alice, 500)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 300)

	if err := f.engine.AdjustProgramCap(f.owner, big.NewInt(299)); !errors.Is(err, stakingerrors.ErrProgramCapExceeded) {
		t.Fatalf("expected ErrProgramCapExceeded, got %v", err)
	}
	if err := f.engine.AdjustMaxStakeAmount(f.owner, big.NewInt(299)); !errors.Is(err, stakingerrors.ErrMaxStakeExceeded) {
		t.Fatalf("expected ErrMaxStakeExceeded, got %v", err)
	}
	if err := f.engine.AdjustProgramCap(f.owner, big.NewInt(350)); err != nil {
		t.Fatalf("adjust program cap: %v", err)
	}
	if err := f.engine.AdjustMaxStakeAmount(f.owner, big.NewInt(320)); err != nil {
		t.Fatalf("adjust account cap: %v", err)
	}
	if err := f.engine.Stake(alice, big.NewInt(30)); !errors.Is(err, stakingerrors.ErrMaxStakeExceeded) {
		t.Fatalf("expected ErrMaxStakeExceeded, got %v", err)
	}
	if err := f.engine.AdjustMaxStakeAmount(f.owner, nil); err != nil {
		t.Fatalf("remove account cap: %v", err)
	}
	if err := f.engine.Stake(alice, big.NewInt(51)); !errors.Is(err, stakingerrors.ErrProgramCapExceeded) {
		t.Fatalf("expected ErrProgramCapExceeded, got %v", err)
	}
	f.mustStake(t, alice, 50)

	caps := f.recorder.OfType(events.TypeCapUpdated)
	if len(caps) != 3 {
		t.Fatalf("expected 3 cap events, got %d", len(caps))
	}
	if got := caps[2].Event().Attributes["amount"]; got != "unbounded" {
		t.Fatalf("unexpected cap attribute %q", got)
	}
}

func TestEmergencyWithdrawTerminatesProgram(t *testing.T) {
	f := newFixture(t)
	alice, bob := testAddr("alice"), testAddr("bob")
	f.fund(t, alice, 100)
	f.fund(t, bob, 200)
	f.notify(t, 1_000_000)
	f.mustStake(t, alice, 100)
	f.mustStake(t, bob, 200)
	f.clock.Advance(100)

	total, err := f.engine.EmergencyWithdraw(f.owner)
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if total.Int64() != 300 {
		t.Fatalf("unexpected returned principal %s", total)
	}
	if f.stake.BalanceOf(alice).Int64() != 100 || f.stake.BalanceOf(bob).Int64() != 200 {
		t.Fatalf("principal not returned")
	}
	p := f.programState(t)
	if p.Mode != ModeTerminated || p.TotalStaked.Sign() != 0 {
		t.Fatalf("program not unwound: mode %s total %s", p.Mode, p.TotalStaked)
	}
	if status, _ := f.engine.Status(); status != StatusTerminated {
		t.Fatalf("unexpected status %s", status)
	}
	if n := len(f.recorder.OfType(events.TypeEmergencyWithdrawn)); n != 2 {
		t.Fatalf("expected 2 emergency events, got %d", n)
	}

	err = f.engine.Stake(alice, big.NewInt(1))
	if !errors.Is(err, stakingerrors.ErrProgramTerminated) || !errors.Is(err, stakingerrors.ErrProgramPaused) {
		t.Fatalf("expected terminated admission error, got %v", err)
	}
	if err := f.engine.SetPaused(f.owner, true); err != nil {
		t.Fatalf("pausing a terminated program should be a no-op: %v", err)
	}
	if err := f.engine.SetPaused(f.owner, false); !errors.Is(err, stakingerrors.ErrProgramTerminated) {
		t.Fatalf("expected ErrProgramTerminated, got %v", err)
	}
	if _, err := f.engine.EmergencyWithdraw(f.owner); !errors.Is(err, stakingerrors.ErrProgramTerminated) {
		t.Fatalf("expected ErrProgramTerminated, got %v", err)
	}

	f.clock.Advance(100)
	paid, err := f.engine.GetReward(bob)
	if err != nil {
		t.Fatalf("claim after termination: %v", err)
	}
	if paid.Int64() != 66_666 {
		t.Fatalf("unexpected payout %s", paid)
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	next := testAddr("next-owner")
	if err := f.engine.TransferOwnership(f.owner, next); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	if err := f.engine.SetPaused(f.owner, true); !errors.Is(err, stakingerrors.ErrNotOwner) {
		t.Fatalf("previous owner kept privileges: %v", err)
	}
	if err := f.engine.SetPaused(next, true); err != nil {
		t.Fatalf("new owner pause: %v", err)
	}
	evts := f.recorder.OfType(events.TypeOwnershipTransferred)
	if len(evts) != 1 || evts[0].Event().Attributes["previous"] != f.owner.String() {
		t.Fatalf("unexpected ownership events %+v", evts)
	}
}
