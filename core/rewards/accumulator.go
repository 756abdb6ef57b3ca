// Package rewards implements the reward-per-token accumulator used by the
// staking program. All amounts are integers; per-token values are scaled by
// Scale so integer division loses at most one unit per settlement.
package rewards

import "math/big"

const indexScale = int64(1_000_000_000_000_000_000)

var indexScaleBig = big.NewInt(indexScale)

// Scale returns the fixed-point factor applied to reward-per-token values.
func Scale() *big.Int {
	return new(big.Int).Set(indexScaleBig)
}

// LastTimeApplicable clamps now to the end of the reward period.
func LastTimeApplicable(now, periodFinish uint64) uint64 {
	if now < periodFinish {
		return now
	}
	return periodFinish
}

// RewardPerToken projects the accumulator forward from lastUpdate to applicable.
// The stored value is returned unchanged when nothing is staked or no time has
// elapsed.
func RewardPerToken(stored, rate, totalStaked *big.Int, lastUpdate, applicable uint64) *big.Int {
	out := copyOrZero(stored)
	if totalStaked == nil || totalStaked.Sign() <= 0 || applicable <= lastUpdate {
		return out
	}
	if rate == nil || rate.Sign() <= 0 {
		return out
	}
	increment := new(big.Int).SetUint64(applicable - lastUpdate)
	increment.Mul(increment, rate)
	increment.Mul(increment, indexScaleBig)
	increment.Quo(increment, totalStaked)
	return out.Add(out, increment)
}

// Earned returns the settled reward plus the portion accrued on balance since
// the account last observed the accumulator at paid.
func Earned(balance, rewardPerToken, paid, settled *big.Int) *big.Int {
	out := copyOrZero(settled)
	if balance == nil || balance.Sign() <= 0 {
		return out
	}
	delta := new(big.Int).Sub(copyOrZero(rewardPerToken), copyOrZero(paid))
	if delta.Sign() <= 0 {
		return out
	}
	delta.Mul(delta, balance)
	delta.Quo(delta, indexScaleBig)
	return out.Add(out, delta)
}

// Released returns the pool-wide reward emitted between lastUpdate and
// applicable at the given rate.
func Released(rate *big.Int, lastUpdate, applicable uint64) *big.Int {
	if rate == nil || rate.Sign() <= 0 || applicable <= lastUpdate {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(rate, new(big.Int).SetUint64(applicable-lastUpdate))
}

// Remaining returns the reward still to be emitted before periodFinish.
func Remaining(rate *big.Int, now, periodFinish uint64) *big.Int {
	if now >= periodFinish {
		return big.NewInt(0)
	}
	return Released(rate, now, periodFinish)
}

// NextRate computes the emission rate after injecting amount at now. Any reward
// not yet emitted in the current period is rolled into the new period.
func NextRate(amount, rate *big.Int, duration, now, periodFinish uint64) *big.Int {
	if duration == 0 {
		return big.NewInt(0)
	}
	total := copyOrZero(amount)
	total.Add(total, Remaining(rate, now, periodFinish))
	return total.Quo(total, new(big.Int).SetUint64(duration))
}

func copyOrZero(value *big.Int) *big.Int {
	if value == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(value)
}
