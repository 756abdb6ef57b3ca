package metrics

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics tracks the staking program state machine.
type StakingMetrics struct {
	operations  *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	totalStaked prometheus.Gauge
	rewardRate  prometheus.Gauge
	rewardsPaid prometheus.Counter
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the lazily registered staking collectors.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_operations_total",
				Help: "Count of staking operations by name and outcome.",
			}, []string{"op", "outcome"}),
			rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "staking_admission_rejections_total",
				Help: "Stake admissions rejected by the gate, by failing predicate.",
			}, []string{"reason"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_staked",
				Help: "Stake currently held by the program in base units.",
			}),
			rewardRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_reward_rate",
				Help: "Reward emitted per second in base units.",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_paid_total",
				Help: "Cumulative reward paid out in base units.",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.operations,
			stakingRegistry.rejections,
			stakingRegistry.totalStaked,
			stakingRegistry.rewardRate,
			stakingRegistry.rewardsPaid,
		)
	})
	return stakingRegistry
}

func (m *StakingMetrics) ObserveOperation(op, outcome string) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
}

func (m *StakingMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.rejections.WithLabelValues(reason).Inc()
}

// SetProgram publishes the pool gauges after a committed transition.
func (m *StakingMetrics) SetProgram(totalStaked, rewardRate *big.Int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(toFloat(totalStaked))
	m.rewardRate.Set(toFloat(rewardRate))
}

func (m *StakingMetrics) AddRewardsPaid(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.Add(toFloat(amount))
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
