package events

import (
	"math/big"
	"strconv"

	"stakingrewards/core/types"
	"stakingrewards/crypto"
)

const (
	// TypeStaked is emitted when a stake passes the admission gate.
	TypeStaked = "staking.staked"
	// TypeWithdrawn is emitted when staked principal is returned to an account.
	TypeWithdrawn = "staking.withdrawn"
	// TypeRewardPaid is emitted when settled rewards are transferred out.
	TypeRewardPaid = "staking.rewardPaid"
	// TypeRewardAdded is emitted when a new reward budget is injected.
	TypeRewardAdded = "staking.rewardAdded"
	// TypePauseToggled is emitted when the owner changes the pause switch.
	TypePauseToggled = "staking.pauseToggled"
	// TypeEmergencyWithdrawn is emitted once per account unwound by an
	// emergency withdrawal.
	TypeEmergencyWithdrawn = "staking.emergencyWithdrawn"
	// TypeRewardsDurationUpdated is emitted when the period length changes.
	TypeRewardsDurationUpdated = "staking.rewardsDurationUpdated"
	// TypeCapUpdated is emitted when a staking ceiling is adjusted.
	TypeCapUpdated = "staking.capUpdated"
	// TypeOwnershipTransferred is emitted when the owning identity changes.
	TypeOwnershipTransferred = "staking.ownershipTransferred"

	// CapKindAccount identifies the per-account ceiling.
	CapKindAccount = "account"
	// CapKindProgram identifies the program-wide ceiling.
	CapKindProgram = "program"
)

// Staked captures an accepted stake.
type Staked struct {
	Account     crypto.Address
	Amount      *big.Int
	Balance     *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (Staked) EventType() string { return TypeStaked }

// Event converts the structured payload into a broadcastable event.
func (e Staked) Event() *types.Event {
	attrs := map[string]string{
		"amount":      formatAmount(e.Amount),
		"balance":     formatAmount(e.Balance),
		"totalStaked": formatAmount(e.TotalStaked),
	}
	setAddress(attrs, "account", e.Account)
	return &types.Event{Type: TypeStaked, Attributes: attrs}
}

// Withdrawn captures a principal withdrawal.
type Withdrawn struct {
	Account     crypto.Address
	Amount      *big.Int
	Balance     *big.Int
	TotalStaked *big.Int
}

// EventType satisfies the Event interface.
func (Withdrawn) EventType() string { return TypeWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e Withdrawn) Event() *types.Event {
	attrs := map[string]string{
		"amount":      formatAmount(e.Amount),
		"balance":     formatAmount(e.Balance),
		"totalStaked": formatAmount(e.TotalStaked),
	}
	setAddress(attrs, "account", e.Account)
	return &types.Event{Type: TypeWithdrawn, Attributes: attrs}
}

// RewardPaid captures a reward payout.
type RewardPaid struct {
	Account crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (RewardPaid) EventType() string { return TypeRewardPaid }

// Event converts the structured payload into a broadcastable event.
func (e RewardPaid) Event() *types.Event {
	attrs := map[string]string{"amount": formatAmount(e.Amount)}
	setAddress(attrs, "account", e.Account)
	return &types.Event{Type: TypeRewardPaid, Attributes: attrs}
}

// RewardAdded captures a reward budget injection and the resulting schedule.
type RewardAdded struct {
	Caller       crypto.Address
	Amount       *big.Int
	RewardRate   *big.Int
	PeriodStart  uint64
	PeriodFinish uint64
}

// EventType satisfies the Event interface.
func (RewardAdded) EventType() string { return TypeRewardAdded }

// Event converts the structured payload into a broadcastable event.
func (e RewardAdded) Event() *types.Event {
	attrs := map[string]string{
		"amount":       formatAmount(e.Amount),
		"rewardRate":   formatAmount(e.RewardRate),
		"periodStart":  formatUint(e.PeriodStart),
		"periodFinish": formatUint(e.PeriodFinish),
	}
	setAddress(attrs, "account", e.Caller)
	return &types.Event{Type: TypeRewardAdded, Attributes: attrs}
}

// PauseToggled captures a change of the pause switch.
type PauseToggled struct {
	Caller crypto.Address
	Paused bool
	Mode   string
}

// EventType satisfies the Event interface.
func (PauseToggled) EventType() string { return TypePauseToggled }

// Event converts the structured payload into a broadcastable event.
func (e PauseToggled) Event() *types.Event {
	attrs := map[string]string{
		"paused": strconv.FormatBool(e.Paused),
		"amount": "0",
	}
	if e.Mode != "" {
		attrs["mode"] = e.Mode
	}
	setAddress(attrs, "account", e.Caller)
	return &types.Event{Type: TypePauseToggled, Attributes: attrs}
}

// EmergencyWithdrawn captures the stake returned to one account during an
// emergency unwind.
type EmergencyWithdrawn struct {
	Caller  crypto.Address
	Account crypto.Address
	Amount  *big.Int
}

// EventType satisfies the Event interface.
func (EmergencyWithdrawn) EventType() string { return TypeEmergencyWithdrawn }

// Event converts the structured payload into a broadcastable event.
func (e EmergencyWithdrawn) Event() *types.Event {
	attrs := map[string]string{"amount": formatAmount(e.Amount)}
	setAddress(attrs, "account", e.Account)
	setAddress(attrs, "caller", e.Caller)
	return &types.Event{Type: TypeEmergencyWithdrawn, Attributes: attrs}
}

// RewardsDurationUpdated captures a new reward period length.
type RewardsDurationUpdated struct {
	Caller   crypto.Address
	Duration uint64
}

// EventType satisfies the Event interface.
func (RewardsDurationUpdated) EventType() string { return TypeRewardsDurationUpdated }

// Event converts the structured payload into a broadcastable event.
func (e RewardsDurationUpdated) Event() *types.Event {
	attrs := map[string]string{"duration": formatUint(e.Duration)}
	setAddress(attrs, "account", e.Caller)
	return &types.Event{Type: TypeRewardsDurationUpdated, Attributes: attrs}
}

// CapUpdated captures an adjusted ceiling. A nil Value means unbounded.
type CapUpdated struct {
	Caller crypto.Address
	Kind   string
	Value  *big.Int
}

// EventType satisfies the Event interface.
func (CapUpdated) EventType() string { return TypeCapUpdated }

// Event converts the structured payload into a broadcastable event.
func (e CapUpdated) Event() *types.Event {
	attrs := map[string]string{"kind": e.Kind}
	if e.Value != nil {
		attrs["amount"] = e.Value.String()
	} else {
		attrs["amount"] = "unbounded"
	}
	setAddress(attrs, "account", e.Caller)
	return &types.Event{Type: TypeCapUpdated, Attributes: attrs}
}

// OwnershipTransferred captures a change of the owning identity.
type OwnershipTransferred struct {
	Previous crypto.Address
	Next     crypto.Address
}

// EventType satisfies the Event interface.
func (OwnershipTransferred) EventType() string { return TypeOwnershipTransferred }

// Event converts the structured payload into a broadcastable event.
func (e OwnershipTransferred) Event() *types.Event {
	attrs := map[string]string{}
	setAddress(attrs, "previous", e.Previous)
	setAddress(attrs, "account", e.Next)
	return &types.Event{Type: TypeOwnershipTransferred, Attributes: attrs}
}
