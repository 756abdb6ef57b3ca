package errors

import stderrors "errors"

var (
	ErrZeroAmount             = stderrors.New("staking: amount must be positive")
	ErrMaxStakeExceeded       = stderrors.New("staking: exceeds maximum stake amount")
	ErrProgramCapExceeded     = stderrors.New("staking: exceeds program staking cap")
	ErrInsufficientRewardPool = stderrors.New("staking: insufficient rewards in the reward pool")
	ErrProgramEnded           = stderrors.New("staking: reward period not active")
	ErrProgramPaused          = stderrors.New("staking: program paused")
	ErrInsufficientBalance    = stderrors.New("staking: insufficient staked balance")
	ErrNotOwner               = stderrors.New("staking: only the program owner may perform this action")
	ErrTransferFailed         = stderrors.New("staking: token transfer failed")
	ErrRewardTooHigh          = stderrors.New("staking: provided reward too high")
	ErrActiveStake            = stderrors.New("staking: account already has a stake; withdraw to stake another amount")
	ErrPeriodActive           = stderrors.New("staking: previous reward period must complete first")
	ErrInvalidDuration        = stderrors.New("staking: rewards duration must be positive")
	ErrInvalidAddress         = stderrors.New("staking: invalid address")
	ErrProgramCustody         = stderrors.New("staking: program custody funds move only through staking operations")
)

// ErrProgramTerminated is returned once an emergency withdrawal has unwound the
// program. It matches ErrProgramPaused under errors.Is.
var ErrProgramTerminated = &wrapped{msg: "staking: program terminated", parent: ErrProgramPaused}

type wrapped struct {
	msg    string
	parent error
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.parent }

var codes = []struct {
	err  error
	code string
}{
	// Terminated must be matched before its parent.
	{ErrProgramTerminated, "ProgramTerminated"},
	{ErrZeroAmount, "ZeroAmount"},
	{ErrMaxStakeExceeded, "MaxStakeExceeded"},
	{ErrProgramCapExceeded, "ProgramCapExceeded"},
	{ErrInsufficientRewardPool, "InsufficientRewardPool"},
	{ErrProgramEnded, "ProgramEnded"},
	{ErrProgramPaused, "ProgramPaused"},
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrNotOwner, "NotOwner"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrRewardTooHigh, "RewardTooHigh"},
	{ErrActiveStake, "ActiveStake"},
	{ErrPeriodActive, "PeriodActive"},
	{ErrInvalidDuration, "InvalidDuration"},
	{ErrInvalidAddress, "InvalidAddress"},
	{ErrProgramCustody, "ProgramCustody"},
}

// Code returns the stable kind name of a staking error, or "" when err is not
// one of the sentinels above.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range codes {
		if stderrors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ""
}
