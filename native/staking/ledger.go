package staking

import (
	"fmt"
	"math/big"
	"strings"

	stakingerrors "stakingrewards/core/errors"
	"stakingrewards/crypto"
	"stakingrewards/native/bank"
)

// Approve sets the allowance of spender over owner's funds in asset.
func (e *Engine) Approve(asset string, owner, spender crypto.Address, amount *big.Int) error {
	return e.ledgerWrite(asset, owner, func(token bank.Token) error {
		return token.Approve(owner, spender, amount)
	})
}

// Transfer moves funds of asset between two identities, for example to fund
// the reward pool before NotifyRewardAmount.
func (e *Engine) Transfer(asset string, from, to crypto.Address, amount *big.Int) error {
	return e.ledgerWrite(asset, from, func(token bank.Token) error {
		return token.Transfer(from, to, amount)
	})
}

// ledgerWrite runs fn under the engine lock so it never interleaves with a
// transition whose ledger journal is open. The program custody address may
// receive funds but never spend or approve them here.
func (e *Engine) ledgerWrite(asset string, source crypto.Address, fn func(token bank.Token) error) error {
	token, ok := e.Token(asset)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAsset, asset)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	program, ok, err := e.state.Program()
	if err != nil {
		return err
	}
	if !ok {
		return errNoProgram
	}
	if source.Equal(program.Address) {
		return fmt.Errorf("%w: %s", stakingerrors.ErrProgramCustody, source)
	}
	return fn(token)
}

func equalSymbol(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
