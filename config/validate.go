package config

import (
	"fmt"
	"math/big"
	"strings"

	"stakingrewards/crypto"
)

// ProgramSettings is the parsed form of ProgramConfig.
type ProgramSettings struct {
	Owner              crypto.Address
	Distributor        crypto.Address
	Address            crypto.Address
	StakeAsset         string
	RewardAsset        string
	RewardsDuration    uint64
	MaxStakePerAccount *big.Int
	MaxProgramCap      *big.Int
	SingleStake        bool
}

// Allocation is the parsed form of GenesisAllocation.
type Allocation struct {
	Asset   string
	Address crypto.Address
	Amount  *big.Int
}

// Validate checks the configuration for consistency. Errors name the
// offending field.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.ListenAddress == "" {
		return fmt.Errorf("ListenAddress is required")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("RateLimit.RequestsPerMinute must not be negative")
	}
	if cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("RateLimit.Burst must not be negative")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("Telemetry.Endpoint is required when exporters are enabled")
	}
	if _, err := cfg.ProgramSettings(); err != nil {
		return err
	}
	if _, err := cfg.Allocations(); err != nil {
		return err
	}
	return nil
}

// ProgramSettings parses the program section into typed values. An empty
// program address is derived from the asset pair.
func (cfg *Config) ProgramSettings() (ProgramSettings, error) {
	p := cfg.Program
	var out ProgramSettings
	if p.StakeAsset == "" {
		return out, fmt.Errorf("Program.StakeAsset is required")
	}
	if p.RewardAsset == "" {
		return out, fmt.Errorf("Program.RewardAsset is required")
	}
	if p.RewardsDurationSeconds == 0 {
		return out, fmt.Errorf("Program.RewardsDurationSeconds must be positive")
	}
	owner, err := parseAddress("Program.Owner", p.Owner, crypto.AccountPrefix)
	if err != nil {
		return out, err
	}
	if owner.IsZero() {
		return out, fmt.Errorf("Program.Owner is required")
	}
	distributor, err := parseAddress("Program.Distributor", p.Distributor, crypto.AccountPrefix)
	if err != nil {
		return out, err
	}
	address, err := parseAddress("Program.Address", p.Address, crypto.ProgramPrefix)
	if err != nil {
		return out, err
	}
	if address.IsZero() {
		address = crypto.DeriveAddress(crypto.ProgramPrefix, "staking/"+p.StakeAsset+"/"+p.RewardAsset)
	}
	maxStake, err := parseAmount("Program.MaxStakePerAccount", p.MaxStakePerAccount)
	if err != nil {
		return out, err
	}
	maxCap, err := parseAmount("Program.MaxProgramCap", p.MaxProgramCap)
	if err != nil {
		return out, err
	}

	out = ProgramSettings{
		Owner:              owner,
		Distributor:        distributor,
		Address:            address,
		StakeAsset:         p.StakeAsset,
		RewardAsset:        p.RewardAsset,
		RewardsDuration:    p.RewardsDurationSeconds,
		MaxStakePerAccount: maxStake,
		MaxProgramCap:      maxCap,
		SingleStake:        p.SingleStake,
	}
	return out, nil
}

// Allocations parses the genesis section. Every entry must reference one of
// the program assets.
func (cfg *Config) Allocations() ([]Allocation, error) {
	out := make([]Allocation, 0, len(cfg.Genesis))
	for i, g := range cfg.Genesis {
		field := fmt.Sprintf("Genesis[%d]", i)
		if g.Asset != cfg.Program.StakeAsset && g.Asset != cfg.Program.RewardAsset {
			return nil, fmt.Errorf("%s.Asset %q is not a program asset", field, g.Asset)
		}
		addr, err := crypto.DecodeAddress(g.Address)
		if err != nil {
			return nil, fmt.Errorf("%s.Address: %w", field, err)
		}
		amount, err := parseAmount(field+".Amount", g.Amount)
		if err != nil {
			return nil, err
		}
		if amount == nil || amount.Sign() == 0 {
			return nil, fmt.Errorf("%s.Amount must be positive", field)
		}
		out = append(out, Allocation{Asset: g.Asset, Address: addr, Amount: amount})
	}
	return out, nil
}

func parseAddress(field, value string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	if value == "" {
		return crypto.Address{}, nil
	}
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%s: %w", field, err)
	}
	if addr.Prefix() != prefix {
		return crypto.Address{}, fmt.Errorf("%s must use the %q prefix", field, prefix)
	}
	return addr, nil
}

// parseAmount reads a non-negative base-10 integer. Empty input yields nil.
func parseAmount(field, value string) (*big.Int, error) {
	value = strings.ReplaceAll(strings.TrimSpace(value), "_", "")
	if value == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("%s: invalid amount %q", field, value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%s must not be negative", field)
	}
	return amount, nil
}
