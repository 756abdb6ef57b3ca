package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stakingrewards/crypto"
)

var (
	testOwner = crypto.DeriveAddress(crypto.AccountPrefix, "owner")
	testAlice = crypto.DeriveAddress(crypto.AccountPrefix, "alice")
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "stakingd.toml", `
ListenAddress = "127.0.0.1:9000"
LogLevel = "debug"

[Program]
Owner = "`+testOwner.String()+`"
StakeAsset = "stk"
RewardAsset = "rwd"
RewardsDurationSeconds = 600
MaxStakePerAccount = "1_000"

[[Genesis]]
Asset = "STK"
Address = "`+testAlice.String()+`"
Amount = "5000"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9000" {
		t.Fatalf("unexpected listen address %q", cfg.ListenAddress)
	}
	if cfg.RateLimit.RequestsPerMinute != defaultRequestsPerMinute {
		t.Fatalf("expected default rate limit, got %d", cfg.RateLimit.RequestsPerMinute)
	}
	settings, err := cfg.ProgramSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if !settings.Owner.Equal(testOwner) {
		t.Fatalf("unexpected owner %s", settings.Owner)
	}
	if settings.StakeAsset != "STK" || settings.RewardAsset != "RWD" {
		t.Fatalf("assets not normalised: %s/%s", settings.StakeAsset, settings.RewardAsset)
	}
	if settings.RewardsDuration != 600 {
		t.Fatalf("unexpected duration %d", settings.RewardsDuration)
	}
	if settings.MaxStakePerAccount == nil || settings.MaxStakePerAccount.Int64() != 1000 {
		t.Fatalf("unexpected account cap %v", settings.MaxStakePerAccount)
	}
	if settings.MaxProgramCap != nil {
		t.Fatalf("expected unbounded program cap")
	}
	if settings.Address.Prefix() != crypto.ProgramPrefix {
		t.Fatalf("expected derived program address, got %s", settings.Address)
	}
	allocs, err := cfg.Allocations()
	if err != nil {
		t.Fatalf("allocations: %v", err)
	}
	if len(allocs) != 1 || allocs[0].Amount.Int64() != 5000 || !allocs[0].Address.Equal(testAlice) {
		t.Fatalf("unexpected allocations %+v", allocs)
	}
}

func TestLoadTOMLRejectsUnknownField(t *testing.T) {
	path := writeFile(t, "stakingd.toml", `
Bogus = true

[Program]
Owner = "`+testOwner.String()+`"
StakeAsset = "STK"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "stakingd.yaml", `
listen_address: ":7000"
program:
  owner: `+testOwner.String()+`
  stake_asset: STK
  max_program_cap: "250000"
  single_stake: true
rate_limit:
  requests_per_minute: 30
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	settings, err := cfg.ProgramSettings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.RewardAsset != "STK" {
		t.Fatalf("reward asset should default to stake asset, got %s", settings.RewardAsset)
	}
	if !settings.SingleStake {
		t.Fatalf("expected single stake mode")
	}
	if settings.MaxProgramCap == nil || settings.MaxProgramCap.Int64() != 250000 {
		t.Fatalf("unexpected program cap %v", settings.MaxProgramCap)
	}
	if settings.RewardsDuration != defaultRewardsDuration {
		t.Fatalf("expected default duration, got %d", settings.RewardsDuration)
	}
	if cfg.RateLimit.RequestsPerMinute != 30 || cfg.RateLimit.Burst != defaultBurst {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
}

func TestLoadYAMLRejectsUnknownField(t *testing.T) {
	path := writeFile(t, "stakingd.yml", "program:\n  stake_asset: STK\n  colour: blue\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stakingd.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config on disk: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Program.Owner != cfg.Program.Owner || reloaded.Program.Owner == "" {
		t.Fatalf("owner not persisted: %q vs %q", reloaded.Program.Owner, cfg.Program.Owner)
	}
}

func TestValidateNamesField(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing owner", func(c *Config) { c.Program.Owner = "" }, "Program.Owner"},
		{"wrong owner prefix", func(c *Config) {
			c.Program.Owner = crypto.DeriveAddress(crypto.ProgramPrefix, "x").String()
		}, "Program.Owner"},
		{"negative cap", func(c *Config) { c.Program.MaxProgramCap = "-1" }, "Program.MaxProgramCap"},
		{"garbage cap", func(c *Config) { c.Program.MaxStakePerAccount = "ten" }, "Program.MaxStakePerAccount"},
		{"foreign genesis asset", func(c *Config) {
			c.Genesis = []GenesisAllocation{{Asset: "XYZ", Address: testAlice.String(), Amount: "1"}}
		}, "Genesis[0].Asset"},
		{"zero genesis amount", func(c *Config) {
			c.Genesis = []GenesisAllocation{{Asset: "STK", Address: testAlice.String(), Amount: "0"}}
		}, "Genesis[0].Amount"},
		{"telemetry without endpoint", func(c *Config) { c.Telemetry.Traces = true }, "Telemetry.Endpoint"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{Program: ProgramConfig{Owner: testOwner.String(), StakeAsset: "STK"}}
			cfg.normalize()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error naming %s, got %v", tc.wantErr, err)
			}
		})
	}
}
