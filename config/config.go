package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"stakingrewards/crypto"
)

// Config captures the runtime settings of the staking daemon.
type Config struct {
	ListenAddress string `toml:"ListenAddress" yaml:"listen_address"`
	// DataDir holds the LevelDB files. Empty keeps all state in memory.
	DataDir     string `toml:"DataDir" yaml:"data_dir"`
	Environment string `toml:"Environment" yaml:"environment"`
	LogLevel    string `toml:"LogLevel" yaml:"log_level"`
	LogFile     string `toml:"LogFile" yaml:"log_file"`

	Program   ProgramConfig       `toml:"Program" yaml:"program"`
	RateLimit RateLimitConfig     `toml:"RateLimit" yaml:"rate_limit"`
	Telemetry TelemetryConfig     `toml:"Telemetry" yaml:"telemetry"`
	Genesis   []GenesisAllocation `toml:"Genesis" yaml:"genesis"`
}

// ProgramConfig holds the construction parameters of the staking program.
// Amounts are decimal strings in base units; empty caps are unbounded.
type ProgramConfig struct {
	Owner                  string `toml:"Owner" yaml:"owner"`
	Distributor            string `toml:"Distributor" yaml:"distributor"`
	Address                string `toml:"Address" yaml:"address"`
	StakeAsset             string `toml:"StakeAsset" yaml:"stake_asset"`
	RewardAsset            string `toml:"RewardAsset" yaml:"reward_asset"`
	RewardsDurationSeconds uint64 `toml:"RewardsDurationSeconds" yaml:"rewards_duration_seconds"`
	MaxStakePerAccount     string `toml:"MaxStakePerAccount" yaml:"max_stake_per_account"`
	MaxProgramCap          string `toml:"MaxProgramCap" yaml:"max_program_cap"`
	SingleStake            bool   `toml:"SingleStake" yaml:"single_stake"`
}

// RateLimitConfig bounds API requests per client address.
type RateLimitConfig struct {
	RequestsPerMinute int `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int `toml:"Burst" yaml:"burst"`
}

// TelemetryConfig wires the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
}

// GenesisAllocation mints Amount of Asset to Address when the ledger is
// first created.
type GenesisAllocation struct {
	Asset   string `toml:"Asset" yaml:"asset"`
	Address string `toml:"Address" yaml:"address"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

const (
	defaultListenAddress     = ":8080"
	defaultRewardsDuration   = uint64(7 * 24 * 60 * 60)
	defaultRequestsPerMinute = 120
	defaultBurst             = 20
)

// Load reads the configuration at path. YAML is used for .yaml/.yml files and
// TOML otherwise. A missing TOML file is created with defaults.
func Load(path string) (*Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("config path required")
	}
	cfg := &Config{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := decodeYAML(path, cfg); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return createDefault(path)
		}
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0])
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	cfg.Environment = strings.TrimSpace(cfg.Environment)
	cfg.LogFile = strings.TrimSpace(cfg.LogFile)

	p := &cfg.Program
	p.Owner = strings.TrimSpace(p.Owner)
	p.Distributor = strings.TrimSpace(p.Distributor)
	p.Address = strings.TrimSpace(p.Address)
	p.StakeAsset = strings.ToUpper(strings.TrimSpace(p.StakeAsset))
	p.RewardAsset = strings.ToUpper(strings.TrimSpace(p.RewardAsset))
	if p.RewardAsset == "" {
		p.RewardAsset = p.StakeAsset
	}
	if p.RewardsDurationSeconds == 0 {
		p.RewardsDurationSeconds = defaultRewardsDuration
	}
	p.MaxStakePerAccount = strings.TrimSpace(p.MaxStakePerAccount)
	p.MaxProgramCap = strings.TrimSpace(p.MaxProgramCap)

	if cfg.RateLimit.RequestsPerMinute == 0 {
		cfg.RateLimit.RequestsPerMinute = defaultRequestsPerMinute
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = defaultBurst
	}
	cfg.Telemetry.Endpoint = strings.TrimSpace(cfg.Telemetry.Endpoint)
	for i := range cfg.Genesis {
		g := &cfg.Genesis[i]
		g.Asset = strings.ToUpper(strings.TrimSpace(g.Asset))
		g.Address = strings.TrimSpace(g.Address)
		g.Amount = strings.TrimSpace(g.Amount)
	}
}

// createDefault writes a development configuration owned by a freshly
// generated identity.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		DataDir:       "./staking-data",
		Environment:   "local",
		Program: ProgramConfig{
			Owner:                  key.PubKey().Address().String(),
			StakeAsset:             "STK",
			RewardAsset:            "RWD",
			RewardsDurationSeconds: defaultRewardsDuration,
		},
		RateLimit: RateLimitConfig{RequestsPerMinute: defaultRequestsPerMinute, Burst: defaultBurst},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
