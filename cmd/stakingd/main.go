package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"stakingrewards/config"
	"stakingrewards/core/events"
	"stakingrewards/gateway/middleware"
	"stakingrewards/gateway/routes"
	"stakingrewards/native/bank"
	"stakingrewards/native/staking"
	"stakingrewards/observability/logging"
	"stakingrewards/observability/metrics"
	telemetry "stakingrewards/observability/otel"
	"stakingrewards/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./stakingd.toml", "path to the daemon configuration (TOML or YAML)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	env := cfg.Environment
	if override := strings.TrimSpace(os.Getenv("STAKING_ENV")); override != "" {
		env = override
	}
	logger := logging.Setup("stakingd", env, logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	if err := run(cfg, env, logger); err != nil {
		logger.Error("stakingd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, env string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "stakingd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	settings, err := cfg.ProgramSettings()
	if err != nil {
		return err
	}
	allocations, err := cfg.Allocations()
	if err != nil {
		return err
	}
	ledgers, err := openLedgers(db, settings.StakeAsset, settings.RewardAsset)
	if err != nil {
		return err
	}
	applied, err := applyGenesis(db, ledgers, allocations)
	if err != nil {
		return err
	}
	if applied {
		logger.Info("genesis allocations minted", "count", len(allocations))
	}

	state, err := staking.NewDBState(db)
	if err != nil {
		return fmt.Errorf("open staking state: %w", err)
	}
	journal, err := events.NewJournal(db, logger)
	if err != nil {
		return err
	}
	engine, err := staking.NewEngine(staking.Params{
		Owner:              settings.Owner,
		Distributor:        settings.Distributor,
		Address:            settings.Address,
		StakeToken:         ledgers[settings.StakeAsset],
		RewardToken:        ledgers[settings.RewardAsset],
		RewardsDuration:    settings.RewardsDuration,
		MaxStakePerAccount: settings.MaxStakePerAccount,
		MaxProgramCap:      settings.MaxProgramCap,
		SingleStake:        settings.SingleStake,
	}, state)
	if err != nil {
		return fmt.Errorf("open staking engine: %w", err)
	}
	engine.SetLogger(logger.With("module", "staking"))
	engine.SetMetrics(metrics.Staking())
	engine.SetEmitter(journal)

	program, err := engine.Program()
	if err != nil {
		return err
	}
	logger.Info("staking program loaded",
		"address", program.Address.String(),
		"owner", program.Owner.String(),
		"stake_asset", program.StakeAsset,
		"reward_asset", program.RewardAsset,
		"status", string(program.Status(engine.Now())))

	limit := middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	}
	handler, err := routes.New(routes.Config{
		Engine:      engine,
		Journal:     journal,
		Logger:      logger,
		ServiceName: "stakingd",
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"staking": limit,
			"ledger":  limit,
		}, logger),
		Observability:  middleware.NewObservability(middleware.ObservabilityConfig{ServiceName: "stakingd", LogRequests: true}, logger),
		RequestTimeout: 15 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("stakingd listening", "addr", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openDatabase(dataDir string) (storage.Database, error) {
	if dataDir == "" {
		return storage.NewMemDB(), nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(dataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return db, nil
}

// openLedgers returns one ledger per distinct symbol so a program staking and
// rewarding the same asset shares a single balance sheet.
func openLedgers(db storage.Database, symbols ...string) (map[string]*bank.Ledger, error) {
	out := make(map[string]*bank.Ledger, len(symbols))
	for _, symbol := range symbols {
		if _, ok := out[symbol]; ok {
			continue
		}
		ledger, err := bank.NewLedger(db, symbol)
		if err != nil {
			return nil, err
		}
		out[symbol] = ledger
	}
	return out, nil
}
