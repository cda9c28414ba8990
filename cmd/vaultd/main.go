package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strings"

	"vaultd/config"
	"vaultd/crypto"
	"vaultd/native/bank"
	"vaultd/native/cdp"
	"vaultd/observability/logging"
	"vaultd/observability/metrics"
	"vaultd/rpc"
	"vaultd/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	logger := logging.Setup("vaultd", logging.ParseLevel(*logLevel))

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", slog.String("dir", cfg.DataDir), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	engine, err := buildEngine(cfg, db)
	if err != nil {
		logger.Error("failed to build engine", slog.Any("error", err))
		os.Exit(1)
	}

	if err := seedGenesis(cfg, engine, logger); err != nil {
		logger.Error("failed to seed genesis state", slog.Any("error", err))
		os.Exit(1)
	}

	token := ""
	if cfg.RPCTokenEnv != "" {
		token = strings.TrimSpace(os.Getenv(cfg.RPCTokenEnv))
		if token == "" {
			logger.Warn("RPC token environment variable is empty; write methods are open",
				slog.String("env", cfg.RPCTokenEnv))
		}
	}

	if cfg.MetricsAddress != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			logger.Info("metrics server listening", slog.String("addr", cfg.MetricsAddress))
			if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
				logger.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	server := rpc.NewServer(engine, token, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func buildEngine(cfg *config.Config, db storage.Database) (*cdp.Engine, error) {
	governance, err := crypto.DecodeAddress(cfg.Governance)
	if err != nil {
		return nil, fmt.Errorf("governance address: %w", err)
	}
	custody, err := crypto.DecodeAddress(cfg.Custody)
	if err != nil {
		return nil, fmt.Errorf("custody address: %w", err)
	}

	engine := cdp.NewEngine(governance, custody, cdp.RiskParameters{
		MinimumCollateralRatio: cfg.MinimumCollateralRatio,
		LiquidationRatio:       cfg.LiquidationRatio,
		StabilityFee:           cfg.StabilityFee,
	})
	engine.SetState(cdp.NewKVState(db))

	book := bank.NewBook(db)
	engine.SetCustodian(book)
	engine.SetIssuer(book)

	if cfg.MaxPriceDeviationPct > 0 {
		engine.SetPriceStrategy(cdp.BoundedDeviation{MaxDeviationPct: cfg.MaxPriceDeviationPct})
	}
	return engine, nil
}

// seedGenesis initializes the engine on first start and registers the
// configured access lists. Every step is idempotent across restarts.
func seedGenesis(cfg *config.Config, engine *cdp.Engine, logger *slog.Logger) error {
	governance, err := crypto.DecodeAddress(cfg.Governance)
	if err != nil {
		return err
	}

	price, ok := new(big.Int).SetString(strings.TrimSpace(cfg.GenesisPrice), 10)
	if !ok {
		return fmt.Errorf("invalid GenesisPrice %q", cfg.GenesisPrice)
	}
	switch err := engine.Initialize(governance, price); {
	case err == nil:
		logger.Info("engine initialized", slog.String("price", price.String()))
	case errors.Is(err, cdp.ErrAlreadyInitialized):
		// Restart over an existing data dir.
	default:
		return err
	}

	register := func(role string, encoded string, add func(crypto.Address, crypto.Address) error) error {
		principal, err := crypto.DecodeAddress(encoded)
		if err != nil {
			return fmt.Errorf("%s address %q: %w", role, encoded, err)
		}
		switch err := add(governance, principal); {
		case err == nil:
			logger.Info("registered principal", slog.String("role", role), slog.String("address", encoded))
			return nil
		case errors.Is(err, cdp.ErrInvalidParameter):
			// Already registered on a previous start.
			return nil
		default:
			return err
		}
	}
	for _, encoded := range cfg.Oracles {
		if err := register("oracle", encoded, engine.AddOracle); err != nil {
			return err
		}
	}
	for _, encoded := range cfg.Liquidators {
		if err := register("liquidator", encoded, engine.AddLiquidator); err != nil {
			return err
		}
	}
	return nil
}
