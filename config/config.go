package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vaultd/crypto"

	"github.com/BurntSushi/toml"
)

// Config carries the daemon settings: network endpoints, the storage
// location, the governance and custody principals, the genesis risk
// parameters, and the bootstrap access lists.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`

	Governance string `toml:"Governance"`
	Custody    string `toml:"Custody"`

	MinimumCollateralRatio uint64 `toml:"MinimumCollateralRatio"`
	LiquidationRatio       uint64 `toml:"LiquidationRatio"`
	StabilityFee           uint64 `toml:"StabilityFee"`

	// GenesisPrice seeds the oracle at initialization, as a decimal string.
	GenesisPrice string `toml:"GenesisPrice"`

	// MaxPriceDeviationPct bounds oracle moves per submission. Zero keeps
	// the last-write behaviour.
	MaxPriceDeviationPct uint64 `toml:"MaxPriceDeviationPct"`

	Oracles     []string `toml:"Oracles"`
	Liquidators []string `toml:"Liquidators"`

	// RPCTokenEnv names the environment variable holding the bearer token
	// for write methods. Empty disables authentication.
	RPCTokenEnv string `toml:"RPCTokenEnv"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vault-data"
	}
	if cfg.MinimumCollateralRatio == 0 {
		cfg.MinimumCollateralRatio = 150
	}
	if cfg.LiquidationRatio == 0 {
		cfg.LiquidationRatio = 120
	}
	if cfg.Oracles == nil {
		cfg.Oracles = []string{}
	}
	if cfg.Liquidators == nil {
		cfg.Liquidators = []string{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every configured principal decodes as a vault address.
// Risk parameter bounds are left to the engine.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Governance) == "" {
		return fmt.Errorf("config: Governance address is required")
	}
	if _, err := crypto.DecodeAddress(c.Governance); err != nil {
		return fmt.Errorf("config: invalid Governance address: %w", err)
	}
	if strings.TrimSpace(c.Custody) == "" {
		return fmt.Errorf("config: Custody address is required")
	}
	if _, err := crypto.DecodeAddress(c.Custody); err != nil {
		return fmt.Errorf("config: invalid Custody address: %w", err)
	}
	for _, encoded := range c.Oracles {
		if _, err := crypto.DecodeAddress(encoded); err != nil {
			return fmt.Errorf("config: invalid oracle address %q: %w", encoded, err)
		}
	}
	for _, encoded := range c.Liquidators {
		if _, err := crypto.DecodeAddress(encoded); err != nil {
			return fmt.Errorf("config: invalid liquidator address %q: %w", encoded, err)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file. The
// governance key is generated on the spot so a fresh node is operable
// immediately.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	governance := key.PubKey().Address()

	cfg := &Config{
		RPCAddress:             ":8080",
		MetricsAddress:         ":9090",
		DataDir:                "./vault-data",
		Governance:             governance.String(),
		Custody:                governance.String(),
		MinimumCollateralRatio: 150,
		LiquidationRatio:       120,
		StabilityFee:           2,
		GenesisPrice:           "50000000",
		Oracles:                []string{},
		Liquidators:            []string{},
	}

	if err := persist(path, cfg); err != nil {
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
