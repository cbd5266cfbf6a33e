package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	RPCAddress         string    `toml:"RPCAddress"`
	DataDir            string    `toml:"DataDir"`
	GenesisFile        string    `toml:"GenesisFile"`
	SignerKeystorePath string    `toml:"SignerKeystorePath"`
	Environment        string    `toml:"Environment"`
	LogFile            string    `toml:"LogFile"`
	LogLevel           string    `toml:"LogLevel"`
	Blocks             Blocks    `toml:"Blocks"`
	RPC                RPC       `toml:"RPC"`
	Indexer            Indexer   `toml:"Indexer"`
	Telemetry          Telemetry `toml:"Telemetry"`
}

// Default returns the configuration written for a fresh node.
func Default() *Config {
	return &Config{
		RPCAddress:  "127.0.0.1:9944",
		DataDir:     "./namechain-data",
		Environment: "local",
		LogLevel:    "info",
		Blocks: Blocks{
			Interval:      time.Second,
			MaxRefTime:    2_000_000_000_000,
			MaxProofSize:  5 * 1024 * 1024,
			MempoolMaxTxs: 4096,
		},
		RPC: RPC{
			RequestsPerMinute: 600,
			Burst:             20,
		},
		Indexer: Indexer{
			Enabled: true,
			Driver:  "sqlite",
		},
	}
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults(path)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults(configPath string) {
	if strings.TrimSpace(cfg.SignerKeystorePath) == "" {
		cfg.SignerKeystorePath = defaultKeystorePath(configPath)
	}
	if cfg.Indexer.Enabled && cfg.Indexer.Driver == "sqlite" && strings.TrimSpace(cfg.Indexer.DSN) == "" {
		cfg.Indexer.DSN = filepath.Join(cfg.DataDir, "index.sqlite")
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	cfg.applyDefaults(path)
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

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "signer.keystore")
}
