package config

import (
	"fmt"
	"strings"
	"time"
)

// MinBlockInterval is the shortest production interval accepted.
var MinBlockInterval = 50 * time.Millisecond

// Validate checks bounds that would otherwise fail late at runtime.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if !cfg.RPC.InstantSeal && cfg.Blocks.Interval < MinBlockInterval {
		return fmt.Errorf("blocks: interval %s below minimum %s", cfg.Blocks.Interval, MinBlockInterval)
	}
	if cfg.Blocks.MaxRefTime == 0 {
		return fmt.Errorf("blocks: MaxRefTime must be positive")
	}
	if cfg.Blocks.MempoolMaxTxs <= 0 {
		return fmt.Errorf("blocks: MempoolMaxTxs must be positive")
	}
	if cfg.RPC.RequestsPerMinute < 0 {
		return fmt.Errorf("rpc: RequestsPerMinute must not be negative")
	}
	if cfg.RPC.RequestsPerMinute > 0 && cfg.RPC.Burst <= 0 {
		return fmt.Errorf("rpc: Burst must be positive when rate limiting")
	}
	if cfg.Indexer.Enabled {
		switch cfg.Indexer.Driver {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("indexer: unsupported driver %q", cfg.Indexer.Driver)
		}
		if strings.TrimSpace(cfg.Indexer.DSN) == "" {
			return fmt.Errorf("indexer: DSN required for %s", cfg.Indexer.Driver)
		}
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: SampleRatio must be within [0,1]")
	}
	return nil
}
