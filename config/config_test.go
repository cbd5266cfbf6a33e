package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9944", cfg.RPCAddress)
	require.Equal(t, filepath.Join(dir, "nested", "signer.keystore"), cfg.SignerKeystorePath)
	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
	require.Equal(t, cfg.Blocks, reloaded.Blocks)
	require.Equal(t, cfg.Indexer, reloaded.Indexer)
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `RPCAddress = "0.0.0.0:9000"
DataDir = "./data"
GenesisFile = "genesis.yaml"
LogFile = "/var/log/namechaind.log"

[Blocks]
Interval = "250ms"
MaxRefTime = 500000000
MaxProofSize = 0
MempoolMaxTxs = 10

[RPC]
JWTSecretEnv = "NAMECHAIN_JWT"
RequestsPerMinute = 30
Burst = 5
TrustedProxies = ["10.0.0.1", "172.16.0.0/12"]

[Indexer]
Enabled = true
Driver = "postgres"
DSN = "postgres://localhost/names"

[Telemetry]
Endpoint = "otel:4318"
Traces = true
SampleRatio = 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, 250*time.Millisecond, cfg.Blocks.Interval)
	require.Equal(t, uint64(500_000_000), cfg.Blocks.MaxRefTime)
	require.Equal(t, "NAMECHAIN_JWT", cfg.RPC.JWTSecretEnv)
	require.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, cfg.RPC.TrustedProxies)
	require.Equal(t, "postgres", cfg.Indexer.Driver)
	require.True(t, cfg.Telemetry.Traces)
	require.Equal(t, 0.5, cfg.Telemetry.SampleRatio)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ValidatorKeystorePath = \"x\"\n"), 0o600))
	_, err := Load(path)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "ValidatorKeystorePath"))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"no rpc address":   func(c *Config) { c.RPCAddress = "" },
		"fast blocks":      func(c *Config) { c.Blocks.Interval = time.Millisecond },
		"zero weight":      func(c *Config) { c.Blocks.MaxRefTime = 0 },
		"negative rate":    func(c *Config) { c.RPC.RequestsPerMinute = -1 },
		"zero burst":       func(c *Config) { c.RPC.Burst = 0 },
		"bad driver":       func(c *Config) { c.Indexer.Driver = "mysql" },
		"missing dsn":      func(c *Config) { c.Indexer.DSN = "" },
		"bad sample ratio": func(c *Config) { c.Telemetry.SampleRatio = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Indexer.DSN = "file.sqlite"
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}

	cfg := Default()
	cfg.Indexer.DSN = "file.sqlite"
	require.NoError(t, Validate(cfg))

	cfg.RPC.InstantSeal = true
	cfg.Blocks.Interval = 0
	require.NoError(t, Validate(cfg))
}
