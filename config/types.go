package config

import "time"

// RPC tunes the JSON-RPC server.
type RPC struct {
	// JWTSecretEnv names the env var holding the HMAC secret guarding
	// transaction submission. Empty leaves submission open.
	JWTSecretEnv      string   `toml:"JWTSecretEnv"`
	JWTIssuer         string   `toml:"JWTIssuer"`
	JWTAudience       []string `toml:"JWTAudience"`
	RequestsPerMinute float64  `toml:"RequestsPerMinute"`
	Burst             int      `toml:"Burst"`
	// TrustedProxies are peers whose X-Forwarded-For is believed.
	TrustedProxies    []string `toml:"TrustedProxies"`

	// InstantSeal seals a block for every submitted transaction.
	InstantSeal bool `toml:"InstantSeal"`
}

// Indexer selects the SQL store for username history.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	Driver  string `toml:"Driver"`
	DSN     string `toml:"DSN"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// Blocks bounds block production.
type Blocks struct {
	Interval      time.Duration `toml:"Interval"`
	MaxRefTime    uint64        `toml:"MaxRefTime"`
	MaxProofSize  uint64        `toml:"MaxProofSize"`
	MempoolMaxTxs int           `toml:"MempoolMaxTxs"`
}
