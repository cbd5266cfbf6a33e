package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"namechain/config"
	"namechain/core"
	"namechain/core/genesis"
	"namechain/core/registry"
	"namechain/indexer"
	"namechain/observability/logging"
	telemetry "namechain/observability/otel"
	"namechain/rpc"
	"namechain/storage"
)

const (
	envVar        = "NAMECHAIN_ENV"
	genesisEnvVar = "NAMECHAIN_GENESIS"
	version       = "0.1.0"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis spec (overrides NAMECHAIN_GENESIS and config GenesisFile)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	env := strings.TrimSpace(os.Getenv(envVar))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup("namechaind", env, logging.Options{
		File:  cfg.LogFile,
		Level: logging.ParseLevel(cfg.LogLevel),
	})

	if err := run(cfg, env, resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv), logger); err != nil {
		logger.Error("namechaind exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, env, genesisPath string, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName:    "namechaind",
		ServiceVersion: version,
		Environment:    env,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Headers:        telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:        cfg.Telemetry.Metrics,
		Traces:         cfg.Telemetry.Traces,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	var spec *genesis.GenesisSpec
	if genesisPath != "" {
		spec, err = genesis.LoadGenesisSpec(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis spec: %w", err)
		}
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	node, err := core.NewNode(db, spec,
		core.WithLogger(logger),
		core.WithMempoolLimit(cfg.Blocks.MempoolMaxTxs),
		core.WithMaxBlockWeight(registry.Weight{
			RefTime:   cfg.Blocks.MaxRefTime,
			ProofSize: cfg.Blocks.MaxProofSize,
		}),
	)
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var history rpc.HistoryReader
	if cfg.Indexer.Enabled {
		gdb, err := indexer.Open(cfg.Indexer.Driver, cfg.Indexer.DSN)
		if err != nil {
			return fmt.Errorf("open indexer: %w", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return fmt.Errorf("indexer connection: %w", err)
		}
		defer sqlDB.Close()
		ix, err := indexer.New(gdb, logger)
		if err != nil {
			return fmt.Errorf("create indexer: %w", err)
		}
		if err := ix.Backfill(ctx, node.Chain()); err != nil {
			return fmt.Errorf("backfill indexer: %w", err)
		}
		node.OnBlock(ix.Listener())
		history = ix
	}

	server, err := rpc.NewServer(node, history, rpc.ServerConfig{
		JWT: rpc.JWTConfig{
			Enable:         strings.TrimSpace(cfg.RPC.JWTSecretEnv) != "",
			HSSecretEnv:    cfg.RPC.JWTSecretEnv,
			Issuer:         cfg.RPC.JWTIssuer,
			Audience:       cfg.RPC.JWTAudience,
			MaxSkewSeconds: 60,
		},
		RateLimit: rpc.RateLimitConfig{
			RequestsPerMinute: cfg.RPC.RequestsPerMinute,
			Burst:             cfg.RPC.Burst,
			TrustedProxies:    cfg.RPC.TrustedProxies,
		},
		InstantSeal: cfg.RPC.InstantSeal,
	}, logger)
	if err != nil {
		return fmt.Errorf("create rpc server: %w", err)
	}

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.RPCAddress, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	if !cfg.RPC.InstantSeal {
		// Deferred after the database closers so it runs before them.
		defer startProducer(ctx, node.Run, cfg.Blocks.Interval)()
	}

	logger.Info("namechaind started",
		slog.String("rpc", listener.Addr().String()),
		slog.Uint64("height", node.GetHeight()),
		slog.Bool("instantSeal", cfg.RPC.InstantSeal))

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		stop()
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	logger.Info("namechaind stopped")
	return nil
}

// startProducer runs the block producer until ctx ends. The returned wait
// blocks until the producer has returned, so no block is mid-commit when
// storage closes.
func startProducer(ctx context.Context, run func(context.Context, time.Duration), interval time.Duration) (wait func()) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		run(ctx, interval)
	}()
	return wg.Wait
}

// resolveGenesisPath picks the genesis spec by precedence: flag, environment,
// then config. An empty result builds the default genesis.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v, ok := lookup(genesisEnvVar); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(configValue)
}
