package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"raicore.dev/ledger/node"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	cfg := defaults

	fs := flag.NewFlagSet("ledger-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "path to JSON config file (overrides flags below where set)")
	fs.StringVar(&cfg.GatewayURL, "gateway-url", defaults.GatewayURL, "upstream gateway WebSocket URL")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.ClientBindAddr, "bind", defaults.ClientBindAddr, "client RPC bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&cfg.Representative, "representative", defaults.Representative, "this node's representative account, if any")
	fs.IntVar(&cfg.QueryConcurrency, "query-concurrency", defaults.QueryConcurrency, "in-flight blocks_query cap")
	fs.IntVar(&cfg.BlockCacheMax, "block-cache-max", defaults.BlockCacheMax, "prefetch block cache size cap")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *configPath != "" {
		loaded, err := loadConfigFile(*configPath, cfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "config load failed: %v\n", err)
			return 1
		}
		cfg = loaded
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := node.ValidateConfig(cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 1
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		_, _ = fmt.Fprintf(stderr, "datadir create failed: %v\n", err)
		return 1
	}

	if err := printConfig(stdout, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))

	core, err := node.New(cfg, log)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "core init failed: %v\n", err)
		return 2
	}
	if err := core.Store().VerifyHeads(); err != nil {
		_, _ = fmt.Fprintf(stderr, "startup signature verification failed: %v\n", err)
		return 3
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core.Run()
	_, _ = fmt.Fprintln(stdout, "ledger-node running")
	<-ctx.Done()
	core.Stop()
	_, _ = fmt.Fprintln(stdout, "ledger-node stopped")
	return 0
}

func loadConfigFile(path string, base node.Config) (node.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	cfg := base
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

func printConfig(w io.Writer, cfg node.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
