// Package node wires the Ledger Store, Block Processor, Election
// Container, Query Scheduler, Gateway Client, and subscription Table
// into one running core, plus the config loading and alarm/timer
// glue those components share (section 6.6).
package node

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Config is the core's single JSON configuration file (section 6.6:
// "configuration is a single JSON file").
type Config struct {
	GatewayURL     string `json:"gateway_url"`
	DataDir        string `json:"data_dir"`
	ClientBindAddr string `json:"client_bind_addr"`
	LogLevel       string `json:"log_level"`
	Representative string `json:"representative,omitempty"`
	QueryConcurrency int  `json:"query_concurrency"`
	BlockCacheMax    int  `json:"block_cache_max"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

// DefaultDataDir mirrors the teacher's home-directory fallback.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".ledger-node"
	}
	return filepath.Join(home, ".ledger-node")
}

// DefaultConfig returns the core's out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{
		GatewayURL:       "wss://gateway.local:7076",
		DataDir:          DefaultDataDir(),
		ClientBindAddr:   "127.0.0.1:7078",
		LogLevel:         "info",
		QueryConcurrency: 8,
		BlockCacheMax:    100_000,
	}
}

// ValidateConfig checks cfg field-by-field (section 6.6: exit code 1
// on "invalid gateway URL" and friends).
func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	u, err := url.Parse(cfg.GatewayURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid gateway_url %q", cfg.GatewayURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("gateway_url must use ws:// or wss://, got %q", cfg.GatewayURL)
	}
	if strings.TrimSpace(cfg.ClientBindAddr) == "" {
		return errors.New("client_bind_addr is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.Representative != "" {
		if _, err := parseRepresentative(cfg.Representative); err != nil {
			return fmt.Errorf("invalid representative: %w", err)
		}
	}
	if cfg.QueryConcurrency <= 0 {
		return errors.New("query_concurrency must be > 0")
	}
	if cfg.BlockCacheMax < 0 {
		return errors.New("block_cache_max must be >= 0")
	}
	return nil
}

// DBPath returns the bbolt database file path under cfg.DataDir.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, "ledger.db")
}
