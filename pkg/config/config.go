// Package config loads the sequencer's startup configuration from
// flags and an optional TOML file, following spec.md §6's recognized
// options.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// BatchConfig mirrors internal/pipeline.Config's fields in the
// TOML/flag surface.
type BatchConfig struct {
	MaxTransactions int `toml:"max_transactions"`
	MaxBatchAgeSecs int `toml:"max_batch_age_secs"`
	MaxShielded     int `toml:"max_shielded"`
	MinTransactions int `toml:"min_transactions"`
}

// ThresholdConfig holds the threshold.* options. No package reads them;
// the mempool has no blind-ordering path.
type ThresholdConfig struct {
	Enabled bool `toml:"enabled"`
	K       int  `toml:"k"`
	N       int  `toml:"n"`
}

// ProverConfig controls which prover client implementation is wired.
type ProverConfig struct {
	Mock              bool `toml:"mock"`
	MaxConcurrentJobs int  `toml:"max_concurrent_jobs"`
	CacheTTLSecs      int  `toml:"cache_ttl_secs"`
}

// ReadIndexConfig controls the optional pgx-backed read mirror.
type ReadIndexConfig struct {
	Enabled  bool   `toml:"enabled"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// Config is the full set of recognized startup options, per spec.md §6.
type Config struct {
	DBPath        string `toml:"db_path"`
	ApiPort       int    `toml:"api_port"`
	DatagramPort  int    `toml:"datagram_port"`
	L1WSUrl       string `toml:"l1_ws_url"`
	L1RPCUrl      string `toml:"l1_rpc_url"`
	BridgeProgram string `toml:"bridge_program_id"`
	LogLevel      string `toml:"log_level"`
	ChainId       uint64 `toml:"chain_id"`

	Batch     BatchConfig     `toml:"batch"`
	Threshold ThresholdConfig `toml:"threshold"`
	Prover    ProverConfig    `toml:"prover"`
	ReadIndex ReadIndexConfig `toml:"readindex"`
}

// Default returns the documented defaults (spec.md §6).
func Default() Config {
	return Config{
		DBPath:       "./data/sequencer.db",
		ApiPort:      8080,
		DatagramPort: 9000,
		LogLevel:     "info",
		ChainId:      1,
		Batch: BatchConfig{
			MaxTransactions: 100,
			MaxBatchAgeSecs: 60,
			MaxShielded:     10,
			MinTransactions: 1,
		},
		Prover: ProverConfig{
			Mock:              true,
			MaxConcurrentJobs: 4,
			CacheTTLSecs:      300,
		},
	}
}

// MaxBatchAge returns Batch.MaxBatchAgeSecs as a time.Duration.
func (c Config) MaxBatchAge() time.Duration {
	return time.Duration(c.Batch.MaxBatchAgeSecs) * time.Second
}

// Load parses flags, applying an optional TOML file first (flags take
// precedence over file values, matching the teacher's parseFlags
// pattern of flag.StringVar defaults doubling as documentation).
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("sequencerd", flag.ContinueOnError)
	fs.String("config", "", "path to a TOML config file (optional)")

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "filesystem path to the persistent store")
	fs.IntVar(&cfg.ApiPort, "api-port", cfg.ApiPort, "HTTP read API listen port")
	fs.IntVar(&cfg.DatagramPort, "datagram-port", cfg.DatagramPort, "UDP session listen port")
	fs.StringVar(&cfg.L1WSUrl, "l1-ws-url", cfg.L1WSUrl, "L1 websocket endpoint")
	fs.StringVar(&cfg.L1RPCUrl, "l1-rpc-url", cfg.L1RPCUrl, "L1 RPC endpoint")
	fs.StringVar(&cfg.BridgeProgram, "bridge-program-id", cfg.BridgeProgram, "L1 bridge program id")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.Uint64Var(&cfg.ChainId, "chain-id", cfg.ChainId, "chain id transparent transfers must target")

	fs.IntVar(&cfg.Batch.MaxTransactions, "batch-max-transactions", cfg.Batch.MaxTransactions, "max transactions per sealed batch")
	fs.IntVar(&cfg.Batch.MaxBatchAgeSecs, "batch-max-age-secs", cfg.Batch.MaxBatchAgeSecs, "max batch age before forced seal")
	fs.IntVar(&cfg.Batch.MaxShielded, "batch-max-shielded", cfg.Batch.MaxShielded, "max shielded txs per batch")
	fs.IntVar(&cfg.Batch.MinTransactions, "batch-min-transactions", cfg.Batch.MinTransactions, "min transactions before a batch may seal")

	fs.BoolVar(&cfg.Threshold.Enabled, "threshold-enabled", cfg.Threshold.Enabled, "enable blind-ordered mempool")
	fs.IntVar(&cfg.Threshold.K, "threshold-k", cfg.Threshold.K, "threshold committee K")
	fs.IntVar(&cfg.Threshold.N, "threshold-n", cfg.Threshold.N, "threshold committee N")

	fs.BoolVar(&cfg.Prover.Mock, "prover-mock", cfg.Prover.Mock, "use the in-process mock prover")
	fs.IntVar(&cfg.Prover.MaxConcurrentJobs, "prover-max-concurrent-jobs", cfg.Prover.MaxConcurrentJobs, "max concurrent proving jobs")
	fs.IntVar(&cfg.Prover.CacheTTLSecs, "prover-cache-ttl-secs", cfg.Prover.CacheTTLSecs, "proof cache TTL in seconds")

	fs.BoolVar(&cfg.ReadIndex.Enabled, "readindex-enabled", cfg.ReadIndex.Enabled, "mirror sealed batches into Postgres")
	fs.StringVar(&cfg.ReadIndex.Host, "readindex-host", cfg.ReadIndex.Host, "Postgres host")
	fs.IntVar(&cfg.ReadIndex.Port, "readindex-port", cfg.ReadIndex.Port, "Postgres port")
	fs.StringVar(&cfg.ReadIndex.User, "readindex-user", cfg.ReadIndex.User, "Postgres user")
	fs.StringVar(&cfg.ReadIndex.Database, "readindex-database", cfg.ReadIndex.Database, "Postgres database name")

	// A config file, if given, supplies values before flags are parsed
	// against os.Args so that explicit flags still win.
	if path, ok := peekConfigFlag(args); ok {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// peekConfigFlag scans args for "-config"/"--config" ahead of the real
// fs.Parse pass, since TOML values must load before explicit flags are
// applied (flags should override the file, not the reverse).
func peekConfigFlag(args []string) (string, bool) {
	for i, a := range args {
		if a == "-config" || a == "--config" {
			if i+1 < len(args) {
				return args[i+1], true
			}
		}
	}
	if v := os.Getenv("SEQUENCER_CONFIG"); v != "" {
		return v, true
	}
	return "", false
}
