// Package config loads the engine's startup configuration: a handful of
// flags for the things an operator tunes per invocation (data directory,
// listen addresses), layered over a YAML file for the rest, following the
// teacher's flag-based cmd/treestore/main.go pattern extended with a small
// YAML loader since the engine owns its own config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nainya/treestore/internal/buffer"
	"gopkg.in/yaml.v3"
)

// ReplacerPolicy selects the buffer pool's eviction policy by name, the way
// an operator would write it in a config file.
type ReplacerPolicy string

const (
	ReplacerLRU   ReplacerPolicy = "lru"
	ReplacerClock ReplacerPolicy = "clock"
)

// ToPolicy resolves the config-file string into the buffer package's Policy
// enum, defaulting to LRU for anything unrecognized.
func (p ReplacerPolicy) ToPolicy() buffer.Policy {
	if p == ReplacerClock {
		return buffer.CLOCK
	}
	return buffer.LRU
}

// Config holds every knob the engine reads at startup.
type Config struct {
	DataDir string `yaml:"data_dir"`

	BufferPoolFrames int            `yaml:"buffer_pool_frames"`
	ReplacerPolicy   ReplacerPolicy `yaml:"replacer_policy"`

	LockWaitTickIntervalMS int `yaml:"lock_wait_tick_interval_ms"`
	CheckpointIntervalMS   int `yaml:"checkpoint_interval_ms"`

	LogLevel string `yaml:"log_level"`

	AdminHTTPAddr string `yaml:"admin_http_addr"`
	AdminGRPCAddr string `yaml:"admin_grpc_addr"`
}

// Default returns the engine's built-in defaults, used when no config file
// is given and no flag overrides a field.
func Default() Config {
	return Config{
		DataDir:                "./databases",
		BufferPoolFrames:       256,
		ReplacerPolicy:         ReplacerLRU,
		LockWaitTickIntervalMS: 20,
		CheckpointIntervalMS:   5000,
		LogLevel:               "info",
		AdminHTTPAddr:          ":9090",
		AdminGRPCAddr:          ":9091",
	}
}

// Load parses flags out of args, optionally reads a YAML file named by
// -config over the defaults, then reapplies any flags the caller set
// explicitly so command-line values win over the file.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML config file")
	dataDir := fs.String("data-dir", "", "database data directory")
	bufferFrames := fs.Int("buffer-pool-frames", 0, "number of buffer pool frames")
	replacerPolicy := fs.String("replacer-policy", "", "buffer pool eviction policy: lru or clock")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	adminHTTPAddr := fs.String("admin-http-addr", "", "admin HTTP listen address")
	adminGRPCAddr := fs.String("admin-grpc-addr", "", "admin gRPC listen address")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *configPath != "" {
		fileCfg, err := loadYAML(*configPath)
		if err != nil {
			return Config{}, err
		}
		cfg = mergeNonZero(cfg, fileCfg)
	}

	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *bufferFrames != 0 {
		cfg.BufferPoolFrames = *bufferFrames
	}
	if *replacerPolicy != "" {
		cfg.ReplacerPolicy = ReplacerPolicy(*replacerPolicy)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *adminHTTPAddr != "" {
		cfg.AdminHTTPAddr = *adminHTTPAddr
	}
	if *adminGRPCAddr != "" {
		cfg.AdminGRPCAddr = *adminGRPCAddr
	}

	return cfg, cfg.Validate()
}

func loadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// mergeNonZero overlays file values onto base, field by field, leaving base's
// default where the file left a field at its zero value.
func mergeNonZero(base, file Config) Config {
	if file.DataDir != "" {
		base.DataDir = file.DataDir
	}
	if file.BufferPoolFrames != 0 {
		base.BufferPoolFrames = file.BufferPoolFrames
	}
	if file.ReplacerPolicy != "" {
		base.ReplacerPolicy = file.ReplacerPolicy
	}
	if file.LockWaitTickIntervalMS != 0 {
		base.LockWaitTickIntervalMS = file.LockWaitTickIntervalMS
	}
	if file.CheckpointIntervalMS != 0 {
		base.CheckpointIntervalMS = file.CheckpointIntervalMS
	}
	if file.LogLevel != "" {
		base.LogLevel = file.LogLevel
	}
	if file.AdminHTTPAddr != "" {
		base.AdminHTTPAddr = file.AdminHTTPAddr
	}
	if file.AdminGRPCAddr != "" {
		base.AdminGRPCAddr = file.AdminGRPCAddr
	}
	return base
}

// LockWaitTickInterval returns the lock manager's cycle-breaker poll
// interval as a Duration.
func (c Config) LockWaitTickInterval() time.Duration {
	return time.Duration(c.LockWaitTickIntervalMS) * time.Millisecond
}

// CheckpointInterval returns the recovery checkpointer's fire interval as a
// Duration.
func (c Config) CheckpointInterval() time.Duration {
	return time.Duration(c.CheckpointIntervalMS) * time.Millisecond
}

// Validate rejects configurations the engine cannot start with.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.BufferPoolFrames <= 0 {
		return fmt.Errorf("config: buffer_pool_frames must be positive")
	}
	if c.ReplacerPolicy != ReplacerLRU && c.ReplacerPolicy != ReplacerClock {
		return fmt.Errorf("config: replacer_policy must be %q or %q, got %q", ReplacerLRU, ReplacerClock, c.ReplacerPolicy)
	}
	if c.LockWaitTickIntervalMS <= 0 {
		return fmt.Errorf("config: lock_wait_tick_interval_ms must be positive")
	}
	if c.CheckpointIntervalMS <= 0 {
		return fmt.Errorf("config: checkpoint_interval_ms must be positive")
	}
	return nil
}
