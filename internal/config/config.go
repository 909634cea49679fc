package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// CompactionStyle selects the per-column-family compaction strategy.
type CompactionStyle string

const (
	CompactionNone      CompactionStyle = "none"
	CompactionLevel     CompactionStyle = "level"
	CompactionUniversal CompactionStyle = "universal"
)

// StatisticsLevel controls how much internal bookkeeping the engine keeps
// for Stats & Introspection queries.
type StatisticsLevel string

const (
	StatsOff                    StatisticsLevel = "off"
	StatsExceptDetailedTimers   StatisticsLevel = "except-detailed-timers"
	StatsExceptTimeForMutex     StatisticsLevel = "except-time-for-mutex"
	StatsAll                    StatisticsLevel = "all"
)

// ServerConfig holds the ambient daemon's listener settings.
type ServerConfig struct {
	NodeID          string        `yaml:"node_id"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EngineConfig holds the persistence engine's configuration knobs, exactly
// the set enumerated for vBucket persistence: directory layout, sharding,
// background thread pools, cache sizing, and per-column-family tuning.
type EngineConfig struct {
	DBName                   string          `yaml:"db_name"`
	MaxVBuckets              int             `yaml:"max_vbuckets"`
	MaxShards                int             `yaml:"max_shards"`
	ShardID                  int             `yaml:"shard_id"`
	LowPriBackgroundThreads  int             `yaml:"low_pri_background_threads"`
	HighPriBackgroundThreads int             `yaml:"high_pri_background_threads"`
	BlockCacheSize           int64           `yaml:"block_cache_size"`
	StatisticsLevel          StatisticsLevel `yaml:"statistics_level"`
	DefaultCFMemBudget       int64           `yaml:"default_cf_mem_budget"`
	SeqnoCFMemBudget         int64           `yaml:"seqno_cf_mem_budget"`
	DefaultCFCompaction      CompactionStyle `yaml:"default_cf_compaction"`
	SeqnoCFCompaction        CompactionStyle `yaml:"seqno_cf_compaction"`
	ExtraCFOptions           string          `yaml:"extra_cf_options"`
	ExtraBlockTableOptions   string          `yaml:"extra_block_table_options"`
}

// DiskConfig configures the admission-control thresholds ahead of commit.
type DiskConfig struct {
	CheckInterval           time.Duration `yaml:"check_interval"`
	WarningThreshold        float64       `yaml:"warning_threshold"`
	ThrottleThreshold       float64       `yaml:"throttle_threshold"`
	CircuitBreakerThreshold float64       `yaml:"circuit_breaker_threshold"`
}

// WorkerPoolConfig configures the engine's bounded background worker pool.
type WorkerPoolConfig struct {
	MaxWorkers int `yaml:"max_workers"`
	QueueSize  int `yaml:"queue_size"`
}

// MetricsConfig holds Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete configuration for the vbstored daemon and the
// engine it wraps.
type Config struct {
	Server  ServerConfig     `yaml:"server"`
	Engine  EngineConfig     `yaml:"engine"`
	Disk    DiskConfig       `yaml:"disk"`
	Workers WorkerPoolConfig `yaml:"workers"`
	Metrics MetricsConfig    `yaml:"metrics"`
	Logging LoggingConfig    `yaml:"logging"`
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8091
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Engine.DBName == "" {
		cfg.Engine.DBName = "/var/lib/vbstore"
	}
	if cfg.Engine.MaxVBuckets == 0 {
		cfg.Engine.MaxVBuckets = 1024
	}
	if cfg.Engine.MaxShards == 0 {
		cfg.Engine.MaxShards = 4
	}
	if cfg.Engine.LowPriBackgroundThreads == 0 {
		cfg.Engine.LowPriBackgroundThreads = runtime.NumCPU()
	}
	if cfg.Engine.HighPriBackgroundThreads == 0 {
		cfg.Engine.HighPriBackgroundThreads = runtime.NumCPU()
	}
	if cfg.Engine.BlockCacheSize == 0 {
		cfg.Engine.BlockCacheSize = 512 * 1024 * 1024
	}
	if cfg.Engine.StatisticsLevel == "" {
		cfg.Engine.StatisticsLevel = StatsExceptDetailedTimers
	}
	if cfg.Engine.DefaultCFMemBudget == 0 {
		cfg.Engine.DefaultCFMemBudget = 64 * 1024 * 1024
	}
	if cfg.Engine.SeqnoCFMemBudget == 0 {
		cfg.Engine.SeqnoCFMemBudget = 16 * 1024 * 1024
	}
	if cfg.Engine.DefaultCFCompaction == "" {
		cfg.Engine.DefaultCFCompaction = CompactionLevel
	}
	if cfg.Engine.SeqnoCFCompaction == "" {
		cfg.Engine.SeqnoCFCompaction = CompactionLevel
	}

	if cfg.Disk.CheckInterval == 0 {
		cfg.Disk.CheckInterval = 10 * time.Second
	}
	if cfg.Disk.WarningThreshold == 0 {
		cfg.Disk.WarningThreshold = 80.0
	}
	if cfg.Disk.ThrottleThreshold == 0 {
		cfg.Disk.ThrottleThreshold = 90.0
	}
	if cfg.Disk.CircuitBreakerThreshold == 0 {
		cfg.Disk.CircuitBreakerThreshold = 95.0
	}

	if cfg.Workers.MaxWorkers == 0 {
		cfg.Workers.MaxWorkers = 10
	}
	if cfg.Workers.QueueSize == 0 {
		cfg.Workers.QueueSize = 100
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9091
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return fmt.Errorf("server.node_id is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Engine.MaxShards < 1 {
		return fmt.Errorf("engine.max_shards must be at least 1")
	}
	if c.Engine.ShardID < 0 || c.Engine.ShardID >= c.Engine.MaxShards {
		return fmt.Errorf("engine.shard_id must be in [0, max_shards)")
	}
	switch c.Engine.DefaultCFCompaction {
	case CompactionNone, CompactionLevel, CompactionUniversal:
	default:
		return fmt.Errorf("engine.default_cf_compaction %q is invalid", c.Engine.DefaultCFCompaction)
	}
	switch c.Engine.SeqnoCFCompaction {
	case CompactionNone, CompactionLevel, CompactionUniversal:
	default:
		return fmt.Errorf("engine.seqno_cf_compaction %q is invalid", c.Engine.SeqnoCFCompaction)
	}
	switch c.Engine.StatisticsLevel {
	case StatsOff, StatsExceptDetailedTimers, StatsExceptTimeForMutex, StatsAll:
	default:
		return fmt.Errorf("engine.statistics_level %q is invalid", c.Engine.StatisticsLevel)
	}
	return nil
}
