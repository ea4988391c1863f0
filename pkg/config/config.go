// Package config loads and validates the FleetTools coordination engine's
// configuration table (§6): store connection settings, sweep/escalation
// intervals, checkpoint retention policy, and compaction thresholds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the umbrella configuration object passed into fleetcore.Core at
// construction. It replaces the ambient-singleton pattern: every component
// receives the subset of Config (or the whole struct) it needs explicitly.
type Config struct {
	// StateDir is the root of persisted state: <state_dir>/<project_hash>/store.db(+-wal),
	// <state_dir>/checkpoints/<mission_id>/*.json, <state_dir>/archive/*.log.
	StateDir string

	Database Database

	StaleThresholdMs     int   // Specialist liveness cutoff, default 300000
	HeartbeatCheckMs     int   // Staleness sweep interval, default 30000
	LockSweepMs          int   // Expired-lock sweep interval, default 30000
	BlockerTimeoutMs     int   // Time before escalating a blocker, default 900000
	CheckpointThresholds []int // Progress milestones, default [25,50,75]

	MinKeepCheckpoints     int // Retention floor per mission, default 3
	RetentionDays          int // Normal checkpoint retention, default 7
	CompletedRetentionDays int // Retention after mission completion, default 30

	CompactThresholdEvents int   // Stream compaction trigger, default 10000
	CompactAgeDays         int   // Event-age compaction trigger, default 7
	MaxCheckpointBytes     int64 // Reject oversized checkpoints, default 10485760

	AppendBusyTimeoutMs int // Store contention wait, default 5000
}

// Database holds PostgreSQL connection settings, mirroring the shape the
// teacher's pkg/database.Config uses for pool tuning.
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Defaults returns the configuration table's stable defaults (§6), before
// any environment override is applied.
func Defaults() Config {
	return Config{
		StateDir:               defaultStateDir(),
		StaleThresholdMs:       300_000,
		HeartbeatCheckMs:       30_000,
		LockSweepMs:            30_000,
		BlockerTimeoutMs:       900_000,
		CheckpointThresholds:   []int{25, 50, 75},
		MinKeepCheckpoints:     3,
		RetentionDays:          7,
		CompletedRetentionDays: 30,
		CompactThresholdEvents: 10_000,
		CompactAgeDays:         7,
		MaxCheckpointBytes:     10_485_760,
		AppendBusyTimeoutMs:    5_000,
		Database: Database{
			Host:            "localhost",
			Port:            5432,
			User:            "fleettools",
			Database:        "fleettools",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
		},
	}
}

// LoadFromEnv loads Config from environment variables, layered over
// Defaults(). Unlike the teacher's YAML-driven chain/agent registries
// (LLM-planner configuration, out of scope here), the coordination engine's
// configuration table is flat and env-only.
func LoadFromEnv() (Config, error) {
	cfg := Defaults()

	if v := os.Getenv("STATE_DIR"); v != "" {
		cfg.StateDir = v
	}

	cfg.Database.Host = getEnvOrDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.User = getEnvOrDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Database = getEnvOrDefault("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.Database.SSLMode)

	var err error
	if cfg.Database.Port, err = getIntOrDefault("DB_PORT", cfg.Database.Port); err != nil {
		return Config{}, err
	}
	if cfg.Database.MaxOpenConns, err = getIntOrDefault("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns); err != nil {
		return Config{}, err
	}
	if cfg.Database.MaxIdleConns, err = getIntOrDefault("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns); err != nil {
		return Config{}, err
	}
	if cfg.Database.ConnMaxLifetime, err = getDurationOrDefault("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime); err != nil {
		return Config{}, err
	}
	if cfg.Database.ConnMaxIdleTime, err = getDurationOrDefault("DB_CONN_MAX_IDLE_TIME", cfg.Database.ConnMaxIdleTime); err != nil {
		return Config{}, err
	}

	if cfg.StaleThresholdMs, err = getIntOrDefault("STALE_THRESHOLD_MS", cfg.StaleThresholdMs); err != nil {
		return Config{}, err
	}
	if cfg.HeartbeatCheckMs, err = getIntOrDefault("HEARTBEAT_CHECK_MS", cfg.HeartbeatCheckMs); err != nil {
		return Config{}, err
	}
	if cfg.LockSweepMs, err = getIntOrDefault("LOCK_SWEEP_MS", cfg.LockSweepMs); err != nil {
		return Config{}, err
	}
	if cfg.BlockerTimeoutMs, err = getIntOrDefault("BLOCKER_TIMEOUT_MS", cfg.BlockerTimeoutMs); err != nil {
		return Config{}, err
	}
	if cfg.MinKeepCheckpoints, err = getIntOrDefault("MIN_KEEP_CHECKPOINTS", cfg.MinKeepCheckpoints); err != nil {
		return Config{}, err
	}
	if cfg.RetentionDays, err = getIntOrDefault("RETENTION_DAYS", cfg.RetentionDays); err != nil {
		return Config{}, err
	}
	if cfg.CompletedRetentionDays, err = getIntOrDefault("COMPLETED_RETENTION_DAYS", cfg.CompletedRetentionDays); err != nil {
		return Config{}, err
	}
	if cfg.CompactThresholdEvents, err = getIntOrDefault("COMPACT_THRESHOLD_EVENTS", cfg.CompactThresholdEvents); err != nil {
		return Config{}, err
	}
	if cfg.CompactAgeDays, err = getIntOrDefault("COMPACT_AGE_DAYS", cfg.CompactAgeDays); err != nil {
		return Config{}, err
	}
	if cfg.AppendBusyTimeoutMs, err = getIntOrDefault("APPEND_BUSY_TIMEOUT_MS", cfg.AppendBusyTimeoutMs); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("MAX_CHECKPOINT_BYTES"); v != "" {
		n, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid MAX_CHECKPOINT_BYTES: %w", parseErr)
		}
		cfg.MaxCheckpointBytes = n
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field invariants the way the teacher's
// database.Config.Validate does for DB_* variables, generalized to the
// whole configuration table.
func (c Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.StaleThresholdMs <= 0 {
		return fmt.Errorf("STALE_THRESHOLD_MS must be positive")
	}
	if c.BlockerTimeoutMs <= 0 {
		return fmt.Errorf("BLOCKER_TIMEOUT_MS must be positive")
	}
	if c.MinKeepCheckpoints < 1 {
		return fmt.Errorf("MIN_KEEP_CHECKPOINTS must be at least 1")
	}
	if c.MaxCheckpointBytes <= 0 {
		return fmt.Errorf("MAX_CHECKPOINT_BYTES must be positive")
	}
	return nil
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/fleettools"
	}
	return "./fleettools-state"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntOrDefault(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationOrDefault(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
