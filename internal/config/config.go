// Package config holds the broker engine's tunable defaults: pool sizing,
// timeouts, buffer sizes and the chunk-planning heuristics. None of this
// is end-user facing CLI configuration — it is loaded once by the host
// application that embeds the broker, typically from an on-disk file plus
// environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// PoolConfig describes the bounds for one (session, role) connection pool.
type PoolConfig struct {
	Min           int           `mapstructure:"min"`
	Max           int           `mapstructure:"max"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	AcquireWait   time.Duration `mapstructure:"acquire_wait"`
	ProbeFreshness time.Duration `mapstructure:"probe_freshness"`
}

// ConnectionConfig tunes the Connection Factory (C1).
type ConnectionConfig struct {
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	KeepaliveInterval   time.Duration `mapstructure:"keepalive_interval"`
	KeepaliveMaxMissed  int           `mapstructure:"keepalive_max_missed"`
	BreakerMaxFailures  uint32        `mapstructure:"breaker_max_failures"`
	BreakerCooldown     time.Duration `mapstructure:"breaker_cooldown"`
}

// CommandConfig tunes the Command Executor (C4).
type CommandConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxOutputSize int64         `mapstructure:"max_output_size"`
}

// TransferConfig tunes the Transfer Engine (C6/C7) and its adaptive buffering.
type TransferConfig struct {
	SubReadSize             int64         `mapstructure:"sub_read_size"`
	InitialBufferSize       int64         `mapstructure:"initial_buffer_size"`
	MinBufferSize           int64         `mapstructure:"min_buffer_size"`
	MaxBufferSize           int64         `mapstructure:"max_buffer_size"`
	AdaptiveThresholdBytes  float64       `mapstructure:"adaptive_threshold_bytes_per_sec"`
	AdaptiveFactor          float64       `mapstructure:"adaptive_factor"`
	SpeedSampleWindow       time.Duration `mapstructure:"speed_sample_window"`
	ProgressPollInterval    time.Duration `mapstructure:"progress_poll_interval"`
	ChunkMaxRetries         int           `mapstructure:"chunk_max_retries"`
	ChunkRetryBaseBackoff   time.Duration `mapstructure:"chunk_retry_base_backoff"`
	ParallelUploadMinBytes  int64         `mapstructure:"parallel_upload_min_bytes"`
	ParallelDownloadMinBytes int64        `mapstructure:"parallel_download_min_bytes"`
	DefaultMaxChunks        int           `mapstructure:"default_max_chunks"`
}

// SFTPConfig tunes the SFTP Client Cache (C5).
type SFTPConfig struct {
	PathHistoryLimit int `mapstructure:"path_history_limit"`
}

// Config is the root configuration for the broker engine.
type Config struct {
	SharedPool   PoolConfig       `mapstructure:"shared_pool"`
	TransferPool PoolConfig       `mapstructure:"transfer_pool"`
	Connection   ConnectionConfig `mapstructure:"connection"`
	Command      CommandConfig    `mapstructure:"command"`
	Transfer     TransferConfig   `mapstructure:"transfer"`
	SFTP         SFTPConfig       `mapstructure:"sftp"`
}

// Default returns the engine defaults called out in the specification.
func Default() *Config {
	return &Config{
		SharedPool: PoolConfig{
			Min: 2, Max: 8,
			IdleTimeout:    5 * time.Minute,
			AcquireWait:    8 * time.Second,
			ProbeFreshness: 30 * time.Second,
		},
		TransferPool: PoolConfig{
			Min: 1, Max: 5,
			IdleTimeout:    10 * time.Minute,
			AcquireWait:    8 * time.Second,
			ProbeFreshness: 30 * time.Second,
		},
		Connection: ConnectionConfig{
			DialTimeout:        30 * time.Second,
			KeepaliveInterval:  10 * time.Second,
			KeepaliveMaxMissed: 3,
			BreakerMaxFailures: 3,
			BreakerCooldown:    30 * time.Second,
		},
		Command: CommandConfig{
			Timeout:       60 * time.Second,
			MaxOutputSize: 8 * 1024 * 1024,
		},
		Transfer: TransferConfig{
			SubReadSize:              64 * 1024,
			InitialBufferSize:        1 << 20,
			MinBufferSize:            256 << 10,
			MaxBufferSize:            8 << 20,
			AdaptiveThresholdBytes:   1 << 20,
			AdaptiveFactor:           1.5,
			SpeedSampleWindow:        10 * time.Second,
			ProgressPollInterval:     100 * time.Millisecond,
			ChunkMaxRetries:          3,
			ChunkRetryBaseBackoff:    time.Second,
			ParallelUploadMinBytes:   50 << 20,
			ParallelDownloadMinBytes: 10 << 20,
			DefaultMaxChunks:         30,
		},
		SFTP: SFTPConfig{
			PathHistoryLimit: 50,
		},
	}
}

// Load reads an optional config file (YAML/TOML/JSON, auto-detected by
// viper from its extension) layered over SSHBROKER_-prefixed environment
// variables and the built-in defaults. configPath may be empty, in which
// case only env vars and defaults apply.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("SSHBROKER")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return cfg, nil
}
