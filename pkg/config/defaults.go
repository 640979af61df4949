package config

import (
	"time"

	"github.com/marmos91/sftpws/internal/bytesize"
)

// Default values for spec.md §6's option table. The reconnect backoff
// constants (start/factor/cap) are spec-fixed behavior, not tunable
// config — they live beside the reconnect loop in
// internal/fsadapter/ops.go and are not restated here; ApplyDefaults does
// not need to set them since Config carries no fields for them.
const (
	defaultCacheTimeout       = 20 * time.Second
	defaultReconnect          = true
	defaultReadTrackingTTL    = 10 * time.Minute
	defaultReadTrackingUpdate = 30 * time.Second
	defaultLogLevel           = "INFO"
	defaultLogFormat          = "text"
	defaultLogOutput          = "stdout"
	defaultServerListenAddr   = ":8022"
	defaultServerRealm        = "sftpws"
	defaultMetricsAddr        = ":9090"
	defaultIOChunkSize        = 1 * bytesize.MiB
)

// ApplyDefaults fills in every zero-valued field of cfg with its
// documented default, the way the teacher's ApplyDefaults dispatches to
// one applyXDefaults helper per subsystem.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyClientDefaults(&cfg.Client)
	applyServerDefaults(&cfg.Server)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = defaultLogLevel
	}
	if cfg.Format == "" {
		cfg.Format = defaultLogFormat
	}
	if cfg.Output == "" {
		cfg.Output = defaultLogOutput
	}
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.CacheTimeout <= 0 {
		cfg.CacheTimeout = defaultCacheTimeout
	}
	if cfg.Reconnect == nil {
		reconnect := defaultReconnect
		cfg.Reconnect = &reconnect
	}
	if cfg.ReadTracking.Path != "" {
		if cfg.ReadTracking.Timeout <= 0 {
			cfg.ReadTracking.Timeout = defaultReadTrackingTTL
		}
		if cfg.ReadTracking.Update <= 0 {
			cfg.ReadTracking.Update = defaultReadTrackingUpdate
		}
	}
	if cfg.IOChunkSize <= 0 {
		cfg.IOChunkSize = defaultIOChunkSize
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultServerListenAddr
	}
	if cfg.VirtualRoot == "" {
		cfg.VirtualRoot = "."
	}
	if cfg.Realm == "" {
		cfg.Realm = defaultServerRealm
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Addr == "" {
		cfg.Addr = defaultMetricsAddr
	}
}

// GetDefaultConfig returns a fully populated Config with every field at
// its documented default, for use when no config file is found.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
