package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Client.ServerURL = "wss://example.test/sftp"
	return cfg
}

func TestValidateValidConfig(t *testing.T) {
	require.NoError(t, Validate(validConfig()))
}

func TestValidateInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "VERBOSE"
	require.Error(t, Validate(cfg))
}

func TestValidateInvalidLogFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	require.Error(t, Validate(cfg))
}

func TestValidateMissingVirtualRoot(t *testing.T) {
	cfg := validConfig()
	cfg.Server.VirtualRoot = ""
	require.Error(t, Validate(cfg))
}

func TestValidateMissingListenAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Server.ListenAddr = ""
	require.Error(t, Validate(cfg))
}

func TestValidateNegativeCacheTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.Client.CacheStatTimeout = -1
	require.Error(t, Validate(cfg))
}

func TestValidateMetricsEnabledWithoutAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ""
	require.Error(t, Validate(cfg))
}
