package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsUnsetFields(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	require.Equal(t, defaultLogLevel, cfg.Logging.Level)
	require.Equal(t, defaultLogFormat, cfg.Logging.Format)
	require.Equal(t, defaultLogOutput, cfg.Logging.Output)
	require.Equal(t, defaultCacheTimeout, cfg.Client.CacheTimeout)
	require.NotNil(t, cfg.Client.Reconnect)
	require.True(t, *cfg.Client.Reconnect)
	require.Equal(t, defaultServerListenAddr, cfg.Server.ListenAddr)
	require.Equal(t, ".", cfg.Server.VirtualRoot)
	require.Equal(t, defaultServerRealm, cfg.Server.Realm)
}

func TestApplyDefaultsLeavesAuthCredentialsUnset(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	require.Empty(t, cfg.Server.AuthUser)
	require.Empty(t, cfg.Server.AuthPassword)
}

func TestApplyDefaultsPreservesExplicitFalseReconnect(t *testing.T) {
	disabled := false
	cfg := &Config{Client: ClientConfig{Reconnect: &disabled}}
	ApplyDefaults(cfg)
	require.False(t, *cfg.Client.Reconnect)
}

func TestApplyDefaultsLeavesCacheOverridesAlone(t *testing.T) {
	cfg := &Config{Client: ClientConfig{CacheStatTimeout: 5 * time.Second}}
	ApplyDefaults(cfg)
	require.Equal(t, 5*time.Second, cfg.Client.CacheStatTimeout)
	require.Equal(t, time.Duration(0), cfg.Client.CacheDirTimeout)
}

func TestApplyDefaultsSkipsReadTrackingWhenPathUnset(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	require.Equal(t, time.Duration(0), cfg.Client.ReadTracking.Timeout)
}

func TestApplyDefaultsFillsReadTrackingWhenPathSet(t *testing.T) {
	cfg := &Config{Client: ClientConfig{ReadTracking: ReadTrackingConfig{Path: "/var/log/sftpws-access.log"}}}
	ApplyDefaults(cfg)
	require.Equal(t, defaultReadTrackingTTL, cfg.Client.ReadTracking.Timeout)
	require.Equal(t, defaultReadTrackingUpdate, cfg.Client.ReadTracking.Update)
}

func TestApplyMetricsDefaultsOnlyWhenEnabled(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	require.Empty(t, cfg.Metrics.Addr)

	cfg2 := &Config{Metrics: MetricsConfig{Enabled: true}}
	ApplyDefaults(cfg2)
	require.Equal(t, defaultMetricsAddr, cfg2.Metrics.Addr)
}
