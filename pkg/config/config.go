// Package config loads and validates sftpws's configuration: the
// client-side adapter/cache options of spec.md §6, the server-side
// exposure options of spec.md §4.E, and the ambient logging group
// carried alongside them, the way the teacher's pkg/config package
// layers viper file/env loading under a tagged Config struct.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/sftpws/internal/bytesize"
)

// envPrefix is the environment variable prefix viper binds flat keys
// under, e.g. SFTPWS_CLIENT_CACHE_TIMEOUT.
const envPrefix = "SFTPWS"

// LoggingConfig mirrors internal/logger.Config's fields so a config file
// can drive the process-wide logger the same way the teacher's
// pkg/config.LoggingConfig drives its slog setup.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ReadTrackingConfig mirrors spec.md §6's readTracking.* option group.
type ReadTrackingConfig struct {
	Path     string        `mapstructure:"path" yaml:"path"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Update   time.Duration `mapstructure:"update" yaml:"update"`
	Modified time.Duration `mapstructure:"modified" yaml:"modified"`
}

// ClientConfig mirrors spec.md §6's client-side adapter/cache options.
type ClientConfig struct {
	// ServerURL has no "required" tag: it is commonly supplied via the
	// sftpwsfs mount subcommand's positional argument instead of a config
	// file, so an otherwise-default config must still validate.
	ServerURL        string             `mapstructure:"server_url" yaml:"server_url"`
	CacheTimeout     time.Duration      `mapstructure:"cache_timeout" yaml:"cache_timeout" validate:"gte=0"`
	CacheStatTimeout time.Duration      `mapstructure:"cache_stat_timeout" yaml:"cache_stat_timeout" validate:"gte=0"`
	CacheDirTimeout  time.Duration      `mapstructure:"cache_dir_timeout" yaml:"cache_dir_timeout" validate:"gte=0"`
	CacheLinkTimeout time.Duration      `mapstructure:"cache_link_timeout" yaml:"cache_link_timeout" validate:"gte=0"`
	// Reconnect is a pointer so ApplyDefaults can distinguish "not set in
	// the config file" (nil, defaults to true) from "explicitly disabled"
	// (non-nil false), since bool's zero value can't carry that
	// distinction.
	Reconnect    *bool              `mapstructure:"reconnect" yaml:"reconnect"`
	ReadTracking ReadTrackingConfig `mapstructure:"read_tracking" yaml:"read_tracking"`
	MetadataFile string             `mapstructure:"metadata_file" yaml:"metadata_file"`
	HidePath     string             `mapstructure:"hide_path" yaml:"hide_path"`
	MountPoint   string             `mapstructure:"mount_point" yaml:"mount_point"`
	AuthUser     string             `mapstructure:"auth_user" yaml:"auth_user"`
	AuthPassword string             `mapstructure:"auth_password" yaml:"auth_password"`
	// IOChunkSize caps a single wire Read/Write call; accepts human-readable
	// sizes like "1Mi" or "512Ki" via bytesize.ByteSize, the same way the
	// teacher's size-like options do.
	IOChunkSize bytesize.ByteSize `mapstructure:"io_chunk_size" yaml:"io_chunk_size" validate:"gte=0"`
}

// ServerConfig mirrors spec.md §4.E's safe-filesystem exposure options.
//
// AuthUser/AuthPassword are the Basic-auth credentials the handshake
// checks the Authorization header against (spec.md §6 Authentication:
// "the engine does not itself parse credentials beyond observing
// Authorization header presence" — the wire protocol's concern stops at
// conveying the header; checking it against a configured pair is this
// binary's business, not the protocol's). Leaving both empty disables
// the check, accepting every handshake unauthenticated.
type ServerConfig struct {
	ListenAddr   string `mapstructure:"listen_addr" yaml:"listen_addr" validate:"required"`
	VirtualRoot  string `mapstructure:"virtual_root" yaml:"virtual_root" validate:"required"`
	ReadOnly     bool   `mapstructure:"read_only" yaml:"read_only"`
	HideUIDGID   bool   `mapstructure:"hide_uid_gid" yaml:"hide_uid_gid"`
	AuthUser     string `mapstructure:"auth_user" yaml:"auth_user"`
	AuthPassword string `mapstructure:"auth_password" yaml:"auth_password"`
	Realm        string `mapstructure:"realm" yaml:"realm"`
}

// MetricsConfig drives pkg/metrics' optional Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr" validate:"required_if=Enabled true"`
}

// Config is the top-level, file/env-loadable configuration for both the
// sftpwsd server and the sftpwsfs client commands.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Client  ClientConfig  `mapstructure:"client" yaml:"client"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// Load reads configPath (or the default search path, when empty),
// applies defaults to anything left unset, and validates the result —
// mirroring the teacher's pkg/config.Load pipeline of
// setupViper -> readConfigFile -> Unmarshal -> ApplyDefaults -> Validate.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, fmt.Errorf("config: reading config file: %w", err)
	}

	cfg := &Config{}
	if !found {
		cfg = GetDefaultConfig()
	} else {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("config: decoding config: %w", err)
		}
		ApplyDefaults(cfg)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load, panicking on error — used by cmd/ entry points where
// an invalid configuration is a fatal startup condition, not a
// recoverable one.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	return cfg
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("sftpws")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir := getConfigDir(); dir != "" {
		v.AddConfigPath(dir)
	}
}

// readConfigFile reads the config file if present, reporting found=false
// (not an error) when none exists anywhere on the search path — the
// teacher's readConfigFile treats viper.ConfigFileNotFoundError and
// os.IsNotExist identically, as "fall back to defaults".
func readConfigFile(v *viper.Viper) (found bool, err error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// configDecodeHooks composes the mapstructure decode hooks Unmarshal
// needs: string/numeric durations for every time.Duration field, and
// human-readable sizes ("1Mi", "512Ki") for every bytesize.ByteSize field.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		byteSizeDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numeric types to
// bytesize.ByteSize, mirroring the teacher's own decode hook of the same
// name so "1Gi"/"500Mi"/"100MB"-style config values work here too.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir resolves the directory a bare config file name is
// searched in, preferring XDG_CONFIG_HOME the way the teacher's
// getConfigDir does, and falling back to ~/.config/sftpws.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sftpws")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "sftpws")
}

// GetDefaultConfigPath returns the path Load searches first when no
// explicit configPath is given.
func GetDefaultConfigPath() string {
	dir := getConfigDir()
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "sftpws.yaml")
}

// DefaultConfigExists reports whether GetDefaultConfigPath names an
// existing file.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// SaveConfig writes cfg to path as YAML with owner-only permissions,
// matching the teacher's SaveConfig (config files can carry server URLs
// and should not be world-readable).
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: writing config file: %w", err)
	}
	return nil
}
