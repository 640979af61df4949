package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level validator instance; validator.New() builds
// and caches struct metadata internally, so the teacher's pattern (and
// the validator docs) recommend sharing one instance rather than
// constructing it per call.
var validate = validator.New()

// Validate checks cfg against the `validate:"..."` tags on its fields
// and applies the handful of cross-field rules tags alone can't express.
//
// The teacher's pkg/config carries these same struct tags (see e.g.
// ShutdownTimeout's `validate:"required,gt=0"`), consumed via
// go-playground/validator's validator.New().Struct(cfg) — the standard
// idiom for that tag family, used here verbatim since it is the only
// construct in the corpus whose purpose is consuming exactly these tags.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Client.CacheStatTimeout < 0 {
		return fmt.Errorf("invalid config: client.cache_stat_timeout must not be negative")
	}
	if cfg.Client.CacheDirTimeout < 0 {
		return fmt.Errorf("invalid config: client.cache_dir_timeout must not be negative")
	}
	if cfg.Client.CacheLinkTimeout < 0 {
		return fmt.Errorf("invalid config: client.cache_link_timeout must not be negative")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		return fmt.Errorf("invalid config: metrics.addr is required when metrics.enabled is true")
	}

	return nil
}
