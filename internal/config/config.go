// Package config provides configuration types, loading and validation for
// the pkarr binaries.
//
// Configuration is a JSON file; a missing path yields defaults so the
// binaries run with zero configuration. Validate normalizes and bounds
// every field after flag overrides have been applied.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jroosing/pkarr/internal/helpers"
)

// Default creates a configuration with production defaults.
func Default() *Config {
	return &Config{
		DHT: DHTConfig{
			BootstrapNodes:   append([]string(nil), DefaultBootstrapNodes...),
			MinTTLSeconds:    DefaultMinTTLSeconds,
			MaxTTLSeconds:    DefaultMaxTTLSeconds,
			MaxAttempts:      100,
			CacheMaxEntries:  1000,
			LookupTimeoutRaw: "30s",
			QueryTimeoutRaw:  "5s",
			MaintenanceEvery: "60s",
		},
		Relay: RelayConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    6881,
			DBPath:  "pkarr-relay.db",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// ResolveConfigPath returns explicit when non-empty, otherwise the
// PKARR_CONFIG environment variable. An empty result means defaults.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv("PKARR_CONFIG")
}

// Load reads a JSON config file. An empty path or a missing file yields
// defaults; a malformed file is an error. Validate is always applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := json.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate validates and normalizes the configuration.
func (cfg *Config) Validate() error {
	// Bootstrap set falls back to the public routers.
	if len(cfg.DHT.BootstrapNodes) == 0 {
		cfg.DHT.BootstrapNodes = append([]string(nil), DefaultBootstrapNodes...)
	}

	// TTL bounds: keep sane and ordered.
	cfg.DHT.MinTTLSeconds = helpers.ClampInt(cfg.DHT.MinTTLSeconds, 0, DefaultMaxTTLSeconds)
	if cfg.DHT.MinTTLSeconds == 0 {
		cfg.DHT.MinTTLSeconds = DefaultMinTTLSeconds
	}
	if cfg.DHT.MaxTTLSeconds <= 0 {
		cfg.DHT.MaxTTLSeconds = DefaultMaxTTLSeconds
	}
	if cfg.DHT.MaxTTLSeconds < cfg.DHT.MinTTLSeconds {
		return fmt.Errorf("dht.max_ttl_seconds (%d) below dht.min_ttl_seconds (%d)",
			cfg.DHT.MaxTTLSeconds, cfg.DHT.MinTTLSeconds)
	}

	if cfg.DHT.MaxAttempts <= 0 {
		cfg.DHT.MaxAttempts = 100
	}
	if cfg.DHT.CacheMaxEntries <= 0 {
		cfg.DHT.CacheMaxEntries = 1000
	}

	var err error
	if cfg.DHT.lookupTimeout, err = parseDuration("dht.lookup_timeout", cfg.DHT.LookupTimeoutRaw, 30*time.Second); err != nil {
		return err
	}
	if cfg.DHT.queryTimeout, err = parseDuration("dht.query_timeout", cfg.DHT.QueryTimeoutRaw, 5*time.Second); err != nil {
		return err
	}
	if cfg.DHT.maintenanceInterval, err = parseDuration("dht.maintenance_interval", cfg.DHT.MaintenanceEvery, 60*time.Second); err != nil {
		return err
	}

	// Relay server.
	if cfg.Relay.Host == "" {
		cfg.Relay.Host = "0.0.0.0"
	}
	if cfg.Relay.Enabled {
		if cfg.Relay.Port <= 0 || cfg.Relay.Port > 65535 {
			return errors.New("relay.port must be 1..65535")
		}
		if cfg.Relay.DBPath == "" {
			cfg.Relay.DBPath = "pkarr-relay.db"
		}
	}

	// Normalize logging.
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	return nil
}

// parseDuration parses a config duration string, applying fallback when the
// value is empty.
func parseDuration(field, raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", field, d)
	}
	return d, nil
}
