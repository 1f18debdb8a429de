package config

import "time"

// DefaultBootstrapNodes are the well-known Mainline DHT routers used when
// no bootstrap set is configured.
var DefaultBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
	"dht.libtorrent.org:25401",
}

// Default TTL bounds applied to cached signed packets.
const (
	DefaultMinTTLSeconds = 300   // 5 minutes
	DefaultMaxTTLSeconds = 86400 // 24 hours
)

// DHTConfig contains lookup engine settings.
//
// Duration fields are configured as strings ("30s", "5m") and parsed into
// the unexported duration fields by Validate.
type DHTConfig struct {
	BootstrapNodes  []string `json:"bootstrap_nodes"`
	MinTTLSeconds   int      `json:"min_ttl_seconds"`
	MaxTTLSeconds   int      `json:"max_ttl_seconds"`
	MaxAttempts     int      `json:"max_attempts"`
	CacheMaxEntries int      `json:"cache_max_entries"`

	LookupTimeoutRaw string `json:"lookup_timeout"`
	QueryTimeoutRaw  string `json:"query_timeout"`
	MaintenanceEvery string `json:"maintenance_interval"`

	lookupTimeout       time.Duration
	queryTimeout        time.Duration
	maintenanceInterval time.Duration
}

// MinTTL returns the minimum caching TTL as a duration.
func (c *DHTConfig) MinTTL() time.Duration {
	return time.Duration(c.MinTTLSeconds) * time.Second
}

// MaxTTL returns the maximum caching TTL as a duration.
func (c *DHTConfig) MaxTTL() time.Duration {
	return time.Duration(c.MaxTTLSeconds) * time.Second
}

// LookupTimeout returns the parsed overall lookup deadline.
func (c *DHTConfig) LookupTimeout() time.Duration {
	return c.lookupTimeout
}

// QueryTimeout returns the parsed per-node request deadline.
func (c *DHTConfig) QueryTimeout() time.Duration {
	return c.queryTimeout
}

// MaintenanceInterval returns the parsed background ping interval.
func (c *DHTConfig) MaintenanceInterval() time.Duration {
	return c.maintenanceInterval
}

// RelayConfig contains HTTP relay server settings.
//
// Note: APIKey guards the /stats endpoint only and is treated as a secret.
type RelayConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
	DBPath  string `json:"db_path"`
	APIKey  string `json:"api_key,omitempty"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level       string            `json:"level"`
	Format      string            `json:"format"`
	IncludePID  bool              `json:"include_pid"`
	ExtraFields map[string]string `json:"extra_fields,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	DHT     DHTConfig     `json:"dht"`
	Relay   RelayConfig   `json:"relay"`
	Logging LoggingConfig `json:"logging"`
}
