// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	// Mode is the operating mode: prod or dev.
	Mode string `toml:"mode"`

	// ListenAddr is the address to listen on.
	// Example: ":8484"
	ListenAddr string `toml:"listen_addr"`

	// Server holds server-level settings.
	Server ServerConfig `toml:"server"`

	// TLS configuration
	TLS TLSConfig `toml:"tls"`

	// Store configuration
	Store StoreConfig `toml:"store"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Logging configuration
	Logging LoggingConfig `toml:"logging"`

	// Sessions configuration
	Sessions SessionsConfig `toml:"sessions"`

	// Workflow holds contribution-workflow policy settings.
	Workflow WorkflowConfig `toml:"workflow"`

	// Matching holds skill-matching settings.
	Matching MatchingConfig `toml:"matching"`

	// HTTP holds per-service HTTP configuration.
	HTTP HTTPConfig `toml:"http"`
}

// HTTPConfig holds per-service HTTP configuration.
// Services are configured under [http.services.<svcname>].
type HTTPConfig struct {
	// Services maps service names to their raw config maps.
	// Each service decodes its own config via cfg.Decode() with Setter interface.
	Services map[string]map[string]any `toml:"services"`
}

// ServerConfig holds server-level settings.
type ServerConfig struct {
	// TrustedProxies is a list of CIDR ranges for trusted reverse proxies.
	// X-Forwarded-* headers are only honored from these addresses.
	// Default: ["127.0.0.0/8", "::1/128"]
	TrustedProxies []string `toml:"trusted_proxies"`

	// BootstrapAdmin holds super admin bootstrap configuration.
	BootstrapAdmin BootstrapAdminConfig `toml:"bootstrap_admin"`
}

// BootstrapAdminConfig holds bootstrap admin credentials.
type BootstrapAdminConfig struct {
	// Username for the super admin. Default: "admin"
	Username string `toml:"username"`

	// Password for the super admin. If empty on first boot, a random password is generated.
	Password string `toml:"password"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned
	Mode string `toml:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `toml:"cert_file"`
	KeyFile  string `toml:"key_file"`

	// SelfSignedDir is where self-signed certs are stored
	SelfSignedDir string `toml:"self_signed_dir"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Driver is the store driver name: "memory" (default) or "sqlite".
	Driver string `toml:"driver"`

	// DataDir is where file-backed drivers keep their data.
	DataDir string `toml:"data_dir"`

	// Drivers holds per-driver configuration.
	// Example: [store.drivers.sqlite] ...
	Drivers map[string]any `toml:"drivers"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Driver is the cache driver name: "memory" (default).
	Driver string `toml:"driver"`

	// Drivers holds per-driver configuration.
	Drivers map[string]any `toml:"drivers"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info in prod mode, debug in dev mode.
	Level string `toml:"level"`
}

// SessionsConfig holds session settings.
type SessionsConfig struct {
	// TTLHours is the session lifetime in hours. Default: 24.
	TTLHours int `toml:"ttl_hours"`
}

// WorkflowConfig holds contribution-workflow policy settings.
type WorkflowConfig struct {
	// NotifyOwnerOnRequest notifies the idea owner when a candidate files
	// a contribution request. Default: false; the request is visible
	// through the owner's request listing either way.
	NotifyOwnerOnRequest bool `toml:"notify_owner_on_request"`

	// OutboxBuffer is the feed outbox queue size. Default: 256.
	OutboxBuffer int `toml:"outbox_buffer"`

	// OutboxMaxTries bounds delivery attempts per feed record. Default: 5.
	OutboxMaxTries int `toml:"outbox_max_tries"`
}

// MatchingConfig holds skill-matching settings.
type MatchingConfig struct {
	// IdeaCacheTTLSeconds is how long rank-ideas results may be served
	// from cache. Default: 60.
	IdeaCacheTTLSeconds int `toml:"idea_cache_ttl_seconds"`
}

// BuildServiceConfig returns the raw service config map for a given service name.
// Returns nil if the service is not configured in [http.services.<name>].
func (c *Config) BuildServiceConfig(serviceName string) map[string]any {
	if c.HTTP.Services == nil {
		return nil
	}
	svcCfg, ok := c.HTTP.Services[serviceName]
	if !ok {
		return nil
	}
	// Return a copy to prevent mutation
	result := make(map[string]any)
	for k, v := range svcCfg {
		result[k] = v
	}
	return result
}

// Redacted returns a string representation of the config with secrets redacted.
func (c *Config) Redacted() string {
	var sb strings.Builder
	sb.WriteString("Config{\n")
	sb.WriteString(fmt.Sprintf("  Mode: %q,\n", c.Mode))
	sb.WriteString(fmt.Sprintf("  ListenAddr: %q,\n", c.ListenAddr))
	sb.WriteString("  Server: {\n")
	sb.WriteString(fmt.Sprintf("    TrustedProxies: %v,\n", c.Server.TrustedProxies))
	sb.WriteString("    BootstrapAdmin: {\n")
	sb.WriteString(fmt.Sprintf("      Username: %q,\n", c.Server.BootstrapAdmin.Username))
	sb.WriteString("      Password: [REDACTED],\n")
	sb.WriteString("    },\n")
	sb.WriteString("  },\n")
	sb.WriteString("  TLS: {\n")
	sb.WriteString(fmt.Sprintf("    Mode: %q,\n", c.TLS.Mode))
	sb.WriteString(fmt.Sprintf("    CertFile: %q,\n", c.TLS.CertFile))
	sb.WriteString(fmt.Sprintf("    KeyFile: %q,\n", c.TLS.KeyFile))
	sb.WriteString(fmt.Sprintf("    SelfSignedDir: %q,\n", c.TLS.SelfSignedDir))
	sb.WriteString("  },\n")
	sb.WriteString("  Store: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Store.Driver))
	sb.WriteString(fmt.Sprintf("    DataDir: %q,\n", c.Store.DataDir))
	sb.WriteString("  },\n")
	sb.WriteString("  Cache: {\n")
	sb.WriteString(fmt.Sprintf("    Driver: %q,\n", c.Cache.Driver))
	sb.WriteString("  },\n")
	sb.WriteString("  Logging: {\n")
	sb.WriteString(fmt.Sprintf("    Level: %q,\n", c.Logging.Level))
	sb.WriteString("  },\n")
	sb.WriteString("  Sessions: {\n")
	sb.WriteString(fmt.Sprintf("    TTLHours: %d,\n", c.Sessions.TTLHours))
	sb.WriteString("  },\n")
	sb.WriteString("  Workflow: {\n")
	sb.WriteString(fmt.Sprintf("    NotifyOwnerOnRequest: %v,\n", c.Workflow.NotifyOwnerOnRequest))
	sb.WriteString(fmt.Sprintf("    OutboxBuffer: %d,\n", c.Workflow.OutboxBuffer))
	sb.WriteString(fmt.Sprintf("    OutboxMaxTries: %d,\n", c.Workflow.OutboxMaxTries))
	sb.WriteString("  },\n")
	sb.WriteString("  Matching: {\n")
	sb.WriteString(fmt.Sprintf("    IdeaCacheTTLSeconds: %d,\n", c.Matching.IdeaCacheTTLSeconds))
	sb.WriteString("  },\n")
	sb.WriteString("  HTTP: {\n")
	sb.WriteString(fmt.Sprintf("    ServicesCount: %d,\n", len(c.HTTP.Services)))
	if len(c.HTTP.Services) > 0 {
		sb.WriteString("    Services: [")
		first := true
		for name := range c.HTTP.Services {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%q", name))
			first = false
		}
		sb.WriteString("],\n")
	}
	sb.WriteString("  },\n")
	sb.WriteString("}")
	return sb.String()
}
