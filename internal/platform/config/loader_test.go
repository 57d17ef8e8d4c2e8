package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "prod" {
		t.Errorf("Mode = %q, want prod", cfg.Mode)
	}
	if cfg.ListenAddr != ":8484" {
		t.Errorf("ListenAddr = %q, want :8484", cfg.ListenAddr)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("Store.Driver = %q, want sqlite", cfg.Store.Driver)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Sessions.TTLHours != 24 {
		t.Errorf("Sessions.TTLHours = %d, want 24", cfg.Sessions.TTLHours)
	}
	if cfg.Workflow.NotifyOwnerOnRequest {
		t.Error("NotifyOwnerOnRequest must default to false")
	}
	if cfg.Workflow.OutboxBuffer != 256 || cfg.Workflow.OutboxMaxTries != 5 {
		t.Errorf("outbox defaults = %d/%d, want 256/5", cfg.Workflow.OutboxBuffer, cfg.Workflow.OutboxMaxTries)
	}
	if cfg.Matching.IdeaCacheTTLSeconds != 60 {
		t.Errorf("IdeaCacheTTLSeconds = %d, want 60", cfg.Matching.IdeaCacheTTLSeconds)
	}
}

func TestLoadDevPreset(t *testing.T) {
	cfg, err := Load(LoaderOptions{ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TLS.Mode != "off" {
		t.Errorf("dev TLS.Mode = %q, want off", cfg.TLS.Mode)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("dev Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("dev Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadFileOverridesPreset(t *testing.T) {
	path := writeConfigFile(t, `
mode = "dev"
listen_addr = ":9900"

[logging]
level = "warn"

[workflow]
notify_owner_on_request = true
outbox_buffer = 64

[matching]
idea_cache_ttl_seconds = 5

[sessions]
ttl_hours = 2
`)
	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "dev" {
		t.Errorf("Mode = %q, want dev", cfg.Mode)
	}
	if cfg.ListenAddr != ":9900" {
		t.Errorf("ListenAddr = %q, want :9900", cfg.ListenAddr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
	if !cfg.Workflow.NotifyOwnerOnRequest {
		t.Error("notify_owner_on_request = true not applied")
	}
	if cfg.Workflow.OutboxBuffer != 64 {
		t.Errorf("OutboxBuffer = %d, want 64", cfg.Workflow.OutboxBuffer)
	}
	if cfg.Workflow.OutboxMaxTries != 5 {
		t.Errorf("OutboxMaxTries = %d, want preset 5", cfg.Workflow.OutboxMaxTries)
	}
	if cfg.Matching.IdeaCacheTTLSeconds != 5 {
		t.Errorf("IdeaCacheTTLSeconds = %d, want 5", cfg.Matching.IdeaCacheTTLSeconds)
	}
	if cfg.Sessions.TTLHours != 2 {
		t.Errorf("Sessions.TTLHours = %d, want 2", cfg.Sessions.TTLHours)
	}
}

func TestLoadFlagBeatsFile(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr = ":9900"

[logging]
level = "warn"
`)
	listen := ":7000"
	level := "error"
	cfg, err := Load(LoaderOptions{
		ConfigPath: path,
		FlagOverrides: FlagOverrides{
			ListenAddr:   &listen,
			LoggingLevel: &level,
		},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" {
		t.Errorf("ListenAddr = %q, want flag value :7000", cfg.ListenAddr)
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q, want flag value error", cfg.Logging.Level)
	}
}

func TestLoadModeFlagBeatsFileMode(t *testing.T) {
	path := writeConfigFile(t, `mode = "prod"`)
	cfg, err := Load(LoaderOptions{ConfigPath: path, ModeFlag: "dev"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "dev" {
		t.Errorf("Mode = %q, want dev", cfg.Mode)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(LoaderOptions{ConfigPath: "/nonexistent/config.toml"})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadInvalidEnums(t *testing.T) {
	cases := []struct {
		name string
		toml string
	}{
		{"tls mode", "[tls]\nmode = \"acme\""},
		{"store driver", "[store]\ndriver = \"postgres\""},
		{"cache driver", "[cache]\ndriver = \"redis\""},
		{"logging level", "[logging]\nlevel = \"verbose\""},
		{"static tls without files", "[tls]\nmode = \"static\""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfigFile(t, tc.toml)
			if _, err := Load(LoaderOptions{ConfigPath: path}); err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestValidateSQLiteNeedsDataDir(t *testing.T) {
	cfg := ProdConfig()
	cfg.Store.DataDir = ""
	if err := validateEnums(cfg); err == nil {
		t.Fatal("expected validation error for sqlite without data_dir")
	}
}

func TestLoadInvalidMode(t *testing.T) {
	if _, err := Load(LoaderOptions{ModeFlag: "staging"}); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func TestLoadServiceConfig(t *testing.T) {
	path := writeConfigFile(t, `
[http.services.api]
page_limit = 50

[http.services.auth]
login_max_attempts = 3
`)
	cfg, err := Load(LoaderOptions{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	apiCfg := cfg.BuildServiceConfig("api")
	if apiCfg == nil {
		t.Fatal("expected api service config")
	}
	if v, ok := apiCfg["page_limit"].(int64); !ok || v != 50 {
		t.Errorf("page_limit = %v, want 50", apiCfg["page_limit"])
	}
	if cfg.BuildServiceConfig("missing") != nil {
		t.Error("unconfigured service should yield nil")
	}

	// Mutating the returned map must not leak into the config.
	apiCfg["page_limit"] = 999
	again := cfg.BuildServiceConfig("api")
	if v := again["page_limit"].(int64); v != 50 {
		t.Errorf("service config mutated through copy: %v", v)
	}
}

func TestRedactedHidesPassword(t *testing.T) {
	cfg := ProdConfig()
	cfg.Server.BootstrapAdmin.Password = "hunter2"
	out := cfg.Redacted()
	if strings.Contains(out, "hunter2") {
		t.Error("Redacted output leaks the admin password")
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Error("Redacted output missing the redaction marker")
	}
}
