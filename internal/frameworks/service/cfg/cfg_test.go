package cfg

import (
	"testing"
)

type testConfig struct {
	Name    string `mapstructure:"name"`
	Port    int    `mapstructure:"port"`
	Enabled bool   `mapstructure:"enabled"`
}

func (c *testConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
}

func TestDecode_Basic(t *testing.T) {
	input := map[string]any{
		"name":    "test-service",
		"port":    9000,
		"enabled": true,
	}

	var c testConfig
	if err := Decode(input, &c); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if c.Name != "test-service" {
		t.Errorf("Name = %q, want %q", c.Name, "test-service")
	}
	if c.Port != 9000 {
		t.Errorf("Port = %d, want %d", c.Port, 9000)
	}
	if !c.Enabled {
		t.Error("Enabled = false, want true")
	}
}

func TestDecode_ApplyDefaults(t *testing.T) {
	input := map[string]any{
		"name": "test-service",
	}

	var c testConfig
	if err := Decode(input, &c); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if c.Port != 8080 {
		t.Errorf("Port = %d, want default %d", c.Port, 8080)
	}
}

func TestDecodeWithUnused_ReportsUnusedKeys(t *testing.T) {
	input := map[string]any{
		"name":        "test-service",
		"port":        9000,
		"unknown_key": "value",
		"another_bad": 123,
	}

	var c testConfig
	unused, err := DecodeWithUnused(input, &c)
	if err != nil {
		t.Fatalf("DecodeWithUnused failed: %v", err)
	}

	if len(unused) != 2 {
		t.Fatalf("len(unused) = %d, want 2", len(unused))
	}

	// Keys should be sorted
	if unused[0] != "another_bad" || unused[1] != "unknown_key" {
		t.Errorf("unexpected unused keys: %v", unused)
	}

	if c.Name != "test-service" {
		t.Errorf("Name = %q, want %q", c.Name, "test-service")
	}
}

func TestMustDecodeStrict_FailsOnUnusedKeys(t *testing.T) {
	input := map[string]any{
		"name":        "test-service",
		"unknown_key": "value",
	}

	var c testConfig
	err := MustDecodeStrict(input, &c)
	if err == nil {
		t.Fatal("MustDecodeStrict should have failed on unused keys")
	}

	if err.Error() != "unused config keys: [unknown_key]" {
		t.Errorf("error = %q, want message containing unused key", err.Error())
	}
}

func TestMustDecodeStrict_PassesWithNoUnusedKeys(t *testing.T) {
	input := map[string]any{
		"name":    "test-service",
		"port":    9000,
		"enabled": true,
	}

	var c testConfig
	if err := MustDecodeStrict(input, &c); err != nil {
		t.Fatalf("MustDecodeStrict should have passed: %v", err)
	}
	if c.Port != 9000 {
		t.Errorf("Port = %d, want %d", c.Port, 9000)
	}
}
