package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"MCP_PORT", "MCP_HOST", "MCP_DEBUG", "MCP_LOG_LEVEL", "MCP_LOG_FORMAT",
		"MCP_TOOLS_DIR", "MCP_TOOLS_WATCH", "MCP_TOOLS_REQUIRE",
		"MCP_DISPATCH_TIMEOUT", "MCP_TRANSPORT", "SCALYR_SERVER", "MCP_CONFIG_PATH",
	} {
		t.Setenv(key, "")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Name != "dataset-mcp-go" {
		t.Errorf("Expected name 'dataset-mcp-go', got '%s'", cfg.Name)
	}

	if cfg.Server.Host != "localhost" {
		t.Errorf("Expected host 'localhost', got '%s'", cfg.Server.Host)
	}

	if cfg.Server.Port != 9080 {
		t.Errorf("Expected port 9080, got %d", cfg.Server.Port)
	}

	if len(cfg.Transports) != 3 {
		t.Errorf("Expected 3 transports, got %d", len(cfg.Transports))
	}

	active, ok := cfg.ActiveTransport()
	if !ok || active.Type != TransportStdio {
		t.Errorf("Expected stdio to be the active transport, got %+v", active)
	}

	if cfg.Discovery.Dir != "tools.d" {
		t.Errorf("Expected discovery dir 'tools.d', got '%s'", cfg.Discovery.Dir)
	}

	if cfg.Dispatch.DefaultTimeout != 0 {
		t.Errorf("Expected no default timeout, got %s", cfg.Dispatch.DefaultTimeout)
	}

	if cfg.Scalyr.Server != "https://app.scalyr.com" || cfg.Scalyr.TokenEnv != "SCALYR_API_TOKEN" {
		t.Errorf("Unexpected scalyr defaults: %+v", cfg.Scalyr)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.json")

	testConfig := `{
		"name": "test-server",
		"version": "1.0.0",
		"description": "Test server",
		"server": {
			"host": "127.0.0.1",
			"port": 8080,
			"debug": true
		},
		"transports": [
			{"type": "stdio", "enabled": false},
			{"type": "streamable_http", "enabled": true, "url": "http://localhost:8080/mcp"}
		],
		"logging": {
			"level": "debug",
			"format": "text",
			"path": "/tmp/test.log"
		},
		"discovery": {"dir": "/srv/tools", "watch": true, "require_tools": true},
		"dispatch": {"default_timeout": "45s"},
		"scalyr": {"server": "https://eu.scalyr.com/"}
	}`

	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Name != "test-server" {
		t.Errorf("Expected name 'test-server', got '%s'", cfg.Name)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8080 || !cfg.Server.Debug {
		t.Errorf("Unexpected server section: %+v", cfg.Server)
	}

	active, ok := cfg.ActiveTransport()
	if !ok || active.Type != TransportStreamableHTTP {
		t.Errorf("Expected streamable_http to be active, got %+v", active)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" || cfg.Logging.Path != "/tmp/test.log" {
		t.Errorf("Unexpected logging section: %+v", cfg.Logging)
	}

	if cfg.Discovery.Dir != "/srv/tools" || !cfg.Discovery.Watch || !cfg.Discovery.RequireTools {
		t.Errorf("Unexpected discovery section: %+v", cfg.Discovery)
	}

	if cfg.Dispatch.DefaultTimeout.Std() != 45*time.Second {
		t.Errorf("Expected 45s timeout, got %s", cfg.Dispatch.DefaultTimeout)
	}

	if cfg.Scalyr.Server != "https://eu.scalyr.com" {
		t.Errorf("Expected trailing slash trimmed, got '%s'", cfg.Scalyr.Server)
	}
}

func TestLoadConfigYAML(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "mcp_config.yaml")

	testConfig := `
name: yaml-server
server:
  host: 0.0.0.0
  port: 9191
transports:
  - type: sdk_stdio
    enabled: true
logging:
  level: WARNING
  format: pretty
  path: ""
discovery:
  dir: ./defs
dispatch:
  default_timeout: 3
`
	if err := os.WriteFile(configPath, []byte(testConfig), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Name != "yaml-server" || cfg.Server.Port != 9191 {
		t.Errorf("Unexpected values: name=%s port=%d", cfg.Name, cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "pretty" {
		t.Errorf("Unexpected logging section: %+v", cfg.Logging)
	}
	if active, _ := cfg.ActiveTransport(); active.Type != TransportSDKStdio {
		t.Errorf("Expected sdk_stdio, got %+v", active)
	}
	if cfg.Dispatch.DefaultTimeout.Std() != 3*time.Second {
		t.Errorf("Expected bare number read as seconds, got %s", cfg.Dispatch.DefaultTimeout)
	}
}

func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Expected defaults, got error %v", err)
	}
	if cfg.Name != "dataset-mcp-go" {
		t.Errorf("Expected default name, got '%s'", cfg.Name)
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid_config.json")
	if err := os.WriteFile(configPath, []byte(`{"name": "broken",`), 0644); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected parse error for truncated JSON")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_PORT", "7000")
	t.Setenv("MCP_TOOLS_DIR", "/opt/tools")
	t.Setenv("MCP_TOOLS_REQUIRE", "true")
	t.Setenv("MCP_DISPATCH_TIMEOUT", "2m")
	t.Setenv("MCP_TRANSPORT", "streamable_http")
	t.Setenv("MCP_LOG_FORMAT", "text")
	t.Setenv("SCALYR_SERVER", "https://xdr.scalyr.com")

	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}

	if cfg.Server.Port != 7000 {
		t.Errorf("Expected port 7000, got %d", cfg.Server.Port)
	}
	if cfg.Discovery.Dir != "/opt/tools" || !cfg.Discovery.RequireTools {
		t.Errorf("Unexpected discovery section: %+v", cfg.Discovery)
	}
	if cfg.Dispatch.DefaultTimeout.Std() != 2*time.Minute {
		t.Errorf("Expected 2m timeout, got %s", cfg.Dispatch.DefaultTimeout)
	}
	if active, _ := cfg.ActiveTransport(); active.Type != TransportStreamableHTTP {
		t.Errorf("Expected streamable_http, got %+v", active)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected text format, got %s", cfg.Logging.Format)
	}
	if cfg.Scalyr.Server != "https://xdr.scalyr.com" {
		t.Errorf("Unexpected scalyr server %s", cfg.Scalyr.Server)
	}
}

func TestInvalidTransportRejected(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_TRANSPORT", "websocket")

	if _, err := LoadOrDefault(""); err == nil {
		t.Error("Expected unknown transport to be rejected")
	}
}

func TestValidateRequiresSingleTransport(t *testing.T) {
	cfg := NewConfig()
	cfg.Transports[1].Enabled = true
	cfg.Normalize()

	if err := cfg.Validate(); err == nil {
		t.Error("Expected error with two enabled transports")
	}
}

func TestResolveConfigPath(t *testing.T) {
	clearEnv(t)
	path, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("Expected no error resolving config path, got %v", err)
	}
	if filepath.Base(path) != "mcp_config.json" {
		t.Errorf("Expected config filename 'mcp_config.json', got '%s'", filepath.Base(path))
	}

	t.Setenv("MCP_CONFIG_PATH", "/etc/dataset-mcp.yaml")
	path, err = ResolveConfigPath()
	if err != nil || path != "/etc/dataset-mcp.yaml" {
		t.Errorf("Expected env path, got %q (%v)", path, err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"saved.json", "saved.yaml"} {
		t.Run(name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Name = "test-save"
			cfg.Server.Port = 9090
			cfg.Dispatch.DefaultTimeout = Duration(1500 * time.Millisecond)
			cfg.SelectTransport(TransportStreamableHTTP)

			configPath := filepath.Join(t.TempDir(), name)
			if err := SaveConfig(cfg, configPath); err != nil {
				t.Fatalf("Failed to save config: %v", err)
			}

			loaded, err := LoadConfig(configPath)
			if err != nil {
				t.Fatalf("Failed to load saved config: %v", err)
			}

			if loaded.Name != cfg.Name || loaded.Server.Port != cfg.Server.Port {
				t.Errorf("Expected %s:%d, got %s:%d", cfg.Name, cfg.Server.Port, loaded.Name, loaded.Server.Port)
			}
			if loaded.Dispatch.DefaultTimeout != cfg.Dispatch.DefaultTimeout {
				t.Errorf("Expected timeout %s, got %s", cfg.Dispatch.DefaultTimeout, loaded.Dispatch.DefaultTimeout)
			}
			if active, _ := loaded.ActiveTransport(); active.Type != TransportStreamableHTTP {
				t.Errorf("Expected streamable_http, got %+v", active)
			}
		})
	}
}
