package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slighter12/dataset-mcp-go/mcp"
)

// Transport types understood by the server.
const (
	TransportStdio          = "stdio"
	TransportStreamableHTTP = "streamable_http"
	TransportSDKStdio       = "sdk_stdio"
)

// Config represents the MCP server configuration
type Config struct {
	Name        string      `json:"name" yaml:"name"`
	Version     string      `json:"version" yaml:"version"`
	Description string      `json:"description" yaml:"description"`
	Server      Server      `json:"server" yaml:"server"`
	Transports  []Transport `json:"transports" yaml:"transports"`
	Logging     Logging     `json:"logging" yaml:"logging"`
	Discovery   Discovery   `json:"discovery" yaml:"discovery"`
	Dispatch    Dispatch    `json:"dispatch" yaml:"dispatch"`
	Scalyr      Scalyr      `json:"scalyr" yaml:"scalyr"`
}

// Server represents server configuration
type Server struct {
	Host  string `json:"host" yaml:"host"`
	Port  int    `json:"port" yaml:"port"`
	Debug bool   `json:"debug" yaml:"debug"`
}

// Transport represents a transport configuration. Exactly one transport is
// enabled at a time.
type Transport struct {
	Type    string `json:"type" yaml:"type"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Logging represents logging configuration
type Logging struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Path   string `json:"path" yaml:"path"`
}

// Discovery configures the tool-definition directory scan.
type Discovery struct {
	Dir          string `json:"dir" yaml:"dir"`
	Watch        bool   `json:"watch" yaml:"watch"`
	RequireTools bool   `json:"require_tools" yaml:"require_tools"`
}

// Dispatch holds global dispatch settings. A zero DefaultTimeout disables the
// central timeout.
type Dispatch struct {
	DefaultTimeout Duration `json:"default_timeout" yaml:"default_timeout"`
}

// Scalyr configures the dataset_scalyr_query tool.
type Scalyr struct {
	Server   string `json:"server" yaml:"server"`
	TokenEnv string `json:"token_env" yaml:"token_env"`
}

// Duration is a time.Duration that reads and writes as a Go duration string
// ("30s"). Plain numbers are read as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v * float64(time.Second)))
		return nil
	case string:
		return d.parse(v)
	case nil:
		*d = 0
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" || value.Tag == "!!float" {
		seconds, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return err
		}
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	return d.parse(value.Value)
}

func (d *Duration) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	return &Config{
		Name:        "dataset-mcp-go",
		Version:     "0.1.0",
		Description: "Model Context Protocol server exposing DataSet (Scalyr) tools",
		Server: Server{
			Host:  "localhost",
			Port:  9080,
			Debug: false,
		},
		Transports: []Transport{
			{
				Type:    TransportStdio,
				Enabled: true,
			},
			{
				Type:    TransportStreamableHTTP,
				Enabled: false,
				URL:     "http://localhost:9080/mcp",
			},
			{
				Type:    TransportSDKStdio,
				Enabled: false,
			},
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Path:   filepath.Join(home, ".dataset-mcp", "logs", "mcp.log"),
		},
		Discovery: Discovery{
			Dir: "tools.d",
		},
		Scalyr: Scalyr{
			Server:   "https://app.scalyr.com",
			TokenEnv: "SCALYR_API_TOKEN",
		},
	}
}

// LoadConfig loads the configuration from a file. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file not found: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return finish(cfg)
}

// LoadOrDefault behaves like LoadConfig but falls back to defaults when the
// file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if strings.TrimSpace(path) != "" {
		if _, err := os.Stat(path); err == nil {
			return LoadConfig(path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}
	return finish(NewConfig())
}

func finish(cfg *Config) (*Config, error) {
	// Environment variables have the highest priority.
	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, cfg)
	}
	return json.Unmarshal(data, cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// SaveConfig saves the configuration to a file, as YAML or JSON depending on
// the extension.
func SaveConfig(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %v", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %v", err)
	}

	return nil
}

func applyEnvOverrides(cfg *Config) {
	if portStr := os.Getenv("MCP_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("warning: ignoring invalid MCP_PORT value %q: %v", portStr, err)
		}
	}

	if host := os.Getenv("MCP_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if debug := os.Getenv("MCP_DEBUG"); debug != "" {
		if parsed, err := strconv.ParseBool(debug); err == nil {
			cfg.Server.Debug = parsed
		} else {
			log.Printf("warning: ignoring invalid MCP_DEBUG value %q: %v", debug, err)
		}
	}

	if logLevel := os.Getenv("MCP_LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("MCP_LOG_FORMAT"); logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if logPath, ok := os.LookupEnv("MCP_LOG_PATH"); ok {
		cfg.Logging.Path = logPath
	}

	if dir := os.Getenv("MCP_TOOLS_DIR"); dir != "" {
		cfg.Discovery.Dir = dir
	}

	if watch := os.Getenv("MCP_TOOLS_WATCH"); watch != "" {
		if parsed, err := strconv.ParseBool(watch); err == nil {
			cfg.Discovery.Watch = parsed
		} else {
			log.Printf("warning: ignoring invalid MCP_TOOLS_WATCH value %q: %v", watch, err)
		}
	}

	if require := os.Getenv("MCP_TOOLS_REQUIRE"); require != "" {
		if parsed, err := strconv.ParseBool(require); err == nil {
			cfg.Discovery.RequireTools = parsed
		} else {
			log.Printf("warning: ignoring invalid MCP_TOOLS_REQUIRE value %q: %v", require, err)
		}
	}

	if timeout := os.Getenv("MCP_DISPATCH_TIMEOUT"); timeout != "" {
		var d Duration
		if err := d.parse(timeout); err == nil {
			cfg.Dispatch.DefaultTimeout = d
		} else {
			log.Printf("warning: ignoring invalid MCP_DISPATCH_TIMEOUT value %q: %v", timeout, err)
		}
	}

	if transport := os.Getenv("MCP_TRANSPORT"); transport != "" {
		cfg.SelectTransport(transport)
	}

	if server := os.Getenv("SCALYR_SERVER"); server != "" {
		cfg.Scalyr.Server = server
	}
}

// SelectTransport enables the named transport and disables all others. An
// unknown type is appended so Validate can reject it.
func (c *Config) SelectTransport(kind string) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	found := false
	for i := range c.Transports {
		c.Transports[i].Enabled = strings.EqualFold(c.Transports[i].Type, kind)
		if c.Transports[i].Enabled {
			found = true
		}
	}
	if !found {
		c.Transports = append(c.Transports, Transport{Type: kind, Enabled: true})
	}
}

// ActiveTransport returns the single enabled transport.
func (c *Config) ActiveTransport() (Transport, bool) {
	for _, t := range c.Transports {
		if t.Enabled {
			return t, true
		}
	}
	return Transport{}, false
}

// Normalize canonicalizes config values so downstream validation and runtime
// logic operate on stable representations.
func (c *Config) Normalize() {
	c.Server.Host = strings.TrimSpace(c.Server.Host)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "warning" {
		c.Logging.Level = "warn"
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Path = strings.TrimSpace(c.Logging.Path)
	c.Discovery.Dir = strings.TrimSpace(c.Discovery.Dir)
	c.Scalyr.Server = strings.TrimRight(strings.TrimSpace(c.Scalyr.Server), "/")
	c.Scalyr.TokenEnv = strings.TrimSpace(c.Scalyr.TokenEnv)
	if c.Scalyr.TokenEnv == "" {
		c.Scalyr.TokenEnv = "SCALYR_API_TOKEN"
	}
	for i := range c.Transports {
		c.Transports[i].Type = strings.ToLower(strings.TrimSpace(c.Transports[i].Type))
		c.Transports[i].URL = strings.TrimSpace(c.Transports[i].URL)
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid port number")
	}

	if c.Server.Host == "" {
		return errors.New("host cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return errors.New("invalid log level")
	}

	validLogFormats := map[string]bool{
		"json":   true,
		"text":   true,
		"pretty": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return errors.New("invalid log format")
	}

	if c.Discovery.Dir == "" {
		return errors.New("discovery dir cannot be empty")
	}

	if c.Dispatch.DefaultTimeout < 0 {
		return errors.New("dispatch default timeout cannot be negative")
	}

	if c.Scalyr.Server == "" {
		return errors.New("scalyr server cannot be empty")
	}

	validTransportTypes := map[string]bool{
		TransportStdio:          true,
		TransportStreamableHTTP: true,
		TransportSDKStdio:       true,
	}

	enabledTransports := 0
	for _, t := range c.Transports {
		if !validTransportTypes[t.Type] {
			return fmt.Errorf("invalid transport type: %s", t.Type)
		}
		if t.Enabled {
			enabledTransports++
		}
	}

	if enabledTransports != 1 {
		return fmt.Errorf("exactly one transport must be enabled, got %d", enabledTransports)
	}

	return nil
}

// ServerInfo returns the implementation record advertised on initialize.
func (c *Config) ServerInfo() mcp.Implementation {
	return mcp.Implementation{Name: c.Name, Version: c.Version}
}

// ResolveConfigPath returns the path that should be used for configuration.
// The returned file may not exist; LoadOrDefault handles that case.
func ResolveConfigPath() (string, error) {
	if path := strings.TrimSpace(os.Getenv("MCP_CONFIG_PATH")); path != "" {
		return path, nil
	}

	for _, candidate := range []string{"config/mcp_config.json", "config/mcp_config.yaml"} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".dataset-mcp", "config", "mcp_config.json"), nil
}
