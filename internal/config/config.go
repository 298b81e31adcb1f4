// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"mcop-proxy/internal/jsrewrite"
	"mcop-proxy/internal/urlcodec"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/mcop-proxy/config.toml",
	"configs/config.toml",
}

// reservedRoutes are served by the proxy itself and never forwarded.
var reservedRoutes = []string{"/healthz", "/proxy/status", "/proxy/cookies"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config    string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host      string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port      int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	ProxyHost string `kong:"help='Externally visible proxy host (overrides config).',env='PROXY_HOST'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Proxy    ProxyConfig     `toml:"proxy"`
	Services []ServiceConfig `toml:"services"`
	Upstream UpstreamConfig  `toml:"upstream"`
	Rewrite  RewriteConfig   `toml:"rewrite"`
	Log      LogConfig       `toml:"log"`
	Metrics  MetricsConfig   `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ProxyConfig names the externally visible proxy host and the application
// domain that unmarked requests are routed to.
type ProxyConfig struct {
	Host      string `toml:"host"`
	AppDomain string `toml:"app_domain"`
}

// ServiceConfig describes one proxied backend.
type ServiceConfig struct {
	Name      string `toml:"name"`
	BaseURL   string `toml:"base_url"`
	JSRewrite string `toml:"js_rewrite"` // location | postmessage | none

	base *url.URL
}

// UpstreamConfig holds backend connection settings.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"`
	IdleConnections int `toml:"idle_connections"`
}

// RewriteConfig bounds response rewriting.
type RewriteConfig struct {
	MaxBodyBytes int64 `toml:"max_body_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/mcop-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.ProxyHost != "" {
		c.Proxy.Host = cli.ProxyHost
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	if c.Proxy.Host == "" {
		return fmt.Errorf("proxy.host is required")
	}
	if c.Proxy.AppDomain == "" {
		return fmt.Errorf("proxy.app_domain is required")
	}
	if strings.Contains(c.Proxy.Host, "/") {
		return fmt.Errorf("proxy.host must be a host[:port], not a URL; got %q", c.Proxy.Host)
	}

	if err := c.validateServices(); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Rewrite.MaxBodyBytes < 0 {
		return fmt.Errorf("rewrite.max_body_bytes must be non-negative; got %d", c.Rewrite.MaxBodyBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func (c *Config) validateServices() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("at least one [[services]] entry is required")
	}
	names := make(map[string]bool, len(c.Services))
	hosts := make(map[string]string, len(c.Services))
	for i := range c.Services {
		s := &c.Services[i]
		if s.Name == "" {
			return fmt.Errorf("services[%d].name is required", i)
		}
		if names[s.Name] {
			return fmt.Errorf("services[%d].name %q is duplicated", i, s.Name)
		}
		names[s.Name] = true

		u, err := url.Parse(s.BaseURL)
		if err != nil {
			return fmt.Errorf("services.%s.base_url is not a valid URL: %w", s.Name, err)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("services.%s.base_url must be an absolute http(s) URL; got %q", s.Name, s.BaseURL)
		}
		host := strings.ToLower(u.Host)
		if other, dup := hosts[host]; dup {
			return fmt.Errorf("services.%s.base_url host %q is already used by %s", s.Name, u.Host, other)
		}
		hosts[host] = s.Name
		s.base = u

		switch strings.ToLower(s.JSRewrite) {
		case "", "none", "location", "postmessage":
		default:
			return fmt.Errorf("services.%s.js_rewrite must be one of: location, postmessage, none; got %q", s.Name, s.JSRewrite)
		}
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 60
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Rewrite.MaxBodyBytes == 0 {
		c.Rewrite.MaxBodyBytes = 8 * 1024 * 1024 // 8 MB
	}
	for i := range c.Services {
		if c.Services[i].JSRewrite == "" {
			c.Services[i].JSRewrite = "none"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Base returns the parsed base URL, or nil if it does not parse.
func (s *ServiceConfig) Base() *url.URL {
	if s.base == nil {
		s.base, _ = url.Parse(s.BaseURL)
	}
	return s.base
}

// Hostname returns the backend hostname without port.
func (s *ServiceConfig) Hostname() string {
	if u := s.Base(); u != nil {
		return strings.ToLower(u.Hostname())
	}
	return ""
}

// RewriteMode returns the JavaScript pass configured for the service.
// ok is false when scripts are served unchanged.
func (s *ServiceConfig) RewriteMode() (jsrewrite.Mode, bool) {
	return jsrewrite.ParseMode(s.JSRewrite)
}

// ServiceByHost returns the service whose base URL host matches host.
// An exact host[:port] match wins over a hostname-only match.
func (c *Config) ServiceByHost(host string) (*ServiceConfig, bool) {
	host = strings.ToLower(host)
	for i := range c.Services {
		if u := c.Services[i].Base(); u != nil && strings.ToLower(u.Host) == host {
			return &c.Services[i], true
		}
	}
	bare := urlcodec.StripPortNumber(host)
	for i := range c.Services {
		if c.Services[i].Hostname() == bare {
			return &c.Services[i], true
		}
	}
	return nil, false
}

// ServiceByName returns the service called name.
func (c *Config) ServiceByName(name string) (*ServiceConfig, bool) {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i], true
		}
	}
	return nil, false
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
