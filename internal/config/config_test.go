package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"mcop-proxy/internal/jsrewrite"
)

// baseConfig is the smallest valid configuration.
const baseConfig = `
[proxy]
host = "proxy.example.net"
app_domain = "app.example.com"

[[services]]
name = "app"
base_url = "https://app.example.com"
`

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// writeConfig writes data to a temporary config file and returns its path.
func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[proxy]
host = "proxy.example.net"
app_domain = "app.example.com"

[[services]]
name = "app"
base_url = "https://app.example.com"
js_rewrite = "location"

[[services]]
name = "widgets"
base_url = "http://widgets.example.org:8080"
js_rewrite = "postmessage"

[upstream]
timeout_seconds = 30
idle_connections = 50

[rewrite]
max_body_bytes = 1048576

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Proxy.Host != "proxy.example.net" || cfg.Proxy.AppDomain != "app.example.com" {
		t.Errorf("Proxy = %+v", cfg.Proxy)
	}
	if len(cfg.Services) != 2 {
		t.Fatalf("len(Services) = %d, want 2", len(cfg.Services))
	}
	if cfg.Upstream.TimeoutSeconds != 30 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 30)
	}
	if cfg.Rewrite.MaxBodyBytes != 1048576 {
		t.Errorf("Rewrite.MaxBodyBytes = %d, want %d", cfg.Rewrite.MaxBodyBytes, 1048576)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}

	mode, ok := cfg.Services[1].RewriteMode()
	if !ok || mode != jsrewrite.ModePostMessage {
		t.Errorf("widgets RewriteMode() = %v, %v; want postmessage", mode, ok)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, baseConfig)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.BodyMaxBytes != 10*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 10*1024*1024)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("default Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Rewrite.MaxBodyBytes != 8*1024*1024 {
		t.Errorf("default Rewrite.MaxBodyBytes = %d, want %d", cfg.Rewrite.MaxBodyBytes, 8*1024*1024)
	}
	if cfg.Services[0].JSRewrite != "none" {
		t.Errorf("default JSRewrite = %q, want %q", cfg.Services[0].JSRewrite, "none")
	}
	if _, ok := cfg.Services[0].RewriteMode(); ok {
		t.Error("default RewriteMode() reported a pass")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, baseConfig+`
[server]
host = "0.0.0.0"
port = 8000

[log]
level = "info"
`)

	cli := &CLI{
		Config:    path,
		Host:      "127.0.0.1",
		Port:      3000,
		ProxyHost: "edge.example.net",
		LogLevel:  "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Proxy.Host != "edge.example.net" {
		t.Errorf("Proxy.Host = %q, want %q (CLI override)", cfg.Proxy.Host, "edge.example.net")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_ProxyHostFromCLIOnly(t *testing.T) {
	path := writeConfig(t, `
[proxy]
app_domain = "app.example.com"

[[services]]
name = "app"
base_url = "https://app.example.com"
`)
	if _, err := Load(cliWithPath(path)); err == nil {
		t.Fatal("Load() expected error without proxy.host, got nil")
	}
	cfg, err := Load(&CLI{Config: path, ProxyHost: "proxy.example.net"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Proxy.Host != "proxy.example.net" {
		t.Errorf("Proxy.Host = %q", cfg.Proxy.Host)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{
			"missing app domain",
			"[proxy]\nhost = \"p.net\"\n[[services]]\nname = \"a\"\nbase_url = \"https://a.com\"\n",
			"proxy.app_domain",
		},
		{
			"proxy host is a URL",
			"[proxy]\nhost = \"https://p.net\"\napp_domain = \"a.com\"\n[[services]]\nname = \"a\"\nbase_url = \"https://a.com\"\n",
			"proxy.host",
		},
		{
			"no services",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n",
			"services",
		},
		{
			"service without name",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n[[services]]\nbase_url = \"https://a.com\"\n",
			"name is required",
		},
		{
			"duplicate service name",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n" +
				"[[services]]\nname = \"a\"\nbase_url = \"https://a.com\"\n" +
				"[[services]]\nname = \"a\"\nbase_url = \"https://b.com\"\n",
			"duplicated",
		},
		{
			"duplicate service host",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n" +
				"[[services]]\nname = \"a\"\nbase_url = \"https://a.com\"\n" +
				"[[services]]\nname = \"b\"\nbase_url = \"https://A.com/other\"\n",
			"already used",
		},
		{
			"relative base url",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n[[services]]\nname = \"a\"\nbase_url = \"/a\"\n",
			"absolute http(s) URL",
		},
		{
			"ftp base url",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n[[services]]\nname = \"a\"\nbase_url = \"ftp://a.com\"\n",
			"absolute http(s) URL",
		},
		{
			"unknown js rewrite",
			"[proxy]\nhost = \"p.net\"\napp_domain = \"a.com\"\n[[services]]\nname = \"a\"\nbase_url = \"https://a.com\"\njs_rewrite = \"both\"\n",
			"js_rewrite",
		},
		{"negative port", baseConfig + "[server]\nport = -1\n", "server.port"},
		{"negative body max", baseConfig + "[server]\nbody_max_bytes = -1\n", "body_max_bytes"},
		{"negative timeout", baseConfig + "[upstream]\ntimeout_seconds = -5\n", "timeout_seconds"},
		{"negative rewrite max", baseConfig + "[rewrite]\nmax_body_bytes = -1\n", "rewrite.max_body_bytes"},
		{"invalid log level", baseConfig + "[log]\nlevel = \"verbose\"\n", "log.level"},
		{"invalid log format", baseConfig + "[log]\nformat = \"xml\"\n", "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_RateLimitConfig(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, baseConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 25.5
`)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled || cfg.Server.RateLimit.RequestsPerSecond != 25.5 {
		t.Errorf("RateLimit = %+v", cfg.Server.RateLimit)
	}

	_, err = Load(cliWithPath(writeConfig(t, baseConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 0
`)))
	if err == nil {
		t.Fatal("Load() expected error for zero requests_per_second, got nil")
	}
	if !strings.Contains(err.Error(), "requests_per_second") {
		t.Errorf("error = %q, want mention of requests_per_second", err)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		section string
		wantErr bool
	}{
		{"valid", "enabled = true\npath = \"/internal/metrics\"", false},
		{"no leading slash", "enabled = true\npath = \"metrics\"", true},
		{"healthz", "enabled = true\npath = \"/healthz\"", true},
		{"status", "enabled = true\npath = \"/proxy/status\"", true},
		{"cookies sub", "enabled = true\npath = \"/proxy/cookies/metrics\"", true},
		{"disabled skips validation", "enabled = false\npath = \"metrics\"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, baseConfig+"[metrics]\n"+tt.section+"\n")))
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceLookup(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, `
[proxy]
host = "proxy.example.net"
app_domain = "app.example.com"

[[services]]
name = "app"
base_url = "https://app.example.com"

[[services]]
name = "alt"
base_url = "http://alt.example.com:8080/base"
`)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		host string
		want string
	}{
		{"app.example.com", "app"},
		{"APP.example.com", "app"},
		{"app.example.com:443", "app"},
		{"alt.example.com:8080", "alt"},
		{"alt.example.com", "alt"},
		{"unknown.example.com", ""},
	}
	for _, tt := range tests {
		s, ok := cfg.ServiceByHost(tt.host)
		got := ""
		if ok {
			got = s.Name
		}
		if got != tt.want {
			t.Errorf("ServiceByHost(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}

	if s, ok := cfg.ServiceByName("alt"); !ok || s.Hostname() != "alt.example.com" {
		t.Errorf("ServiceByName(alt) = %+v, %v", s, ok)
	}
	if _, ok := cfg.ServiceByName("missing"); ok {
		t.Error("ServiceByName(missing) found a service")
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestFindConfigInPaths(t *testing.T) {
	path1 := filepath.Join(t.TempDir(), "config.toml")
	path2 := filepath.Join(t.TempDir(), "config.toml")
	for _, p := range []string{path1, path2} {
		if err := os.WriteFile(p, []byte(baseConfig), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if got := findConfigInPaths([]string{"/nonexistent/a.toml", path2}); got != path2 {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path2)
	}
	if got := findConfigInPaths([]string{path1, path2}); got != path1 {
		t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
	}
	if got := findConfigInPaths([]string{"/nonexistent/a.toml"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
