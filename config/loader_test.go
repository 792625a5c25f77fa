package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Server(t *testing.T) {
	t.Setenv("GOFTP_HOST", "ftp.example.com")
	t.Setenv("GOFTP_PORT", "2121")
	t.Setenv("GOFTP_USER", "alice")
	t.Setenv("GOFTP_PASSWORD", "s3cret")

	cfg := New()
	LoadFromEnv(cfg)

	if cfg.Host != "ftp.example.com" || cfg.Port != 2121 {
		t.Errorf("server = %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.User != "alice" || cfg.Password != "s3cret" {
		t.Errorf("credentials = %q/%q", cfg.User, cfg.Password)
	}
}

func TestLoadFromEnv_Numbers(t *testing.T) {
	t.Setenv("GOFTP_TIMEOUT", "7")
	t.Setenv("GOFTP_CHUNK_SIZE", "4096")
	t.Setenv("GOFTP_RETRIES", "4")
	t.Setenv("GOFTP_VERBOSE", "2")

	cfg := New()
	LoadFromEnv(cfg)

	if cfg.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want 7s", cfg.Timeout)
	}
	if cfg.ChunkSize != 4096 || cfg.Retries != 4 || cfg.Verbose != 2 {
		t.Errorf("chunk=%d retries=%d verbose=%d", cfg.ChunkSize, cfg.Retries, cfg.Verbose)
	}
}

func TestLoadFromEnv_InvalidNumbersIgnored(t *testing.T) {
	t.Setenv("GOFTP_PORT", "ftp")
	t.Setenv("GOFTP_TIMEOUT", "-3")

	cfg := New()
	LoadFromEnv(cfg)

	if cfg.Port != DefaultFTPPort {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		key   string
		value string
		check func(c *Config) bool
	}{
		{"GOFTP_NO_DNS", "1", func(c *Config) bool { return c.NoDNS }},
		{"GOFTP_NO_DNS", "YES", func(c *Config) bool { return c.NoDNS }},
		{"GOFTP_SSH_AGENT", "true", func(c *Config) bool { return c.UseSSHAgent }},
		{"GOFTP_SSH_PASSWORD", "on", func(c *Config) bool { return c.SSHPassword }},
		{"GOFTP_STRICT_HOSTKEY", "1", func(c *Config) bool { return c.StrictHostKey }},
		{"GOFTP_NO_COLOR", "true", func(c *Config) bool { return c.NoColor }},
		{"GOFTP_BINARY", "false", func(c *Config) bool { return !c.Binary }},
		{"GOFTP_BINARY", "maybe", func(c *Config) bool { return c.Binary }},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := New()
			LoadFromEnv(cfg)
			if !tt.check(cfg) {
				t.Errorf("%s=%s not applied as expected", tt.key, tt.value)
			}
		})
	}
}

func TestLoadFromEnv_Tunnel(t *testing.T) {
	t.Setenv("GOFTP_TUNNEL", "ops@jump:2222")
	t.Setenv("GOFTP_SSH_KEY", "/keys/id")
	t.Setenv("GOFTP_KNOWN_HOSTS", "/keys/known_hosts")

	cfg := New()
	LoadFromEnv(cfg)

	if cfg.TunnelSpec != "ops@jump:2222" || cfg.SSHKeyPath != "/keys/id" || cfg.KnownHostsPath != "/keys/known_hosts" {
		t.Errorf("tunnel env not applied: %+v", cfg)
	}
	if cfg.TunnelEnabled {
		t.Error("LoadFromEnv should not parse the tunnel spec")
	}
}

func TestLoadFromEnv_EmptyLeavesDefaults(t *testing.T) {
	t.Setenv("GOFTP_HOST", "")
	t.Setenv("GOFTP_USER", "")

	cfg := New()
	cfg.Host = "keep.example"
	LoadFromEnv(cfg)

	if cfg.Host != "keep.example" || cfg.User != DefaultUser {
		t.Errorf("empty env overrode values: host=%q user=%q", cfg.Host, cfg.User)
	}
}

func TestLoadFromEnv_ProxyAndCharset(t *testing.T) {
	t.Setenv("GOFTP_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("GOFTP_CHARSET", "windows-1251")

	cfg := New()
	LoadFromEnv(cfg)

	if cfg.Proxy != "socks5://127.0.0.1:1080" || cfg.Charset != "windows-1251" {
		t.Errorf("proxy=%q charset=%q", cfg.Proxy, cfg.Charset)
	}
}
