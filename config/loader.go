package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the GOFTP_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive); "0", "false", "no"
// switch a default-on setting off.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  Call it before flag parsing so
// that flags win.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("GOFTP_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("GOFTP_PORT"); v > 0 {
		cfg.Port = v
	}
	if v := os.Getenv("GOFTP_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("GOFTP_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := envInt("GOFTP_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := envInt("GOFTP_CHUNK_SIZE"); v > 0 {
		cfg.ChunkSize = v
	}
	if v := envInt("GOFTP_RETRIES"); v > 0 {
		cfg.Retries = v
	}
	if b, ok := envBool("GOFTP_BINARY"); ok {
		cfg.Binary = b
	}
	if b, ok := envBool("GOFTP_NO_DNS"); ok {
		cfg.NoDNS = b
	}
	if v := os.Getenv("GOFTP_CHARSET"); v != "" {
		cfg.Charset = v
	}
	if v := os.Getenv("GOFTP_PROXY"); v != "" {
		cfg.Proxy = v
	}

	// SSH tunnel
	if v := os.Getenv("GOFTP_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("GOFTP_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if b, ok := envBool("GOFTP_SSH_PASSWORD"); ok {
		cfg.SSHPassword = b
	}
	if b, ok := envBool("GOFTP_SSH_AGENT"); ok {
		cfg.UseSSHAgent = b
	}
	if b, ok := envBool("GOFTP_STRICT_HOSTKEY"); ok {
		cfg.StrictHostKey = b
	}
	if v := os.Getenv("GOFTP_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if b, ok := envBool("GOFTP_NO_COLOR"); ok {
		cfg.NoColor = b
	}
	if v := envInt("GOFTP_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return n
}

// envBool returns the value of a boolean variable and whether it was set
// to something recognisable.
func envBool(key string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
