// Package config defines the runtime configuration for goftp and the
// parsers for server, tunnel and proxy address specifications.
package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	ftperr "goftp/internal/errors"
	"goftp/util"
)

// Config holds every tuneable for one goftp invocation.
type Config struct {
	// ── Server ───────────────────────────────────────────────────────
	Host        string
	Port        int
	User        string
	Password    string
	AskPassword bool // -P: prompt for the FTP password
	Timeout     time.Duration
	ChunkSize   int
	Binary      bool // send TYPE I after login
	Retries     int  // connect+login attempts, at least 1
	NoDNS       bool

	// Charset is the server's encoding of names and listings; "" = UTF-8.
	Charset string

	// ── SOCKS proxy ──────────────────────────────────────────────────
	Proxy string // socks5://[user:pass@]host[:port]; socks5h resolves on the proxy

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw [user@]host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Command ──────────────────────────────────────────────────────
	Command string   // one-shot command; empty starts the shell
	Args    []string // its arguments

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	NoColor bool
	DryRun  bool
}

// Commands lists the one-shot commands accepted after the server address.
var Commands = map[string]struct{ min, max int }{
	"ls":     {0, 0},
	"cd":     {1, 1},
	"get":    {1, 2},
	"put":    {1, 2},
	"mkdir":  {1, 1},
	"rm":     {1, 1},
	"mv":     {2, 2},
	"pwd":    {0, 0},
	"status": {0, 0},
	"stats":  {0, 0},
}

// New returns a Config filled with the defaults from defaults.go.
func New() *Config {
	return &Config{
		Port:      DefaultFTPPort,
		User:      DefaultUser,
		Timeout:   DefaultTimeout,
		ChunkSize: DefaultChunkSize,
		Binary:    true,
		Retries:   DefaultRetries,
	}
}

// Addr returns "host:port" of the FTP server.
func (c *Config) Addr() string {
	return util.FormatAddr(c.Host, c.Port)
}

// Interactive reports whether no one-shot command was given.
func (c *Config) Interactive() bool { return c.Command == "" }

// ── Server-spec parser ───────────────────────────────────────────────

// ParseServerSpec splits "host[:port]" and applies the FTP default port.
// A leading "ftp://" and a trailing slash are tolerated.
func ParseServerSpec(spec string) (host string, port int, err error) {
	spec = strings.TrimPrefix(spec, "ftp://")
	spec = strings.TrimSuffix(spec, "/")
	if strings.ContainsAny(spec, "@/ \t") {
		return "", 0, fmt.Errorf("invalid server %q – expected host[:port]", spec)
	}
	return util.SplitHostPortDefault(spec, DefaultFTPPort)
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

// ApplyTunnelSpec parses TunnelSpec, if any, into the Tunnel* fields.
func (c *Config) ApplyTunnelSpec() error {
	if c.TunnelSpec == "" {
		return nil
	}
	user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
	if err != nil {
		return &ftperr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: err.Error()}
	}
	c.TunnelEnabled = true
	c.TunnelUser = user
	c.TunnelHost = host
	c.TunnelPort = port
	return nil
}

// ── Proxy-spec parser ────────────────────────────────────────────────

// ProxySpec is a parsed --proxy URL.
type ProxySpec struct {
	Addr      string // host:port
	User      string
	Password  string
	RemoteDNS bool // socks5h: the proxy resolves the FTP server name
}

// ParseProxySpec parses "socks5://[user:pass@]host[:port]" or the same
// with the socks5h scheme.  Port defaults to 1080.
func ParseProxySpec(spec string) (ProxySpec, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return ProxySpec{}, fmt.Errorf("invalid proxy %q: %w", spec, err)
	}
	var ps ProxySpec
	switch strings.ToLower(u.Scheme) {
	case "socks5":
	case "socks5h":
		ps.RemoteDNS = true
	default:
		return ProxySpec{}, fmt.Errorf("unsupported proxy scheme %q – expected socks5 or socks5h", u.Scheme)
	}
	if u.Hostname() == "" {
		return ProxySpec{}, fmt.Errorf("invalid proxy %q – missing host", spec)
	}
	port := DefaultSOCKSPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port < 1 || port > 65535 {
			return ProxySpec{}, fmt.Errorf("invalid proxy port %q", p)
		}
	}
	ps.Addr = util.FormatAddr(u.Hostname(), port)
	if u.User != nil {
		ps.User = u.User.Username()
		ps.Password, _ = u.User.Password()
	}
	return ps, nil
}

// ── Charset lookup ───────────────────────────────────────────────────

// LookupCharset maps an IANA charset name such as "windows-1251" or
// "ISO-8859-1" to its encoding.  UTF-8 and "" return nil: no conversion.
func LookupCharset(name string) (encoding.Encoding, error) {
	if name == "" {
		return nil, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, err
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q is not supported", name)
	}
	if enc == unicode.UTF8 {
		return nil, nil
	}
	return enc, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Host == "" {
		return &ftperr.ConfigError{
			Field:   "host",
			Message: "FTP server is required",
			Hint:    "goftp [options] <host[:port]> [command [args...]]",
		}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &ftperr.ConfigError{Field: "port", Value: c.Port, Message: "must be between 1 and 65535"}
	}
	if c.Timeout < 0 {
		return &ftperr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.ChunkSize < MinChunkSize || c.ChunkSize > MaxChunkSize {
		return &ftperr.ConfigError{
			Field:   "chunk-size",
			Value:   c.ChunkSize,
			Message: fmt.Sprintf("must be between %d and %d bytes", MinChunkSize, MaxChunkSize),
			Hint:    fmt.Sprintf("the default is %d", DefaultChunkSize),
		}
	}
	if c.Retries < 1 {
		return &ftperr.ConfigError{
			Field:   "retries",
			Value:   c.Retries,
			Message: "must be at least 1",
			Hint:    "1 means a single attempt without retrying",
		}
	}
	if c.User == "" {
		return &ftperr.ConfigError{Field: "user", Message: "must not be empty", Hint: "use --user anonymous for public servers"}
	}
	if c.Password != "" && c.AskPassword {
		return &ftperr.ConfigError{
			Field:   "ask-password",
			Message: "cannot be combined with --password",
		}
	}

	if _, err := LookupCharset(c.Charset); err != nil {
		return &ftperr.ConfigError{
			Field:   "charset",
			Value:   c.Charset,
			Message: err.Error(),
			Hint:    "use an IANA name such as windows-1251 or ISO-8859-1",
		}
	}
	if c.Proxy != "" {
		if _, err := ParseProxySpec(c.Proxy); err != nil {
			return &ftperr.ConfigError{Field: "proxy", Value: c.Proxy, Message: err.Error()}
		}
		if c.TunnelEnabled {
			return &ftperr.ConfigError{
				Field:   "proxy",
				Message: "cannot be combined with --tunnel",
				Hint:    "choose either a SOCKS proxy or an SSH jump host",
			}
		}
	}

	if c.TunnelEnabled {
		if c.TunnelHost == "" {
			return &ftperr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
		}
		if c.NoDNS {
			return &ftperr.ConfigError{
				Field:   "no-dns",
				Message: "has no effect through an SSH tunnel",
				Hint:    "the jump host resolves the FTP server name",
			}
		}
	} else if c.SSHKeyPath != "" || c.SSHPassword || c.UseSSHAgent || c.StrictHostKey {
		return &ftperr.ConfigError{
			Field:   "tunnel",
			Message: "SSH options given without a tunnel",
			Hint:    "add -T user@jumphost",
		}
	}

	if c.Command != "" {
		arity, ok := Commands[c.Command]
		if !ok {
			return &ftperr.ConfigError{
				Field:   "command",
				Value:   c.Command,
				Message: "unknown command",
				Hint:    "one of ls, cd, get, put, mkdir, rm, mv, pwd, status, stats",
			}
		}
		if n := len(c.Args); n < arity.min || n > arity.max {
			return &ftperr.ConfigError{
				Field:   "command",
				Value:   c.Command,
				Message: fmt.Sprintf("takes %s, got %d", argCount(arity.min, arity.max), n),
			}
		}
	}
	return nil
}

func argCount(lo, hi int) string {
	switch {
	case lo == hi && lo == 1:
		return "1 argument"
	case lo == hi:
		return fmt.Sprintf("%d arguments", lo)
	default:
		return fmt.Sprintf("%d to %d arguments", lo, hi)
	}
}
