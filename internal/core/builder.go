package core

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"golang.org/x/net/proxy"

	"goftp/config"
	"goftp/internal/metrics"
	"goftp/internal/retry"
	"goftp/internal/session"
	"goftp/internal/shell"
	"goftp/internal/transport"
	"goftp/tunnel"
	"goftp/util"
)

// Streams are the terminal ends a mode reads commands from and prints
// results to.  The zero value means os.Stdin and os.Stdout, with the
// interactive prompt chosen when both are terminals.
type Streams struct {
	In       io.Reader
	Out      io.Writer
	Terminal bool
}

func (s Streams) withDefaults() Streams {
	if s.In == nil {
		s.In = os.Stdin
		s.Terminal = util.IsTerminal(os.Stdin) && util.IsTerminal(os.Stdout)
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	return s
}

// Build constructs the appropriate Mode from the given configuration:
// a CommandMode when a command follows the server address, otherwise a
// ShellMode.
func Build(cfg *config.Config, logger *util.Logger, streams Streams) (Mode, error) {
	if logger == nil {
		logger = util.Discard()
	}
	if cfg.NoDNS && !cfg.TunnelEnabled && net.ParseIP(cfg.Host) == nil {
		return nil, fmt.Errorf(
			"cannot parse %q as an IP address (DNS disabled with -n)",
			cfg.Host)
	}
	streams = streams.withDefaults()

	m := metrics.New()
	dialer, remoteDNS, err := buildDialer(cfg, logger)
	if err != nil {
		return nil, err
	}
	opts, err := buildSessionOptions(cfg, dialer, m, logger)
	if err != nil {
		return nil, err
	}
	opts.NoResolve = opts.NoResolve || remoteDNS
	connector := &Connector{
		Options: opts,
		Backoff: retry.ForAttempts(cfg.Retries),
		Logger:  logger.Named("connect"),
	}

	runnerOpts := shell.Options{
		Opener:   connector,
		Out:      streams.Out,
		Logger:   logger,
		Metrics:  m,
		User:     cfg.User,
		Password: loginPassword(cfg),
		NoColor:  cfg.NoColor,
	}

	if cfg.Command != "" {
		return &CommandMode{
			Runner:  shell.New(runnerOpts),
			Dialer:  dialer,
			Addr:    cfg.Addr(),
			Command: cfg.Command,
			Args:    cfg.Args,
		}, nil
	}

	connector.Breakers = buildBreakers(logger)
	return &ShellMode{
		Runner:      shell.New(runnerOpts),
		Dialer:      dialer,
		Addr:        cfg.Addr(),
		In:          streams.In,
		Interactive: streams.Terminal,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
// remoteDNS reports whether the server name should reach the dialer
// unresolved.
func buildDialer(cfg *config.Config, logger *util.Logger) (d transport.Dialer, remoteDNS bool, err error) {
	if cfg.Proxy != "" {
		ps, err := config.ParseProxySpec(cfg.Proxy)
		if err != nil {
			return nil, false, err
		}
		sd := &transport.SOCKSDialer{ProxyAddr: ps.Addr, Timeout: cfg.Timeout}
		if ps.User != "" {
			sd.Auth = &proxy.Auth{User: ps.User, Password: ps.Password}
		}
		logger.Debug("using SOCKS5 proxy %s", ps.Addr)
		return sd, ps.RemoteDNS, nil
	}
	if cfg.TunnelEnabled {
		return transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     config.DefaultKeepAliveInterval,
		}, logger), true, nil
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}, false, nil
}

// buildSessionOptions is the template every session opened by the
// connector starts from.  Through a tunnel the server name is passed to
// the jump host unresolved.
func buildSessionOptions(cfg *config.Config, d transport.Dialer, m *metrics.Collector, logger *util.Logger) (session.Options, error) {
	charset, err := config.LookupCharset(cfg.Charset)
	if err != nil {
		return session.Options{}, err
	}
	opts := session.Options{
		Port:        cfg.Port,
		Timeout:     cfg.Timeout,
		ChunkSize:   cfg.ChunkSize,
		Dialer:      d,
		Resolver:    &transport.DNSResolver{Timeout: cfg.Timeout, NoDNS: cfg.NoDNS},
		NoResolve:   cfg.TunnelEnabled,
		QuitTimeout: config.DefaultQuitTimeout,
		Logger:      logger,
		Metrics:     m,
		Charset:     charset,
	}
	if cfg.Binary {
		opts.TransferType = "I"
	}
	return opts, nil
}

func buildBreakers(logger *util.Logger) *retry.Breakers {
	log := logger.Named("breaker")
	return retry.NewBreakers(&retry.CircuitBreakerConfig{
		MaxFailures:  config.DefaultBreakerFailures,
		ResetTimeout: config.DefaultBreakerReset,
		IsFailure:    hostDown,
		OnStateChange: func(from, to retry.State) {
			log.Verbose("%s -> %s", from, to)
		},
	})
}

// loginPassword returns the configured password, or the conventional
// placeholder for anonymous logins.
func loginPassword(cfg *config.Config) string {
	if cfg.Password == "" && strings.EqualFold(cfg.User, config.DefaultUser) {
		return config.DefaultAnonymousPassword
	}
	return cfg.Password
}
