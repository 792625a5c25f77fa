package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ftperr "goftp/internal/errors"
	"goftp/util"
)

// SSHConfig holds everything needed to reach the jump host.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	Password      string // used as-is when set; PromptPass asks on the terminal instead
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval of keepalive@openssh.com probes.  Zero
	// disables them.  A failed probe marks the tunnel dead so the next
	// FTP dial fails fast instead of hanging.
	KeepAlive time.Duration
}

// Addr returns the gateway's "host:port".
func (c *SSHConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SSHTunnel implements [Tunnel] by opening an SSH connection and
// forwarding traffic with ssh.Client.DialContext.
type SSHTunnel struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
	stop   chan struct{}
}

// NewSSHTunnel creates a tunnel that is ready to [SSHTunnel.Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = util.Discard()
	}
	return &SSHTunnel{config: cfg, logger: logger.Named("ssh")}
}

// Connect dials the SSH gateway and completes the handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	chain, err := authChain(t.config)
	if err != nil {
		return ftperr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}
	hostKey, err := verifyHostKey(t.config)
	if err != nil {
		return ftperr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	methods := make([]ssh.AuthMethod, len(chain))
	for i, a := range chain {
		methods[i] = a.method
	}
	sshCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            methods,
		HostKeyCallback: hostKey,
		Timeout:         t.config.ConnTimeout,
	}

	addr := t.config.Addr()
	t.logger.Debug("dialing %s as %s, offering %s", addr, t.config.User, authNames(chain))

	// Use a context-aware TCP dial so callers can cancel.
	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ftperr.WrapConnect("ssh", addr, err)
	}

	// The handshake itself is bounded by the connect timeout.
	tcpConn.SetDeadline(time.Now().Add(t.config.ConnTimeout)) //nolint:errcheck
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ftperr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}
	tcpConn.SetDeadline(time.Time{}) //nolint:errcheck

	client := ssh.NewClient(sshConn, chans, reqs)

	t.mu.Lock()
	t.client = client
	t.alive = true
	t.stop = make(chan struct{})
	stop := t.stop
	t.mu.Unlock()

	go t.monitor(client)
	if t.config.KeepAlive > 0 {
		go t.keepaliveLoop(client, stop)
	}

	t.logger.Verbose("connected to %s", addr)
	return nil
}

// Dial forwards a connection through the tunnel.  The gateway resolves
// address, so host names need not be resolvable locally.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	t.mu.RLock()
	client := t.client
	alive := t.alive
	t.mu.RUnlock()

	if !alive || client == nil {
		return nil, ftperr.ErrTunnelClosed
	}

	t.logger.Debug("forwarding %s %s", network, address)
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tunnel dial %s: %w", address, err)
	}
	return conn, nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("tunnel closed: %v", err)
	} else {
		t.logger.Debug("tunnel closed")
	}
}

// keepaliveLoop probes the gateway until stop is closed or a probe fails.
func (t *SSHTunnel) keepaliveLoop(client *ssh.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(t.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("keepalive failed: %v", err)
				t.mu.Lock()
				if t.client == client {
					t.alive = false
				}
				t.mu.Unlock()
				client.Close()
				return
			}
			t.logger.Debug("keepalive OK")
		}
	}
}
