package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/proxy"
)

// SOCKSDialer reaches the server through a SOCKS5 proxy.  The control
// connection and every passive data connection go through it.
type SOCKSDialer struct {
	ProxyAddr string      // host:port of the proxy
	Auth      *proxy.Auth // nil means no authentication
	Timeout   time.Duration
}

// Dial asks the proxy to CONNECT to address.  A host name in address is
// resolved by the proxy.
func (d *SOCKSDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	p, err := proxy.SOCKS5("tcp", d.ProxyAddr, d.Auth, &net.Dialer{Timeout: d.Timeout})
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", d.ProxyAddr, err)
	}
	cd, ok := p.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 %s: dialer does not support contexts", d.ProxyAddr)
	}
	conn, err := cd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", d.ProxyAddr, err)
	}
	return conn, nil
}

// Close is a no-op; the proxy holds no state between connections.
func (d *SOCKSDialer) Close() error { return nil }
