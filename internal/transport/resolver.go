package transport

import (
	"context"
	"errors"
	"net"
	"time"

	ftperr "goftp/internal/errors"
)

// Resolver turns a server name into the IPv4 address the control
// connection is dialled on.
type Resolver interface {
	LookupIPv4(ctx context.Context, host string) (net.IP, error)
}

// DNSResolver resolves through the system resolver.  With NoDNS set only
// IPv4 literals are accepted.
type DNSResolver struct {
	Timeout time.Duration
	NoDNS   bool

	// Resolver overrides net.DefaultResolver.
	Resolver *net.Resolver
}

var errNoIPv4 = errors.New("no IPv4 address")

// LookupIPv4 returns the first IPv4 address of host.  Failures are
// reported as *ResolutionError.
func (r *DNSResolver) LookupIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, &ftperr.ResolutionError{Host: host, Err: errNoIPv4}
	}
	if r.NoDNS {
		return nil, &ftperr.ResolutionError{Host: host, Err: errors.New("DNS lookups disabled (-n)")}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	ips, err := res.LookupIP(ctx, "ip4", host)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ftperr.ErrTimeout
		}
		return nil, &ftperr.ResolutionError{Host: host, Err: err}
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, &ftperr.ResolutionError{Host: host, Err: errNoIPv4}
}
