// Package transport establishes the TCP connections an FTP session runs
// on.  Transports handle the "how" of reaching the server (plain TCP or
// through an SSH jump host) independently of the protocol spoken over
// the connection, which is the control and passive packages' job.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.  The same Dialer serves the
// control connection and every passive data connection of a session.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}
