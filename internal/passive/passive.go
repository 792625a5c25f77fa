// Package passive negotiates the data connection of a transfer in
// passive mode: the client asks with PASV, the server answers 227 with
// the address it listens on, and the client dials it.
package passive

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	ftperr "goftp/internal/errors"
	"goftp/internal/metrics"
	"goftp/internal/transport"
	"goftp/internal/wire"
	"goftp/util"
)

// pasvPattern matches "(h1,h2,h3,h4,p1,p2)" anywhere in the 227 text.
var pasvPattern = regexp.MustCompile(`\(\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*,\s*(\d{1,3})\s*\)`)

// Endpoint is the address a server advertised for one transfer.
type Endpoint struct {
	IP   net.IP // always 4 bytes
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}

// Unspecified reports the 0.0.0.0 address some servers advertise when
// they mean "the host you are already talking to".
func (e Endpoint) Unspecified() bool { return e.IP.IsUnspecified() }

// ParseEndpoint extracts the endpoint from the text of a 227 reply.
func ParseEndpoint(text string) (Endpoint, error) {
	m := pasvPattern.FindStringSubmatch(text)
	if m == nil {
		return Endpoint{}, &ftperr.PassiveParseError{Text: text, Reason: "no (h1,h2,h3,h4,p1,p2) group"}
	}

	var b [6]int
	for i := range b {
		v, err := strconv.Atoi(m[i+1])
		if err != nil || v > 255 {
			return Endpoint{}, &ftperr.PassiveParseError{
				Text:   text,
				Reason: fmt.Sprintf("field %d (%s) is not a byte", i+1, m[i+1]),
			}
		}
		b[i] = v
	}

	port := b[4]*256 + b[5]
	if port == 0 {
		return Endpoint{}, &ftperr.PassiveParseError{Text: text, Reason: "port 0"}
	}
	return Endpoint{
		IP:   net.IPv4(byte(b[0]), byte(b[1]), byte(b[2]), byte(b[3])).To4(),
		Port: port,
	}, nil
}

// Controller is the part of the control channel the negotiator needs.
type Controller interface {
	Expect(ctx context.Context, verb, arg string, codes ...int) (wire.Reply, error)
}

// Negotiator opens one data connection per call.
type Negotiator struct {
	Dialer  transport.Dialer
	Timeout time.Duration // per read/write on the data connection
	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Open sends PASV, parses the 227 reply and dials the advertised
// endpoint.  controlHost replaces an unspecified advertised address.
// On error no data connection is left open.
func (n *Negotiator) Open(ctx context.Context, ctrl Controller, controlHost string) (net.Conn, Endpoint, error) {
	reply, err := ctrl.Expect(ctx, "PASV", "", wire.CodePassiveMode)
	if err != nil {
		return nil, Endpoint{}, err
	}

	ep, err := ParseEndpoint(reply.Message)
	if err != nil {
		return nil, Endpoint{}, err
	}

	addr := ep.String()
	if ep.Unspecified() && controlHost != "" {
		addr = util.FormatAddr(controlHost, ep.Port)
	}
	n.logger().Debug("data endpoint %s", addr)

	conn, err := n.Dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		return nil, ep, ftperr.WrapConnect("data", addr, err)
	}
	n.Metrics.DataOpened()
	return transport.WithDeadlines(conn, n.Timeout), ep, nil
}

func (n *Negotiator) logger() *util.Logger {
	if n.Logger == nil {
		return util.Discard()
	}
	return n.Logger
}
