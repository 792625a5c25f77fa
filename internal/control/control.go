// Package control drives the FTP control connection: one command out,
// exactly one final reply back.
//
// The channel is strictly half-duplex.  After a command is sent it owes a
// reply, and a preliminary (1xx) reply means a further reply is still
// owed.  Sending while a reply is owed fails with ErrReplyPending instead
// of pipelining.  Any I/O or decode failure breaks the channel: the stream
// can no longer be trusted to be in step with the server, so every later
// call fails fast with the original cause.
package control

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"slices"
	"strings"
	"sync"
	"time"

	ftperr "goftp/internal/errors"
	"goftp/internal/metrics"
	"goftp/internal/transport"
	"goftp/internal/wire"
	"goftp/util"
)

// Channel is the command connection of one session.  It is not safe for
// concurrent use; the session serialises access.
type Channel struct {
	raw     net.Conn
	conn    net.Conn // raw with per-operation deadlines
	r       *bufio.Reader
	logger  *util.Logger
	metrics *metrics.Collector

	pending bool
	broken  error

	closeOnce sync.Once
	closeErr  error
}

// New wraps an established control connection.  timeout bounds every
// single read and write; zero means no deadline.
func New(conn net.Conn, timeout time.Duration, logger *util.Logger, m *metrics.Collector) *Channel {
	if logger == nil {
		logger = util.Discard()
	}
	wrapped := transport.WithDeadlines(conn, timeout)
	m.ControlOpened()
	return &Channel{
		raw:     conn,
		conn:    wrapped,
		r:       bufio.NewReader(wrapped),
		logger:  logger,
		metrics: m,
	}
}

// Send writes one command.  It refuses while the previous command's
// final reply has not been received.
func (c *Channel) Send(ctx context.Context, verb, arg string) error {
	if c.broken != nil {
		return c.broken
	}
	if c.pending {
		return ftperr.ErrReplyPending
	}

	line, err := wire.EncodeCommand(verb, arg)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &ftperr.ControlChannelError{Op: "send", Err: err}
	}

	c.logger.Debug("> %s", redact(verb, arg))

	stop := transport.Interrupt(ctx, c.conn)
	_, err = io.WriteString(c.conn, line)
	stop()
	if err != nil {
		return c.fail(ctx, "send", err)
	}

	c.pending = true
	c.metrics.CommandSent()
	return nil
}

// Receive reads exactly one reply.  It may be called without a prior
// Send to collect the server greeting.
func (c *Channel) Receive(ctx context.Context) (wire.Reply, error) {
	if c.broken != nil {
		return wire.Reply{}, c.broken
	}
	if err := ctx.Err(); err != nil {
		return wire.Reply{}, &ftperr.ControlChannelError{Op: "receive", Err: err}
	}

	stop := transport.Interrupt(ctx, c.conn)
	reply, err := wire.ReadReply(c.r)
	stop()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = ftperr.ErrPeerClosedControl
		}
		return wire.Reply{}, c.fail(ctx, "receive", err)
	}

	c.logger.Debug("< %s", reply)
	c.metrics.ReplyReceived(reply.Code)
	c.pending = reply.Preliminary()
	return reply, nil
}

// Exchange sends one command and reads one reply.  A preliminary reply
// is returned as-is; the caller owes the channel another Receive.
func (c *Channel) Exchange(ctx context.Context, verb, arg string) (wire.Reply, error) {
	if err := c.Send(ctx, verb, arg); err != nil {
		return wire.Reply{}, err
	}
	return c.Receive(ctx)
}

// Expect runs Exchange and requires the reply code to be one of codes.
// When a preliminary reply fails the check, the replies the server still
// owes are read and dropped so the channel stays usable.
func (c *Channel) Expect(ctx context.Context, verb, arg string, codes ...int) (wire.Reply, error) {
	reply, err := c.Exchange(ctx, verb, arg)
	if err != nil {
		return reply, err
	}
	cerr := Check(verb, reply, codes...)
	for next := reply; cerr != nil && next.Preliminary(); {
		if next, err = c.Receive(ctx); err != nil {
			break
		}
	}
	return reply, cerr
}

// Await reads the next reply owed for verb and requires one of codes.
func (c *Channel) Await(ctx context.Context, verb string, codes ...int) (wire.Reply, error) {
	reply, err := c.Receive(ctx)
	if err != nil {
		return reply, err
	}
	return reply, Check(verb, reply, codes...)
}

// Check returns an *UnexpectedReplyError unless reply carries one of codes.
func Check(verb string, reply wire.Reply, codes ...int) error {
	if slices.Contains(codes, reply.Code) {
		return nil
	}
	return &ftperr.UnexpectedReplyError{Command: verb, Code: reply.Code, Message: reply.Message}
}

// Pending reports whether a reply is still owed.
func (c *Channel) Pending() bool { return c.pending }

// Err returns the failure that broke the channel, or nil.
func (c *Channel) Err() error { return c.broken }

// RemoteHost is the host part of the server address this channel is
// connected to.
func (c *Channel) RemoteHost() string {
	return util.HostOf(c.raw.RemoteAddr().String())
}

// Close closes the connection.  Further calls return the first result.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
		if c.broken == nil {
			c.broken = &ftperr.ControlChannelError{Op: "send", Err: net.ErrClosed}
		}
		c.metrics.ControlClosed()
	})
	return c.closeErr
}

// fail records err as the cause that breaks the channel.  A cancelled
// context takes precedence over the deadline error it produced.
func (c *Channel) fail(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	c.broken = &ftperr.ControlChannelError{Op: op, Err: err}
	c.pending = false
	c.metrics.RecordError(c.broken.Error())
	c.logger.Debug("channel broken: %v", err)
	return c.broken
}

func redact(verb, arg string) string {
	if strings.EqualFold(verb, "PASS") {
		return "PASS ****"
	}
	if arg == "" {
		return verb
	}
	return verb + " " + arg
}
