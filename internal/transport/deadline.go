package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// pastDeadline is any time already gone; setting it fails pending I/O.
var pastDeadline = time.Unix(1, 0)

// DeadlineConn sets a fresh read or write deadline before every
// operation, so a peer that stops talking for longer than Timeout
// surfaces as a timeout instead of a hang.  While interrupted it keeps
// the deadline in the past instead.
type DeadlineConn struct {
	net.Conn
	Timeout time.Duration

	interrupted atomic.Bool
}

// WithDeadlines wraps conn.  A zero timeout returns conn unchanged.
func WithDeadlines(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &DeadlineConn{Conn: conn, Timeout: timeout}
}

func (c *DeadlineConn) Read(b []byte) (int, error) {
	if err := c.arm(c.Conn.SetReadDeadline); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *DeadlineConn) Write(b []byte) (int, error) {
	if err := c.arm(c.Conn.SetWriteDeadline); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// arm sets the per-operation deadline.  The flag is checked again after
// setting it: an interrupt that raced with us must win.
func (c *DeadlineConn) arm(set func(time.Time) error) error {
	if c.interrupted.Load() {
		return set(pastDeadline)
	}
	if err := set(time.Now().Add(c.Timeout)); err != nil {
		return err
	}
	if c.interrupted.Load() {
		return set(pastDeadline)
	}
	return nil
}

func (c *DeadlineConn) interrupt() {
	c.interrupted.Store(true)
	c.Conn.SetDeadline(pastDeadline) //nolint:errcheck
}

// Interrupt arranges for blocked reads and writes on conn to return as
// soon as ctx is done, by moving the deadline into the past.  A
// *DeadlineConn stays interrupted until stop is called.  The returned
// func detaches the watch; it reports false if the interruption already
// happened.
func Interrupt(ctx context.Context, conn net.Conn) (stop func() bool) {
	if ctx.Done() == nil {
		return func() bool { return true }
	}
	dc, _ := conn.(*DeadlineConn)
	fired := make(chan struct{})
	detach := context.AfterFunc(ctx, func() {
		defer close(fired)
		if dc != nil {
			dc.interrupt()
			return
		}
		conn.SetDeadline(pastDeadline) //nolint:errcheck
	})
	return sync.OnceValue(func() bool {
		if detach() {
			return true
		}
		<-fired
		if dc != nil {
			dc.interrupted.Store(false)
		}
		return false
	})
}
