// Package errors provides the typed failure kinds of the FTP client.
//
// Every operation of the core returns one of these (possibly wrapped) so
// callers can tell a resolution problem from a refused connection, a
// broken control channel, or a server that simply said no.  The types carry
// the server's literal reply text whenever there is one.
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected      = errors.New("not connected")
	ErrNotAuthenticated  = errors.New("not logged in")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrReplyPending      = errors.New("previous reply not consumed")
	ErrTimeout           = errors.New("operation timed out")
	ErrInvalidArgument   = errors.New("argument contains a line terminator")
	ErrTunnelClosed      = errors.New("tunnel is closed")
	ErrAuthFailed        = errors.New("authentication failed")
	ErrPeerClosedControl = errors.New("connection closed by server")
)

// ── Resolution / connection ──────────────────────────────────────────

// ResolutionError reports a failed hostname lookup.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool {
	return target == ErrTimeout && isTimeout(e.Err)
}

// ConnectError represents a failed TCP connect on either channel.
type ConnectError struct {
	Channel   string // "control" or "data"
	Addr      string
	Err       error
	Retryable bool
}

func (e *ConnectError) Error() string {
	s := fmt.Sprintf("connect %s %s: %v", e.Channel, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Is(target error) bool {
	return target == ErrTimeout && isTimeout(e.Err)
}

// ── Control channel ──────────────────────────────────────────────────

// ControlChannelError is a send or receive failure on the command socket.
type ControlChannelError struct {
	Op  string // "send" or "receive"
	Err error
}

func (e *ControlChannelError) Error() string {
	return fmt.Sprintf("control channel %s: %v", e.Op, e.Err)
}

func (e *ControlChannelError) Unwrap() error { return e.Err }

func (e *ControlChannelError) Is(target error) bool {
	return target == ErrTimeout && isTimeout(e.Err)
}

// MalformedReplyError is a reply that does not parse as <3-digit code><text>.
type MalformedReplyError struct {
	Raw    string
	Reason string
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("malformed reply %q: %s", e.Raw, e.Reason)
}

// UnexpectedReplyError is a well-formed reply whose code is not the one
// required at this point of the exchange.
type UnexpectedReplyError struct {
	Command string // verb that was answered, e.g. "RETR"
	Code    int
	Message string
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("%s: server replied %d %s", e.Command, e.Code, e.Message)
}

// Transient reports a 4xx reply: the server says try again later.
func (e *UnexpectedReplyError) Transient() bool { return e.Code >= 400 && e.Code < 500 }

// Permanent reports a 5xx reply.
func (e *UnexpectedReplyError) Permanent() bool { return e.Code >= 500 && e.Code < 600 }

// PassiveParseError reports a 227 reply without a usable address tuple.
type PassiveParseError struct {
	Text   string
	Reason string
}

func (e *PassiveParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot parse passive reply %q: %s", e.Text, e.Reason)
	}
	return fmt.Sprintf("cannot parse passive reply %q", e.Text)
}

// ── Local I/O ────────────────────────────────────────────────────────

// LocalIOError is a failure of the local byte sink or source.  It is
// never a protocol error.
type LocalIOError struct {
	Op   string // "read", "write", "open", "create", "commit"
	Path string // empty for anonymous readers/writers
	Err  error
}

func (e *LocalIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("local %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

// ── SSH / configuration ──────────────────────────────────────────────

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "dial"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag name
	Value   interface{} // the invalid value (nil if missing)
	Message string
	Hint    string // optional suggestion
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// WrapConnect creates a ConnectError, detecting retryability from the
// underlying error.
func WrapConnect(channel, addr string, err error) *ConnectError {
	return &ConnectError{
		Channel:   channel,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether repeating the operation could succeed:
// temporary network failures, timeouts and 4xx replies.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	var ue *UnexpectedReplyError
	if errors.As(err, &ue) {
		return ue.Transient()
	}
	if errors.Is(err, ErrTimeout) {
		return true
	}
	return classifyRetryable(err)
}

// IsTimeout reports whether err was caused by a deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || isTimeout(err)
}

// ReplyCode returns the server reply code carried by err, or 0.
func ReplyCode(err error) int {
	var ue *UnexpectedReplyError
	if errors.As(err, &ue) {
		return ue.Code
	}
	return 0
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	if isTimeout(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These let callers use goftp/internal/errors as a drop-in replacement
// for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
