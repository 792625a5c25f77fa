// Package transfer runs one data-bearing command (LIST, RETR, STOR) from
// passive negotiation to the completion reply.
//
// Every transfer walks
//
//	Idle -> PassiveOpened -> CommandSent -> Streaming -> Closed(Success|Failure)
//
// and may short-circuit to Closed(Failure) from any phase.  Once a data
// connection is open it is closed exactly once before Run returns, and
// once the command was accepted the final reply is always read after
// that close, so the control channel is back in step whatever happened
// on the data side.
package transfer

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	ftperr "goftp/internal/errors"
	"goftp/internal/metrics"
	"goftp/internal/passive"
	"goftp/internal/wire"
	"goftp/util"
)

// drainTimeout bounds the wait for the completion reply after the
// caller's context was cancelled mid-transfer.
const drainTimeout = 5 * time.Second

// Control is the part of the control channel a transfer drives.
type Control interface {
	passive.Controller
	Exchange(ctx context.Context, verb, arg string) (wire.Reply, error)
	Await(ctx context.Context, verb string, codes ...int) (wire.Reply, error)
}

// Direction tells which way bytes flow on the data connection.
type Direction int

const (
	Download Direction = iota // server to client: LIST, RETR
	Upload                    // client to server: STOR
)

// Result describes a finished transfer.
type Result struct {
	Bytes    int64
	Reply    wire.Reply // completion reply, zero if none was read
	State    State
	Duration time.Duration
}

// Rate returns the throughput in bytes per second.
func (r Result) Rate() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Bytes) / r.Duration.Seconds()
}

// Engine runs transfers over one control channel.  It holds no
// per-transfer state, so a session keeps a single Engine.
type Engine struct {
	Control     Control
	Negotiator  *passive.Negotiator
	ControlHost string // substituted for an advertised 0.0.0.0
	ChunkSize   int
	Logger      *util.Logger
	Metrics     *metrics.Collector

	// Observer, when set, sees every state transition.
	Observer func(verb string, s State)
}

// Retrieve runs a download command and streams the data into sink.
func (e *Engine) Retrieve(ctx context.Context, verb, arg string, sink io.Writer) (Result, error) {
	return e.run(ctx, Download, verb, arg, sink, nil)
}

// Store runs an upload command and streams src to the server.
func (e *Engine) Store(ctx context.Context, verb, arg string, src io.Reader) (Result, error) {
	return e.run(ctx, Upload, verb, arg, nil, src)
}

func (e *Engine) run(ctx context.Context, dir Direction, verb, arg string, sink io.Writer, src io.Reader) (Result, error) {
	log := e.logger()
	start := time.Now()
	res := Result{State: Idle}
	e.enter(verb, &res, Idle)

	fail := func(err error) (Result, error) {
		e.enter(verb, &res, ClosedFailure)
		res.Duration = time.Since(start)
		e.Metrics.TransferFinished(false)
		e.Metrics.RecordError(err.Error())
		return res, err
	}

	conn, _, err := e.Negotiator.Open(ctx, e.Control, e.ControlHost)
	if err != nil {
		return fail(err)
	}
	data := &onceConn{Conn: conn}
	e.enter(verb, &res, PassiveOpened)

	reply, err := e.Control.Exchange(ctx, verb, arg)
	if err != nil {
		data.Close() //nolint:errcheck
		return fail(err)
	}
	if reply.Code != wire.CodeFileStatusOK && reply.Code != wire.CodeAlreadyOpen {
		data.Close() //nolint:errcheck
		if reply.Preliminary() {
			// Some other 1xx: the server still owes the real answer.
			fctx, cancel := e.finishContext(ctx)
			e.Control.Await(fctx, verb) //nolint:errcheck
			cancel()
		}
		res.Reply = reply
		return fail(&ftperr.UnexpectedReplyError{Command: verb, Code: reply.Code, Message: reply.Message})
	}
	e.enter(verb, &res, CommandSent)

	e.enter(verb, &res, Streaming)
	buf, release := util.ChunkBuf(e.ChunkSize)
	var streamErr error
	switch dir {
	case Download:
		cr := util.CopyChunks(ctx, sink, data, buf, func(n int) { e.Metrics.BytesDownloaded(int64(n)) })
		res.Bytes = cr.Bytes
		switch {
		case cr.WriteErr != nil:
			streamErr = &ftperr.LocalIOError{Op: "write", Err: cr.WriteErr}
		case cr.ReadErr != nil:
			streamErr = dataError(ctx, verb, cr.ReadErr)
		}
	case Upload:
		cr := util.CopyChunks(ctx, data, src, buf, func(n int) { e.Metrics.BytesUploaded(int64(n)) })
		res.Bytes = cr.Bytes
		switch {
		case cr.ReadErr != nil && ctx.Err() == nil:
			streamErr = &ftperr.LocalIOError{Op: "read", Err: cr.ReadErr}
		case cr.ReadErr != nil:
			streamErr = ctx.Err()
		case cr.WriteErr != nil:
			streamErr = dataError(ctx, verb, cr.WriteErr)
		}
	}
	release()

	// Closing ends the upload stream, so its error counts for STOR.
	if cerr := data.Close(); cerr != nil && streamErr == nil && dir == Upload && !util.IsHarmless(cerr) {
		streamErr = dataError(ctx, verb, cerr)
	}

	fctx, cancel := e.finishContext(ctx)
	final, ferr := e.Control.Await(fctx, verb, wire.CodeTransferComplete)
	cancel()
	res.Reply = final

	if err := combine(streamErr, ferr); err != nil {
		return fail(err)
	}

	e.enter(verb, &res, ClosedSuccess)
	res.Duration = time.Since(start)
	e.Metrics.TransferFinished(true)
	log.Verbose("%s %s: %d bytes in %s", verb, arg, res.Bytes, res.Duration.Round(time.Millisecond))
	return res, nil
}

// finishContext returns ctx, or a short detached one when ctx is already
// done, so the owed completion reply can still be collected.
func (e *Engine) finishContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	return context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
}

func (e *Engine) enter(verb string, res *Result, s State) {
	res.State = s
	e.logger().Debug("%s: %s", verb, s)
	if e.Observer != nil {
		e.Observer(verb, s)
	}
}

func (e *Engine) logger() *util.Logger {
	if e.Logger == nil {
		return util.Discard()
	}
	return e.Logger
}

// dataError labels a failure of the data connection itself.
func dataError(ctx context.Context, verb string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if ftperr.IsTimeout(err) {
		return fmt.Errorf("%s data connection: %w: %w", verb, ftperr.ErrTimeout, err)
	}
	return fmt.Errorf("%s data connection: %w", verb, err)
}

// combine reports both a streaming failure and a completion failure;
// errors.As reaches either.
func combine(streamErr, finalErr error) error {
	var result *multierror.Error
	if streamErr != nil {
		result = multierror.Append(result, streamErr)
	}
	if finalErr != nil {
		result = multierror.Append(result, finalErr)
	}
	if result == nil {
		return nil
	}
	if len(result.Errors) == 1 {
		return result.Errors[0]
	}
	result.ErrorFormat = joinErrors
	return result
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; then ")
}

// onceConn closes the underlying connection exactly once.
type onceConn struct {
	net.Conn
	once sync.Once
	err  error
}

func (c *onceConn) Close() error {
	c.once.Do(func() { c.err = c.Conn.Close() })
	return c.err
}
