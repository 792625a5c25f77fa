// Package session holds the state machine of one FTP connection:
//
//	Disconnected --Connect--> Connected --Login--> Authenticated
//	     ^                                               |
//	     +--------------------- Close -------------------+
//
// Every public operation takes the session lock, so no two operations of
// one session ever interleave on the control connection.  Operations that
// need a login are refused locally with ErrNotAuthenticated before any
// byte is sent.
package session

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"

	"goftp/internal/control"
	ftperr "goftp/internal/errors"
	"goftp/internal/metrics"
	"goftp/internal/passive"
	"goftp/internal/transfer"
	"goftp/internal/transport"
	"goftp/internal/wire"
	"goftp/util"
)

// State is the lifecycle phase of a session.
type State int

const (
	Disconnected State = iota
	Connected
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Authenticated:
		return "authenticated"
	}
	return "unknown"
}

// DefaultPort is the FTP control port.
const DefaultPort = 21

// DefaultQuitTimeout bounds the wait for the reply to QUIT.
const DefaultQuitTimeout = 2 * time.Second

// Options configures a session.  The zero value dials plain TCP on port
// 21 without deadlines and resolves names through the system resolver.
type Options struct {
	Port      int
	Timeout   time.Duration // per blocking step: resolve, dial, each read or write
	ChunkSize int

	// TransferType is sent as "TYPE <t>" right after login when non-empty
	// ("I" for binary, "A" for ASCII).
	TransferType string

	Dialer transport.Dialer

	// Resolver maps the host to an IPv4 address before dialling.  When
	// NoResolve is set the host is handed to the dialer as-is, as an SSH
	// tunnel or a socks5h proxy resolves it on the far side.
	Resolver  transport.Resolver
	NoResolve bool

	QuitTimeout time.Duration
	Logger      *util.Logger
	Metrics     *metrics.Collector

	// Charset is the server's encoding of path names and listings.  Nil
	// means UTF-8.
	Charset encoding.Encoding

	// TransferObserver, when set, sees every transfer state transition.
	TransferObserver func(verb string, s transfer.State)
}

// Session is one FTP client connection.
type Session struct {
	mu   sync.Mutex // serialises operations
	opts Options
	log  *util.Logger

	ctrl   *control.Channel
	engine *transfer.Engine

	info     sync.RWMutex // guards the fields below for accessors
	state    State
	server   string
	user     string
	password []byte
	cwd      string
}

// New returns a Disconnected session.
func New(opts Options) *Session {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.QuitTimeout == 0 {
		opts.QuitTimeout = DefaultQuitTimeout
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{Timeout: opts.Timeout}
	}
	if opts.Resolver == nil && !opts.NoResolve {
		opts.Resolver = &transport.DNSResolver{Timeout: opts.Timeout}
	}
	return &Session{opts: opts, log: opts.Logger.Named("session")}
}

// ── accessors ────────────────────────────────────────────────────────

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.state
}

// WorkingDirectory returns the remote directory as last set by
// ChangeDirectory.  It is a client-side cache and empty until then.
func (s *Session) WorkingDirectory() string {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.cwd
}

// Server returns the "host:port" the control connection was dialled on.
func (s *Session) Server() string {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.server
}

// User returns the logged-in user name.
func (s *Session) User() string {
	s.info.RLock()
	defer s.info.RUnlock()
	return s.user
}

// Metrics returns the collector the session reports to, possibly nil.
func (s *Session) Metrics() *metrics.Collector { return s.opts.Metrics }

// ── lifecycle ────────────────────────────────────────────────────────

// Connect dials host ("name", "ip" or either with ":port") and reads the
// server greeting.  A 120 greeting is followed by the real one; 220 is
// required.  On failure the session stays Disconnected.
func (s *Session) Connect(ctx context.Context, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != Disconnected {
		return ftperr.ErrAlreadyConnected
	}

	name, port, err := util.SplitHostPortDefault(host, s.opts.Port)
	if err != nil {
		return &ftperr.ResolutionError{Host: host, Err: err}
	}

	dialHost := name
	if s.opts.Resolver != nil {
		ip, err := s.opts.Resolver.LookupIPv4(ctx, name)
		if err != nil {
			return err
		}
		dialHost = ip.String()
	}
	addr := util.FormatAddr(dialHost, port)

	s.log.Verbose("connecting to %s (%s)", host, addr)
	dctx, cancel := s.stepContext(ctx)
	conn, err := s.opts.Dialer.Dial(dctx, "tcp", addr)
	cancel()
	if err != nil {
		s.opts.Metrics.RecordError(err.Error())
		return ftperr.WrapConnect("control", addr, err)
	}

	ctrl := control.New(conn, s.opts.Timeout, s.opts.Logger.Named("control"), s.opts.Metrics)
	greeting, err := ctrl.Receive(ctx)
	if err == nil && greeting.Code == wire.CodeServiceReadySoon {
		s.log.Verbose("server not ready yet: %s", greeting.Message)
		greeting, err = ctrl.Receive(ctx)
	}
	if err == nil {
		err = control.Check("greeting", greeting, wire.CodeServiceReady)
	}
	if err != nil {
		ctrl.Close() //nolint:errcheck
		return err
	}

	s.ctrl = ctrl
	s.engine = &transfer.Engine{
		Control: ctrl,
		Negotiator: &passive.Negotiator{
			Dialer:  s.opts.Dialer,
			Timeout: s.opts.Timeout,
			Logger:  s.opts.Logger.Named("passive"),
			Metrics: s.opts.Metrics,
		},
		ControlHost: dialHost,
		ChunkSize:   s.opts.ChunkSize,
		Logger:      s.opts.Logger.Named("transfer"),
		Metrics:     s.opts.Metrics,
		Observer:    s.opts.TransferObserver,
	}

	s.info.Lock()
	s.state = Connected
	s.server = addr
	s.cwd = ""
	s.info.Unlock()

	s.log.Info("connected to %s: %s", addr, firstLine(greeting.Message))
	return nil
}

// Login authenticates: USER must be answered 331, then PASS 230.  Any
// failure leaves the session Connected.
func (s *Session) Login(ctx context.Context, user, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == Disconnected {
		return ftperr.ErrNotConnected
	}
	s.info.Lock()
	s.state = Connected
	s.wipeCredentials()
	s.info.Unlock()

	if err := s.login(ctx, user, pass); err != nil {
		s.opts.Metrics.RecordError(err.Error())
		return err
	}

	s.info.Lock()
	s.state = Authenticated
	s.user = user
	s.password = []byte(pass)
	s.info.Unlock()

	s.log.Info("logged in as %s", user)
	return nil
}

func (s *Session) login(ctx context.Context, user, pass string) error {
	if _, err := s.ctrl.Expect(ctx, "USER", user, wire.CodeNeedPassword); err != nil {
		return authError(err)
	}
	if _, err := s.ctrl.Expect(ctx, "PASS", pass, wire.CodeLoggedIn); err != nil {
		return authError(err)
	}

	if t := s.opts.TransferType; t != "" {
		if _, err := s.ctrl.Expect(ctx, "TYPE", t, wire.CodeOK); err != nil {
			return fmt.Errorf("set transfer type %s: %w", t, err)
		}
	}
	return nil
}

// authError marks a refusal by the server as an authentication failure.
// Channel failures are reported as they are.
func authError(err error) error {
	var ue *ftperr.UnexpectedReplyError
	if ftperr.As(err, &ue) {
		return fmt.Errorf("%w: %w", ftperr.ErrAuthFailed, err)
	}
	return err
}

// Close ends the session from any state: a best-effort QUIT whose reply
// is read and ignored, then the socket is closed and credentials are
// wiped.  It never fails and may be called repeatedly.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil {
		if s.ctrl.Err() == nil && !s.ctrl.Pending() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.QuitTimeout)
			if reply, err := s.ctrl.Exchange(ctx, "QUIT", ""); err == nil {
				s.log.Debug("quit: %s", reply)
			}
			cancel()
		}
		s.ctrl.Close() //nolint:errcheck
		s.ctrl = nil
		s.engine = nil
	}

	s.info.Lock()
	if s.state != Disconnected {
		s.log.Verbose("disconnected from %s", s.server)
	}
	s.wipeCredentials()
	s.server = ""
	s.cwd = ""
	s.state = Disconnected
	s.info.Unlock()
	return nil
}

// ── authenticated operations ─────────────────────────────────────────

// List returns the raw LIST output for the current directory.
func (s *Session) List(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuth(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := s.engine.Retrieve(ctx, "LIST", "", &buf); err != nil {
		return "", err
	}
	return s.localText(buf.Bytes()), nil
}

// ChangeDirectory sends CWD and, on 250, updates the cached directory.
func (s *Session) ChangeDirectory(ctx context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuth(); err != nil {
		return err
	}
	arg, err := s.remoteName(dir)
	if err != nil {
		return err
	}
	if _, err := s.ctrl.Expect(ctx, "CWD", arg, wire.CodeFileActionOK); err != nil {
		return err
	}

	s.info.Lock()
	s.cwd = joinRemote(s.cwd, dir)
	s.info.Unlock()
	return nil
}

// Download retrieves remote into sink and returns the bytes written.
func (s *Session) Download(ctx context.Context, remote string, sink io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuth(); err != nil {
		return 0, err
	}
	arg, err := s.remoteName(remote)
	if err != nil {
		return 0, err
	}
	res, err := s.engine.Retrieve(ctx, "RETR", arg, sink)
	return res.Bytes, err
}

// Upload stores source at remote and returns the bytes sent.
func (s *Session) Upload(ctx context.Context, source io.Reader, remote string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuth(); err != nil {
		return 0, err
	}
	arg, err := s.remoteName(remote)
	if err != nil {
		return 0, err
	}
	res, err := s.engine.Store(ctx, "STOR", arg, source)
	return res.Bytes, err
}

// MakeDirectory sends MKD; 257 is required.
func (s *Session) MakeDirectory(ctx context.Context, dir string) error {
	return s.simple(ctx, "MKD", dir, wire.CodePathCreated)
}

// Delete sends DELE; 250 is required.
func (s *Session) Delete(ctx context.Context, file string) error {
	return s.simple(ctx, "DELE", file, wire.CodeFileActionOK)
}

// Rename sends RNFR (350 required) then RNTO (250 required).
func (s *Session) Rename(ctx context.Context, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuth(); err != nil {
		return err
	}
	oldName, err := s.remoteName(from)
	if err != nil {
		return err
	}
	newName, err := s.remoteName(to)
	if err != nil {
		return err
	}
	if _, err := s.ctrl.Expect(ctx, "RNFR", oldName, wire.CodeFileActionPending); err != nil {
		return err
	}
	_, err = s.ctrl.Expect(ctx, "RNTO", newName, wire.CodeFileActionOK)
	return err
}

func (s *Session) simple(ctx context.Context, verb, arg string, code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireAuth(); err != nil {
		return err
	}
	arg, err := s.remoteName(arg)
	if err != nil {
		return err
	}
	_, err = s.ctrl.Expect(ctx, verb, arg, code)
	return err
}

// ── helpers ──────────────────────────────────────────────────────────

func (s *Session) requireAuth() error {
	if s.State() != Authenticated {
		return ftperr.ErrNotAuthenticated
	}
	return nil
}

// wipeCredentials zeroes the stored password.  s.info must be held.
func (s *Session) wipeCredentials() {
	for i := range s.password {
		s.password[i] = 0
	}
	s.password = nil
	s.user = ""
}

// stepContext bounds a single blocking step by the configured timeout.
func (s *Session) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.Timeout)
}

// joinRemote applies a CWD argument to the cached directory.  An unknown
// base keeps a relative argument as given.
func joinRemote(cwd, dir string) string {
	switch {
	case strings.HasPrefix(dir, "/"):
		return path.Clean(dir)
	case cwd == "":
		return path.Clean(dir)
	default:
		return path.Join(cwd, dir)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
