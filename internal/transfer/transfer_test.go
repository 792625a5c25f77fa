package transfer

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"goftp/internal/control"
	ftperr "goftp/internal/errors"
	"goftp/internal/ftptest"
	"goftp/internal/metrics"
	"goftp/internal/passive"
	"goftp/internal/transport"
	"goftp/util"
)

// countingConn counts Close calls on a data connection.
type countingConn struct {
	net.Conn
	closes *atomic.Int32
}

func (c *countingConn) Close() error {
	c.closes.Add(1)
	return c.Conn.Close()
}

type countingDialer struct {
	transport.TCPDialer
	mu    sync.Mutex
	conns []*atomic.Int32
}

func (d *countingDialer) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	conn, err := d.TCPDialer.Dial(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	n := new(atomic.Int32)
	d.mu.Lock()
	d.conns = append(d.conns, n)
	d.mu.Unlock()
	return &countingConn{Conn: conn, closes: n}, nil
}

// assertClosedOnce checks that every data connection was closed exactly once.
func (d *countingDialer) assertClosedOnce(t *testing.T, wantConns int) {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) != wantConns {
		t.Fatalf("data connections = %d, want %d", len(d.conns), wantConns)
	}
	for i, n := range d.conns {
		if got := n.Load(); got != 1 {
			t.Errorf("data connection %d closed %d times, want 1", i, got)
		}
	}
}

type fixture struct {
	srv    *ftptest.Server
	ctrl   *control.Channel
	dialer *countingDialer
	engine *Engine
	states []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv, err := ftptest.NewServer()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	ctrl := control.New(conn, 2*time.Second, nil, nil)
	t.Cleanup(func() { ctrl.Close() })

	ctx := context.Background()
	if _, err := ctrl.Await(ctx, "greeting", 220); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Expect(ctx, "USER", "user", 331); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.Expect(ctx, "PASS", "pass", 230); err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		srv:    srv,
		ctrl:   ctrl,
		dialer: &countingDialer{TCPDialer: transport.TCPDialer{Timeout: time.Second}},
	}
	f.engine = &Engine{
		Control:     ctrl,
		Negotiator:  &passive.Negotiator{Dialer: f.dialer, Timeout: 2 * time.Second},
		ControlHost: "127.0.0.1",
		ChunkSize:   1024,
		Logger:      util.Discard(),
		Metrics:     metrics.New(),
		Observer:    func(_ string, s State) { f.states = append(f.states, s) },
	}
	return f
}

func TestEngine_List(t *testing.T) {
	f := newFixture(t)
	f.srv.AddFile("/a.txt", []byte("aaa"))
	f.srv.AddDir("/sub")

	var out bytes.Buffer
	res, err := f.engine.Retrieve(context.Background(), "LIST", "", &out)
	if err != nil {
		t.Fatalf("LIST: %v", err)
	}
	if !strings.Contains(out.String(), "a.txt") || !strings.Contains(out.String(), "sub") {
		t.Errorf("listing = %q", out.String())
	}
	if res.State != ClosedSuccess || res.Reply.Code != 226 {
		t.Errorf("result = %+v", res)
	}

	want := []State{Idle, PassiveOpened, CommandSent, Streaming, ClosedSuccess}
	if len(f.states) != len(want) {
		t.Fatalf("states = %v, want %v", f.states, want)
	}
	for i := range want {
		if f.states[i] != want[i] {
			t.Errorf("state %d = %s, want %s", i, f.states[i], want[i])
		}
	}
	f.dialer.assertClosedOnce(t, 1)
	if f.ctrl.Pending() {
		t.Error("control channel still owes a reply")
	}
}

func TestEngine_StoreThenRetrieve(t *testing.T) {
	f := newFixture(t)
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096) // 64 KiB, many chunks
	ctx := context.Background()

	up, err := f.engine.Store(ctx, "STOR", "blob.bin", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("STOR: %v", err)
	}
	if up.Bytes != int64(len(payload)) {
		t.Errorf("uploaded %d bytes, want %d", up.Bytes, len(payload))
	}

	var down bytes.Buffer
	res, err := f.engine.Retrieve(ctx, "RETR", "blob.bin", &down)
	if err != nil {
		t.Fatalf("RETR: %v", err)
	}
	if !bytes.Equal(down.Bytes(), payload) {
		t.Fatal("downloaded bytes differ from uploaded bytes")
	}
	if res.Rate() <= 0 {
		t.Error("rate should be positive")
	}
	f.dialer.assertClosedOnce(t, 2)

	snap := f.engine.Metrics.Snapshot()
	if snap.BytesUp != int64(len(payload)) || snap.BytesDown != int64(len(payload)) || snap.TransfersOK != 2 {
		t.Errorf("metrics = %+v", snap)
	}
}

func TestEngine_RetrieveRefused(t *testing.T) {
	f := newFixture(t)

	var out bytes.Buffer
	res, err := f.engine.Retrieve(context.Background(), "RETR", "missing.txt", &out)
	var ue *ftperr.UnexpectedReplyError
	if !errors.As(err, &ue) || ue.Code != 550 {
		t.Fatalf("err = %v, want UnexpectedReplyError{550}", err)
	}
	if res.State != ClosedFailure {
		t.Errorf("state = %s", res.State)
	}
	if out.Len() != 0 {
		t.Errorf("sink received %d bytes", out.Len())
	}
	f.dialer.assertClosedOnce(t, 1)

	// The channel is still usable.
	if _, err := f.ctrl.Expect(context.Background(), "NOOP", "", 200); err != nil {
		t.Fatalf("control channel after refusal: %v", err)
	}
}

// failingSink accepts limit bytes, then fails.
type failingSink struct {
	limit int
	got   int
}

func (s *failingSink) Write(p []byte) (int, error) {
	if s.got+len(p) > s.limit {
		return 0, errors.New("disk full")
	}
	s.got += len(p)
	return len(p), nil
}

func TestEngine_MidStreamFailureReportsBoth(t *testing.T) {
	f := newFixture(t)
	f.srv.AddFile("/big.bin", bytes.Repeat([]byte("x"), 8192))
	f.srv.FailAfter("RETR", 4096)

	_, err := f.engine.Retrieve(context.Background(), "RETR", "big.bin", &failingSink{limit: 0})
	if err == nil {
		t.Fatal("expected failure")
	}

	var le *ftperr.LocalIOError
	if !errors.As(err, &le) || le.Op != "write" {
		t.Errorf("err = %v, want a LocalIOError on write", err)
	}
	var ue *ftperr.UnexpectedReplyError
	if !errors.As(err, &ue) || ue.Code != 426 {
		t.Errorf("err = %v, want the 426 completion reply too", err)
	}
	f.dialer.assertClosedOnce(t, 1)
	if f.ctrl.Pending() {
		t.Error("final reply was not consumed")
	}
}

// failingSource yields n bytes, then fails.
type failingSource struct {
	n int
}

func (s *failingSource) Read(p []byte) (int, error) {
	if s.n == 0 {
		return 0, errors.New("disk gone")
	}
	k := min(len(p), s.n)
	s.n -= k
	return k, nil
}

func TestEngine_UploadSourceFailure(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Store(context.Background(), "STOR", "partial.bin", &failingSource{n: 3000})
	var le *ftperr.LocalIOError
	if !errors.As(err, &le) || le.Op != "read" {
		t.Fatalf("err = %v, want a LocalIOError on read", err)
	}
	if !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("err = %v, want the source error", err)
	}
	if res.State != ClosedFailure {
		t.Errorf("state = %s", res.State)
	}
	f.dialer.assertClosedOnce(t, 1)
	if f.ctrl.Pending() {
		t.Error("final reply was not consumed")
	}
	if _, err := f.ctrl.Expect(context.Background(), "NOOP", "", 200); err != nil {
		t.Fatalf("control channel after a failed upload: %v", err)
	}
}

func TestEngine_CompletionMustBe226(t *testing.T) {
	f := newFixture(t)
	f.srv.AddFile("/hi.txt", []byte("hi"))
	f.srv.SetCompletion("RETR", "250 Requested file action okay\r\n")

	var out bytes.Buffer
	res, err := f.engine.Retrieve(context.Background(), "RETR", "hi.txt", &out)
	var ue *ftperr.UnexpectedReplyError
	if !errors.As(err, &ue) || ue.Code != 250 {
		t.Fatalf("err = %v, want UnexpectedReplyError{250}", err)
	}
	if res.State != ClosedFailure {
		t.Errorf("state = %s, want %s", res.State, ClosedFailure)
	}
	if out.String() != "hi" {
		t.Errorf("sink = %q", out.String())
	}
	f.dialer.assertClosedOnce(t, 1)
}

func TestEngine_AbortedByServer(t *testing.T) {
	f := newFixture(t)
	f.srv.AddFile("/big.bin", bytes.Repeat([]byte("x"), 8192))
	f.srv.FailAfter("RETR", 100)

	var out bytes.Buffer
	res, err := f.engine.Retrieve(context.Background(), "RETR", "big.bin", &out)
	var ue *ftperr.UnexpectedReplyError
	if !errors.As(err, &ue) || ue.Code != 426 {
		t.Fatalf("err = %v, want UnexpectedReplyError{426}", err)
	}
	if res.Bytes != 100 {
		t.Errorf("bytes = %d, want 100", res.Bytes)
	}
	f.dialer.assertClosedOnce(t, 1)
}

func TestEngine_PassiveParseFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.SetReply("PASV", "227 Entering Passive Mode\r\n")

	_, err := f.engine.Retrieve(context.Background(), "LIST", "", &bytes.Buffer{})
	var pe *ftperr.PassiveParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want PassiveParseError", err)
	}
	f.dialer.assertClosedOnce(t, 0)
	if last := f.states[len(f.states)-1]; last != ClosedFailure {
		t.Errorf("final state = %s", last)
	}
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Retrieve(ctx, "LIST", "", &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	f.dialer.assertClosedOnce(t, 0)
}

func TestState_String(t *testing.T) {
	if Streaming.String() != "streaming" || ClosedFailure.String() != "closed(failure)" {
		t.Error("state names changed")
	}
	if State(42).String() != "unknown" {
		t.Error("out of range state should be unknown")
	}
	if !ClosedSuccess.Terminal() || Streaming.Terminal() {
		t.Error("Terminal is wrong")
	}
}
