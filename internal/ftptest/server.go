// Package ftptest provides an in-memory FTP server for tests.  It speaks
// the passive-mode subset of the protocol the client uses, keeps files in
// a map, and lets a test override the reply to any command.
package ftptest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const acceptTimeout = 5 * time.Second

// Server is a fake FTP server listening on 127.0.0.1.
type Server struct {
	ln net.Listener

	mu          sync.Mutex
	files       map[string][]byte
	dirs        map[string]bool
	users       map[string]string // "" password: USER alone logs in
	overrides   map[string]string
	failAfter   map[string]int
	completions map[string]string
	greeting    []string
	advertise   string
	commands    []string
	dataConns   int
	controlConn int

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewServer starts a server with one account, user/pass, and an empty
// root directory.
func NewServer() (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("ftptest: listen: %w", err)
	}
	s := &Server{
		ln:          ln,
		files:       make(map[string][]byte),
		dirs:        map[string]bool{"/": true},
		users:       map[string]string{"user": "pass"},
		overrides:   make(map[string]string),
		failAfter:   make(map[string]int),
		completions: make(map[string]string),
		greeting:    []string{"220 goftp test server ready"},
		closed:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns "127.0.0.1:port".
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Port returns the control port.
func (s *Server) Port() int { return s.ln.Addr().(*net.TCPAddr).Port }

// Close stops accepting and waits for open sessions to end.
func (s *Server) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	err := s.ln.Close()
	s.wg.Wait()
	return err
}

// ── configuration ────────────────────────────────────────────────────

// AddUser adds an account.  An empty password makes USER alone succeed
// with 230.
func (s *Server) AddUser(user, pass string) {
	s.mu.Lock()
	s.users[user] = pass
	s.mu.Unlock()
}

// AddFile stores data at the absolute path p, creating parent dirs.
func (s *Server) AddFile(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = path.Clean("/" + p)
	s.files[p] = append([]byte(nil), data...)
	for d := path.Dir(p); d != "/"; d = path.Dir(d) {
		s.dirs[d] = true
	}
}

// File returns the contents stored at p.
func (s *Server) File(p string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Clean("/"+p)]
	return data, ok
}

// AddDir creates the directory p and its parents.
func (s *Server) AddDir(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for d := path.Clean("/" + p); d != "/"; d = path.Dir(d) {
		s.dirs[d] = true
	}
}

// HasDir reports whether p exists as a directory.
func (s *Server) HasDir(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirs[path.Clean("/"+p)]
}

// SetReply makes the server answer verb with raw (one or more complete
// reply lines) instead of executing it.
func (s *Server) SetReply(verb, raw string) {
	s.mu.Lock()
	s.overrides[strings.ToUpper(verb)] = raw
	s.mu.Unlock()
}

// SetGreeting replaces the lines sent on connect.
func (s *Server) SetGreeting(lines ...string) {
	s.mu.Lock()
	s.greeting = lines
	s.mu.Unlock()
}

// Advertise makes 227 replies carry ip instead of the listener address.
func (s *Server) Advertise(ip string) {
	s.mu.Lock()
	s.advertise = ip
	s.mu.Unlock()
}

// FailAfter makes the next download for verb (RETR or LIST) drop the
// data connection after n bytes and answer 426.
func (s *Server) FailAfter(verb string, n int) {
	s.mu.Lock()
	s.failAfter[strings.ToUpper(verb)] = n
	s.mu.Unlock()
}

// SetCompletion makes successful transfers for verb (RETR, LIST or
// STOR) end with raw instead of 226.
func (s *Server) SetCompletion(verb, raw string) {
	s.mu.Lock()
	s.completions[strings.ToUpper(verb)] = raw
	s.mu.Unlock()
}

// ── inspection ───────────────────────────────────────────────────────

// Commands returns every command line received, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// DataConnections returns the number of data connections accepted.
func (s *Server) DataConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataConns
}

// ControlConnections returns the number of control connections accepted.
func (s *Server) ControlConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.controlConn
}

// ── serving ──────────────────────────────────────────────────────────

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.controlConn++
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess := &session{srv: s, conn: c, r: bufio.NewReader(c), cwd: "/"}
			sess.run()
		}()
	}
}

type session struct {
	srv  *Server
	conn net.Conn
	r    *bufio.Reader

	user   string
	authed bool
	cwd    string
	pasv   net.Listener
	rnfr   string
}

func (c *session) run() {
	defer c.conn.Close()
	defer c.closePassive()

	// Unblock reads when the server shuts down.
	go func() {
		<-c.srv.closed
		c.conn.Close()
	}()

	c.srv.mu.Lock()
	greeting := c.srv.greeting
	c.srv.mu.Unlock()
	for _, line := range greeting {
		c.raw(line + "\r\n")
	}

	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		c.srv.mu.Lock()
		c.srv.commands = append(c.srv.commands, line)
		override, overridden := c.srv.overrides[verb]
		c.srv.mu.Unlock()

		if overridden {
			c.closePassive()
			c.raw(override)
			if verb == "QUIT" {
				return
			}
			continue
		}
		if !c.handle(verb, arg) {
			return
		}
	}
}

// handle executes one command; false ends the session.
func (c *session) handle(verb, arg string) bool {
	switch verb {
	case "USER":
		c.user, c.authed = arg, false
		c.srv.mu.Lock()
		pass, ok := c.srv.users[arg]
		c.srv.mu.Unlock()
		if ok && pass == "" {
			c.authed = true
			c.reply(230, "User logged in, proceed.")
			return true
		}
		c.reply(331, "User name okay, need password.")
	case "PASS":
		c.srv.mu.Lock()
		want, ok := c.srv.users[c.user]
		c.srv.mu.Unlock()
		if !ok || want != arg {
			c.reply(530, "Login incorrect.")
			return true
		}
		c.authed = true
		c.reply(230, "Login successful.")
	case "QUIT":
		c.reply(221, "Goodbye.")
		return false
	case "NOOP":
		c.reply(200, "NOOP ok.")
	default:
		if !c.authed {
			c.reply(530, "Please login with USER and PASS.")
			return true
		}
		c.handleAuthed(verb, arg)
	}
	return true
}

func (c *session) handleAuthed(verb, arg string) {
	switch verb {
	case "TYPE":
		if arg != "I" && arg != "A" {
			c.reply(504, "Type not supported.")
			return
		}
		c.reply(200, "Type set to "+arg+".")
	case "PWD":
		c.reply(257, strconv.Quote(c.cwd)+" is the current directory")
	case "CWD":
		p := c.abs(arg)
		if !c.srv.HasDir(p) {
			c.reply(550, "Failed to change directory.")
			return
		}
		c.cwd = p
		c.reply(250, "Directory successfully changed.")
	case "MKD":
		p := c.abs(arg)
		if c.srv.HasDir(p) {
			c.reply(550, "Create directory operation failed.")
			return
		}
		c.srv.AddDir(p)
		c.reply(257, strconv.Quote(p)+" created")
	case "DELE":
		p := c.abs(arg)
		c.srv.mu.Lock()
		_, ok := c.srv.files[p]
		delete(c.srv.files, p)
		c.srv.mu.Unlock()
		if !ok {
			c.reply(550, "Delete operation failed.")
			return
		}
		c.reply(250, "Delete operation successful.")
	case "RNFR":
		p := c.abs(arg)
		if _, ok := c.srv.File(p); !ok {
			c.reply(550, "RNFR command failed.")
			return
		}
		c.rnfr = p
		c.reply(350, "Ready for RNTO.")
	case "RNTO":
		if c.rnfr == "" {
			c.reply(503, "RNFR required first.")
			return
		}
		c.srv.mu.Lock()
		c.srv.files[c.abs(arg)] = c.srv.files[c.rnfr]
		delete(c.srv.files, c.rnfr)
		c.srv.mu.Unlock()
		c.rnfr = ""
		c.reply(250, "Rename successful.")
	case "PASV":
		c.passive()
	case "LIST":
		c.download(verb, []byte(c.listing()))
	case "RETR":
		data, ok := c.srv.File(c.abs(arg))
		if !ok {
			c.closePassive()
			c.reply(550, "Failed to open file.")
			return
		}
		c.download(verb, data)
	case "STOR":
		c.upload(c.abs(arg))
	default:
		c.reply(502, "Command not implemented.")
	}
}

func (c *session) passive() {
	c.closePassive()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		c.reply(425, "Can't open passive connection.")
		return
	}
	c.pasv = ln

	c.srv.mu.Lock()
	host := c.srv.advertise
	c.srv.mu.Unlock()
	if host == "" {
		host = "127.0.0.1"
	}
	port := ln.Addr().(*net.TCPAddr).Port
	c.reply(227, fmt.Sprintf("Entering Passive Mode (%s,%d,%d).",
		strings.ReplaceAll(host, ".", ","), port/256, port%256))
}

func (c *session) acceptData() (net.Conn, bool) {
	if c.pasv == nil {
		c.reply(425, "Use PASV first.")
		return nil, false
	}
	ln := c.pasv
	c.pasv = nil
	defer ln.Close()

	ln.(*net.TCPListener).SetDeadline(time.Now().Add(acceptTimeout)) //nolint:errcheck
	c.reply(150, "Opening BINARY mode data connection.")
	dc, err := ln.Accept()
	if err != nil {
		c.reply(425, "Can't open data connection.")
		return nil, false
	}
	c.srv.mu.Lock()
	c.srv.dataConns++
	c.srv.mu.Unlock()
	return dc, true
}

func (c *session) download(verb string, data []byte) {
	dc, ok := c.acceptData()
	if !ok {
		return
	}

	c.srv.mu.Lock()
	limit, abort := c.srv.failAfter[verb]
	delete(c.srv.failAfter, verb)
	c.srv.mu.Unlock()

	if abort && limit < len(data) {
		dc.Write(data[:limit]) //nolint:errcheck
		dc.Close()
		c.reply(426, "Connection closed; transfer aborted.")
		return
	}
	_, err := dc.Write(data)
	dc.Close()
	if err != nil {
		c.reply(426, "Connection closed; transfer aborted.")
		return
	}
	c.complete(verb)
}

func (c *session) upload(p string) {
	dc, ok := c.acceptData()
	if !ok {
		return
	}
	data, err := io.ReadAll(dc)
	dc.Close()
	if err != nil {
		c.reply(426, "Connection closed; transfer aborted.")
		return
	}
	c.srv.AddFile(p, data)
	c.complete("STOR")
}

func (c *session) complete(verb string) {
	c.srv.mu.Lock()
	raw, ok := c.srv.completions[verb]
	c.srv.mu.Unlock()
	if ok {
		c.raw(raw)
		return
	}
	c.reply(226, "Transfer complete.")
}

// listing renders the current directory in ls -l style, sorted by name.
func (c *session) listing() string {
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()

	type entry struct {
		name string
		size int
		dir  bool
	}
	var entries []entry
	for p := range c.srv.dirs {
		if p != "/" && path.Dir(p) == c.cwd {
			entries = append(entries, entry{name: path.Base(p), dir: true})
		}
	}
	for p, data := range c.srv.files {
		if path.Dir(p) == c.cwd {
			entries = append(entries, entry{name: path.Base(p), size: len(data)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var b strings.Builder
	for _, e := range entries {
		mode := "-rw-r--r--"
		if e.dir {
			mode = "drwxr-xr-x"
		}
		fmt.Fprintf(&b, "%s 1 ftp ftp %8d Jan 01 00:00 %s\r\n", mode, e.size, e.name)
	}
	return b.String()
}

func (c *session) abs(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = path.Join(c.cwd, p)
	}
	return path.Clean(p)
}

func (c *session) closePassive() {
	if c.pasv != nil {
		c.pasv.Close()
		c.pasv = nil
	}
}

func (c *session) reply(code int, msg string) {
	c.raw(fmt.Sprintf("%d %s\r\n", code, msg))
}

func (c *session) raw(s string) {
	io.WriteString(c.conn, s) //nolint:errcheck
}
