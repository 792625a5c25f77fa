package ftptest

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) line() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read reply: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (c *client) cmd(line string) string {
	c.t.Helper()
	io.WriteString(c.conn, line+"\r\n") //nolint:errcheck
	return c.line()
}

func (c *client) pasv() net.Conn {
	c.t.Helper()
	reply := c.cmd("PASV")
	lo, hi := strings.Index(reply, "("), strings.Index(reply, ")")
	f := strings.Split(reply[lo+1:hi], ",")
	p1, _ := strconv.Atoi(f[4])
	p2, _ := strconv.Atoi(f[5])
	dc, err := net.Dial("tcp", strings.Join(f[:4], ".")+":"+strconv.Itoa(p1*256+p2))
	if err != nil {
		c.t.Fatal(err)
	}
	return dc
}

func newServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestServer_LoginAndRetrieve(t *testing.T) {
	s := newServer(t)
	s.AddFile("/pub/readme.txt", []byte("hello"))
	c := dial(t, s)

	if got := c.line(); !strings.HasPrefix(got, "220 ") {
		t.Fatalf("greeting = %q", got)
	}
	if got := c.cmd("USER user"); !strings.HasPrefix(got, "331") {
		t.Fatalf("USER = %q", got)
	}
	if got := c.cmd("PASS pass"); !strings.HasPrefix(got, "230") {
		t.Fatalf("PASS = %q", got)
	}
	if got := c.cmd("CWD pub"); !strings.HasPrefix(got, "250") {
		t.Fatalf("CWD = %q", got)
	}

	dc := c.pasv()
	if got := c.cmd("RETR readme.txt"); !strings.HasPrefix(got, "150") {
		t.Fatalf("RETR = %q", got)
	}
	data, _ := io.ReadAll(dc)
	dc.Close()
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
	if got := c.line(); !strings.HasPrefix(got, "226") {
		t.Errorf("completion = %q", got)
	}
	if s.DataConnections() != 1 {
		t.Errorf("data connections = %d", s.DataConnections())
	}
}

func TestServer_RequiresLogin(t *testing.T) {
	s := newServer(t)
	c := dial(t, s)
	c.line()

	if got := c.cmd("LIST"); !strings.HasPrefix(got, "530") {
		t.Errorf("LIST before login = %q", got)
	}
}

func TestServer_Override(t *testing.T) {
	s := newServer(t)
	s.AddUser("anonymous", "")
	s.SetReply("PASV", "227 Entering Passive Mode\r\n")
	c := dial(t, s)
	c.line()

	if got := c.cmd("USER anonymous"); !strings.HasPrefix(got, "230") {
		t.Fatalf("USER = %q", got)
	}
	if got := c.cmd("PASV"); got != "227 Entering Passive Mode" {
		t.Errorf("PASV = %q", got)
	}
	cmds := s.Commands()
	if len(cmds) != 2 || cmds[1] != "PASV" {
		t.Errorf("commands = %v", cmds)
	}
}
