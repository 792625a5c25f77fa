package core

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"goftp/config"
	ftperr "goftp/internal/errors"
	"goftp/internal/transport"
	"goftp/util"
)

func testConfig(srv interface{ Port() int }) *config.Config {
	cfg := config.New()
	cfg.Host = "127.0.0.1"
	cfg.Port = srv.Port()
	cfg.User = "user"
	cfg.Password = "pass"
	cfg.Timeout = 2 * time.Second
	cfg.NoColor = true
	return cfg
}

func quietStreams(in string) (Streams, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return Streams{In: strings.NewReader(in), Out: out}, out
}

func TestBuild_Command(t *testing.T) {
	cfg := config.New()
	cfg.Host = "ftp.example.com"
	cfg.Command = "ls"
	streams, _ := quietStreams("")

	mode, err := Build(cfg, util.NewLogger(0), streams)
	if err != nil {
		t.Fatal(err)
	}
	cm, ok := mode.(*CommandMode)
	if !ok {
		t.Fatalf("expected *CommandMode, got %T", mode)
	}
	if cm.Addr != "ftp.example.com:21" {
		t.Errorf("addr = %q", cm.Addr)
	}
	if _, ok := cm.Dialer.(*transport.TCPDialer); !ok {
		t.Errorf("dialer = %T, want *transport.TCPDialer", cm.Dialer)
	}
}

func TestBuild_Shell(t *testing.T) {
	cfg := config.New()
	cfg.Host = "ftp.example.com"
	streams, _ := quietStreams("")

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := mode.(*ShellMode)
	if !ok {
		t.Fatalf("expected *ShellMode, got %T", mode)
	}
	if sm.Interactive {
		t.Error("a reader that is not a terminal should run as a script")
	}
}

func TestBuild_Tunnel(t *testing.T) {
	cfg := config.New()
	cfg.Host = "ftp.internal"
	cfg.Command = "ls"
	cfg.TunnelSpec = "admin@bastion:2222"
	if err := cfg.ApplyTunnelSpec(); err != nil {
		t.Fatal(err)
	}
	streams, _ := quietStreams("")

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mode.(*CommandMode).Dialer.(*transport.SSHDialer); !ok {
		t.Errorf("dialer = %T, want *transport.SSHDialer", mode.(*CommandMode).Dialer)
	}
}

func TestBuild_Proxy(t *testing.T) {
	tests := []struct {
		name      string
		proxy     string
		wantAuth  bool
		noResolve bool
	}{
		{"local dns", "socks5://127.0.0.1:1080", false, false},
		{"proxy dns with auth", "socks5h://bob:pw@127.0.0.1:1080", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Host = "ftp.example.com"
			cfg.Command = "ls"
			cfg.Proxy = tt.proxy
			cfg.Charset = "windows-1251"
			streams, _ := quietStreams("")

			mode, err := Build(cfg, nil, streams)
			if err != nil {
				t.Fatal(err)
			}
			cm := mode.(*CommandMode)
			sd, ok := cm.Dialer.(*transport.SOCKSDialer)
			if !ok {
				t.Fatalf("dialer = %T, want *transport.SOCKSDialer", cm.Dialer)
			}
			if sd.ProxyAddr != "127.0.0.1:1080" {
				t.Errorf("proxy addr = %q", sd.ProxyAddr)
			}
			if (sd.Auth != nil) != tt.wantAuth {
				t.Errorf("auth = %+v, wantAuth = %v", sd.Auth, tt.wantAuth)
			}

			opts, err := buildSessionOptions(cfg, sd, nil, util.Discard())
			if err != nil {
				t.Fatal(err)
			}
			if opts.Charset == nil {
				t.Error("charset not applied to session options")
			}
			_, remoteDNS, err := buildDialer(cfg, util.Discard())
			if err != nil {
				t.Fatal(err)
			}
			if remoteDNS != tt.noResolve {
				t.Errorf("remoteDNS = %v, want %v", remoteDNS, tt.noResolve)
			}
		})
	}
}

func TestBuild_NoDNSNeedsIP(t *testing.T) {
	cfg := config.New()
	cfg.Host = "ftp.example.com"
	cfg.NoDNS = true

	if _, err := Build(cfg, nil, Streams{Out: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for a host name with -n")
	}

	cfg.Host = "192.0.2.10"
	if _, err := Build(cfg, nil, Streams{In: strings.NewReader(""), Out: &bytes.Buffer{}}); err != nil {
		t.Fatalf("IP address with -n: %v", err)
	}
}

func TestLoginPassword(t *testing.T) {
	tests := []struct {
		user, pass, want string
	}{
		{"anonymous", "", config.DefaultAnonymousPassword},
		{"Anonymous", "", config.DefaultAnonymousPassword},
		{"anonymous", "me@example.com", "me@example.com"},
		{"alice", "", ""},
		{"alice", "secret", "secret"},
	}
	for _, tc := range tests {
		cfg := &config.Config{User: tc.user, Password: tc.pass}
		if got := loginPassword(cfg); got != tc.want {
			t.Errorf("loginPassword(%q, %q) = %q, want %q", tc.user, tc.pass, got, tc.want)
		}
	}
}

// ── end to end ───────────────────────────────────────────────────────

func TestCommandMode_List(t *testing.T) {
	srv := newServer(t)
	srv.AddFile("/readme.txt", []byte("hello"))
	srv.AddFile("/pub/data.bin", []byte{1, 2, 3})

	cfg := testConfig(srv)
	cfg.Command = "ls"
	streams, out := quietStreams("")

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	if err := mode.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "readme.txt") {
		t.Errorf("listing output:\n%s", out)
	}

	cmds := srv.Commands()
	if len(cmds) == 0 || cmds[len(cmds)-1] != "QUIT" {
		t.Errorf("commands = %v, want QUIT last", cmds)
	}
	if !contains(cmds, "TYPE I") {
		t.Errorf("commands = %v, want TYPE I for binary mode", cmds)
	}
}

func TestCommandMode_AuthFailure(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.Password = "wrong"
	cfg.Command = "ls"
	streams, _ := quietStreams("")

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	err = mode.Run(context.Background())
	if !errors.Is(err, ftperr.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if contains(srv.Commands(), "PASV") {
		t.Error("no data connection should be attempted after a refused login")
	}
	cmds := srv.Commands()
	if cmds[len(cmds)-1] != "QUIT" {
		t.Errorf("commands = %v, want QUIT last", cmds)
	}
}

func TestShellMode_Script(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(srv)
	script := strings.Join([]string{
		"# set up a directory",
		"mkdir /incoming",
		"cd /incoming",
		"",
		"pwd",
		"quit",
		"mkdir /never",
	}, "\n")
	streams, out := quietStreams(script)

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	if err := mode.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !srv.HasDir("/incoming") {
		t.Error("mkdir did not reach the server")
	}
	if srv.HasDir("/never") {
		t.Error("commands after quit must not run")
	}
	if !strings.Contains(out.String(), "/incoming") {
		t.Errorf("pwd output:\n%s", out)
	}
}

func TestShellMode_ScriptFailures(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(srv)
	streams, _ := quietStreams("rm /missing\nmkdir /ok\n")

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	err = mode.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "1 of 2 commands failed") {
		t.Fatalf("err = %v", err)
	}
	if !srv.HasDir("/ok") {
		t.Error("the script should continue after a failed command")
	}
}

func TestShellMode_ScriptConnectFailure(t *testing.T) {
	srv := newServer(t)
	cfg := testConfig(srv)
	cfg.Password = "wrong"
	streams, _ := quietStreams("mkdir /x\n")

	mode, err := Build(cfg, nil, streams)
	if err != nil {
		t.Fatal(err)
	}
	if err := mode.Run(context.Background()); !errors.Is(err, ftperr.ErrAuthFailed) {
		t.Fatalf("err = %v, want ErrAuthFailed", err)
	}
	if contains(srv.Commands(), "MKD /x") {
		t.Error("script should not run without a session")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
