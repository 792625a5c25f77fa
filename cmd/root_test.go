package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"goftp/config"
	ftperr "goftp/internal/errors"
)

// capture redirects the package output streams for one test.
func capture(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()
	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	oldOut, oldErr := stdout, stderr
	stdout, stderr = out, errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return out, errOut
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out, _ := capture(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "goftp ") {
		t.Errorf("version output = %q", out)
	}
}

// TestExecute_Help verifies --help (and no args) prints usage without error.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			_, errOut := capture(t)
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(errOut.String(), "Usage:") {
				t.Errorf("usage not printed:\n%s", errOut)
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and prints the plan.
func TestExecute_DryRun(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			"shell",
			[]string{"--dry-run", "ftp.example.com"},
			[]string{"server:   ftp.example.com:21", "user:     anonymous", "(shell)"},
		},
		{
			"command with port",
			[]string{"--dry-run", "-u", "alice", "ftp.example.com:2121", "get", "a.txt", "/tmp/a.txt"},
			[]string{"ftp.example.com:2121", "alice", "command:  get a.txt /tmp/a.txt"},
		},
		{
			"port flag wins",
			[]string{"--dry-run", "-p", "990", "ftp.example.com:2121", "ls"},
			[]string{"ftp.example.com:990"},
		},
		{
			"tunnel",
			[]string{"--dry-run", "-T", "admin@bastion", "ftp.internal", "ls"},
			[]string{"tunnel:   bastion:22"},
		},
		{
			"socks proxy and charset",
			[]string{"--dry-run", "--proxy", "socks5h://127.0.0.1:9050", "--charset", "windows-1251", "ftp.example.com", "ls"},
			[]string{"proxy:    socks5 127.0.0.1:9050", "charset:  windows-1251"},
		},
		{
			"dash argument passes through",
			[]string{"--dry-run", "ftp.example.com", "rm", "-old-"},
			[]string{"command:  rm -old-"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, _ := capture(t)
			if err := Execute(context.Background(), tc.args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, w := range tc.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("plan missing %q:\n%s", w, out)
				}
			}
		})
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		field string
	}{
		{"unknown command", []string{"--dry-run", "ftp.example.com", "chmod", "x"}, "command"},
		{"missing argument", []string{"--dry-run", "ftp.example.com", "get"}, "command"},
		{"bad chunk size", []string{"--dry-run", "--chunk-size", "1", "ftp.example.com"}, "chunk-size"},
		{"ssh key without tunnel", []string{"--dry-run", "--ssh-key", "id_ed25519", "ftp.example.com"}, "tunnel"},
		{"no retries", []string{"--dry-run", "--retries", "0", "ftp.example.com"}, "retries"},
		{"http proxy", []string{"--dry-run", "--proxy", "http://proxy:3128", "ftp.example.com"}, "proxy"},
		{"unknown charset", []string{"--dry-run", "--charset", "klingon", "ftp.example.com"}, "charset"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			capture(t)
			err := Execute(context.Background(), tc.args)
			var ce *ftperr.ConfigError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if ce.Field != tc.field {
				t.Errorf("field = %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestExecute_MissingServer(t *testing.T) {
	capture(t)
	err := Execute(context.Background(), []string{"-v"})
	if err == nil || !strings.Contains(err.Error(), "FTP server required") {
		t.Fatalf("err = %v", err)
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	capture(t)
	if err := Execute(context.Background(), []string{"--nonexistent-flag"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestExecute_BadServerSpec(t *testing.T) {
	capture(t)
	if err := Execute(context.Background(), []string{"--dry-run", "user@ftp.example.com"}); err == nil {
		t.Fatal("expected error for user@host")
	}
}

func TestParsePositional(t *testing.T) {
	cfg := config.New()
	cfg.Port = 2100 // from the environment
	if err := parsePositional(cfg, []string{"ftp.example.com", "MKDIR", "new"}, false); err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 2100 {
		t.Errorf("port = %d, an address without a port keeps the configured one", cfg.Port)
	}
	if cfg.Command != "mkdir" || len(cfg.Args) != 1 || cfg.Args[0] != "new" {
		t.Errorf("command = %q %v", cfg.Command, cfg.Args)
	}
}
