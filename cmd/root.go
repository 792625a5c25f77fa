// Package cmd wires up the CLI flags and dispatches to the goftp core.
package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"goftp/config"
	"goftp/internal/core"
	"goftp/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X goftp/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// Execute parses args and runs the appropriate goftp mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("goftp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	// Everything after the server address belongs to the command, so
	// `goftp host rm -old-file` works.
	fs.SetInterspersed(false)

	// ── server ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.User, "user", "u", cfg.User, "Login name")
	fs.StringVar(&cfg.Password, "password", cfg.Password, "Login password (visible in ps; prefer -P)")
	fs.BoolVarP(&cfg.AskPassword, "ask-password", "P", false, "Prompt for the login password")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Control port")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")

	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Timeout in seconds for each network step (0 = none)")

	// ── transfers ────────────────────────────────────────────────
	fs.IntVar(&cfg.ChunkSize, "chunk-size", cfg.ChunkSize, "Data channel buffer size in bytes")
	fs.BoolVar(&cfg.Binary, "binary", cfg.Binary, "Binary transfers (TYPE I); --binary=false keeps the server default")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Connect and login attempts")
	fs.StringVar(&cfg.Charset, "charset", cfg.Charset, "Server encoding for names and listings (IANA name, e.g. windows-1251)")

	// ── SOCKS proxy ──────────────────────────────────────────────
	fs.StringVar(&cfg.Proxy, "proxy", cfg.Proxy, "Connect through socks5://[user:pass@]host[:port] (socks5h resolves on the proxy)")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "SSH tunnel via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate options, print the plan, and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "goftp %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutSec) * time.Second
	if cfg.NoColor {
		color.NoColor = true
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args(), fs.Changed("port")); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if err := cfg.ApplyTunnelSpec(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DryRun {
		printPlan(cfg)
		return nil
	}

	if cfg.AskPassword {
		pass, err := util.PromptPassword(fmt.Sprintf("Password for %s@%s: ", cfg.User, cfg.Host))
		if err != nil {
			return err
		}
		cfg.Password = string(pass)
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	mode, err := core.Build(cfg, logger, core.Streams{})
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional reads "<host[:port]> [command [args...]]".  A port in
// the address loses to an explicit -p.
func parsePositional(cfg *config.Config, remaining []string, portFlag bool) error {
	if len(remaining) < 1 {
		return fmt.Errorf("FTP server required (use --help for usage)")
	}
	host, port, err := config.ParseServerSpec(remaining[0])
	if err != nil {
		return err
	}
	cfg.Host = host
	if !portFlag && hasPort(remaining[0]) {
		cfg.Port = port
	}

	if len(remaining) > 1 {
		cfg.Command = strings.ToLower(remaining[1])
		cfg.Args = remaining[2:]
	}
	return nil
}

func hasPort(spec string) bool {
	spec = strings.TrimSuffix(strings.TrimPrefix(spec, "ftp://"), "/")
	_, _, err := net.SplitHostPort(spec)
	return err == nil
}

func printPlan(cfg *config.Config) {
	w := stdout
	fmt.Fprintf(w, "server:   %s\n", cfg.Addr())
	fmt.Fprintf(w, "user:     %s\n", cfg.User)
	if cfg.TunnelEnabled {
		fmt.Fprintf(w, "tunnel:   %s\n", util.FormatAddr(cfg.TunnelHost, cfg.TunnelPort))
	}
	if cfg.Proxy != "" {
		if ps, err := config.ParseProxySpec(cfg.Proxy); err == nil {
			fmt.Fprintf(w, "proxy:    socks5 %s\n", ps.Addr)
		}
	}
	if cfg.Charset != "" {
		fmt.Fprintf(w, "charset:  %s\n", cfg.Charset)
	}
	fmt.Fprintf(w, "timeout:  %v\n", cfg.Timeout)
	fmt.Fprintf(w, "retries:  %d\n", cfg.Retries)
	if cfg.Command != "" {
		fmt.Fprintf(w, "command:  %s\n", strings.TrimSpace(cfg.Command+" "+strings.Join(cfg.Args, " ")))
	} else {
		fmt.Fprintf(w, "command:  (shell)\n")
	}
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `goftp – FTP client v%s

A command-line FTP client with passive-mode transfers and SSH tunneling.

Usage:
  goftp [options] <host[:port]>                    Interactive shell
  goftp [options] <host[:port]> <command> [args]   Run one command
  goftp [options] <host[:port]> < script.txt       Run commands from stdin

Commands:
  ls                   List the current directory
  cd <dir>             Change directory
  pwd                  Show the current directory
  get <remote> [local] Download a file
  put <local> [remote] Upload a file
  mkdir <dir>          Create a directory
  rm <file>            Delete a file
  mv <from> <to>       Rename a file
  status               Show the connection
  stats                Show transfer statistics

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  goftp ftp.example.com                               Anonymous shell
  goftp -u alice -P files.example.com get report.pdf  Download one file
  goftp -T admin@bastion ftp.internal ls              Through an SSH jump host
  goftp --proxy socks5h://127.0.0.1:9050 ftp.onion ls Through a SOCKS5 proxy
  echo "put build.tar" | GOFTP_PASSWORD=s3cret \
    goftp -u ci host:2121                             Scripted upload
`)
}
