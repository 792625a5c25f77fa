// Package shell runs goftp commands against a session: one-shot from the
// command line, line by line from a script, or interactively at a prompt.
//
// A Runner owns at most one session at a time.  `open` replaces a closed
// session, `close` ends it, and everything else works on the current one.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	shlex "github.com/anmitsu/go-shlex"

	ftperr "goftp/internal/errors"
	"goftp/internal/metrics"
	"goftp/internal/session"
	"goftp/util"
)

// Opener connects to addr and logs in.  On an authentication failure it
// may return the connected session together with the error so that the
// login can be retried with `user`.
type Opener interface {
	Open(ctx context.Context, addr, user, pass string) (*session.Session, error)
}

// Options configures a Runner.
type Options struct {
	Opener Opener
	Out    io.Writer // defaults to os.Stdout
	Logger *util.Logger

	// Metrics is shown by `stats`; it should be the collector the
	// Opener's sessions report to.
	Metrics *metrics.Collector

	// User and Password are used by `open`.
	User     string
	Password string

	// AskPassword reads a password for `user <name>` without echo.  Nil
	// means util.PromptPassword.
	AskPassword func(prompt string) ([]byte, error)

	NoColor bool
}

// Runner dispatches commands.  It is not safe for concurrent use; the
// session underneath serialises its own operations.
type Runner struct {
	opts Options
	out  *printer
	log  *util.Logger

	sess   *session.Session
	done   bool
	remote []string // names from the last listing, for completion
}

// New creates a Runner without a session.
func New(opts Options) *Runner {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = util.Discard()
	}
	if opts.AskPassword == nil {
		opts.AskPassword = util.PromptPassword
	}
	return &Runner{
		opts: opts,
		out:  newPrinter(opts.Out, opts.NoColor),
		log:  opts.Logger.Named("shell"),
	}
}

// Session returns the current session, or nil.
func (r *Runner) Session() *session.Session { return r.sess }

// Done reports whether quit or exit was run.
func (r *Runner) Done() bool { return r.done }

// Open connects to addr with the configured credentials.  A session left
// Connected by a refused login is kept so that `user` can retry.
func (r *Runner) Open(ctx context.Context, addr string) error {
	if r.sess != nil && r.sess.State() != session.Disconnected {
		return fmt.Errorf("%w to %s (use close first)", ftperr.ErrAlreadyConnected, r.sess.Server())
	}
	if r.opts.Opener == nil {
		return ftperr.New("no connector configured")
	}

	sess, err := r.opts.Opener.Open(ctx, addr, r.opts.User, r.opts.Password)
	if sess != nil {
		r.sess = sess
	}
	if err != nil {
		return err
	}
	r.log.Info("connected to %s as %s", sess.Server(), sess.User())
	return nil
}

// Close ends the current session, if any.
func (r *Runner) Close() error {
	if r.sess == nil {
		return nil
	}
	err := r.sess.Close()
	r.sess = nil
	r.remote = nil
	return err
}

// Exec parses one command line and runs it.  Blank lines and lines
// starting with '#' are ignored.
func (r *Runner) Exec(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	words, err := shlex.Split(line, true)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if len(words) == 0 {
		return nil
	}
	return r.Run(ctx, words[0], words[1:])
}

// Run executes a single command with already split arguments.
func (r *Runner) Run(ctx context.Context, name string, args []string) error {
	name = strings.ToLower(name)
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: unknown command %q (try help)", errUsage, name)
	}
	if len(args) < c.min || (c.max >= 0 && len(args) > c.max) {
		return fmt.Errorf("%w: %s", errUsage, c.usage)
	}
	if c.session && r.sess == nil {
		return ftperr.ErrNotConnected
	}

	return c.run(ctx, r, args)
}

// Report prints err the way the shell shows failures.
func (r *Runner) Report(err error) {
	if err != nil {
		r.out.Error(err)
	}
}

// Script runs every line of in until EOF, quit, or ctx is done.  Failed
// lines are reported and the script continues; the returned error
// counts them.
func (r *Runner) Script(ctx context.Context, in io.Reader) error {
	failed, total := 0, 0
	err := eachLine(in, func(line string) bool {
		if ctx.Err() != nil {
			return false
		}
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			return true
		}
		total++
		if err := r.Exec(ctx, line); err != nil {
			failed++
			r.Report(err)
		}
		return !r.done
	})
	if err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d commands failed", failed, total)
	}
	return nil
}

var errUsage = ftperr.New("usage")
