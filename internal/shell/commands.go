package shell

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"goftp/internal/localfs"
)

type command struct {
	name    string
	min     int
	max     int // -1: unlimited
	usage   string
	help    string
	session bool // needs a session, connected or not
	run     func(ctx context.Context, r *Runner, args []string) error
}

var (
	commandList []*command
	commands    map[string]*command
)

func init() {
	commandList = []*command{
		{name: "ls", usage: "ls", help: "list the current remote directory", session: true, run: cmdLs},
		{name: "cd", min: 1, max: 1, usage: "cd <dir>", help: "change the remote directory", session: true, run: cmdCd},
		{name: "pwd", usage: "pwd", help: "show the remote directory", session: true, run: cmdPwd},
		{name: "get", min: 1, max: 2, usage: "get <remote> [local]", help: "download a file", session: true, run: cmdGet},
		{name: "put", min: 1, max: 2, usage: "put <local> [remote]", help: "upload a file", session: true, run: cmdPut},
		{name: "mkdir", min: 1, max: 1, usage: "mkdir <dir>", help: "create a remote directory", session: true, run: cmdMkdir},
		{name: "rm", min: 1, max: 1, usage: "rm <file>", help: "delete a remote file", session: true, run: cmdRm},
		{name: "mv", min: 2, max: 2, usage: "mv <old> <new>", help: "rename a remote file", session: true, run: cmdMv},
		{name: "status", usage: "status", help: "show the connection state", run: cmdStatus},
		{name: "stats", usage: "stats", help: "show transfer and protocol counters", run: cmdStats},
		{name: "open", min: 1, max: 1, usage: "open <host[:port]>", help: "connect and log in", run: cmdOpen},
		{name: "user", min: 1, max: 2, usage: "user <name> [password]", help: "log in again as another user", session: true, run: cmdUser},
		{name: "close", usage: "close", help: "disconnect from the server", run: cmdClose},
		{name: "help", max: 1, usage: "help [command]", help: "show this list", run: cmdHelp},
		{name: "quit", usage: "quit", help: "disconnect and leave", run: cmdQuit},
		{name: "exit", usage: "exit", help: "same as quit", run: cmdQuit},
	}
	commands = make(map[string]*command, len(commandList))
	for _, c := range commandList {
		commands[c.name] = c
	}
}

// ── remote directory ─────────────────────────────────────────────────

func cmdLs(ctx context.Context, r *Runner, _ []string) error {
	text, err := r.sess.List(ctx)
	if err != nil {
		return err
	}
	r.remote = listingNames(text)
	if text == "" {
		r.out.Info("(empty directory)")
		return nil
	}
	r.out.Plain(strings.ReplaceAll(text, "\r\n", "\n"))
	return nil
}

func cmdCd(ctx context.Context, r *Runner, args []string) error {
	if err := r.sess.ChangeDirectory(ctx, args[0]); err != nil {
		return err
	}
	r.remote = nil
	r.out.Success("directory is now %s", r.sess.WorkingDirectory())
	return nil
}

func cmdPwd(_ context.Context, r *Runner, _ []string) error {
	if dir := r.sess.WorkingDirectory(); dir != "" {
		r.out.Plain(dir)
	} else {
		r.out.Info("(login directory)")
	}
	return nil
}

// ── transfers ────────────────────────────────────────────────────────

func cmdGet(ctx context.Context, r *Runner, args []string) error {
	remote := args[0]
	local := path.Base(remote)
	if len(args) > 1 {
		local = args[1]
		if fi, err := os.Stat(local); err == nil && fi.IsDir() {
			local = filepath.Join(local, path.Base(remote))
		}
	}

	sink, err := localfs.CreateSink(local)
	if err != nil {
		return err
	}
	start := time.Now()
	n, err := r.sess.Download(ctx, remote, sink)
	if err != nil {
		if derr := sink.Discard(); derr != nil {
			r.log.Warn("%v", derr)
		}
		return err
	}
	if err := sink.Commit(); err != nil {
		return err
	}
	r.out.Success("downloaded %s -> %s: %s", remote, local, summary(n, time.Since(start)))
	return nil
}

func cmdPut(ctx context.Context, r *Runner, args []string) error {
	local := args[0]
	remote := filepath.Base(local)
	if len(args) > 1 {
		remote = args[1]
	}

	src, size, err := localfs.OpenSource(local)
	if err != nil {
		return err
	}
	defer src.Close()

	start := time.Now()
	n, err := r.sess.Upload(ctx, src, remote)
	if err != nil {
		return err
	}
	if n != size {
		r.out.Warn("%s changed while uploading: sent %d of %d bytes", local, n, size)
	}
	r.out.Success("uploaded %s -> %s: %s", local, remote, summary(n, time.Since(start)))
	return nil
}

// ── file management ──────────────────────────────────────────────────

func cmdMkdir(ctx context.Context, r *Runner, args []string) error {
	if err := r.sess.MakeDirectory(ctx, args[0]); err != nil {
		return err
	}
	r.remote = nil
	r.out.Success("created %s", args[0])
	return nil
}

func cmdRm(ctx context.Context, r *Runner, args []string) error {
	if err := r.sess.Delete(ctx, args[0]); err != nil {
		return err
	}
	r.remote = nil
	r.out.Success("deleted %s", args[0])
	return nil
}

func cmdMv(ctx context.Context, r *Runner, args []string) error {
	if err := r.sess.Rename(ctx, args[0], args[1]); err != nil {
		return err
	}
	r.remote = nil
	r.out.Success("renamed %s -> %s", args[0], args[1])
	return nil
}

// ── connection ───────────────────────────────────────────────────────

func cmdOpen(ctx context.Context, r *Runner, args []string) error {
	if err := r.Open(ctx, args[0]); err != nil {
		return err
	}
	r.out.Success("connected to %s as %s", r.sess.Server(), r.sess.User())
	return nil
}

func cmdUser(ctx context.Context, r *Runner, args []string) error {
	name := args[0]
	var pass []byte
	if len(args) > 1 {
		pass = []byte(args[1])
	} else {
		var err error
		pass, err = r.opts.AskPassword(fmt.Sprintf("Password for %s: ", name))
		if err != nil {
			return err
		}
	}
	err := r.sess.Login(ctx, name, string(pass))
	for i := range pass {
		pass[i] = 0
	}
	if err != nil {
		return err
	}
	r.out.Success("logged in as %s", name)
	return nil
}

func cmdClose(_ context.Context, r *Runner, _ []string) error {
	if r.sess == nil {
		r.out.Info("not connected")
		return nil
	}
	server := r.sess.Server()
	if err := r.Close(); err != nil {
		return err
	}
	if server != "" {
		r.out.Success("disconnected from %s", server)
	}
	return nil
}

func cmdQuit(_ context.Context, r *Runner, _ []string) error {
	r.done = true
	return r.Close()
}

// ── information ──────────────────────────────────────────────────────

func cmdStatus(_ context.Context, r *Runner, _ []string) error {
	return renderTable(r.opts.Out, []string{"Session", ""}, statusRows(r.sess))
}

func cmdStats(_ context.Context, r *Runner, _ []string) error {
	return renderTable(r.opts.Out, []string{"Counter", "Value"}, statsRows(r.opts.Metrics.Snapshot()))
}

func cmdHelp(_ context.Context, r *Runner, args []string) error {
	if len(args) == 1 {
		c, ok := commands[strings.ToLower(args[0])]
		if !ok {
			return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
		}
		r.out.Plain(c.usage + "\n    " + c.help)
		return nil
	}
	rows := make([][]string, 0, len(commandList))
	for _, c := range commandList {
		rows = append(rows, []string{c.usage, c.help})
	}
	return renderTable(r.opts.Out, []string{"Command", "Description"}, rows)
}

// listingNames extracts entry names from LIST output in ls -l form, or
// takes whole lines when the format is unknown.
func listingNames(text string) []string {
	var names []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		fields := strings.Fields(line)
		switch {
		case len(fields) == 0:
			continue
		case len(fields) >= 9:
			names = append(names, strings.Join(fields[8:], " "))
		default:
			names = append(names, strings.TrimSpace(line))
		}
	}
	sort.Strings(names)
	return names
}
