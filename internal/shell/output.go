package shell

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	ftperr "goftp/internal/errors"
	"goftp/internal/metrics"
	"goftp/internal/session"
)

// printer writes user-facing output.  Colours are dropped when disabled
// or when the writer is not a terminal (fatih/color decides the latter).
type printer struct {
	w    io.Writer
	ok   *color.Color
	info *color.Color
	warn *color.Color
	fail *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:    w,
		ok:   color.New(color.FgGreen),
		info: color.New(color.FgCyan),
		warn: color.New(color.FgYellow),
		fail: color.New(color.FgRed, color.Bold),
	}
	if noColor {
		for _, c := range []*color.Color{p.ok, p.info, p.warn, p.fail} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) Success(format string, args ...interface{}) {
	p.ok.Fprintf(p.w, format+"\n", args...) //nolint:errcheck
}

func (p *printer) Info(format string, args ...interface{}) {
	p.info.Fprintf(p.w, format+"\n", args...) //nolint:errcheck
}

func (p *printer) Warn(format string, args ...interface{}) {
	p.warn.Fprintf(p.w, format+"\n", args...) //nolint:errcheck
}

// Error prints err and, for replies the server refused, its code.
func (p *printer) Error(err error) {
	p.fail.Fprintf(p.w, "error: %v\n", err) //nolint:errcheck
	if hint := errorHint(err); hint != "" {
		p.warn.Fprintf(p.w, "  %s\n", hint) //nolint:errcheck
	}
}

// Plain writes text as is, adding a trailing newline if it lacks one.
func (p *printer) Plain(text string) {
	io.WriteString(p.w, text) //nolint:errcheck
	if n := len(text); n > 0 && text[n-1] != '\n' {
		io.WriteString(p.w, "\n") //nolint:errcheck
	}
}

func errorHint(err error) string {
	switch {
	case ftperr.Is(err, ftperr.ErrNotConnected):
		return "use: open <host[:port]>"
	case ftperr.Is(err, ftperr.ErrNotAuthenticated), ftperr.Is(err, ftperr.ErrAuthFailed):
		return "use: user <name> [password]"
	case ftperr.Is(err, ftperr.ErrPeerClosedControl):
		return "the server hung up; use close, then open again"
	}
	return ""
}

// ── tables ───────────────────────────────────────────────────────────

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	h := make([]any, len(header))
	for i, s := range header {
		h[i] = s
	}
	table.Header(h...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func statusRows(s *session.Session) [][]string {
	if s == nil {
		return [][]string{{"State", session.Disconnected.String()}}
	}
	dir := s.WorkingDirectory()
	if dir == "" {
		dir = "(login directory)"
	}
	server, user := s.Server(), s.User()
	if server == "" {
		server = "-"
	}
	if user == "" {
		user = "-"
	}
	return [][]string{
		{"State", s.State().String()},
		{"Server", server},
		{"User", user},
		{"Directory", dir},
	}
}

func statsRows(snap metrics.Snapshot) [][]string {
	n := func(v int64) string { return strconv.FormatInt(v, 10) }
	rows := [][]string{
		{"Uptime", snap.Uptime},
		{"Control connections", fmt.Sprintf("%d open / %d total", snap.ControlActive, snap.ControlTotal)},
		{"Data connections", n(snap.DataConnections)},
		{"Commands sent", n(snap.Commands)},
		{"Replies 1xx/2xx/3xx/4xx/5xx", fmt.Sprintf("%d/%d/%d/%d/%d",
			snap.Replies[0], snap.Replies[1], snap.Replies[2], snap.Replies[3], snap.Replies[4])},
		{"Transfers ok / failed", fmt.Sprintf("%d / %d", snap.TransfersOK, snap.TransfersFailed)},
		{"Downloaded", formatSize(snap.BytesDown)},
		{"Uploaded", formatSize(snap.BytesUp)},
		{"Errors", n(snap.ErrorsTotal)},
	}
	if snap.LastErrorMessage != "" {
		rows = append(rows, []string{"Last error", snap.LastErrorMessage})
	}
	return rows
}

// ── formatting ───────────────────────────────────────────────────────

// formatSize renders a byte count with binary units.
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}

// summary describes a finished transfer: size, elapsed time and rate.
func summary(n int64, elapsed time.Duration) string {
	rate := "-"
	if secs := elapsed.Seconds(); secs > 0 {
		rate = formatSize(int64(float64(n)/secs)) + "/s"
	}
	return fmt.Sprintf("%s in %s (%s)", formatSize(n), elapsed.Round(time.Millisecond), rate)
}
