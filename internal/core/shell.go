package core

import (
	"context"
	"io"

	"goftp/internal/shell"
	"goftp/internal/transport"
)

// ShellMode connects to Addr and then reads commands, either at an
// interactive prompt or line by line from In.
type ShellMode struct {
	Runner      *shell.Runner
	Dialer      transport.Dialer
	Addr        string // opened before the first command; may be empty
	In          io.Reader
	Interactive bool
}

// Run drives the shell until quit, end of input, or ctx is done.
//
// A failed initial connection is reported and the prompt still starts,
// so the user can `open` again or `user` after a refused login.  A
// script has nothing to run against and stops instead.
func (m *ShellMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	if m.Addr != "" {
		if err := m.Runner.Open(ctx, m.Addr); err != nil {
			if !m.Interactive {
				m.Runner.Close() //nolint:errcheck
				return err
			}
			m.Runner.Report(err)
		}
	}

	if m.Interactive {
		return m.Runner.Interactive(ctx)
	}
	defer m.Runner.Close()
	return m.Runner.Script(ctx, m.In)
}
