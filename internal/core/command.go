package core

import (
	"context"

	"goftp/internal/shell"
	"goftp/internal/transport"
)

// CommandMode connects, runs one command, and disconnects.
type CommandMode struct {
	Runner  *shell.Runner
	Dialer  transport.Dialer
	Addr    string
	Command string
	Args    []string
}

// Run executes the command.  The session is closed (QUIT) and the dialer
// released whatever the outcome.
func (m *CommandMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()
	defer m.Runner.Close()

	if err := m.Runner.Open(ctx, m.Addr); err != nil {
		return err
	}
	return m.Runner.Run(ctx, m.Command, m.Args)
}
