// Package core is the orchestration layer.  It composes the transport,
// session and shell packages into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	wire → control → passive/transfer → session → shell → core → cmd (CLI)
//
// transport (TCP or SSH tunnel) sits beside the stack and is injected
// into sessions by the builder.
package core

import "context"

// Mode is a complete way of running goftp: a single command against a
// server, or a shell reading commands from a terminal or a script.  Each
// mode owns its sessions and its dialer until Run returns.
type Mode interface {
	Run(ctx context.Context) error
}
