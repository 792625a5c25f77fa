package config

import (
	"time"

	"goftp/util"
)

// ── Default values ───────────────────────────────────────────────────
//
// Flag defaults, the environment overlay and the builder all read from
// here.

const (
	// DefaultFTPPort is the FTP control port.
	DefaultFTPPort = 21

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultSOCKSPort is the standard SOCKS proxy port.
	DefaultSOCKSPort = 1080

	// DefaultUser is sent when no --user is given.
	DefaultUser = "anonymous"

	// DefaultAnonymousPassword is sent for anonymous logins when no
	// password was given.
	DefaultAnonymousPassword = "anonymous@"

	// DefaultTimeout bounds every blocking step: resolve, dial, and each
	// control or data read and write.
	DefaultTimeout = 30 * time.Second

	// DefaultChunkSize is the data-channel buffer size.
	DefaultChunkSize = util.DefaultBufSize

	// MinChunkSize and MaxChunkSize bound --chunk-size.
	MinChunkSize = 512
	MaxChunkSize = 16 << 20

	// DefaultRetries is the number of connect+login attempts.
	DefaultRetries = 1

	// DefaultQuitTimeout bounds the goodbye exchange on close.
	DefaultQuitTimeout = 2 * time.Second

	// DefaultKeepAliveInterval is the SSH keepalive interval.
	DefaultKeepAliveInterval = 30 * time.Second

	// DefaultBreakerFailures and DefaultBreakerReset configure the
	// shell's per-host circuit breaker for `open`.
	DefaultBreakerFailures = 3
	DefaultBreakerReset    = 30 * time.Second
)
