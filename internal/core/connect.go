package core

import (
	"context"
	"errors"
	"time"

	ftperr "goftp/internal/errors"
	"goftp/internal/retry"
	"goftp/internal/session"
	"goftp/util"
)

// Connector opens logged-in sessions.  Attempts that fail with a
// retryable error are repeated with backoff; a per-host circuit breaker,
// when set, stops hammering a server that keeps refusing connections.
type Connector struct {
	Options  session.Options // template for every new session
	Backoff  *retry.Backoff  // nil means a single attempt
	Breakers *retry.Breakers // nil disables the breaker
	Logger   *util.Logger
}

// Open connects to addr and logs in as user.  When the server refuses
// the credentials the still Connected session is returned together with
// the error, so the caller can retry the login without reconnecting.
func (c *Connector) Open(ctx context.Context, addr, user, pass string) (*session.Session, error) {
	log := c.logger()
	var sess *session.Session

	attempt := func(n int) error {
		if n > 1 {
			log.Verbose("attempt %d to reach %s", n, addr)
		}
		s := session.New(c.Options)
		if err := s.Connect(ctx, addr); err != nil {
			return retry.Classify(err)
		}
		err := s.Login(ctx, user, pass)
		if err == nil {
			sess = s
			return nil
		}
		if errors.Is(err, ftperr.ErrAuthFailed) && !ftperr.IsRetryable(err) {
			sess = s
			return retry.Permanent(err)
		}
		s.Close() //nolint:errcheck
		return retry.Classify(err)
	}

	b := c.Backoff
	if b == nil {
		b = retry.ForAttempts(1)
	}
	if b.OnRetry == nil {
		cp := *b
		cp.OnRetry = func(n int, err error, wait time.Duration) {
			log.Warn("%s: %v (retrying in %v)", addr, err, wait.Round(10*time.Millisecond))
		}
		b = &cp
	}

	run := func() error { return b.Do(ctx, attempt) }
	if c.Breakers == nil {
		err := run()
		return sess, err
	}
	err := c.Breakers.For(addr).Execute(run)
	return sess, err
}

func (c *Connector) logger() *util.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return util.Discard()
}

// hostDown reports whether err says something about the server being
// unreachable, as opposed to refusing our credentials or being
// cancelled by the user.
func hostDown(err error) bool {
	switch {
	case errors.Is(err, ftperr.ErrAuthFailed):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
