// Package retry wraps repository calls that fail with a transient error in
// an exponential backoff loop, using cenkalti/backoff/v4 the way a
// preflight-then-apply tool retries a flaky connection before giving up.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"lattice/internal/core"
)

// Policy configures the backoff schedule Do retries under.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// Default is a conservative policy suited to transient connection-pool
// exhaustion or lock-wait timeouts: short first retry, capped growth, and a
// bounded overall budget so a permanently broken backend still fails fast
// enough for a caller to surface the error.
var Default = Policy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxElapsedTime:  10 * time.Second,
}

// Do runs fn, retrying it under p's schedule as long as the returned error
// is a *core.RepositoryError with Transient set. Any other error, or
// exhausting the schedule, returns immediately.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsedTime

	return backoff.Retry(func() error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		var repoErr *core.RepositoryError
		if errors.As(err, &repoErr) && repoErr.Transient {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(b, ctx))
}
