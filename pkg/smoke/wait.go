package smoke

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod/lib/utils"
)

// WaitUntil polls predicate every interval until it reports true, the
// timeout elapses or ctx is done. The predicate runs once before the first
// sleep, so a condition that already holds costs no wait.
//
// On timeout the returned error wraps ErrTimeout and, if the last call
// failed, that error as well. A predicate error does not stop the poll: a
// page in the middle of a navigation routinely fails transient queries.
// When ctx itself is done, ctx.Err() is returned instead.
func WaitUntil(ctx context.Context, predicate func(context.Context) (bool, error), timeout, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	err := utils.Retry(tctx, utils.BackoffSleeper(interval, interval, nil), func() (bool, error) {
		ok, err := predicate(tctx)
		lastErr = err
		return err == nil && ok, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %v: %w", ErrTimeout, timeout, lastErr)
	}
	return fmt.Errorf("%w after %v", ErrTimeout, timeout)
}
