// Package recovery runs operations under bounded retry policies.
package recovery

import (
	"context"
	"log/slog"

	"github.com/sethvargo/go-retry"
)

// Do runs op until it succeeds, returns a permanent error, or the policy is exhausted.
// The last error is returned unwrapped.
func Do(ctx context.Context, policy Policy, name string, op func(ctx context.Context) error) error {
	attempt := 0
	return retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if policy.classify(err) == CategoryPermanent {
			return err
		}
		slog.Debug("Retrying operation", "op", name, "attempt", attempt, "error", err)
		return retry.RetryableError(err)
	})
}
