package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vietddude/snapshotter/internal/infra/rpc/provider"
)

// ErrNoProviders is returned when a chain has no configured endpoints.
var ErrNoProviders = errors.New("no providers configured")

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFailover:
		return "failover"
	case ActionFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	if errors.Is(err, context.Canceled) {
		return ActionFatal
	}

	s := err.Error()
	sLower := strings.ToLower(s)

	// Fatal (Code or Request issues)
	// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
	if strings.Contains(s, "-32700") || strings.Contains(s, "-32600") ||
		strings.Contains(s, "-32601") || strings.Contains(s, "-32602") ||
		strings.Contains(sLower, "execution reverted") {
		return ActionFatal
	}

	// Failover (Provider specific issues)
	if strings.Contains(s, "429") || strings.Contains(sLower, "too many requests") ||
		strings.Contains(s, "403") || strings.Contains(sLower, "forbidden") ||
		strings.Contains(sLower, "quota") || strings.Contains(sLower, "plan limit") ||
		strings.Contains(sLower, "unauthorized") ||
		strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "count exceeded") {
		return ActionFailover
	}

	// Default to Retry (Network, 5xx, etc)
	return ActionRetry
}

// CallWithRetry executes a call against one provider with exponential backoff.
func CallWithRetry[T any](
	ctx context.Context,
	p *provider.EthProvider,
	config RetryConfig,
	call func(ctx context.Context, b provider.Backend) (T, error),
) (T, error) {
	var result T

	op := func() error {
		r, err := call(ctx, p.Backend())
		if err != nil {
			if ClassifyError(err) != ActionRetry {
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialDelay
	b.MaxInterval = config.MaxDelay
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if config.MaxAttempts > 1 {
		retries = uint64(config.MaxAttempts - 1)
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
	return result, err
}

// CallWithFailover tries every provider of a chain, retrying each.
func CallWithFailover[T any](
	ctx context.Context,
	router Router,
	chain string,
	config RetryConfig,
	call func(ctx context.Context, b provider.Backend) (T, error),
) (T, error) {
	var zero T

	providers := router.GetProviders(chain)
	if len(providers) == 0 {
		return zero, fmt.Errorf("%w for chain %s", ErrNoProviders, chain)
	}

	var lastErr error
	for _, p := range providers {
		start := time.Now()
		result, err := CallWithRetry(ctx, p, config, call)
		latency := time.Since(start)
		if err == nil {
			router.RecordSuccess(chain, p.GetName(), latency)
			p.RecordSuccess(latency)
			return result, nil
		}

		lastErr = err
		router.RecordFailure(chain, p.GetName(), err)
		p.RecordFailure(err)

		if ClassifyError(err) == ActionFatal {
			return zero, fmt.Errorf("fatal error from provider %s: %w", p.GetName(), err)
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all providers failed: %w", lastErr)
}
