package recovery

import (
	"math/rand/v2"
	"time"

	"github.com/sethvargo/go-retry"
)

// FailureCategory tells the retry loop whether another attempt can help.
type FailureCategory int

const (
	CategoryTransient FailureCategory = iota
	CategoryPermanent
)

// Classifier maps an error to a FailureCategory.
type Classifier func(err error) FailureCategory

// Policy describes a bounded retry schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// FullJitter draws each delay uniformly from [0, exponential delay].
	FullJitter bool
	Classifier Classifier
}

// UploadPolicy retries storage uploads: 5 attempts, random exponential wait capped at 10s.
func UploadPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		MaxDelay:    10 * time.Second,
		FullJitter:  true,
	}
}

// SendPolicy retries one-shot collector sends: 3 attempts, random exponential wait capped at 5s.
func SendPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		FullJitter:  true,
	}
}

func (p Policy) classify(err error) FailureCategory {
	if p.Classifier == nil {
		// Everything is transient unless a classifier says otherwise
		return CategoryTransient
	}
	return p.Classifier(err)
}

// GetDelay returns the un-jittered delay before retry number attempt (0-indexed).
func (p Policy) GetDelay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(d, p.MaxDelay)
}

func (p Policy) backoff() retry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}
	if p.FullJitter {
		b = withFullJitter(b)
	}

	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}
	return retry.WithMaxRetries(retries, b)
}

func withFullJitter(next retry.Backoff) retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := next.Next()
		if stop {
			return 0, true
		}
		if d <= 0 {
			return 0, false
		}
		return time.Duration(rand.Int64N(int64(d) + 1)), false
	})
}
