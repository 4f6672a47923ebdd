package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/camden-git/framesys/metrics"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = time.Second
)

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy retries rate-limited calls with exponential backoff. Every other
// failure is returned on first sight.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Sleep        SleepFunc
	Logger       *slog.Logger
}

// DefaultRetryPolicy allows 3 attempts waiting 1s then 2s
func DefaultRetryPolicy(logger *slog.Logger) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Sleep:        ContextSleep,
		Logger:       logger,
	}
}

// Delay is the wait before retry k (1-based)
func (p RetryPolicy) Delay(k int) time.Duration {
	return p.InitialDelay * time.Duration(1<<uint(k-1))
}

// Do runs fn until it succeeds, fails with anything other than ErrRateLimited,
// or the attempt budget is spent. The last error is returned.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !errors.Is(err, ErrRateLimited) || attempt >= attempts {
			return err
		}

		delay := p.Delay(attempt)
		metrics.ProviderRetriesTotal.WithLabelValues(op).Inc()
		if p.Logger != nil {
			p.Logger.Warn("provider rate limited, backing off", "op", op, "attempt", attempt, "delay", delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return fmt.Errorf("%w (retry aborted: %v)", err, sleepErr)
		}
	}
}
