package command

import (
	"context"
	"math/rand"
	"time"
)

// A RetryTrigger waits before a command is retried after a concurrency
// conflict. attempt is the number of attempts that already failed.
type RetryTrigger interface {
	Wait(ctx context.Context, attempt int) error
}

// RetryTriggerFunc allows a function to be used as a RetryTrigger.
type RetryTriggerFunc func(ctx context.Context, attempt int) error

// Wait calls fn(ctx, attempt).
func (fn RetryTriggerFunc) Wait(ctx context.Context, attempt int) error {
	return fn(ctx, attempt)
}

// RetryImmediately returns a RetryTrigger that does not wait.
func RetryImmediately() RetryTrigger {
	return RetryTriggerFunc(func(ctx context.Context, _ int) error {
		return ctx.Err()
	})
}

// RetryEvery returns a RetryTrigger that waits for the given interval.
func RetryEvery(interval time.Duration) RetryTrigger {
	return RetryTriggerFunc(func(ctx context.Context, _ int) error {
		return sleep(ctx, interval)
	})
}

// RetryApprox returns a RetryTrigger that waits approximately for the given
// interval. The provided deviation is used to randomize the interval. If the
// interval is 1s and deviation is 100ms, then the retry is triggered after
// somewhere between 900ms to 1100ms.
func RetryApprox(interval, deviation time.Duration) RetryTrigger {
	return RetryTriggerFunc(func(ctx context.Context, _ int) error {
		sign := 1
		if rand.Intn(2) == 0 {
			sign = -1
		}
		perc := rand.Intn(101)
		dev := deviation * time.Duration(perc) * time.Duration(sign) / 100
		return sleep(ctx, interval+dev)
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
