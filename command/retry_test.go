package command_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modernice/cqrs/command"
)

func TestRetryEvery(t *testing.T) {
	start := time.Now()
	if err := command.RetryEvery(20*time.Millisecond).Wait(context.Background(), 1); err != nil {
		t.Fatalf("Wait failed with %q", err)
	}

	if dur := time.Since(start); dur < 20*time.Millisecond {
		t.Fatalf("Wait should wait at least 20ms; waited %s", dur)
	}
}

func TestRetryApprox_canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := command.RetryApprox(time.Second, 100*time.Millisecond).Wait(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait should fail with %q; got %q", context.Canceled, err)
	}
}
