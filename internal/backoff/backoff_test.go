package backoff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, []time.Duration{0}, func(ctx context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("permanent error was retried: %d calls", calls)
	}
}

func TestRetryRetriesTransientErrors(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, []time.Duration{0}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("overloaded"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 2, []time.Duration{0}, func(ctx context.Context) error {
		calls++
		return Retryable(errors.New("overloaded"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestWithTimeoutReturnsErrTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWithTimeoutPassesThroughOwnFailures(t *testing.T) {
	want := errors.New("upstream failure")
	err := WithTimeout(context.Background(), time.Second, func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected the call's own error, got %v", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("a fast failure should not be reported as a timeout")
	}
}

func TestTimedOutAttemptIsRetried(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, []time.Duration{0}, func(ctx context.Context) error {
		return WithTimeout(ctx, 5*time.Millisecond, func(ctx context.Context) error {
			calls++
			if calls == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected the timed-out attempt to be retried once, got %d calls", calls)
	}
}

func TestTimeoutKindSurvivesRetryExhaustion(t *testing.T) {
	err := Retry(context.Background(), 2, []time.Duration{0}, func(ctx context.Context) error {
		return WithTimeout(ctx, time.Millisecond, func(ctx context.Context) error {
			<-ctx.Done()
			return fmt.Errorf("embed stalled: %w", ctx.Err())
		})
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout through the retry wrapper, got %v", err)
	}
}
