package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	xerrors "github.com/lattibeaudiere/eigenclaw/internal/errors"
)

// recordingSleeper 记录每次退避时长，立即返回。
func recordingSleeper(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	var delays []time.Duration
	exec := New(3, WithUnit(time.Millisecond), WithSleeper(recordingSleeper(&delays)))

	attempts := 0
	err := exec.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts <= 2 {
			return xerrors.New(xerrors.CodeTransportFailure, "连接超时")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	want := []time.Duration{1 * time.Millisecond, 2 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoExhaustionFollowsCappedSchedule(t *testing.T) {
	var delays []time.Duration
	exec := New(4, WithUnit(time.Millisecond), WithSleeper(recordingSleeper(&delays)))

	attempts := 0
	remoteErr := xerrors.New(xerrors.CodeRemoteError, "rpc_error")
	err := exec.Do(context.Background(), func(context.Context) error {
		attempts++
		return remoteErr
	})
	if !errors.Is(err, remoteErr) {
		t.Fatalf("expected last error to surface, got %v", err)
	}
	// R=4 额外重试意味着恰好 5 次调用。
	if attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", attempts)
	}
	want := []time.Duration{
		1 * time.Millisecond,
		2 * time.Millisecond,
		4 * time.Millisecond,
		4 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("expected %d sleeps, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("sleep %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoDoesNotRetryNonRetryableErrors(t *testing.T) {
	var delays []time.Duration
	exec := New(5, WithSleeper(recordingSleeper(&delays)))

	attempts := 0
	err := exec.Do(context.Background(), func(context.Context) error {
		attempts++
		return xerrors.New(xerrors.CodeInvalidArgument, "地址格式非法")
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 || len(delays) != 0 {
		t.Fatalf("non-retryable error must fail immediately: attempts=%d sleeps=%v", attempts, delays)
	}
}

func TestDoDoesNotRetryPlainErrors(t *testing.T) {
	exec := New(3, WithSleeper(recordingSleeper(new([]time.Duration))))
	attempts := 0
	err := exec.Do(context.Background(), func(context.Context) error {
		attempts++
		return errors.New("unclassified")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("unclassified errors are not retryable: attempts=%d err=%v", attempts, err)
	}
}

func TestDoStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := New(3, WithSleeper(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	err := exec.Do(ctx, func(context.Context) error {
		return xerrors.New(xerrors.CodeTransportFailure, "连接被拒绝")
	})
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected TIMEOUT wrap on cancellation, got %v", err)
	}
}
