package limits

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithTimeout_CompletesInTime(t *testing.T) {
	err := WithTimeout(context.Background(), 200*time.Millisecond, "fast op", func(ctx context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Errorf("fast op returned error: %v", err)
	}
}

func TestWithTimeout_PropagatesOpError(t *testing.T) {
	wantErr := errors.New("op failed")
	err := WithTimeout(context.Background(), 200*time.Millisecond, "failing op", func(ctx context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	start := time.Now()
	err := WithTimeout(context.Background(), 100*time.Millisecond, "stuck op", func(ctx context.Context) error {
		<-make(chan struct{}) // never returns
		return nil
	})
	elapsed := time.Since(start)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error = %v, want TimeoutError", err)
	}
	if timeoutErr.Operation != "stuck op" || timeoutErr.Timeout != 100*time.Millisecond {
		t.Errorf("TimeoutError = %+v", timeoutErr)
	}
	if elapsed < 90*time.Millisecond || elapsed > 500*time.Millisecond {
		t.Errorf("expired after %s, want ~100ms", elapsed)
	}
}

func TestWithTimeout_ZeroMeansNoDeadline(t *testing.T) {
	ran := false
	err := WithTimeout(context.Background(), 0, "op", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Error("context should have no deadline")
		}
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Errorf("err = %v, ran = %v", err, ran)
	}
}

func TestWithTimeout_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := WithTimeout(ctx, time.Second, "op", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond) // outlive the cancellation
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		t.Error("parent cancellation must not be reported as a timeout")
	}
}
