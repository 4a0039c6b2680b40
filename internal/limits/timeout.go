package limits

import (
	"context"
	"fmt"
	"time"
)

// TimeoutError reports an operation that exceeded its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Operation, e.Timeout)
}

// WithTimeout races op against a timer of the given duration. If op
// finishes first its error (or nil) propagates unchanged; if the timer
// fires first a TimeoutError is returned.
//
// Expiry does not stop the underlying op: the context it received is
// cancelled, but actually stopping work is the op's responsibility via
// cooperative cancellation. The late result is discarded.
func WithTimeout(ctx context.Context, timeout time.Duration, operation string, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			// Parent cancelled, not a timeout.
			return ctx.Err()
		}
		return &TimeoutError{Operation: operation, Timeout: timeout}
	}
}
