package tools

import "sync/atomic"

// CancelToken is a cooperative cancellation flag. Setting it is
// idempotent; handlers observe it by polling at safe points and exiting
// early. Nothing is interrupted preemptively.
type CancelToken struct {
	cancelled atomic.Bool
}

// NewCancelToken creates a token in the not-cancelled state.
func NewCancelToken() *CancelToken {
	return &CancelToken{}
}

// Cancel requests cancellation. Safe to call more than once.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load()
}
