package tools

// ProgressSink receives progress events correlated to a client-supplied
// progress token. The server implements this over its transport.
type ProgressSink func(progressToken, message string, fraction float64)

// ProgressNotifier emits progress events for one tool call. When the
// request carried no progress token the notifier is a silent sink: it
// never errors and never blocks.
type ProgressNotifier struct {
	token string
	sink  ProgressSink
}

// NewProgressNotifier builds a notifier for the given token. An empty
// token or nil sink yields a no-op notifier.
func NewProgressNotifier(token string, sink ProgressSink) *ProgressNotifier {
	return &ProgressNotifier{token: token, sink: sink}
}

// NopProgress returns a notifier that discards all events.
func NopProgress() *ProgressNotifier {
	return &ProgressNotifier{}
}

// Notify emits a progress event. fraction is the completed portion in
// [0,1]; pass a negative value when unknown.
func (n *ProgressNotifier) Notify(message string, fraction float64) {
	if n == nil || n.token == "" || n.sink == nil {
		return
	}
	n.sink(n.token, message, fraction)
}

// Token returns the client-supplied progress token, if any.
func (n *ProgressNotifier) Token() string {
	if n == nil {
		return ""
	}
	return n.token
}
