package protocol

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Transport is the server-side message boundary. The server reads inbound
// requests and writes responses and out-of-band notifications through it;
// framing and the underlying connection are the transport's concern.
type Transport interface {
	// Receive blocks until the next inbound request or the context ends.
	// Returns io.EOF once the client side closes.
	Receive(ctx context.Context) (*JSONRPCRequest, error)

	// Respond sends a response correlated to a request ID.
	Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error

	// Notify sends a server-initiated notification.
	Notify(ctx context.Context, method string, params any) error

	// Close releases the transport.
	Close() error
}

// StdioTransport frames newline-delimited JSON-RPC over a reader/writer
// pair, typically the process's stdin and stdout.
type StdioTransport struct {
	scanner *bufio.Scanner

	readOnce sync.Once
	frames   chan readFrame

	writeMu sync.Mutex
	out     io.Writer

	closeOnce sync.Once
	closer    io.Closer
}

type readFrame struct {
	line []byte
	err  error
}

// maxLineBytes caps a single inbound frame at 16MB.
const maxLineBytes = 16 << 20

// NewStdioTransport creates a transport over the given streams. closer may
// be nil when the caller owns the streams' lifetime.
func NewStdioTransport(in io.Reader, out io.Writer, closer io.Closer) *StdioTransport {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &StdioTransport{
		scanner: scanner,
		frames:  make(chan readFrame),
		out:     out,
		closer:  closer,
	}
}

// readLoop scans frames onto the channel so Receive can select against
// the context. Lines are copied because the scanner reuses its buffer
// on the next Scan. Stdin has no portable non-blocking read, so after
// cancellation the goroutine stays parked on the blocked Scan (or on
// the send) until the process exits.
func (t *StdioTransport) readLoop() {
	defer close(t.frames)
	for t.scanner.Scan() {
		line := append([]byte(nil), t.scanner.Bytes()...)
		t.frames <- readFrame{line: line}
	}
	if err := t.scanner.Err(); err != nil {
		t.frames <- readFrame{err: fmt.Errorf("read frame: %w", err)}
	}
}

// Receive reads the next request frame, returning as soon as the context
// ends even while the underlying read is blocked. Non-request frames
// (responses or notifications from the client) are skipped.
func (t *StdioTransport) Receive(ctx context.Context) (*JSONRPCRequest, error) {
	t.readOnce.Do(func() { go t.readLoop() })
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case frame, ok := <-t.frames:
			if !ok {
				return nil, io.EOF
			}
			if frame.err != nil {
				return nil, frame.err
			}
			if len(frame.line) == 0 {
				continue
			}
			var req JSONRPCRequest
			if err := json.Unmarshal(frame.line, &req); err != nil {
				return nil, fmt.Errorf("parse frame: %w", err)
			}
			if req.Method == "" {
				continue
			}
			return &req, nil
		}
	}
}

// Respond writes a response frame.
func (t *StdioTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	return t.write(JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
		Error:   rpcErr,
	})
}

// Notify writes a notification frame.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	return t.write(JSONRPCNotification{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
}

func (t *StdioTransport) write(frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if _, err := t.out.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close closes the underlying streams when a closer was supplied.
func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.closer != nil {
			err = t.closer.Close()
		}
	})
	return err
}
