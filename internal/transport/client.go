package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/edad/internal/rpc"
)

// Client is a correlated request/response client over a single connection.
// One request is in flight at a time, matching the daemon's per-connection
// contract; callers needing concurrency should open multiple connections.
type Client struct {
	conn   io.Closer
	framer *rpc.Framer
	mu     sync.Mutex
	nextID int64
}

// NewClient wraps an already-dialed connection.
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{conn: conn, framer: rpc.NewFramer(conn, conn, rpc.DefaultMaxFrameBytes)}
}

// NewStdioClient wraps a pair of reader/writer streams that are not
// individually closeable (e.g. a co-launched daemon's stdin/stdout),
// using closer to release the underlying process when Close is called.
func NewStdioClient(r io.Reader, w io.Writer, closer io.Closer) *Client {
	return &Client{conn: closer, framer: rpc.NewFramer(r, w, rpc.DefaultMaxFrameBytes)}
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends method with params and decodes the result into result (which
// may be nil to discard it). It blocks until a response frame arrives.
func (c *Client) Call(ctx context.Context, method string, params any, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := atomic.AddInt64(&c.nextID, 1)
	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("transport client: marshal params: %w", err)
	}
	idRaw, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("transport client: marshal id: %w", err)
	}

	req := rpc.Request{JSONRPC: "2.0", ID: idRaw, Method: method, Params: paramsRaw}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("transport client: marshal request: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.framer.WriteFrame(body)
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("transport client: write request: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	respBody, err := c.framer.ReadFrame()
	if err != nil {
		return fmt.Errorf("transport client: read response: %w", err)
	}

	var resp rpc.Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("transport client: decode response: %w", err)
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	resultRaw, err := json.Marshal(resp.Result)
	if err != nil {
		return fmt.Errorf("transport client: re-marshal result: %w", err)
	}
	if err := json.Unmarshal(resultRaw, result); err != nil {
		return fmt.Errorf("transport client: decode result: %w", err)
	}
	return nil
}

// Notify sends method as a notification (no id, no response expected).
func (c *Client) Notify(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	paramsRaw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("transport client: marshal params: %w", err)
	}
	req := rpc.Request{JSONRPC: "2.0", Method: method, Params: paramsRaw}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("transport client: marshal request: %w", err)
	}
	return c.framer.WriteFrame(body)
}
