package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Request is the decoded envelope of an incoming JSON-RPC message. Params
// is left as raw JSON so handlers can decode lazily into their own type.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether this request carries no id (or a JSON
// null id), meaning no response should be sent.
func (r Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is the wire envelope sent back for any non-notification
// request.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Handler processes one method's params and returns a result to serialize,
// or an *Error. Any other returned error is folded into Internal Error
// with no detail leaked to the client.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

var validate = validator.New()

// DecodeParams unmarshals raw into dst and runs struct validation tags,
// returning Invalid Params on either failure. Handlers call this instead
// of json.Unmarshal directly so every handler gets the same error shape.
func DecodeParams(raw json.RawMessage, dst any) *Error {
	if len(raw) == 0 {
		return NewError(CodeInvalidParams, "missing params", nil)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return NewError(CodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil)
	}
	if err := validate.Struct(dst); err != nil {
		return NewError(CodeInvalidParams, fmt.Sprintf("invalid params: %v", err), nil)
	}
	return nil
}

// Dispatcher holds the handler table and dispatches decoded requests to
// it, enforcing the envelope contract from spec §4.7.
type Dispatcher struct {
	log      *slog.Logger
	handlers map[string]Handler
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher(log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{log: log, handlers: make(map[string]Handler)}
}

// Register adds a handler for method. Registering the same method twice
// panics: it can only indicate a wiring bug.
func (d *Dispatcher) Register(method string, h Handler) {
	if _, exists := d.handlers[method]; exists {
		panic("rpc: handler already registered for " + method)
	}
	d.handlers[method] = h
}

// Dispatch validates req's envelope, looks up its handler, and invokes it.
// It never panics outward: a handler panic becomes Internal Error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response) {
	resp = Response{JSONRPC: "2.0", ID: req.ID}

	if req.JSONRPC != "2.0" {
		resp.Error = NewError(CodeInvalidRequest, "jsonrpc must be \"2.0\"", nil)
		return resp
	}
	if req.Method == "" {
		resp.Error = NewError(CodeInvalidRequest, "method is required", nil)
		return resp
	}

	h, ok := d.handlers[req.Method]
	if !ok {
		resp.Error = NewError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
		return resp
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("rpc: handler panic", "method", req.Method, "recover", r)
			resp.Error = NewError(CodeInternalError, "internal error", nil)
			resp.Result = nil
		}
	}()

	result, err := h(ctx, req.Params)
	if err != nil {
		if appErr, ok := err.(*Error); ok {
			resp.Error = appErr
			return resp
		}
		d.log.Error("rpc: handler error", "method", req.Method, "error", err)
		resp.Error = NewError(CodeInternalError, "internal error", nil)
		return resp
	}
	resp.Result = result
	return resp
}
