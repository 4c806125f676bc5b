package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// HandlerFunc handles the data of a single request and returns the value to
// send back as the response.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (any, error)

// Router dispatches requests to the handler registered for their pattern.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewRouter creates an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers h for pattern, replacing any previous handler.
func (r *Router) Handle(pattern string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[pattern] = h
}

// Patterns returns the registered patterns.
func (r *Router) Patterns() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patterns := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		patterns = append(patterns, p)
	}
	return patterns
}

// Dispatch runs the handler for req and wraps the outcome in a Response.
func (r *Router) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	r.mu.RLock()
	h, ok := r.handlers[req.Pattern]
	r.mu.RUnlock()
	if !ok {
		resp.Err = BadRequest(fmt.Sprintf("No handler found for pattern %s", req.Pattern))
		return resp
	}

	out, err := h(ctx, req.Data)
	if err != nil {
		rpcErr := AsError(err)
		if rpcErr.Status >= 500 {
			r.logger.ErrorContext(ctx, "RPC handler failed",
				slog.String("pattern", req.Pattern),
				slog.String("error", err.Error()),
			)
		}
		resp.Err = rpcErr
		return resp
	}

	raw, err := json.Marshal(out)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to marshal RPC response",
			slog.String("pattern", req.Pattern),
			slog.String("error", err.Error()),
		)
		resp.Err = AsError(err)
		return resp
	}
	resp.Response = raw
	return resp
}

// ServeMessage decodes a raw Request, dispatches it and encodes the Response.
// It always returns a reply body, even for malformed input.
func (r *Router) ServeMessage(ctx context.Context, body []byte) []byte {
	var req Request
	var resp Response
	if err := json.Unmarshal(body, &req); err != nil {
		resp.Err = BadRequest("Malformed request envelope")
	} else {
		resp = r.Dispatch(ctx, req)
	}

	out, err := json.Marshal(resp)
	if err != nil {
		// Response holds only raw JSON and plain fields.
		r.logger.ErrorContext(ctx, "Failed to marshal RPC envelope", slog.String("error", err.Error()))
		return []byte(`{"err":{"message":"Internal server error","status":500}}`)
	}
	return out
}
