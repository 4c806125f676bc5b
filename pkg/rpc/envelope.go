package rpc

import "encoding/json"

// Request is the message published by callers onto the service queue.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Response is the reply to a Request. Exactly one of Response and Err is set.
type Response struct {
	ID       string          `json:"id,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Err      *Error          `json:"err,omitempty"`
}

// NewRequest marshals data and builds a Request for pattern.
func NewRequest(pattern string, data any) (Request, error) {
	req := Request{Pattern: pattern}
	if data == nil {
		return req, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Request{}, err
	}
	req.Data = raw
	return req, nil
}
