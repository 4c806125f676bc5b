package rpc

import (
	"errors"
	"net/http"
)

// Error is the structured error sent back across the RPC boundary.
// Kind, when set, identifies the failure class for errors.Is.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	kind    error
}

// NewError creates an Error of the given kind.
func NewError(kind error, status int, message string) *Error {
	return &Error{
		Message: message,
		Status:  status,
		kind:    kind,
	}
}

// BadRequest creates a client-error Error without a specific kind.
func BadRequest(message string) *Error {
	return &Error{Message: message, Status: http.StatusBadRequest}
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.kind
}

// AsError converts err into its wire form. Errors that are not already an
// *Error are reported as an internal server error so store details never
// leak to callers.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &Error{
		Message: "Internal server error",
		Status:  http.StatusInternalServerError,
	}
}
