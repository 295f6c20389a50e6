package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the protocol version stamped on every envelope.
const Version = "1.1"

// Error names produced by the dispatcher itself.
const (
	NameProtocolDecode = "ProtocolDecodeError"
	NameUnknownMethod  = "UnknownMethod"
	NameInvalidRequest = "InvalidRequest"
	NameInternal       = "InternalError"
)

// Request is an inbound call. Params stays raw so that handlers decode their
// own positional arguments.
type Request struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id,omitempty"`
	Version string          `json:"version,omitempty"`
}

// Response is exactly one of a result or an error envelope.
type Response struct {
	Version string         `json:"version"`
	Result  []any          `json:"result,omitempty"`
	Error   *ErrorEnvelope `json:"error,omitempty"`
}

// ErrorEnvelope describes a failed call.
type ErrorEnvelope struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// DecodeFailure is the body of a 400 response for unparseable input.
type DecodeFailure struct {
	Error string `json:"error"`
}

func resultResponse(v any) Response {
	return Response{Version: Version, Result: []any{v}}
}

func errorResponse(env ErrorEnvelope) Response {
	return Response{Version: Version, Error: &env}
}

// Error is a dispatcher-level failure.
type Error struct {
	Name    string
	Message string
	stack   string
}

func newError(name, format string, args ...any) *Error {
	return &Error{Name: name, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.Message }

// ErrorName returns the wire name of the failure.
func (e *Error) ErrorName() string { return e.Name }

// Trace returns the message plus any captured stack.
func (e *Error) Trace() string {
	if e.stack == "" {
		return e.Message
	}
	return e.Message + "\n\n" + e.stack
}

// InvalidParams builds an InvalidRequest failure for handlers.
func InvalidParams(format string, args ...any) error {
	return newError(NameInvalidRequest, format, args...)
}
