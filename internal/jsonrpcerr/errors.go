// Package jsonrpcerr defines the sum-typed error kinds returned by the
// proxy and their JSON-RPC error envelope rendering.
package jsonrpcerr

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind is one of the stable error categories the proxy can return to a
// client. Each kind carries a fixed JSON-RPC error code.
type Kind int

const (
	KindParseError Kind = iota
	KindInvalidRequest
	KindMethodNotFound
	KindInvalidParams
	KindInternalError
	KindServerError
	KindLimitsError
	KindCustomJSONOpLengthError
)

// Code returns the JSON-RPC error code for the kind. LimitsError and
// CustomJSONOpLengthError are custom, non-standard codes private to this
// proxy; the rest follow the JSON-RPC 2.0 reserved range.
func (k Kind) Code() int {
	switch k {
	case KindParseError:
		return -32700
	case KindInvalidRequest:
		return -32600
	case KindMethodNotFound:
		return -32601
	case KindInvalidParams:
		return -32602
	case KindInternalError:
		return -32603
	case KindServerError:
		return -32000
	case KindLimitsError:
		return -32001
	case KindCustomJSONOpLengthError:
		return -32002
	default:
		return -32603
	}
}

func (k Kind) String() string {
	switch k {
	case KindParseError:
		return "ParseError"
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindMethodNotFound:
		return "MethodNotFound"
	case KindInvalidParams:
		return "InvalidParams"
	case KindInternalError:
		return "InternalError"
	case KindServerError:
		return "ServerError"
	case KindLimitsError:
		return "LimitsError"
	case KindCustomJSONOpLengthError:
		return "CustomJsonOpLengthError"
	default:
		return "Unknown"
	}
}

// Error is the error value propagated by return through the pipeline.
// It is only translated into a wire envelope at the HTTP boundary.
type Error struct {
	Kind    Kind
	Message string
	ErrorID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs an Error, stamping it with a fresh error_id for log
// correlation.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, ErrorID: uuid.NewString()}
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(kind Kind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// As extracts an *Error from err, or wraps it as an InternalError if it
// is not already one of ours.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return New(KindInternalError, err.Error())
}

// Data is the `error.data` object attached to every error reply, used
// by operators to correlate a client-visible failure with server logs.
type Data struct {
	ErrorID   string `json:"error_id"`
	RequestID string `json:"request_id,omitempty"`
}

// Envelope is the JSON-RPC `error` object shape.
type Envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    Data   `json:"data"`
}

// Envelope renders e as a wire error object, stamping the HTTP-layer
// request id for correlation alongside the error_id.
func (e *Error) Envelope(requestID string) Envelope {
	return Envelope{
		Code:    e.Kind.Code(),
		Message: e.Message,
		Data:    Data{ErrorID: e.ErrorID, RequestID: requestID},
	}
}
