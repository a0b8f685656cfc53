// Package jsonrpc holds the wire envelope types for JSON-RPC 2.0
// requests and responses, the well-formedness validators (C4), and the
// request-shape limits applied to broadcast methods.
package jsonrpc

import (
	"bytes"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/jsonrpcerr"
)

// RawRequest is a JSON-RPC request with params left undecoded, so the
// URN canonicalizer can interpret its shape.
type RawRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request omitted an id entirely.
// A request carrying a literal `"id": null` is NOT a notification.
func (r RawRequest) IsNotification() bool { return len(r.ID) == 0 }

// Body is the tagged sum `Single(JsonRpcCall) | Batch(Vec<JsonRpcCall>)`
// used in place of a runtime-typed body.
type Body struct {
	Single  *RawRequest
	Batch   []RawRequest
	IsBatch bool
}

// Requests returns the body's requests as a flat slice, regardless of
// whether the body was a singleton or a batch.
func (b *Body) Requests() []RawRequest {
	if b.IsBatch {
		return b.Batch
	}
	return []RawRequest{*b.Single}
}

// ParseBody decodes a raw HTTP body into a Body, distinguishing a
// top-level array (batch) from a top-level object (singleton) by its
// first non-whitespace byte.
func ParseBody(raw []byte) (*Body, *jsonrpcerr.Error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, jsonrpcerr.New(jsonrpcerr.KindParseError, "empty request body")
	}

	if trimmed[0] == '[' {
		var batch []RawRequest
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, jsonrpcerr.New(jsonrpcerr.KindParseError, "request body is not valid JSON-RPC batch")
		}
		return &Body{Batch: batch, IsBatch: true}, nil
	}

	var single RawRequest
	if err := json.Unmarshal(trimmed, &single); err != nil {
		return nil, jsonrpcerr.New(jsonrpcerr.KindParseError, "request body is not valid JSON-RPC")
	}
	return &Body{Single: &single}, nil
}

// RawResponse is an upstream JSON-RPC response with result/error left
// undecoded.
type RawResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// Envelope is the shape rendered back to the HTTP client: a result or
// an error, never both, echoing the client's own id.
type Envelope struct {
	JSONRPC string               `json:"jsonrpc"`
	ID      json.RawMessage      `json:"id"`
	Result  json.RawMessage      `json:"result,omitempty"`
	Error   *jsonrpcerr.Envelope `json:"error,omitempty"`
}
