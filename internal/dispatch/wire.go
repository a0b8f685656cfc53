package dispatch

import (
	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/urn"
)

// wireRequest is the shape sent on the wire to an upstream that does not
// need translate-to-appbase rewriting (C9): its own dotted method form,
// carrying the caller's own upstream id.
type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// buildWireRequest renders u as a wire request addressed directly by its
// own namespace/api/method, for upstreams that speak the appbase dotted
// form natively.
func buildWireRequest(u urn.URN, upstreamID int64) ([]byte, error) {
	method := u.Method
	if u.API != "" {
		method = u.API + "." + u.Method
	}
	var params json.RawMessage
	if !u.Params.IsAbsent() {
		params = json.RawMessage(u.Params.Canonical())
	}
	return json.Marshal(wireRequest{JSONRPC: "2.0", ID: upstreamID, Method: method, Params: params})
}
