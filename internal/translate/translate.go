// Package translate rewrites legacy-style requests into the dotted
// appbase "call" form an upstream may require (C9).
package translate

import (
	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/jsonrpcerr"
	"github.com/dpays/jefferson/internal/urn"
)

// defaultDenyList names methods with no meaningful condenser_api
// equivalent: session/callback-oriented calls that only make sense on
// a legacy connection.
var defaultDenyList = []string{
	"login",
	"get_api_by_name",
	"set_block_applied_callback",
	"set_pending_transaction_callback",
}

// Translator rewrites URNs bound to a translate_to_appbase upstream
// into the wire bytes to send on that connection.
type Translator struct {
	denyList map[string]struct{}
}

// New builds a Translator with the given untranslatable method names.
func New(denyList []string) *Translator {
	d := make(map[string]struct{}, len(denyList))
	for _, m := range denyList {
		d[m] = struct{}{}
	}
	return &Translator{denyList: d}
}

// NewDefault builds a Translator using the built-in deny list.
func NewDefault() *Translator { return New(defaultDenyList) }

type wireRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Translate rewrites u into `{"jsonrpc":"2.0","id":upstreamID,
// "method":"call","params":["condenser_api", m, args]}`, where args is
// u's own params if present, else `[]`. A request whose wire method was
// already "appbase.call" (dotted, api absent) is passed through with
// its own params array as-is, since it is already in call form.
func (t *Translator) Translate(u urn.URN, upstreamID int64) (json.RawMessage, *jsonrpcerr.Error) {
	if !translatable(u) {
		return nil, jsonrpcerr.Newf(jsonrpcerr.KindInvalidRequest, "urn %q is not eligible for appbase translation", u.String())
	}
	if _, denied := t.denyList[u.Method]; denied {
		return nil, jsonrpcerr.Newf(jsonrpcerr.KindInvalidRequest, "method %q is explicitly untranslatable on this upstream", u.Method)
	}

	var params json.RawMessage
	if isAppbaseCallPassthrough(u) {
		if u.Params.IsAbsent() {
			return nil, jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, `"appbase.call" requires params`)
		}
		params = json.RawMessage(u.Params.Canonical())
	} else {
		args := "[]"
		if !u.Params.IsAbsent() {
			args = u.Params.Canonical()
		}
		methodJSON, err := json.Marshal(u.Method)
		if err != nil {
			return nil, jsonrpcerr.New(jsonrpcerr.KindInternalError, "failed to encode translated method")
		}
		built, err := json.Marshal([]json.RawMessage{
			json.RawMessage(`"condenser_api"`),
			json.RawMessage(methodJSON),
			json.RawMessage(args),
		})
		if err != nil {
			return nil, jsonrpcerr.New(jsonrpcerr.KindInternalError, "failed to encode translated params")
		}
		params = built
	}

	wire := wireRequest{JSONRPC: "2.0", ID: upstreamID, Method: "call", Params: params}
	out, err := json.Marshal(wire)
	if err != nil {
		return nil, jsonrpcerr.New(jsonrpcerr.KindInternalError, "failed to encode translated request")
	}
	return out, nil
}

func translatable(u urn.URN) bool {
	if u.Namespace == "dpayd" {
		return true
	}
	return isAppbaseCallPassthrough(u)
}

func isAppbaseCallPassthrough(u urn.URN) bool {
	return u.Namespace == "appbase" && u.API == "" && u.Method == "call"
}
