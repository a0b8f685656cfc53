package jsonrpc

import (
	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/jsonrpcerr"
)

// broadcastMethods are the bare method names the request-shape limits
// apply to; limits are a no-op for every other method.
var broadcastMethods = map[string]bool{
	"broadcast_transaction":             true,
	"broadcast_transaction_synchronous": true,
}

// Limits holds the broadcast_transaction request-shape limits: a byte
// cap on each custom_json operation's inner json string, and an
// account allow/deny list for required_auths/required_posting_auths.
// Only one of AccountAllow/AccountDeny should be populated; if both are
// empty every account is permitted.
type Limits struct {
	MaxCustomJSONOpLength int
	AccountAllow          map[string]struct{}
	AccountDeny           map[string]struct{}
}

// AppliesTo reports whether method is one of the broadcast methods the
// limits are enforced on.
func (l Limits) AppliesTo(method string) bool { return broadcastMethods[method] }

type transactionParam struct {
	Operations []operationPair `json:"operations"`
}

// operationPair decodes a dpayd wire operation: a [name, payload] pair.
type operationPair struct {
	Name string
	Data json.RawMessage
}

func (o *operationPair) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return jsonrpcerr.New(jsonrpcerr.KindInvalidParams, "operation must be a [name, payload] pair")
	}
	if err := json.Unmarshal(raw[0], &o.Name); err != nil {
		return err
	}
	o.Data = raw[1]
	return nil
}

type customJSONOp struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id"`
	JSON                 string   `json:"json"`
}

// Check applies the limits to a broadcast method's canonicalized
// params. A method the limits don't apply to, or params that don't
// parse as a transaction list, is treated as out of scope for this
// validator — dispatch or the upstream will reject a malformed shape
// on its own terms.
func (l Limits) Check(method string, paramsCanonical string) *jsonrpcerr.Error {
	if !l.AppliesTo(method) || paramsCanonical == "" {
		return nil
	}

	var txs []transactionParam
	if err := json.Unmarshal([]byte(paramsCanonical), &txs); err != nil {
		return nil
	}

	for _, tx := range txs {
		for _, op := range tx.Operations {
			if op.Name != "custom_json" {
				continue
			}
			var cj customJSONOp
			if err := json.Unmarshal(op.Data, &cj); err != nil {
				continue
			}
			if l.MaxCustomJSONOpLength > 0 && len(cj.JSON) > l.MaxCustomJSONOpLength {
				return jsonrpcerr.Newf(jsonrpcerr.KindCustomJSONOpLengthError,
					"custom_json payload of %d bytes exceeds the configured limit of %d", len(cj.JSON), l.MaxCustomJSONOpLength)
			}
			for _, account := range allAuths(cj) {
				if !l.accountAllowed(account) {
					return jsonrpcerr.Newf(jsonrpcerr.KindLimitsError, "account %q is not permitted to broadcast", account)
				}
			}
		}
	}
	return nil
}

func allAuths(cj customJSONOp) []string {
	out := make([]string, 0, len(cj.RequiredAuths)+len(cj.RequiredPostingAuths))
	out = append(out, cj.RequiredAuths...)
	out = append(out, cj.RequiredPostingAuths...)
	return out
}

func (l Limits) accountAllowed(account string) bool {
	if len(l.AccountAllow) > 0 {
		_, ok := l.AccountAllow[account]
		return ok
	}
	if len(l.AccountDeny) > 0 {
		_, ok := l.AccountDeny[account]
		return !ok
	}
	return true
}
