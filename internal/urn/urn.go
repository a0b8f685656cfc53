// Package urn derives a stable request-identity string (the "URN") from
// any of the accepted JSON-RPC request shapes. The URN doubles as the
// cache key and the routing input for the upstream registry.
package urn

import (
	"container/list"
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/jsonrpcerr"
)

// ParamsKind discriminates the three shapes a request's params may take.
type ParamsKind int

const (
	ParamsAbsent ParamsKind = iota
	ParamsList
	ParamsMap
)

// Params is the canonicalized form of a request's params: either absent,
// or a compact, key-sorted JSON rendering of a list or object.
type Params struct {
	Kind      ParamsKind
	canonical string
}

// Canonical returns the compact JSON text, or "" if params is absent.
func (p Params) Canonical() string { return p.canonical }

func (p Params) IsAbsent() bool { return p.Kind == ParamsAbsent }

// URN is the tuple (namespace, api, method, params) plus its canonical
// string rendering.
type URN struct {
	Namespace string
	API       string
	Method    string
	Params    Params
}

// String renders the canonical form: namespace.api.method[.params=...].
// The api segment is omitted when absent (two-segment dotted methods
// whose first segment is not a known appbase API).
func (u URN) String() string {
	parts := make([]string, 0, 3)
	parts = append(parts, u.Namespace)
	if u.API != "" {
		parts = append(parts, u.API)
	}
	parts = append(parts, u.Method)
	s := strings.Join(parts, ".")
	if !u.Params.IsAbsent() {
		s += ".params=" + u.Params.canonical
	}
	return s
}

// appbaseAPIs is the static table of known appbase API names used to
// disambiguate two-segment dotted methods and the "call" api selector.
var appbaseAPIs = map[string]bool{
	"condenser_api":         true,
	"block_api":             true,
	"database_api":          true,
	"network_broadcast_api": true,
	"account_by_key_api":    true,
	"account_history_api":   true,
	"market_history_api":    true,
	"follow_api":            true,
	"tags_api":              true,
	"witness_api":           true,
	"chain_api":             true,
	"jsonrpc":               true,
}

// bareMethodAPIs resolves a bare (undotted) legacy method name to its
// dpayd API. Unlisted methods default to database_api.
var bareMethodAPIs = map[string]string{
	"get_block":                         "database_api",
	"get_block_header":                  "database_api",
	"get_dynamic_global_properties":     "database_api",
	"get_accounts":                      "database_api",
	"get_account_count":                 "database_api",
	"get_transaction":                   "database_api",
	"get_transaction_hex":               "database_api",
	"get_ops_in_block":                  "database_api",
	"get_config":                        "database_api",
	"get_chain_properties":              "database_api",
	"get_version":                       "login_api",
	"login":                             "login_api",
	"get_api_by_name":                   "login_api",
	"broadcast_transaction":             "network_broadcast_api",
	"broadcast_transaction_synchronous": "network_broadcast_api",
	"broadcast_block":                   "network_broadcast_api",
	"get_followers":                     "follow_api",
	"get_following":                     "follow_api",
	"get_account_history":               "account_history_api",
}

const defaultBareAPI = "database_api"

// defaultNumericAPIs is the built-in, deliberately partial numeric-api
// table used when the registry config supplies none. Operators should
// supply a complete table via config; see SPEC_FULL.md's registry section.
var defaultNumericAPIs = map[int]string{
	0: "database_api",
	1: "login_api",
	2: "network_broadcast_api",
	3: "follow_api",
	4: "tags_api",
	5: "market_history_api",
}

type methodShape struct {
	namespace string
	api       string
	method    string
}

// Canonicalizer derives URNs from request method/params pairs. It caches
// the (namespace, api, method) derivation per raw method string, since
// method parsing dominates hot paths and params cannot be cached (they
// vary per request).
type Canonicalizer struct {
	mu          sync.Mutex
	cache       map[string]methodShape
	order       *list.List
	elems       map[string]*list.Element
	maxEntries  int
	numericAPIs map[int]string
}

// New builds a Canonicalizer. numericAPIs may be nil to use the built-in
// default table; cacheSize is clamped to a minimum of 1.
func New(numericAPIs map[int]string, cacheSize int) *Canonicalizer {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	napis := defaultNumericAPIs
	if numericAPIs != nil {
		napis = numericAPIs
	}
	return &Canonicalizer{
		cache:       make(map[string]methodShape),
		order:       list.New(),
		elems:       make(map[string]*list.Element),
		maxEntries:  cacheSize,
		numericAPIs: napis,
	}
}

// Canonicalize derives a URN from a JSON-RPC method and raw params. It
// recognizes all four grammar shapes described in SPEC_FULL.md's C1
// section: dotted two-segment, dotted three-segment, bare method, and
// "call" with a positional api selector.
func (c *Canonicalizer) Canonicalize(method string, rawParams json.RawMessage) (URN, *jsonrpcerr.Error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return URN{}, jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, "method must not be empty")
	}

	if method == "call" || method == "jsonrpc.call" {
		return c.canonicalizeCall(rawParams)
	}

	params, perr := parseParams(rawParams)
	if perr != nil {
		return URN{}, perr
	}

	ns, api, m := c.resolveMethod(method)
	return URN{Namespace: ns, API: api, Method: m, Params: params}, nil
}

func (c *Canonicalizer) resolveMethod(method string) (ns, api, m string) {
	if shape, ok := c.lookup(method); ok {
		return shape.namespace, shape.api, shape.method
	}
	ns, api, m = deriveMethod(method)
	c.store(method, methodShape{namespace: ns, api: api, method: m})
	return
}

// lookup returns the cached shape for method, if present, marking it
// most-recently-used.
func (c *Canonicalizer) lookup(method string) (methodShape, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shape, ok := c.cache[method]
	if !ok {
		return methodShape{}, false
	}
	if elem, ok := c.elems[method]; ok {
		c.order.MoveToFront(elem)
	}
	return shape, true
}

// store inserts or refreshes method's cached shape, evicting the
// least-recently-used entry once maxEntries is exceeded.
func (c *Canonicalizer) store(method string, shape methodShape) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.elems[method]; ok {
		c.cache[method] = shape
		c.order.MoveToFront(elem)
		return
	}

	c.cache[method] = shape
	c.elems[method] = c.order.PushFront(method)

	for len(c.cache) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		oldestMethod := oldest.Value.(string)
		c.order.Remove(oldest)
		delete(c.elems, oldestMethod)
		delete(c.cache, oldestMethod)
	}
}

// deriveMethod implements rules 1-3 of the grammar purely from the
// method string.
func deriveMethod(method string) (ns, api, m string) {
	segs := strings.Split(method, ".")
	switch len(segs) {
	case 1:
		m = segs[0]
		if a, ok := bareMethodAPIs[m]; ok {
			api = a
		} else {
			api = defaultBareAPI
		}
		ns = "dpayd"
		return
	case 2:
		first, second := segs[0], segs[1]
		if appbaseAPIs[first] {
			return "appbase", first, second
		}
		return first, "", second
	default:
		return segs[0], segs[1], strings.Join(segs[2:], ".")
	}
}

func (c *Canonicalizer) canonicalizeCall(rawParams json.RawMessage) (URN, *jsonrpcerr.Error) {
	if len(rawParams) == 0 {
		return URN{}, jsonrpcerr.New(jsonrpcerr.KindInvalidParams, `"call" requires params [api, method, args?]`)
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(rawParams, &elems); err != nil {
		return URN{}, jsonrpcerr.New(jsonrpcerr.KindInvalidParams, `"call" params must be a list`)
	}
	if len(elems) < 2 {
		return URN{}, jsonrpcerr.New(jsonrpcerr.KindInvalidParams, `"call" requires at least [api, method]`)
	}

	apiName, cerr := c.resolveAPISelector(elems[0])
	if cerr != nil {
		return URN{}, cerr
	}

	var m string
	if err := json.Unmarshal(elems[1], &m); err != nil {
		return URN{}, jsonrpcerr.New(jsonrpcerr.KindInvalidParams, `"call" method must be a string`)
	}

	ns := "dpayd"
	if appbaseAPIs[apiName] {
		ns = "appbase"
	}

	var params Params
	if len(elems) >= 3 {
		canon, err := canonicalJSON(elems[2])
		if err != nil {
			return URN{}, jsonrpcerr.New(jsonrpcerr.KindInvalidParams, `"call" args must be valid JSON`)
		}
		params = Params{Kind: kindOf(elems[2]), canonical: canon}
	} else {
		params = Params{Kind: ParamsAbsent}
	}

	return URN{Namespace: ns, API: apiName, Method: m, Params: params}, nil
}

func (c *Canonicalizer) resolveAPISelector(raw json.RawMessage) (string, *jsonrpcerr.Error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asInt int
	if err := json.Unmarshal(raw, &asInt); err == nil {
		if name, ok := c.numericAPIs[asInt]; ok {
			return name, nil
		}
		return "", jsonrpcerr.Newf(jsonrpcerr.KindInvalidParams, "unknown numeric api %d", asInt)
	}
	return "", jsonrpcerr.New(jsonrpcerr.KindInvalidParams, "api selector must be a string or integer")
}

func parseParams(raw json.RawMessage) (Params, *jsonrpcerr.Error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Params{Kind: ParamsAbsent}, nil
	}
	kind, err := kindOfBytes(raw)
	if err != nil {
		return Params{}, jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, "params must be an array or object")
	}
	canon, cerr := canonicalJSON(raw)
	if cerr != nil {
		return Params{}, jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, "params is not valid JSON")
	}
	return Params{Kind: kind, canonical: canon}, nil
}

func kindOfBytes(raw json.RawMessage) (ParamsKind, error) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 {
		return ParamsAbsent, nil
	}
	switch trimmed[0] {
	case '[':
		return ParamsList, nil
	case '{':
		return ParamsMap, nil
	default:
		return ParamsAbsent, fmt.Errorf("unexpected params shape: %q", trimmed)
	}
}

func kindOf(raw json.RawMessage) ParamsKind {
	k, err := kindOfBytes(raw)
	if err != nil {
		return ParamsList
	}
	return k
}

// canonicalJSON decodes raw into a generic value and re-encodes it
// compactly. goccy/go-json, like encoding/json, marshals map[string]any
// keys in sorted order, so this round trip produces the canonical,
// key-sorted, whitespace-free form directly.
func canonicalJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
