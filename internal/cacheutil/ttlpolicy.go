package cacheutil

import (
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/registry"
)

// ResolvedTTLKind discriminates the TTL values that actually reach a
// cache backend. Unlike registry.TTL, there is no
// no_expire_if_irreversible here: that sentinel is resolved to one of
// these three by ResolveTTL before a backend ever sees it.
type ResolvedTTLKind int

const (
	ResolvedNoCache ResolvedTTLKind = iota
	ResolvedSeconds
	ResolvedNoExpire
)

// ResolvedTTL is the TTL a cache backend stores or reports as remaining
// on a read.
type ResolvedTTL struct {
	Kind    ResolvedTTLKind
	Seconds int
}

// defaultIrreversibleTTLSeconds is the fallback TTL applied to
// no_expire_if_irreversible responses for blocks not yet irreversible.
const defaultIrreversibleTTLSeconds = 3

// ResolveTTL computes the resolved TTL for a successful upstream
// response given the upstream rule's declared policy, the bare method
// name (to recognize get_block/get_block_header), the raw response
// body, and the last-known irreversible block number.
func ResolveTTL(rule registry.TTL, method string, body []byte, lastIrreversible uint32) ResolvedTTL {
	switch rule.Kind {
	case registry.TTLNoCache:
		return ResolvedTTL{Kind: ResolvedNoCache}
	case registry.TTLNoExpire:
		return ResolvedTTL{Kind: ResolvedNoExpire}
	case registry.TTLSeconds:
		return ResolvedTTL{Kind: ResolvedSeconds, Seconds: rule.Seconds}
	case registry.TTLNoExpireIfIrreversible:
		if method != "get_block" && method != "get_block_header" {
			return ResolvedTTL{Kind: ResolvedSeconds, Seconds: defaultIrreversibleTTLSeconds}
		}
		blockNum, ok := BlockNumberFromResponse(body)
		if !ok {
			return ResolvedTTL{Kind: ResolvedNoCache}
		}
		if blockNum <= lastIrreversible {
			return ResolvedTTL{Kind: ResolvedNoExpire}
		}
		return ResolvedTTL{Kind: ResolvedSeconds, Seconds: defaultIrreversibleTTLSeconds}
	default:
		return ResolvedTTL{Kind: ResolvedNoCache}
	}
}

// BlockNumberFromResponse extracts the block number from a get_block /
// get_block_header response's result.block_id, per the leading-8-hex-
// digits-as-big-endian-integer rule.
func BlockNumberFromResponse(body []byte) (uint32, bool) {
	var wrapper struct {
		Result struct {
			BlockID string `json:"block_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return 0, false
	}
	return BlockNumberFromBlockID(wrapper.Result.BlockID)
}

// BlockNumberFromBlockID parses the leading 8 hex digits of a block_id
// as a big-endian integer.
func BlockNumberFromBlockID(blockID string) (uint32, bool) {
	if len(blockID) < 8 {
		return 0, false
	}
	n, err := strconv.ParseUint(blockID[:8], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
