package jsonrpc

import (
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/jsonrpcerr"
)

// ValidateRequest checks the well-formedness rules required before
// dispatch: jsonrpc == "2.0", a non-empty string method, and params (if
// present) shaped as an array or object.
func ValidateRequest(r RawRequest) *jsonrpcerr.Error {
	if r.JSONRPC != "2.0" {
		return jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, `"jsonrpc" must be "2.0"`)
	}
	if strings.TrimSpace(r.Method) == "" {
		return jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, "method must be a non-empty string")
	}
	if len(r.Params) > 0 {
		trimmed := strings.TrimSpace(string(r.Params))
		if trimmed != "" && trimmed != "null" && trimmed[0] != '[' && trimmed[0] != '{' {
			return jsonrpcerr.New(jsonrpcerr.KindInvalidRequest, "params must be an array or object")
		}
	}
	return nil
}

// ValidateBatchSize rejects a batch longer than max. max <= 0 means no
// limit configured.
func ValidateBatchSize(n, max int) *jsonrpcerr.Error {
	if max > 0 && n > max {
		return jsonrpcerr.Newf(jsonrpcerr.KindInvalidRequest, "batch size %d exceeds configured limit %d", n, max)
	}
	return nil
}

// ValidateResponse checks that raw is a well-formed upstream reply: a
// JSON object with jsonrpc == "2.0", an id echoing expectedUpstreamID,
// and exactly one of result/error.
func ValidateResponse(raw []byte, expectedUpstreamID int64) (RawResponse, *jsonrpcerr.Error) {
	var resp RawResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return RawResponse{}, jsonrpcerr.New(jsonrpcerr.KindServerError, "upstream reply is not valid JSON")
	}
	if resp.JSONRPC != "2.0" {
		return RawResponse{}, jsonrpcerr.New(jsonrpcerr.KindServerError, `upstream reply missing "jsonrpc":"2.0"`)
	}

	var gotID int64
	if err := json.Unmarshal(resp.ID, &gotID); err != nil || gotID != expectedUpstreamID {
		return RawResponse{}, jsonrpcerr.New(jsonrpcerr.KindServerError, "upstream reply id does not match the dispatched request")
	}

	hasResult := isPresent(resp.Result)
	hasError := isPresent(resp.Error)
	if hasResult == hasError {
		return RawResponse{}, jsonrpcerr.New(jsonrpcerr.KindServerError, "upstream reply must contain exactly one of result or error")
	}

	return resp, nil
}

func isPresent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

type getBlockResult struct {
	Previous       string          `json:"previous"`
	Timestamp      string          `json:"timestamp"`
	Witness        string          `json:"witness"`
	BlockID        string          `json:"block_id"`
	Transactions   json.RawMessage `json:"transactions"`
	TransactionIDs json.RawMessage `json:"transaction_ids"`
}

// ValidateGetBlockResponse additionally verifies a get_block result
// structurally: the required fields are present, and the block_id's
// leading 8 hex digits, read as a big-endian integer, equal the
// requested block number.
func ValidateGetBlockResponse(resultRaw json.RawMessage, requestedBlockNum uint32) *jsonrpcerr.Error {
	var r getBlockResult
	if err := json.Unmarshal(resultRaw, &r); err != nil {
		return jsonrpcerr.New(jsonrpcerr.KindServerError, "get_block result is not a well-formed object")
	}
	if r.Previous == "" || r.Timestamp == "" || r.Witness == "" || r.BlockID == "" ||
		!isPresent(r.Transactions) || !isPresent(r.TransactionIDs) {
		return jsonrpcerr.New(jsonrpcerr.KindServerError, "get_block result is missing required fields")
	}

	n, ok := blockNumberFromBlockID(r.BlockID)
	if !ok {
		return jsonrpcerr.New(jsonrpcerr.KindServerError, "get_block result has an unparseable block_id")
	}
	if n != requestedBlockNum {
		return jsonrpcerr.Newf(jsonrpcerr.KindServerError, "get_block result block number %d does not match requested %d", n, requestedBlockNum)
	}
	return nil
}

func blockNumberFromBlockID(blockID string) (uint32, bool) {
	if len(blockID) < 8 {
		return 0, false
	}
	n, err := strconv.ParseUint(blockID[:8], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
