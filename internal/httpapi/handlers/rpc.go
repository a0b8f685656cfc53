package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	json "github.com/goccy/go-json"

	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/jsonrpcerr"
)

// maxParamsReprBytes bounds the x-jefferson-params header so a large
// params payload never blows up response header size.
const maxParamsReprBytes = 1024

// RPC is the single entry point for all JSON-RPC traffic: POST /. It
// reads the body exactly once (c.GetRawData), unlike the original
// implementation's exec_multi path which read it twice and silently
// dispatched an empty batch on the second read.
func (h *Handler) RPC(c *gin.Context) {
	start := time.Now()
	requestID := uuid.NewString()

	raw, err := c.GetRawData()
	if err != nil {
		h.writeTopLevelError(c, requestID, start, jsonrpcerr.New(jsonrpcerr.KindParseError, "failed to read request body"))
		return
	}

	body, perr := jsonrpc.ParseBody(raw)
	if perr != nil {
		h.writeTopLevelError(c, requestID, start, perr)
		return
	}

	requests := body.Requests()

	if body.IsBatch {
		if verr := jsonrpc.ValidateBatchSize(len(requests), h.cfg.Server.MaxBatchSize); verr != nil {
			h.writeTopLevelError(c, requestID, start, verr)
			return
		}
	}

	validIdx := make([]int, 0, len(requests))
	preErrors := make(map[int]*jsonrpcerr.Error, len(requests))
	for i, r := range requests {
		if verr := jsonrpc.ValidateRequest(r); verr != nil {
			preErrors[i] = verr
			continue
		}
		validIdx = append(validIdx, i)
	}

	validRequests := make([]jsonrpc.RawRequest, len(validIdx))
	for j, i := range validIdx {
		validRequests[j] = requests[i]
	}

	dispatched := h.dispatcher.Dispatch(c.Request.Context(), validRequests, requestID)

	results := make([]dispatch.Result, len(requests))
	for j, i := range validIdx {
		results[i] = dispatched[j]
	}
	for i, verr := range preErrors {
		errEnv := verr.Envelope(requestID)
		results[i] = dispatch.Result{
			Envelope:       jsonrpc.Envelope{JSONRPC: "2.0", ID: requests[i].ID, Error: &errEnv},
			IsNotification: requests[i].IsNotification(),
		}
	}

	h.recordStats(results, body.IsBatch, time.Since(start))
	h.writeHeaders(c, requestID, start, body.IsBatch, results)

	emit := make([]jsonrpc.Envelope, 0, len(results))
	for _, r := range results {
		if r.IsNotification {
			continue
		}
		emit = append(emit, r.Envelope)
	}

	if len(emit) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	if body.IsBatch {
		c.JSON(http.StatusOK, emit)
		return
	}
	c.JSON(http.StatusOK, emit[0])
}

func (h *Handler) recordStats(results []dispatch.Result, isBatch bool, elapsed time.Duration) {
	if h.stats == nil {
		return
	}
	if isBatch {
		h.stats.RecordBatch()
	}
	for _, r := range results {
		h.stats.RecordRequest()
		h.stats.RecordLatency(elapsed.Nanoseconds())
		if r.FromCache {
			h.stats.RecordCacheHit()
		}
		if r.Envelope.Error != nil {
			h.stats.RecordUpstreamError()
		}
	}
}

// writeHeaders attaches the x-jefferson-* response header family
// restored from the original implementation. The namespace/api/method/
// params headers and the cache-hit header only make sense for a
// singleton (non-batch) request, since a batch carries no single URN.
func (h *Handler) writeHeaders(c *gin.Context, requestID string, start time.Time, isBatch bool, results []dispatch.Result) {
	c.Header("x-jefferson-request-id", requestID)
	c.Header("x-amzn-trace-id", "Root=1-jefferson-"+requestID)
	c.Header("x-jefferson-response-time", strconv.FormatFloat(time.Since(start).Seconds(), 'f', -1, 64))

	if isBatch || len(results) != 1 {
		return
	}

	r := results[0]
	if r.Namespace != "" {
		c.Header("x-jefferson-namespace", r.Namespace)
	}
	if r.API != "" {
		c.Header("x-jefferson-api", r.API)
	}
	if r.Method != "" {
		c.Header("x-jefferson-method", r.Method)
	}
	if r.ParamsCanonical != "" {
		c.Header("x-jefferson-params", boundedRepr(r.ParamsCanonical))
	}
	if r.FromCache {
		c.Header("x-jefferson-cache-hit", r.URN)
	}
}

// boundedRepr caps a params rendering at maxParamsReprBytes, appending
// a truncation marker when the cutoff lands inside the original string.
func boundedRepr(s string) string {
	if len(s) <= maxParamsReprBytes {
		return s
	}
	return strings.TrimRight(s[:maxParamsReprBytes], " \t\n") + "...(truncated)"
}

// writeTopLevelError renders a JSON-RPC error response for failures
// that occur before any per-request dispatch is possible: an unreadable
// body, malformed JSON, or a batch that exceeds the configured size
// limit. The id is always null since no request id could be recovered.
func (h *Handler) writeTopLevelError(c *gin.Context, requestID string, start time.Time, err *jsonrpcerr.Error) {
	c.Header("x-jefferson-request-id", requestID)
	c.Header("x-amzn-trace-id", "Root=1-jefferson-"+requestID)
	c.Header("x-jefferson-response-time", strconv.FormatFloat(time.Since(start).Seconds(), 'f', -1, 64))

	errEnv := err.Envelope(requestID)
	env := jsonrpc.Envelope{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &errEnv}
	c.JSON(http.StatusOK, env)
}
