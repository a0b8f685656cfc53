package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRPCEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.POST("/", h.RPC)
	return e
}

func postRPC(e *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRPCSingleRequestNoMatchingUpstreamReturnsMethodNotFound(t *testing.T) {
	h := newTestHandler(nil, 50)
	e := newRPCEngine(h)

	rec := postRPC(e, `{"jsonrpc":"2.0","id":1,"method":"database_api.get_dynamic_global_properties","params":[]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32601`)
	assert.NotEmpty(t, rec.Header().Get("x-jefferson-request-id"))
	assert.NotEmpty(t, rec.Header().Get("x-jefferson-response-time"))
}

func TestRPCBatchRequestReturnsArrayInOrder(t *testing.T) {
	h := newTestHandler(nil, 50)
	e := newRPCEngine(h)

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"database_api.get_dynamic_global_properties","params":[]},
		{"jsonrpc":"2.0","id":2,"method":"database_api.get_block","params":[1]}
	]`
	rec := postRPC(e, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "["))
	assert.Equal(t, 2, strings.Count(rec.Body.String(), `"code":-32601`))
	assert.Less(t, strings.Index(rec.Body.String(), `"id":1`), strings.Index(rec.Body.String(), `"id":2`))
}

func TestRPCNotificationOnlyReturnsNoContent(t *testing.T) {
	h := newTestHandler(nil, 50)
	e := newRPCEngine(h)

	rec := postRPC(e, `{"jsonrpc":"2.0","method":"database_api.get_dynamic_global_properties","params":[]}`)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRPCMalformedJSONReturnsParseError(t *testing.T) {
	h := newTestHandler(nil, 50)
	e := newRPCEngine(h)

	rec := postRPC(e, `{not json`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32700`)
	assert.Contains(t, rec.Body.String(), `"id":null`)
}

func TestRPCEmptyBodyReturnsParseError(t *testing.T) {
	h := newTestHandler(nil, 50)
	e := newRPCEngine(h)

	rec := postRPC(e, ``)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32700`)
}

func TestRPCOversizedBatchRejected(t *testing.T) {
	h := newTestHandler(nil, 1)
	e := newRPCEngine(h)

	body := `[
		{"jsonrpc":"2.0","id":1,"method":"database_api.get_dynamic_global_properties","params":[]},
		{"jsonrpc":"2.0","id":2,"method":"database_api.get_dynamic_global_properties","params":[]}
	]`
	rec := postRPC(e, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32600`)
	assert.Contains(t, rec.Body.String(), `"id":null`)
}

func TestRPCMixedValidAndInvalidRequestsInBatch(t *testing.T) {
	h := newTestHandler(nil, 50)
	e := newRPCEngine(h)

	body := `[
		{"jsonrpc":"1.0","id":1,"method":"database_api.get_dynamic_global_properties","params":[]},
		{"jsonrpc":"2.0","id":2,"method":"database_api.get_dynamic_global_properties","params":[]}
	]`
	rec := postRPC(e, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":-32600`)
	assert.Contains(t, rec.Body.String(), `"code":-32601`)
}
