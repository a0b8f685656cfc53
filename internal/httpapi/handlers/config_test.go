package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/registry"
)

func newConfigEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.GET("/config", h.GetConfig)
	return e
}

func TestGetConfigRendersRuleViewFields(t *testing.T) {
	rules := []registry.RuleConfig{
		{
			URNPrefix:          "appbase.database_api",
			URL:                "wss://upstream.example/ws",
			Transport:          "websocket",
			TTL:                "no_expire_if_irreversible",
			TimeoutSeconds:     2.5,
			Retries:            3,
			TranslateToAppbase: false,
		},
		{
			URNPrefix:      "appbase.market_history_api",
			URLEnvVar:      "MARKET_HISTORY_URL",
			Transport:      "http",
			TTL:            "30",
			TimeoutSeconds: 5,
		},
	}
	h := newTestHandler(rules, 50)
	e := newConfigEngine(h)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"urn_prefix":"appbase.database_api"`)
	assert.Contains(t, body, `"transport":"websocket"`)
	assert.Contains(t, body, `"ttl":"no_expire_if_irreversible"`)
	assert.Contains(t, body, `"uses_env_var":true`)
	assert.Contains(t, body, `"transport":"http"`)
	assert.Contains(t, body, `"ttl":"30"`)
	assert.Contains(t, body, `"max_batch_size":50`)
}

func TestGetConfigNilRegistryRendersEmptyRules(t *testing.T) {
	h := &Handler{cfg: &config.Config{}}
	e := newConfigEngine(h)

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()

	assert.NotPanics(t, func() { e.ServeHTTP(rec, req) })
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rules":null`)
}
