package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/stats"
	"github.com/dpays/jefferson/internal/translate"
	"github.com/dpays/jefferson/internal/urn"
	"github.com/dpays/jefferson/internal/wspool"
)

func newTestServer(t *testing.T, apiEnabled bool, apiKey string) *Server {
	t.Helper()

	reg, err := registry.New(nil)
	require.NoError(t, err)

	cache := cacheutil.NewGroup(cacheutil.NewMemory(64), nil, nil, time.Second, false, nil)
	d := dispatch.New(dispatch.Config{
		Canonicalizer: urn.New(nil, 64),
		Registry:      reg,
		Cache:         cache,
		Translator:    translate.NewDefault(),
		WSDialer:      wspool.GorillaDialer{},
		PoolConfig:    func(registry.Rule) wspool.Config { return wspool.Config{} },
		HTTPTimeout:   time.Second,
	})

	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = 0
	cfg.API.Enabled = apiEnabled
	cfg.API.APIKey = apiKey

	return New(cfg, nil, d, reg, cache, jsonrpc.Limits{}, stats.New(), nil, "v", "c")
}

func TestProxyEngineServesHealthUnauthenticated(t *testing.T) {
	srv := newTestServer(t, false, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ProxyEngine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEngineRequiresAPIKeyWhenConfigured(t *testing.T) {
	srv := newTestServer(t, true, "secret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	rec := httptest.NewRecorder()
	srv.AdminEngine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req2.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	srv.AdminEngine().ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestAdminEngineAllowsAllWhenNoAPIKeyConfigured(t *testing.T) {
	srv := newTestServer(t, true, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	rec := httptest.NewRecorder()
	srv.AdminEngine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminEnabledReflectsConfig(t *testing.T) {
	srv := newTestServer(t, false, "")
	assert.False(t, srv.AdminEnabled())

	srv2 := newTestServer(t, true, "")
	assert.True(t, srv2.AdminEnabled())
}
