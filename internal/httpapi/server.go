// Package httpapi provides the HTTP surface for jefferson: the
// unauthenticated JSON-RPC entry point and health checks on one
// listener (cfg.Server), and a read-only, optionally API-key-gated
// admin surface on a second listener (cfg.API) bound to localhost by
// default — the same two-listener split the teacher uses between its
// DNS service and its management REST API, adapted here to two HTTP
// listeners instead of one HTTP and one raw-socket service.
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dpays/jefferson/internal/cacheutil"
	"github.com/dpays/jefferson/internal/config"
	"github.com/dpays/jefferson/internal/dispatch"
	"github.com/dpays/jefferson/internal/httpapi/handlers"
	"github.com/dpays/jefferson/internal/httpapi/middleware"
	"github.com/dpays/jefferson/internal/irreversible"
	"github.com/dpays/jefferson/internal/jsonrpc"
	"github.com/dpays/jefferson/internal/registry"
	"github.com/dpays/jefferson/internal/stats"
)

func newHTTPServer(addr string, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Server holds jefferson's two HTTP listeners.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	proxyEngine *gin.Engine
	proxyServer *http.Server

	adminEngine *gin.Engine
	adminServer *http.Server
}

// New builds both Gin engines and their http.Servers. The admin
// listener is only meaningful when cfg.API.Enabled; callers should
// check AdminEnabled before starting it. version and commit are
// stamped at build time via -ldflags and surfaced on /health and
// /.well-known/healthcheck.json.
func New(cfg *config.Config, logger *slog.Logger, d *dispatch.Dispatcher, reg *registry.Registry, cache *cacheutil.Group, limits jsonrpc.Limits, st *stats.Stats, tracker *irreversible.Tracker, version, commit string) *Server {
	if cfg == nil {
		panic("httpapi.New: cfg is nil")
	}

	gin.SetMode(gin.ReleaseMode)

	h := handlers.New(cfg, logger, d, reg, cache, limits, st, tracker, version, commit)

	proxyEngine := gin.New()
	proxyEngine.Use(gin.Recovery())
	proxyEngine.Use(middleware.SlogRequestLogger(logger))
	registerProxyRoutes(proxyEngine, h)
	proxyAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))

	adminEngine := gin.New()
	adminEngine.Use(gin.Recovery())
	adminEngine.Use(middleware.SlogRequestLogger(logger))
	registerAdminRoutes(adminEngine, h, cfg)
	adminAddr := net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))

	return &Server{
		cfg:         cfg,
		logger:      logger,
		proxyEngine: proxyEngine,
		proxyServer: newHTTPServer(proxyAddr, proxyEngine),
		adminEngine: adminEngine,
		adminServer: newHTTPServer(adminAddr, adminEngine),
	}
}

// AdminEnabled reports whether the admin listener should be started.
func (s *Server) AdminEnabled() bool { return s.cfg.API.Enabled }

func (s *Server) ProxyAddr() string { return s.proxyServer.Addr }
func (s *Server) AdminAddr() string { return s.adminServer.Addr }

func (s *Server) ProxyEngine() *gin.Engine { return s.proxyEngine }
func (s *Server) AdminEngine() *gin.Engine { return s.adminEngine }

// ListenAndServeProxy blocks serving the JSON-RPC/health listener.
func (s *Server) ListenAndServeProxy() error {
	return s.proxyServer.ListenAndServe()
}

// ListenAndServeAdmin blocks serving the admin listener.
func (s *Server) ListenAndServeAdmin() error {
	return s.adminServer.ListenAndServe()
}

// Shutdown gracefully stops both listeners, returning the first error
// encountered.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.proxyServer.Shutdown(ctx)
	if adminErr := s.adminServer.Shutdown(ctx); err == nil {
		err = adminErr
	}
	return err
}
