// Package server mounts the cardcrafter HTTP surface: the proxy and token
// endpoints, server-rendered grid pages with their live websocket
// sessions and export downloads, Prometheus metrics and MCP over HTTP.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/cardcrafter/auth"
	"github.com/hazyhaar/cardcrafter/config"
	"github.com/hazyhaar/cardcrafter/grid"
	"github.com/hazyhaar/cardcrafter/proxy"
	"github.com/hazyhaar/cardcrafter/shield"
)

//go:embed static
var staticFS embed.FS

// Version is reported by /health and the MCP implementation.
const Version = "1.0.0"

// Server holds the HTTP dependencies.
type Server struct {
	config   *config.Config
	proxy    *proxy.Service
	sessions *auth.Sessions
	limiter  *shield.RateLimiter
	mcp      *mcp.Server
	mcpKey   []byte
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// New creates a Server. sessions must be keyed independently of the proxy
// token secret.
func New(cfg *config.Config, svc *proxy.Service, sessions *auth.Sessions, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "cardcrafter", Version: Version}, nil)
	svc.RegisterMCP(mcpSrv)

	// Without a key the MCP endpoint stays unmounted.
	mcpKey, err := auth.DeriveKey(cfg.Server.Secret, auth.PurposeMCP)
	if err != nil {
		logger.Warn("mcp endpoint disabled", "error", err)
	}

	return &Server{
		config:   cfg,
		proxy:    svc,
		sessions: sessions,
		limiter:  shield.NewRateLimiter(cfg.Server.RateLimit),
		mcp:      mcpSrv,
		mcpKey:   mcpKey,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 16384},
		logger:   logger,
	}
}

// Router returns the route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack() {
		r.Use(mw)
	}
	r.Use(s.sessions.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/static/*", http.FileServerFS(staticFS))

	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Method(http.MethodGet, "/api/token", s.proxy.TokenHandler(s.sessions))
		proxyHandler := s.proxy.Handler(s.sessions)
		r.Method(http.MethodGet, "/api/proxy", proxyHandler)
		r.Method(http.MethodPost, "/api/proxy", proxyHandler)
	})

	if s.mcpKey != nil {
		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware)
			r.Use(auth.RequireBearer(s.mcpKey, auth.MCPSubject, auth.ActionMCP))
			r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil))
		})
	}

	r.Route("/grid/{preset}", func(r chi.Router) {
		r.Use(shield.SecurityHeaders(shield.GridHeaders()))
		r.Get("/", s.handleGridPage)
		r.Get("/export/{format}", s.handleExport)
		r.Get("/live", s.handleLive)
	})

	return r
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	s.limiter.StartGC(done, time.Minute)

	srv := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// newEngine builds an engine for the named preset, loading through the
// in-process proxy.
func (s *Server) newEngine(preset string) (*grid.Engine, error) {
	cfg, ok := s.config.Grid(preset)
	if !ok {
		return nil, errUnknownPreset
	}
	return grid.New(cfg, proxy.LocalLoader{Service: s.proxy}, grid.WithLogger(s.logger))
}

var errUnknownPreset = errors.New("server: unknown grid preset")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
