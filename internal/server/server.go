// Package server assembles the storefront router and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/flexishop/internal/auth"
	"github.com/vyrodovalexey/flexishop/internal/catalog"
	"github.com/vyrodovalexey/flexishop/internal/config"
	"github.com/vyrodovalexey/flexishop/internal/handler"
	"github.com/vyrodovalexey/flexishop/internal/middleware"
	"github.com/vyrodovalexey/flexishop/internal/render"
	"github.com/vyrodovalexey/flexishop/internal/session"
	"github.com/vyrodovalexey/flexishop/internal/store"
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Catalog  *catalog.Store
	Store    store.Store
	Renderer *render.Renderer
	// Authenticator puts the JSON API behind partner credentials. Nil leaves
	// the API open; pages never require it.
	Authenticator auth.Authenticator
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	logger     *zap.Logger
	shop       *handler.Shop
	wsHandler  *handler.WebSocketHandler
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	s.setupMiddleware(deps.Authenticator)
	s.setupRoutes(deps)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware(authenticator auth.Authenticator) {
	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		"Authorization",
		auth.APIKeyHeader,
		middleware.RequestIDHeader,
	}

	// Apply middleware in order (first applied = outermost). The browsing
	// context wraps logging so every line carries the session id.
	s.router.Use(mux.MiddlewareFunc(middleware.Recovery(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID()))
	s.router.Use(mux.MiddlewareFunc(middleware.BrowsingContext(middleware.SessionOptions{
		CookieName: s.config.SessionCookie,
		Secure:     s.config.CookieSecure,
	})))

	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}

	s.router.Use(mux.MiddlewareFunc(middleware.Logging(s.logger)))
	s.router.Use(mux.MiddlewareFunc(middleware.CORS(middleware.CORSOptions{
		Origins: s.config.CORSOrigins,
		Methods: allowedMethods,
		Headers: allowedHeaders,
	})))

	if authenticator != nil {
		s.router.Use(mux.MiddlewareFunc(middleware.Auth(authenticator, s.logger)))
	}
}

// setupRoutes configures the JSON API, the pages, the badge socket and the
// static assets.
func (s *Server) setupRoutes(deps Deps) {
	s.shop = handler.NewShop(
		deps.Catalog,
		deps.Store,
		session.NewManager(deps.Store, s.logger),
		session.NewLocker(),
		nil,
		s.logger,
	)

	// The socket hub reads counts from the shop and the shop notifies it.
	s.wsHandler = handler.NewWebSocketHandler(s.shop, s.logger)
	s.shop.SetNotifier(s.wsHandler)

	handler.NewRESTHandler(s.shop, s.logger).RegisterRoutes(s.router)
	s.wsHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	assets := http.StripPrefix(middleware.AssetsPrefix, http.FileServer(http.Dir(s.config.AssetsDir)))
	s.router.PathPrefix(middleware.AssetsPrefix).Handler(assets).Methods(http.MethodGet, http.MethodHead)

	// mux skips middleware on a method mismatch, so preflights need a route
	// of their own for CORS to answer them.
	s.router.PathPrefix(middleware.APIPrefix).Methods(http.MethodOptions).HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) },
	)

	handler.NewStorefrontHandler(s.shop, deps.Renderer, s.logger).RegisterRoutes(s.router)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("tls_enabled", s.config.TLSEnabled),
		zap.String("auth_mode", s.config.AuthMode),
		zap.Bool("catalog_available", s.shop.Catalog().Available()),
	)

	var err error
	if s.config.TLSEnabled {
		err = s.httpServer.ListenAndServeTLS(s.config.TLSCertPath, s.config.TLSKeyPath)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Hijacked sockets are not tracked by http.Server.Shutdown.
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Shop returns the shop state the handlers share.
func (s *Server) Shop() *handler.Shop {
	return s.shop
}
