// Package api provides the local HTTP REST API of a running client node
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimbusim/nimbus-node/pkg/network"
	"github.com/nimbusim/nimbus-node/pkg/router"
	"github.com/nimbusim/nimbus-node/pkg/session"
	"github.com/nimbusim/nimbus-node/pkg/storage"
)

// Server is the HTTP API server exposing node status, peers, and
// message history over loopback
type Server struct {
	conn       *network.Conn
	sessions   *session.Store
	history    *storage.HistoryDB
	dispatcher *router.Router
	engine     *gin.Engine
	port       int
	httpServer *http.Server
}

// Config holds server configuration
type Config struct {
	Port         int
	EnableCORS   bool
	RateLimit    int // Requests per minute
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		RateLimit:    100,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewServer creates the API server over the node's live components
func NewServer(conn *network.Conn, sessions *session.Store, history *storage.HistoryDB, dispatcher *router.Router, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	server := &Server{
		conn:       conn,
		sessions:   sessions,
		history:    history,
		dispatcher: dispatcher,
		engine:     engine,
		port:       config.Port,
	}

	server.setupMiddleware(config)
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(config *Config) {
	if config.EnableCORS {
		s.engine.Use(CORSMiddleware())
	}
	s.engine.Use(RateLimitMiddleware(NewRateLimiter(config.RateLimit)))
	s.engine.Use(LoggingMiddleware())
	s.engine.Use(gin.Recovery())
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/peers", s.handlePeers)
		v1.DELETE("/peers/:id", s.handleRemovePeer)
		v1.GET("/messages", s.handleMessages)
	}

	s.engine.GET("/health", s.handleHealth)
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
