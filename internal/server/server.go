package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n0madic/go-chatpipe/internal/config"
	"github.com/n0madic/go-chatpipe/internal/pipe"
	"github.com/n0madic/go-chatpipe/internal/transform"
)

// maxBodyBytes limits the size of incoming request bodies. Inline media
// arrives base64-encoded, so the cap covers the translator's total image
// ceiling after encoding plus room for the rest of the request.
const maxBodyBytes = transform.MaxTotalImageSize*4/3 + 1<<20

// Server is the pipes gateway.
type Server struct {
	Config     config.Config
	Pipes      *pipe.Registry
	engine     *gin.Engine
	httpServer *http.Server
}

// New creates a new server with all routes registered.
func New(cfg config.Config, pipes *pipe.Registry) *Server {
	s := &Server{Config: cfg, Pipes: pipes}

	engine := gin.New()
	engine.Use(gin.Recovery(), corsMiddleware(), verboseMiddleware(cfg), authMiddleware(cfg))

	engine.GET("/", s.handleHealth)
	engine.GET("/health", s.handleHealth)
	engine.GET("/v1/models", s.handleListModels)
	engine.POST("/v1/chat/completions", s.handleChatCompletions)
	s.engine = engine

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 600 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler exposes the routed engine.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr is the listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// ListenAndServe starts the server.
func (s *Server) ListenAndServe() error {
	slog.Info("server.listen", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
