// Package bridge exposes an ADK agent app as an OpenAI-compatible chat model.
// Each chat request becomes one POST to the backend's /run endpoint; the text
// of the last returned event is the assistant reply.
package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
)

const healthCheckTimeout = 5 * time.Second

// Bridge is the ADK reverse-translation proxy.
type Bridge struct {
	cfg        config.BridgeConfig
	client     *http.Client
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the proxy with its routes registered.
func New(cfg config.BridgeConfig) *Bridge {
	b := &Bridge{cfg: cfg, client: newBackendClient(cfg.Token, cfg.Timeout)}

	engine := gin.New()
	engine.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		slog.Error("bridge.panic", "path", c.Request.URL.Path, "error", recovered)
		codec.WriteOpenAIError(c.Writer, http.StatusInternalServerError, "server_error", "Internal server error")
		c.Abort()
	}))
	engine.GET("/health", b.handleHealth)
	engine.GET("/v1/models", b.handleListModels)
	engine.POST("/v1/chat/completions", b.handleChatCompletions)
	b.engine = engine

	b.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return b
}

// newBackendClient returns the client used for backend calls. A configured
// token is attached as a bearer credential on every request.
func newBackendClient(token string, timeout time.Duration) *http.Client {
	if token == "" {
		return &http.Client{Timeout: timeout}
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	client := oauth2.NewClient(context.Background(), src)
	client.Timeout = timeout
	return client
}

// Handler exposes the routed engine.
func (b *Bridge) Handler() http.Handler { return b.engine }

func (b *Bridge) ListenAndServe() error {
	slog.Info("bridge.listen", "addr", b.httpServer.Addr, "backend", b.cfg.BackendURL, "app", b.cfg.AppName)
	return b.httpServer.ListenAndServe()
}

func (b *Bridge) Shutdown(ctx context.Context) error {
	return b.httpServer.Shutdown(ctx)
}
