package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/n0madic/go-chatpipe/internal/codec"
	"github.com/n0madic/go-chatpipe/internal/config"
)

const serverAccessTokenError = "Invalid or missing server access token"

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqHeaders := c.GetHeader("Access-Control-Request-Headers")
		if reqHeaders == "" {
			reqHeaders = "Authorization, Content-Type, Accept"
		}
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", reqHeaders)
		h.Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func authMiddleware(cfg config.Config) gin.HandlerFunc {
	expectedToken := strings.TrimSpace(cfg.AccessToken)
	return func(c *gin.Context) {
		if expectedToken == "" || !requiresAccessToken(c.Request.URL.Path) {
			c.Next()
			return
		}
		token, ok := parseBearerAuthToken(strings.TrimSpace(c.GetHeader("Authorization")))
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			codec.WriteOpenAIError(c.Writer, http.StatusUnauthorized, "authentication_error", serverAccessTokenError)
			c.Abort()
			return
		}
		c.Next()
	}
}

func parseBearerAuthToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return parts[1], true
}

func requiresAccessToken(path string) bool {
	return strings.HasPrefix(path, "/v1/")
}

func verboseMiddleware(cfg config.Config) gin.HandlerFunc {
	if !cfg.Verbose {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
