package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/educhat/internal/auth"
	"github.com/vovakirdan/educhat/internal/config"
	"github.com/vovakirdan/educhat/internal/core"
	"github.com/vovakirdan/educhat/internal/store"
)

// NewServer builds the HTTP server: health check, WebSocket endpoint and history API.
func NewServer(hub *core.Hub, gateway *auth.Gateway, st store.MessageStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, gateway, st, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter mounts the WebSocket endpoint on a plain mux and hands every
// other path to the gin engine.
func NewRouter(hub *core.Hub, gateway *auth.Gateway, st store.MessageStore, cfg *config.Config, logger *zerolog.Logger) *stdhttp.ServeMux {
	ws := NewWSHandler(hub, gateway, WSOptions{
		HandshakeTimeout:   cfg.HandshakeTimeout,
		AllowedOrigins:     cfg.AllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ClientBuffer:       cfg.ClientBuffer,
	}, logger)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", NewAPIEngine(gateway, st, cfg, logger))
	return mux
}

// NewAPIEngine registers the health check and history API on a fresh gin engine.
func NewAPIEngine(gateway *auth.Gateway, st store.MessageStore, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	history := NewHistoryHandlers(st, logger)
	api := router.Group("/api")
	if cfg.HistoryRequireAuth {
		api.Use(AuthMiddleware(gateway, logger))
	}
	api.GET("/messages", history.ListMessages)

	return router
}
