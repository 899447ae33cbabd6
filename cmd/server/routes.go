package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/semidark/aichat/api/rest/chat"
	apiconfig "github.com/semidark/aichat/api/rest/config"
	"github.com/semidark/aichat/api/rest/health"
	apiws "github.com/semidark/aichat/api/websocket"
	"github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/logger"
	"github.com/semidark/aichat/internal/sessions"
	ws "github.com/semidark/aichat/internal/websocket"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) error {
	cfg := server.config

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORSMiddleware(cfg.AllowedOrigins, cfg.IsProduction()))

	router.GET("/health", health.Handler(server.hub, server.registry))

	chatLimit, err := ChatRateLimit(cfg.ChatRateLimit)
	if err != nil {
		return err
	}

	cookies := sessions.CookieConfig{
		MaxAge: cfg.Session.CookieMaxAge,
		Secure: cfg.Session.CookieSecure,
	}

	api := router.Group("/api")

	{
		api.GET("/ping", health.PingHandler)

		apiconfig.RegisterRoutes(api, cfg)
		chat.RegisterRoutes(api, server.runner, server.registry, cookies, chatLimit)
		apiws.RegisterRoutes(api, &apiws.Deps{
			Hub:      server.hub,
			Registry: server.registry,
			Runner:   server.runner,
			Cookies:  cookies,
			Limit:    chatLimit,
			Upgrader: websocket.Upgrader{
				ReadBufferSize:  1024,
				WriteBufferSize: 1024,
				CheckOrigin:     ws.NewOriginChecker(cfg.AllowedOrigins, cfg.IsProduction()),
			},
		})
	}

	// the e-ink page and its assets
	if info, err := os.Stat(cfg.StaticDir); err == nil && info.IsDir() {
		router.StaticFile("/", cfg.StaticDir+"/index.html")
		router.Static("/static", cfg.StaticDir)
	} else {
		logger.Warn("static directory not found, serving api only", "static_dir", cfg.StaticDir)
	}

	router.NoRoute(func(c *gin.Context) {
		errors.NotFound(c, "route")
	})

	return nil
}
