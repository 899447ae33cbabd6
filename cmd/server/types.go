package main

import (
	"github.com/gin-gonic/gin"

	"github.com/semidark/aichat/internal/config"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
	ws "github.com/semidark/aichat/internal/websocket"
)

// holds all dependencies and state for the API server
type Server struct {
	config         *config.Config
	store          *history.FileStore
	registry       *sessions.Registry
	runner         *pipeline.Pipeline
	hub            *ws.Hub
	cleanupService *sessions.CleanupService
	router         *gin.Engine
}
