package main

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/config"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/llm"
	"github.com/semidark/aichat/internal/logger"
	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
	ws "github.com/semidark/aichat/internal/websocket"
)

// how often the cleanup service checks for idle sessions
const cleanupCheckInterval = 5 * time.Minute

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	store, err := history.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	streamer, err := llm.New(llm.Config{
		Provider:     llm.Provider(cfg.LLM.Provider),
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		SystemPrompt: cfg.LLM.SystemPrompt,
		MaxTokens:    cfg.LLM.MaxTokens,
		Temperature:  cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	registry := sessions.NewRegistry(store)

	runner := pipeline.New(registry, store, streamer, pipeline.Config{
		Chunking: chunker.Options{
			MaxSize:    cfg.Stream.ChunkSize,
			Delay:      cfg.Stream.Delay,
			QueueDepth: cfg.Stream.QueueDepth,
		},
		UpstreamIdleTimeout: cfg.Stream.UpstreamIdleTimeout,
	})

	logger.Info("chat pipeline ready",
		"provider", cfg.LLM.Provider,
		"model", streamer.Model(),
		"data_dir", store.Dir(),
		"chunk_size", cfg.Stream.ChunkSize,
		"delay", cfg.Stream.Delay,
		"queue_depth", cfg.Stream.QueueDepth,
	)

	hub := ws.NewHub()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// evicts in-memory session entries; conversation files stay on disk
	cleanupService := sessions.NewCleanupService(registry, cleanupCheckInterval, cfg.Session.IdleTTL)

	server := &Server{
		config:         cfg,
		store:          store,
		registry:       registry,
		runner:         runner,
		hub:            hub,
		cleanupService: cleanupService,
		router:         router,
	}

	if err := RegisterRoutes(router, server); err != nil {
		return nil, err
	}

	return server, nil
}
