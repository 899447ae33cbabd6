package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/semidark/aichat/internal/config"
	"github.com/semidark/aichat/internal/logger"
)

// @title AI Chat API
// @version 1.0
// @description Streaming chat backend for low-refresh e-ink browsers
// @description
// @description Features:
// @description - Replies streamed as server-sent events of small html fragments
// @description - Paced chunk delivery tuned for e-ink refresh rates
// @description - Cookie-based conversation sessions persisted to disk
// @description - WebSocket transport for interactive clients

// @license.name MIT

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := config.Flags{ChunkSize: -1, DelayMS: -1, QueueDepth: -1}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			return serve(cfg)
		},
	}

	showCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")

			return out.Encode(cfg.StreamSummary())
		},
	}

	root := &cobra.Command{
		Use:          "aichat",
		Short:        "Streaming AI chat server for e-ink browsers",
		SilenceUsage: true,
		RunE:         serveCmd.RunE,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.Port, "port", "", "port to listen on (overrides PORT)")
	pf.StringVar(&flags.DataDir, "data-dir", "", "directory for conversation files (overrides DATA_DIR)")
	pf.StringVar(&flags.Provider, "provider", "", "llm provider: anthropic, openai or echo (overrides LLM_PROVIDER)")
	pf.IntVar(&flags.ChunkSize, "chunk-size", -1, "maximum characters per chunk (overrides STREAM_CHUNK_SIZE)")
	pf.IntVar(&flags.DelayMS, "delay-ms", -1, "pause between chunks in milliseconds (overrides STREAM_DELAY_MS)")
	pf.IntVar(&flags.QueueDepth, "queue-depth", -1, "chunks buffered ahead of the client (overrides STREAM_QUEUE_DEPTH)")

	root.AddCommand(serveCmd, showCmd)

	return root
}

func loadConfig(flags config.Flags) (*config.Config, error) {
	cfg, err := config.LoadEnvironmentVariables()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.ApplyFlags(flags); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	logger.Setup(cfg.Environment, cfg.LogLevel)

	return cfg, nil
}

func serve(cfg *config.Config) error {
	logger.Info("starting aichat server", "environment", cfg.Environment)

	// create server with all dependencies
	srv, err := NewServer(cfg)
	if err != nil {
		logger.FatalErr(err, "failed to create server")
	}

	// no WriteTimeout: a streamed reply keeps the response open
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server in goroutine
	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "port", cfg.Port, "error", err)
		}
	}()

	// start websocket hub
	go srv.hub.Run()

	// start session cleanup service with cancellable context
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	go srv.cleanupService.Start(cleanupCtx)

	// wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// stop cleanup service
	cleanupCancel()

	logger.Info("shutting down server")

	// notify websocket clients and close connections first
	srv.hub.Shutdown()

	// graceful shutdown with 10 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped", "sessions", srv.registry.Len())

	return nil
}
