package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/chat"
	"loom/internal/config"
	"loom/internal/contextmgr"
	"loom/internal/httpapi"
	"loom/internal/notifier"
	"loom/internal/orchestrator"
	"loom/internal/provider"
	"loom/internal/provider/anthropic"
	"loom/internal/provider/openai"
	"loom/internal/storage"
	"loom/internal/tools/builtin"
	"loom/pkg/logger"
)

func newServeCmd() *cobra.Command {
	var port int
	var host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP/WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Gateway.Port = port
			}
			if host != "" {
				cfg.Gateway.Host = host
			}
			return runServe(cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().StringVar(&host, "host", "", "host to bind to (overrides config)")
	return cmd
}

func runServe(cfg *config.Config) error {
	db, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	registry := builtin.NewRegistryWithBuiltins(db)
	registry.SetRecorder(storage.NewExecutionRecorder(db))

	registerProviders(cfg)

	hub := notifier.NewHub()
	defer hub.Close()

	contextManager := contextmgr.New(cfg.Context.MaxTokens)
	orch := orchestrator.New(db, registry, hub, contextManager, cfg.Queue.MaxConcurrent, 0)
	facade := chat.New(db, orch, cfg.Providers.Default, defaultModelFor(cfg))

	router := httpapi.NewRouter(facade, hub)

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("loomd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// registerProviders wires the Anthropic and OpenAI adapters into the
// process-wide provider registry whenever their API keys are configured.
// A provider with no key configured is simply skipped rather than failing
// startup — a deployment may only ever use one of the two.
func registerProviders(cfg *config.Config) {
	if cfg.Providers.Anthropic.APIKey != "" {
		p, err := anthropic.New(anthropic.Config{
			APIKey:       cfg.Providers.Anthropic.APIKey,
			DefaultModel: cfg.Providers.Anthropic.DefaultModel,
			MaxTokens:    cfg.Providers.Anthropic.MaxTokens,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to construct anthropic provider")
		} else {
			provider.Register(p)
		}
	}
	if cfg.Providers.OpenAI.APIKey != "" {
		p, err := openai.New(openai.Config{
			APIKey:       cfg.Providers.OpenAI.APIKey,
			DefaultModel: cfg.Providers.OpenAI.DefaultModel,
			MaxTokens:    cfg.Providers.OpenAI.MaxTokens,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("failed to construct openai provider")
		} else {
			provider.Register(p)
		}
	}
	if cfg.Providers.Default != "" {
		provider.SetDefault(cfg.Providers.Default)
	}
}

func defaultModelFor(cfg *config.Config) string {
	switch cfg.Providers.Default {
	case "openai":
		return cfg.Providers.OpenAI.DefaultModel
	default:
		return cfg.Providers.Anthropic.DefaultModel
	}
}
