package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pedrovictor26/ofix-assistant/internal/api"
	"github.com/pedrovictor26/ofix-assistant/internal/assistant"
	"github.com/pedrovictor26/ofix-assistant/internal/cache"
	"github.com/pedrovictor26/ofix-assistant/internal/config"
	"github.com/pedrovictor26/ofix-assistant/internal/dialog"
	"github.com/pedrovictor26/ofix-assistant/internal/gateway"
	"github.com/pedrovictor26/ofix-assistant/internal/provider"
	"github.com/pedrovictor26/ofix-assistant/internal/schedule"
	"github.com/pedrovictor26/ofix-assistant/internal/session"
	"github.com/pedrovictor26/ofix-assistant/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the assistant server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "ofix-assistant version %s\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Optional Redis response cache.
	var responseCache cache.Cache = cache.Noop{}
	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("redis unavailable, response cache disabled", "error", err)
		} else {
			defer redisCache.Close()
			responseCache = redisCache
			slog.Info("response cache enabled")
		}
	}

	// Provider chain, in priority order.
	providers := []provider.Provider{provider.NewRuleBased()}
	if cfg.Ollama.Enabled {
		ollama := provider.NewOllama(cfg.Ollama.BaseURL, cfg.Ollama.Model, cfg.Ollama.EmbedModel)
		if ollama.IsRunning(ctx) {
			providers = append(providers, ollama)
			slog.Info("ollama provider enabled", "model", cfg.Ollama.Model)
		} else {
			slog.Warn("ollama enabled but not reachable, skipping", "base_url", cfg.Ollama.BaseURL)
		}
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, provider.NewAnthropic(cfg.Anthropic.APIKey, cfg.Anthropic.Model))
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, provider.NewOpenRouter(cfg.OpenRouter.APIKey, cfg.OpenRouter.Model))
	}
	if len(providers) == 1 {
		slog.Warn("no model provider configured; only rule-based responses available")
	}

	gw := gateway.New(providers,
		gateway.WithCache(responseCache),
		gateway.WithBreaker(gateway.NewBreaker(gateway.DefaultCooldown), "anthropic"),
	)

	// Dialogue engine.
	sessions := session.NewStore(session.DefaultTTL)
	executor := schedule.NewExecutor(store)
	controller := dialog.NewController(sessions, executor)
	engine := assistant.New(controller, gw, store, sessions)

	// HTTP server.
	handler := api.NewHandler(engine, cfg.Server.APIToken)
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	// MCP server (stdio transport).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Router: engine, Sessions: sessions})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("assistant listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	// Expiry sweep for abandoned conversations.
	sweeper := session.NewSweeper(sessions, session.DefaultSweepInterval)
	g.Go(func() error {
		sweeper.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
