package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	orchestration "github.com/koscakluka/ema-chat/core"
	"github.com/koscakluka/ema-chat/core/conversations"
	"github.com/koscakluka/ema-chat/core/conversations/sqlite"
	"github.com/koscakluka/ema-chat/core/llms"
	"github.com/koscakluka/ema-chat/core/llms/anthropic"
	"github.com/koscakluka/ema-chat/core/llms/chatcompletions"
	"github.com/koscakluka/ema-chat/core/llms/gemini"
	"github.com/koscakluka/ema-chat/core/llms/openai"
	"github.com/koscakluka/ema-chat/core/tools"
	"github.com/koscakluka/ema-chat/core/tools/mcp"
	"github.com/koscakluka/ema-chat/core/tools/websearch"
	"github.com/koscakluka/ema-chat/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"gopkg.in/natefinch/lumberjack.v2"
)

const searchCacheSize = 256

// app is everything a command needs, built from one config.
type app struct {
	config       *config.Config
	orchestrator *orchestration.Orchestrator

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, handlers ...orchestration.EventHandler) (*app, error) {
	a := &app{config: cfg}

	logOutput := a.setupLogging(cfg.Logging)
	if err := a.setupMetrics(cfg.Metrics, logOutput); err != nil {
		return nil, a.abort(err)
	}

	backend, err := newBackend(ctx, cfg.Backend)
	if err != nil {
		return nil, a.abort(err)
	}
	store, err := a.openStore(cfg.Storage)
	if err != nil {
		return nil, a.abort(err)
	}
	registry, err := newRegistry(ctx, cfg.Tools)
	if err != nil {
		return nil, a.abort(err)
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithBackend(backend),
		orchestration.WithModel(cfg.Backend.Model),
		orchestration.WithMaxTokens(cfg.Backend.MaxTokens),
		orchestration.WithCapabilities(llms.Capabilities{
			Tools:         cfg.Capabilities.Tools,
			Images:        cfg.Capabilities.Images,
			Reasoning:     cfg.Capabilities.Reasoning,
			ContextWindow: cfg.Capabilities.ContextWindow,
		}),
		orchestration.WithStore(store),
		orchestration.WithToolRegistry(registry),
		orchestration.WithPacing(pacingConfig(cfg.Pacing)),
		orchestration.WithMaxOutputBytes(cfg.Tools.MaxOutputBytes),
	}
	for _, handler := range handlers {
		opts = append(opts, orchestration.WithEventHandler(handler))
	}
	a.orchestrator = orchestration.NewOrchestrator(opts...)

	watcher, err := config.Watch(configPath, func(updated *config.Config) {
		a.orchestrator.SetPacing(pacingConfig(updated.Pacing))
		slog.Info("pacing updated", "duration", updated.Pacing.Duration, "frequency", updated.Pacing.Frequency)
	})
	if err != nil {
		slog.Warn("config changes will not be picked up", "error", err)
	} else {
		a.closers = append(a.closers, func(context.Context) error { return watcher.Close() })
	}

	return a, nil
}

func (a *app) abort(err error) error {
	return errors.Join(err, a.Close(context.Background()))
}

// Close cancels running turns and releases resources in reverse order of
// acquisition.
func (a *app) Close(ctx context.Context) error {
	if a.orchestrator != nil {
		a.orchestrator.CancelAll()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) setupLogging(cfg config.LoggingConfig) io.Writer {
	var output io.Writer = os.Stderr
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		a.closers = append(a.closers, func(context.Context) error { return rotated.Close() })
		output = rotated
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})))
	return output
}

// setupMetrics installs a meter provider that periodically writes every
// instrument to output.
func (a *app) setupMetrics(cfg config.MetricsConfig, output io.Writer) error {
	if !cfg.Enabled {
		return nil
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(output))
	if err != nil {
		return fmt.Errorf("failed to create metric exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
	)
	otel.SetMeterProvider(provider)
	a.closers = append(a.closers, provider.Shutdown)
	return nil
}

func (a *app) openStore(cfg config.StorageConfig) (conversations.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return conversations.NewMemoryStore(), nil
	}
}

func newBackend(ctx context.Context, cfg config.BackendConfig) (llms.Backend, error) {
	apiKey := cfg.APIKey()

	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		var opts []openai.Option
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(apiKey, opts...), nil

	case config.ProviderChatCompletions:
		var opts []chatcompletions.Option
		if cfg.BaseURL != "" {
			opts = append(opts, chatcompletions.WithBaseURL(cfg.BaseURL))
		}
		return chatcompletions.New(apiKey, opts...), nil

	case config.ProviderAnthropic:
		var opts []anthropic.Option
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		return anthropic.New(apiKey, opts...), nil

	case config.ProviderGemini:
		var opts []gemini.Option
		if cfg.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.BaseURL))
		}
		backend, err := gemini.New(ctx, apiKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini backend: %w", err)
		}
		return backend, nil
	}
	return nil, fmt.Errorf("unsupported backend provider %q", cfg.Provider)
}

// newRegistry registers the built-in tools, web search when configured, and
// the tools of every reachable MCP server. Unreachable servers are logged and
// skipped.
func newRegistry(ctx context.Context, cfg config.ToolsConfig) (*tools.Registry, error) {
	registry, err := tools.NewRegistry(builtinTools()...)
	if err != nil {
		return nil, err
	}

	if cfg.WebSearch.Provider != "" {
		cache := websearch.NewCache(searchCacheSize)
		fetcher := websearch.NewFetcher(websearch.WithFetchCache(cache))
		searcher := websearch.NewSearcher(
			websearch.WithProvider(cfg.WebSearch.Provider, cfg.WebSearch.APIKey()),
			websearch.WithMaxResults(cfg.WebSearch.MaxResults),
			websearch.WithSearchCache(cache),
		)
		err := errors.Join(
			registry.Register(websearch.NewSearchTool(searcher, websearch.WithPageFetching(fetcher, cfg.WebSearch.FetchPages))),
			registry.Register(websearch.NewFetchTool(fetcher)),
		)
		if err != nil {
			return nil, err
		}
	}

	if len(cfg.MCPServers) > 0 {
		servers := make([]mcp.Server, 0, len(cfg.MCPServers))
		for _, server := range cfg.MCPServers {
			servers = append(servers, mcp.Server{Name: server.Name, URL: server.URL})
		}
		clients, err := mcp.Discover(ctx, registry, servers)
		if err != nil {
			slog.Warn("some mcp servers are unavailable", "error", err)
		}
		for _, client := range clients {
			info := client.ServerInfo()
			slog.Info("connected mcp server", "name", client.Name(), "server", info.Name, "version", info.Version)
		}
	}

	return registry, nil
}

func pacingConfig(cfg config.PacingConfig) orchestration.PacingConfig {
	tiers := make([]orchestration.PacingTier, 0, len(cfg.Tiers))
	for _, tier := range cfg.Tiers {
		tiers = append(tiers, orchestration.PacingTier{Characters: tier.Characters, Frequency: tier.Frequency})
	}
	return orchestration.PacingConfig{Duration: cfg.Duration, Frequency: cfg.Frequency, Tiers: tiers}
}
