package app

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/nviv/nviv/internal/agent"
	"github.com/nviv/nviv/internal/bridge"
	"github.com/nviv/nviv/internal/config"
	"github.com/nviv/nviv/internal/conversation"
	"github.com/nviv/nviv/internal/log"
)

// modelCallsPerSecond is the proactive rate limit applied in front of the
// provider's own limits.
const modelCallsPerSecond = 2

// Setup validates the serving configuration and builds the application.
// Any failure returns an error wrapping ErrInitialization; resources built
// before the failure are released.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	if err := cfg.ValidateServe(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	a := &App{Config: cfg, Logger: logger}

	// On error, release everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	b, err := provideBridge(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	a.Bridge = b

	model, err := provideModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: building model client: %w", ErrInitialization, err)
	}
	a.Model = model

	store, err := conversation.Open(cfg.StorePath, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	a.Store = store

	ag, err := agent.New(agent.Config{
		Model:             model,
		Tools:             b.Tools(),
		Invoker:           b,
		Store:             store,
		Logger:            logger,
		SystemPrompt:      agent.BuildSystemPrompt(cfg.KnowledgeBasePath),
		MaxToolIterations: cfg.MaxToolIterations,
		RetryConfig:       agent.DefaultRetryConfig(),
		RateLimiter:       rate.NewLimiter(rate.Limit(modelCallsPerSecond), modelCallsPerSecond),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	a.Agent = ag

	logger.Info("application ready",
		"provider", cfg.Provider,
		"model", cfg.ModelName,
		"tools", len(b.Tools()),
	)
	return a, nil
}

// provideBridge launches the tool server and discovers its tools.
func provideBridge(ctx context.Context, cfg *config.Config, logger log.Logger) (*bridge.Bridge, error) {
	b := bridge.New(bridge.Config{
		Command:        cfg.ToolServerCommand,
		Args:           cfg.ToolServerArgs,
		ConnectTimeout: cfg.BridgeConnectTimeout,
		Logger:         logger,
	})
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// provideModel builds the chat model client for the configured provider.
func provideModel(cfg *config.Config) (llms.Model, error) {
	switch cfg.Provider {
	case config.ProviderAzure:
		return openai.New(
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithToken(cfg.APIKey),
			openai.WithBaseURL(cfg.AzureEndpoint),
			openai.WithModel(cfg.AzureDeployment),
			openai.WithAPIVersion(cfg.AzureAPIVersion),
		)
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.ModelName),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.Provider)
	}
}
