package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nviv/nviv/internal/bridge"
	"github.com/nviv/nviv/internal/config"
	"github.com/nviv/nviv/internal/log"
)

func validTestConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Provider:             config.ProviderOpenAI,
		APIKey:               "test-key",
		ModelName:            "gpt-4o",
		ToolServerCommand:    "/nonexistent/toolserver",
		BridgeConnectTimeout: time.Second,
		StorePath:            filepath.Join(t.TempDir(), "history.sqlite"),
		MaxToolIterations:    10,
	}
}

func TestSetupRejectsInvalidConfig(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.APIKey = ""

	_, err := Setup(context.Background(), cfg, log.NewNop())
	require.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, config.ErrMissingAPIKey)
}

func TestSetupRejectsMissingToolServer(t *testing.T) {
	cfg := validTestConfig(t)
	cfg.ToolServerCommand = ""

	_, err := Setup(context.Background(), cfg, log.NewNop())
	require.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, config.ErrMissingToolServer)
}

func TestSetupFailsWhenToolServerCannotStart(t *testing.T) {
	cfg := validTestConfig(t)

	_, err := Setup(context.Background(), cfg, log.NewNop())
	require.ErrorIs(t, err, ErrInitialization)
	assert.ErrorIs(t, err, bridge.ErrConnection)
}

func TestProvideModel(t *testing.T) {
	t.Run("openai", func(t *testing.T) {
		model, err := provideModel(&config.Config{
			Provider:  config.ProviderOpenAI,
			APIKey:    "test-key",
			ModelName: "gpt-4o",
		})
		require.NoError(t, err)
		assert.NotNil(t, model)
	})

	t.Run("openai with base url", func(t *testing.T) {
		model, err := provideModel(&config.Config{
			Provider:  config.ProviderOpenAI,
			APIKey:    "test-key",
			ModelName: "llama3",
			BaseURL:   "http://localhost:11434/v1",
		})
		require.NoError(t, err)
		assert.NotNil(t, model)
	})

	t.Run("azure", func(t *testing.T) {
		model, err := provideModel(&config.Config{
			Provider:        config.ProviderAzure,
			APIKey:          "test-key",
			AzureEndpoint:   "https://example.openai.azure.com",
			AzureDeployment: "gpt-4o-deploy",
			AzureAPIVersion: "2024-02-15-preview",
		})
		require.NoError(t, err)
		assert.NotNil(t, model)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := provideModel(&config.Config{Provider: "anthropic"})
		assert.ErrorIs(t, err, config.ErrInvalidProvider)
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	a := &App{Logger: log.NewNop()}
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
