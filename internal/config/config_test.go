package config

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Provider != ProviderOpenAI {
		t.Errorf("Provider = %q, want %q", cfg.Provider, ProviderOpenAI)
	}
	if cfg.ModelName != "gpt-4o" {
		t.Errorf("ModelName = %q, want gpt-4o", cfg.ModelName)
	}
	if cfg.MaxToolIterations != DefaultMaxToolIterations {
		t.Errorf("MaxToolIterations = %d, want %d", cfg.MaxToolIterations, DefaultMaxToolIterations)
	}
	if cfg.BridgeConnectTimeout != DefaultBridgeConnectTimeout {
		t.Errorf("BridgeConnectTimeout = %v, want %v", cfg.BridgeConnectTimeout, DefaultBridgeConnectTimeout)
	}
	if cfg.StorePath == "" {
		t.Error("StorePath should have a default")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("NVIV_PROVIDER", "azure")
	t.Setenv("NVIV_MODEL_NAME", "gpt-4o-mini")
	t.Setenv("NVIV_MAX_TOOL_ITERATIONS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Provider != ProviderAzure {
		t.Errorf("Provider = %q, want azure", cfg.Provider)
	}
	if cfg.ModelName != "gpt-4o-mini" {
		t.Errorf("ModelName = %q, want gpt-4o-mini", cfg.ModelName)
	}
	if cfg.MaxToolIterations != 3 {
		t.Errorf("MaxToolIterations = %d, want 3", cfg.MaxToolIterations)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Provider:          ProviderOpenAI,
			MaxToolIterations: 10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad provider", func(c *Config) { c.Provider = "anthropic" }, ErrInvalidProvider},
		{"zero iterations", func(c *Config) { c.MaxToolIterations = 0 }, ErrInvalidToolIterations},
		{"excessive iterations", func(c *Config) { c.MaxToolIterations = 1000 }, ErrInvalidToolIterations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Provider:          ProviderAzure,
			APIKey:            "key",
			AzureEndpoint:     "https://example.openai.azure.com",
			AzureDeployment:   "gpt-4o",
			ToolServerCommand: "/usr/local/bin/nviv",
			StorePath:         "/tmp/nviv.sqlite",
			MaxToolIterations: 10,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid azure", func(*Config) {}, nil},
		{"missing api key", func(c *Config) { c.APIKey = "" }, ErrMissingAPIKey},
		{"missing azure endpoint", func(c *Config) { c.AzureEndpoint = "" }, ErrMissingAzureEndpoint},
		{"missing deployment", func(c *Config) { c.AzureDeployment = "" }, ErrMissingDeployment},
		{"missing tool server", func(c *Config) { c.ToolServerCommand = "" }, ErrMissingToolServer},
		{"missing store path", func(c *Config) { c.StorePath = "" }, ErrInvalidStorePath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.ValidateServe()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateServe() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateServe() = %v, want %v", err, tt.wantErr)
			}
		})
	}

	t.Run("openai does not need azure fields", func(t *testing.T) {
		cfg := valid()
		cfg.Provider = ProviderOpenAI
		cfg.AzureEndpoint = ""
		cfg.AzureDeployment = ""
		if err := cfg.ValidateServe(); err != nil {
			t.Errorf("ValidateServe() = %v, want nil", err)
		}
	})
}

func TestLogSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.LogSlogLevel(); got != tt.want {
			t.Errorf("LogSlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestImageRetentionDefault(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ImageRetention != 24*time.Hour {
		t.Errorf("ImageRetention = %v, want 24h", cfg.ImageRetention)
	}
}
