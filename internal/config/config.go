// Package config provides gateway configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (NVIV_* prefix, runtime override)
//  2. Config file (~/.nviv/config.yaml)
//  3. Default values
//
// Security: secret values (API keys, auth tokens) are never logged.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the model API key is missing.
	ErrMissingAPIKey = errors.New("missing model API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid model provider")

	// ErrMissingAzureEndpoint indicates the Azure endpoint is not set.
	ErrMissingAzureEndpoint = errors.New("missing Azure OpenAI endpoint")

	// ErrMissingDeployment indicates the Azure deployment name is not set.
	ErrMissingDeployment = errors.New("missing Azure OpenAI deployment")

	// ErrInvalidToolIterations indicates the tool-loop cap is out of range.
	ErrInvalidToolIterations = errors.New("invalid max tool iterations")

	// ErrMissingToolServer indicates the tool server command is empty.
	ErrMissingToolServer = errors.New("missing tool server command")

	// ErrInvalidStorePath indicates the conversation store path is empty.
	ErrInvalidStorePath = errors.New("invalid store path")
)

// Model providers supported by the gateway.
const (
	ProviderOpenAI = "openai"
	ProviderAzure  = "azure"
)

const (
	// DefaultMaxToolIterations bounds the model/tool loop per turn.
	DefaultMaxToolIterations = 10

	// MaxAllowedToolIterations is the absolute cap.
	MaxAllowedToolIterations = 50

	// DefaultBridgeConnectTimeout bounds the tool bridge handshake.
	DefaultBridgeConnectTimeout = 30 * time.Second

	// DefaultImageRetention is how long generated images are kept on disk.
	DefaultImageRetention = 24 * time.Hour
)

// Config holds all gateway configuration.
type Config struct {
	// Model provider
	Provider        string // "openai" or "azure"
	APIKey          string
	ModelName       string
	BaseURL         string // optional OpenAI-compatible base URL
	AzureEndpoint   string
	AzureDeployment string
	AzureAPIVersion string
	WhisperModel    string // transcription deployment/model

	// Image generation
	ImageAPIURL string // OpenAI-compatible image generation endpoint
	ImageModel  string

	// Tool bridge
	ToolServerCommand    string
	ToolServerArgs       []string
	BridgeConnectTimeout time.Duration

	// Conversation store
	StorePath string

	// Agent
	MaxToolIterations int
	KnowledgeBasePath string

	// HTTP surface
	Addr            string
	PublicBaseURL   string
	ImageDir        string
	ImageRetention  time.Duration
	MetaVerifyToken string

	// Twilio
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Meta WhatsApp
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from defaults, the optional config file, and
// NVIV_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("NVIV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
			// No config file is fine; defaults + env apply.
		}
	}

	cfg := &Config{
		Provider:        v.GetString("provider"),
		APIKey:          v.GetString("api_key"),
		ModelName:       v.GetString("model_name"),
		BaseURL:         v.GetString("base_url"),
		AzureEndpoint:   v.GetString("azure_endpoint"),
		AzureDeployment: v.GetString("azure_deployment"),
		AzureAPIVersion: v.GetString("azure_api_version"),
		WhisperModel:    v.GetString("whisper_model"),

		ImageAPIURL: v.GetString("image_api_url"),
		ImageModel:  v.GetString("image_model"),

		ToolServerCommand:    v.GetString("tool_server_command"),
		ToolServerArgs:       v.GetStringSlice("tool_server_args"),
		BridgeConnectTimeout: v.GetDuration("bridge_connect_timeout"),

		StorePath: v.GetString("store_path"),

		MaxToolIterations: v.GetInt("max_tool_iterations"),
		KnowledgeBasePath: v.GetString("knowledge_base_path"),

		Addr:            v.GetString("addr"),
		PublicBaseURL:   v.GetString("public_base_url"),
		ImageDir:        v.GetString("image_dir"),
		ImageRetention:  v.GetDuration("image_retention"),
		MetaVerifyToken: v.GetString("meta_verify_token"),

		TwilioAccountSID: v.GetString("twilio_account_sid"),
		TwilioAuthToken:  v.GetString("twilio_auth_token"),
		TwilioFromNumber: v.GetString("twilio_from_number"),

		WhatsAppAccessToken:   v.GetString("whatsapp_access_token"),
		WhatsAppPhoneNumberID: v.GetString("whatsapp_phone_number_id"),

		LogLevel: v.GetString("log_level"),
		LogJSON:  v.GetBool("log_json"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".nviv")

	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", "gpt-4o")
	v.SetDefault("azure_api_version", "2024-02-15-preview")
	v.SetDefault("whisper_model", "whisper-1")
	v.SetDefault("image_model", "dall-e-3")

	// By default the tool server is this same binary in toolserver mode.
	exe, err := os.Executable()
	if err != nil {
		exe = "nviv"
	}
	v.SetDefault("tool_server_command", exe)
	v.SetDefault("tool_server_args", []string{"toolserver"})
	v.SetDefault("bridge_connect_timeout", DefaultBridgeConnectTimeout)

	v.SetDefault("store_path", filepath.Join(dataDir, "chat_history.sqlite"))
	v.SetDefault("max_tool_iterations", DefaultMaxToolIterations)

	v.SetDefault("addr", "127.0.0.1:8000")
	v.SetDefault("image_dir", filepath.Join(dataDir, "generated_images"))
	v.SetDefault("image_retention", DefaultImageRetention)

	v.SetDefault("log_level", "info")
}

// configDir returns ~/.nviv, creating it with restricted permissions.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".nviv")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// LogSlogLevel converts the configured level name to a slog.Level.
func (c *Config) LogSlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
