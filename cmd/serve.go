package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nviv/nviv/api"
	"github.com/nviv/nviv/internal/app"
	"github.com/nviv/nviv/internal/config"
	"github.com/nviv/nviv/internal/diag"
	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/media"
	"github.com/nviv/nviv/internal/messaging"
	"github.com/nviv/nviv/internal/speech"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Recent log lines are mirrored into a ring buffer served at /logs.
	buf := diag.NewBuffer(diag.DefaultCapacity)
	base := log.New(log.Config{Level: cfg.LogSlogLevel(), JSON: cfg.LogJSON})
	logger := slog.New(diag.NewHandler(base.Handler(), buf))

	logger.Info("starting gateway", "version", Version)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	images, err := media.New(media.Config{
		Dir:       cfg.ImageDir,
		BaseURL:   cfg.PublicBaseURL,
		Retention: cfg.ImageRetention,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("initializing image store: %w", err)
	}
	images.StartCleanup()
	defer images.StopCleanup()

	srv := api.NewServer(api.ServerConfig{
		Chat:            a.Agent,
		Transcriber:     provideTranscriber(cfg, logger),
		Twilio:          provideTwilio(cfg, logger),
		Meta:            provideMeta(cfg, logger),
		Images:          images,
		Diag:            buf,
		Logger:          logger,
		MetaVerifyToken: cfg.MetaVerifyToken,
	})
	return srv.Run(ctx, cfg.Addr)
}

func provideTranscriber(cfg *config.Config, logger log.Logger) *speech.Transcriber {
	endpoint := speech.OpenAIEndpoint(cfg.BaseURL)
	if cfg.Provider == config.ProviderAzure {
		endpoint = speech.AzureEndpoint(cfg.AzureEndpoint, cfg.WhisperModel, cfg.AzureAPIVersion)
	}
	return speech.New(speech.Config{
		APIKey:   cfg.APIKey,
		Model:    cfg.WhisperModel,
		Endpoint: endpoint,
		Logger:   logger,
	})
}

func provideTwilio(cfg *config.Config, logger log.Logger) *messaging.Twilio {
	var statusCallback string
	if cfg.PublicBaseURL != "" {
		statusCallback = strings.TrimRight(cfg.PublicBaseURL, "/") + "/twilio/status"
	}
	return messaging.NewTwilio(messaging.TwilioConfig{
		AccountSID:     cfg.TwilioAccountSID,
		AuthToken:      cfg.TwilioAuthToken,
		FromNumber:     cfg.TwilioFromNumber,
		StatusCallback: statusCallback,
		Logger:         logger,
	})
}

func provideMeta(cfg *config.Config, logger log.Logger) *messaging.Meta {
	return messaging.NewMeta(messaging.MetaConfig{
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		Logger:        logger,
	})
}
