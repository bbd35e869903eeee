package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nviv/nviv/internal/config"
	"github.com/nviv/nviv/internal/log"
	"github.com/nviv/nviv/internal/media"
	"github.com/nviv/nviv/internal/toolserver"
)

var toolserverCmd = &cobra.Command{
	Use:   "toolserver",
	Short: "Run the MCP tool server on stdio",
	Long: `Runs the communication tool server speaking MCP on stdin/stdout.
The gateway spawns this subcommand automatically; running it by hand is
mainly useful with MCP inspection tooling.`,
	RunE: runToolServer,
}

func init() {
	rootCmd.AddCommand(toolserverCmd)
}

func runToolServer(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// stdout carries the MCP protocol; the logger uses stderr.
	logger := log.New(log.Config{Level: cfg.LogSlogLevel(), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	images, err := media.New(media.Config{
		Dir:     cfg.ImageDir,
		BaseURL: cfg.PublicBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("initializing image store: %w", err)
	}

	srv := toolserver.New(toolserver.Config{
		Twilio:      provideTwilio(cfg, logger),
		Meta:        provideMeta(cfg, logger),
		Images:      images,
		ImageAPIURL: cfg.ImageAPIURL,
		ImageAPIKey: cfg.APIKey,
		ImageModel:  cfg.ImageModel,
		Logger:      logger,
	})
	return srv.Run(cmd.Context())
}
