// Package cmd defines the nviv command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nviv",
	Short: "Nviv - AI assistant gateway for web and WhatsApp",
	Long: `Nviv is an AI assistant gateway. It serves a web chat API and
WhatsApp webhooks (Twilio and Meta), drives a tool-calling model loop,
and keeps durable per-session conversation history.

Running nviv without a subcommand starts the gateway server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
