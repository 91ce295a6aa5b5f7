package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the depobot application
var rootCmd = &cobra.Command{
	Use:   "depobot",
	Short: "Records Zoom depositions with Recall.ai bots and files the transcripts",
	Long: `depobot is a Zoom App backend. It sends a Recall.ai bot to every meeting
created by an installed user, and when the meeting ends it formats the
transcript, uploads it to S3 and files it with the deposition API.

It can run as:
  - An HTTP server receiving Zoom webhooks (serve)
  - A local transcript formatter (format)
  - A one-time code generator for the deposition API (totp)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "depobot version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newFormatCmd())
	rootCmd.AddCommand(newTOTPCmd())
	rootCmd.AddCommand(newVersionCmd())
}
