package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "promptctl",
	Short: "Decode images into prompts from the command line",
	Long: `promptctl runs the prompt decoder pipeline locally.

Available commands:
  decode      - Preprocess an image and reconstruct prompts for it
  preprocess  - Bound and re-encode an image the way uploads are
  share       - Encode or decode share tokens`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(preprocessCmd)
	rootCmd.AddCommand(shareCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
