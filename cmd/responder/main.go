// Package main provides the entry point for the auto-responder.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "responder",
	Short: "Automatic responses to new backoffice orders",
	Long: `Responder watches the order feed of an authenticated backoffice session, skips orders
that were already handled or match the exclusion pattern, and sends the suggested reply to
every remaining order exactly once.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
