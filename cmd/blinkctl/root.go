package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"blinkshop/core"
)

var cfg core.Config

var rootCmd = &cobra.Command{
	Use:   "blinkctl",
	Short: "Operator tooling for the BlinkShop auth ledger",
	Long: `blinkctl runs migrations, inspects the authentication freshness ledger
and sends magic links without going through the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		cfg = core.Load()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 30*time.Second)
}
