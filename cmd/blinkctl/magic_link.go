package main

import (
	"github.com/spf13/cobra"

	"blinkshop/core"
)

var magicLinkCmd = &cobra.Command{
	Use:   "magic-link <email>",
	Short: "Email a magic link that lands on the confirm page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		store := core.NewGoTrueClient(cfg.SupabaseURL, cfg.SupabaseAnonKey)
		if err := core.NewMagicLinkTrigger(store, cfg.ConfirmRedirectURL()).Trigger(ctx, args[0]); err != nil {
			return err
		}
		cmd.Printf("magic link sent to %s\n", core.NormalizeEmail(args[0]))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(magicLinkCmd)
}
