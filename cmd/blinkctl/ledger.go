package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"blinkshop/core"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the authentication freshness ledger",
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show <email>",
	Short: "Print the raw ledger row for an email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		email, err := core.ValidateEmail(args[0])
		if err != nil {
			return err
		}
		db, err := core.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		u, err := core.NewPgFreshnessLedger(db).Get(ctx, email)
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("no ledger row for %s", email)
		}
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(u, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(out))
		return nil
	},
}

var ledgerFreshCmd = &cobra.Command{
	Use:   "fresh <email>",
	Short: "Report whether an email is inside the freshness window (read-only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		db, err := core.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		checker := core.NewFreshnessChecker(core.NewPgFreshnessLedger(db), cfg.AuthWindow(), time.Now, nil)
		fresh, err := checker.Fresh(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Printf("%s fresh=%t window=%s\n", core.NormalizeEmail(args[0]), fresh, checker.Window())
		return nil
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerFreshCmd)
	rootCmd.AddCommand(ledgerCmd)
}
