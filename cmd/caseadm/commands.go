package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"inspection-platform/internal/app"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the Postgres schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := a.Migrate(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <case-id>",
	Short: "Print the transition ledger of a case",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			recs, err := a.Cases.History(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <case-id>",
	Short: "Replay the ledger and compare it with the stored status",
	Long: `Replays the transition ledger of a case from CREATED and checks that
every record continues the previous one and the chain ends at the stored
status. Exits non-zero when the ledger and the case disagree.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep, err := a.Cases.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
			if !rep.OK {
				return fmt.Errorf("ledger of case %s is inconsistent: %s", args[0], rep.Problem)
			}
			return nil
		})
	},
}

var redriveCmd = &cobra.Command{
	Use:   "billing-redrive",
	Short: "Deliver due billing outbox entries once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Billing.Redrive(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		})
	},
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
