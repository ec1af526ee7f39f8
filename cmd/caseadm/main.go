// Command caseadm is the operator CLI for the inspection case service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"inspection-platform/internal/app"
	"inspection-platform/internal/config"
	"inspection-platform/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "caseadm",
	Short: "Operate the inspection case store",
	Long: `caseadm runs maintenance tasks against the configured stores.

It reads the same environment as the API process.

Examples:
  caseadm migrate                 # apply case, history and outbox schema
  caseadm history <case-id>       # print the transition ledger as JSON
  caseadm verify <case-id>        # replay the ledger against the stored status
  caseadm billing-redrive         # deliver due billing outbox entries once`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(redriveCmd)
}

// withApp loads config, wires the stores, runs fn and releases connections.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := logger.NewWithWriter(cfg.App.Env, cmd.ErrOrStderr())
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(logger.With(ctx, log), a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
