package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warp/tutoring-ledger/ledger"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one overdue sweep and exit",
	Long: `Moves invoices past their due date (plus grace period) to overdue and
advances the reminder schedule, then exits. Safe to run several times a
day: a second run on the same day changes nothing.

Examples:
  server sweep
  server sweep --config /etc/tutorledger/config.yaml`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.invoices.Sweep(cmd.Context(), ledger.UTCNow())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked %d, overdue %d, reminders %d, skipped %d\n",
		report.Checked, report.BecameOverdue, report.Reminders, report.Conflicts)
	return nil
}
