package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"goalpost/internal/core"
)

var (
	flagPercentOnly bool
	flagIncome      bool
)

var progressCmd = &cobra.Command{
	Use:   "progress <goal-id>",
	Short: "Show a goal's current progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgress,
}

var claimCmd = &cobra.Command{
	Use:   "claim <user> <start> <end>",
	Short: "Carve a date span into the user's range partition",
	Long: "Splits any ranges overlapping the span, migrates their contribution " +
		"percentages and fills uncovered gaps. Dates are YYYY-MM-DD, bounds inclusive.",
	Args: cobra.ExactArgs(3),
	RunE: runClaim,
}

var seedTxCmd = &cobra.Command{
	Use:   "seed-tx <user> <amount> <date>",
	Short: "Insert a transaction into the local read model",
	Args:  cobra.ExactArgs(3),
	RunE:  runSeedTx,
}

func init() {
	progressCmd.Flags().BoolVar(&flagPercentOnly, "percent", false, "Print the bare percentage only")
	seedTxCmd.Flags().BoolVar(&flagIncome, "income", false, "Record as income instead of expense")

	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(seedTxCmd)
}

func runProgress(cmd *cobra.Command, args []string) error {
	goalID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid goal id %q", args[0])
	}

	a := newApp()
	defer a.Close()

	goal, err := a.repo.GetGoal(cmd.Context(), goalID)
	if err != nil {
		return err
	}
	report, err := a.progress.Report(cmd.Context(), goal, core.Today())
	if err != nil {
		return err
	}

	if flagPercentOnly {
		fmt.Println(report.Percent.StringFixed(2))
		return nil
	}

	fmt.Printf("Goal:        %s (id %d, user %s)\n", report.Name, report.GoalID, report.UserID)
	fmt.Printf("Status:      %s\n", report.Status)
	fmt.Printf("Target:      %s\n", report.Target.StringFixed(2))
	fmt.Printf("Contributed: %s\n", report.Contributed.StringFixed(2))
	fmt.Printf("Progress:    %s%%\n", report.Percent.StringFixed(2))
	fmt.Printf("As of:       %s\n", report.AsOf)
	return nil
}

func runClaim(cmd *cobra.Command, args []string) error {
	start, err := core.ParseDate(args[1])
	if err != nil {
		return err
	}
	end, err := core.ParseDate(args[2])
	if err != nil {
		return err
	}

	a := newApp()
	defer a.Close()

	ranges, err := a.ranges.ClaimSpan(cmd.Context(), args[0], core.NewInterval(start, end))
	if err != nil {
		return err
	}
	for _, r := range ranges {
		fmt.Printf("range %d: %s to %s\n", r.ID, r.StartDate, r.EndDate)
	}
	return nil
}

func runSeedTx(cmd *cobra.Command, args []string) error {
	amount, err := core.ParseAmount(args[1])
	if err != nil {
		return err
	}
	occurredOn, err := core.ParseDate(args[2])
	if err != nil {
		return err
	}

	a := newApp()
	defer a.Close()

	tx, err := a.repo.RecordTransaction(cmd.Context(), core.Transaction{
		UserID:      args[0],
		AmountCents: amount.Shift(2).IntPart(),
		Income:      flagIncome,
		OccurredOn:  occurredOn,
	})
	if err != nil {
		return err
	}

	kind := "expense"
	if tx.Income {
		kind = "income"
	}
	fmt.Printf("Recorded %s %s for %s on %s (id %d)\n",
		kind, amount.StringFixed(2), tx.UserID, tx.OccurredOn, tx.ID)
	return nil
}
