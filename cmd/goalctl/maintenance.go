package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"goalpost/internal/core"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Recompute goal statuses from today's date",
	Args:  cobra.NoArgs,
	RunE:  runSweep,
}

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Create successor goals for due recurring goals",
	Args:  cobra.NoArgs,
	RunE:  runRollover,
}

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Freeze contribution amounts for fully elapsed ranges",
	Args:  cobra.NoArgs,
	RunE:  runFreeze,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(rolloverCmd)
	rootCmd.AddCommand(freezeCmd)
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a := newApp()
	defer a.Close()

	updated, err := a.maintenance.SweepStatuses(cmd.Context(), core.Today())
	if err != nil {
		return err
	}
	fmt.Printf("Updated %d goal status(es)\n", updated)
	return nil
}

func runRollover(cmd *cobra.Command, _ []string) error {
	a := newApp()
	defer a.Close()

	created, err := a.maintenance.RolloverRecurring(cmd.Context(), core.Today())
	if err != nil {
		return err
	}
	if len(created) == 0 {
		fmt.Println("No recurring goals due for rollover")
		return nil
	}
	for _, g := range created {
		fmt.Printf("Created goal %d %q for %s: %s to %s\n",
			g.ID, g.Name, g.UserID, g.StartDate, g.ExpectedCompletionDate)
	}
	return nil
}

func runFreeze(cmd *cobra.Command, _ []string) error {
	a := newApp()
	defer a.Close()

	frozen, err := a.maintenance.FreezeElapsed(cmd.Context(), core.Today())
	if err != nil {
		return err
	}
	fmt.Printf("Froze %d contribution amount(s)\n", frozen)
	return nil
}
