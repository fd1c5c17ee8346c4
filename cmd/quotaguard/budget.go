package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func newBudgetCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect and administer the daily call budget",
	}
	cmd.AddCommand(
		newBudgetStatusCmd(configPath),
		newBudgetLimitCmd(configPath),
		newBudgetOverrideCmd(configPath),
	)
	return cmd
}

func newBudgetStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show usage against the daily limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			return printUsage(a.budget.Stats(context.Background()))
		},
	}
}

func newBudgetLimitCmd(configPath *string) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "limit N",
		Short: "Set the daily limit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid limit %q: %w", args[0], err)
			}
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			st, err := a.budget.SetLimit(context.Background(), limit, actor)
			if err != nil {
				return err
			}
			return printUsage(models.StatsFor(st))
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded in the audit log")
	return cmd
}

func newBudgetOverrideCmd(configPath *string) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:       "override on|off",
		Short:     "Enable or disable the admin override",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var enabled bool
			switch args[0] {
			case "on":
				enabled = true
			case "off":
			default:
				return fmt.Errorf("override takes on or off, got %q", args[0])
			}
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			return printUsage(models.StatsFor(a.budget.SetOverride(context.Background(), enabled, actor)))
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "cli", "actor recorded in the audit log")
	return cmd
}

func printUsage(s models.UsageStats) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "LIMIT\tUSED\tREMAINING\tUSED %\tRESETS\tOVERRIDE")
	fmt.Fprintf(w, "%d\t%d\t%d\t%.1f\t%s\t%t\n",
		s.Limit, s.Used, s.Remaining, s.PercentUsed, s.ResetAt.UTC().Format(time.RFC3339), s.AdminOverride)
	if err := w.Flush(); err != nil {
		return err
	}
	if s.Degraded {
		fmt.Fprintln(os.Stderr, "warning: budget store unavailable, figures come from the in-process fallback")
	}
	return nil
}
