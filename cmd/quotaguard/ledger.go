package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func newLedgerCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Report on metered provider calls",
	}
	cmd.AddCommand(
		newLedgerTailCmd(configPath),
		newLedgerSummaryCmd(configPath),
		newLedgerGraphCmd(configPath),
	)
	return cmd
}

func newLedgerTailCmd(configPath *string) *cobra.Command {
	var n int

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the most recent metered calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.ledger.Tail(context.Background(), n)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No metered calls recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tENDPOINT\tCATEGORY\tCOST\tUSED\tREMAINING")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\n",
					e.CreatedAt.UTC().Format(time.DateTime), e.Endpoint, e.Category,
					e.Cost, e.TotalUsageAfter, e.RemainingAfter)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&n, "n", "n", 20, "number of entries")
	return cmd
}

func newLedgerSummaryCmd(configPath *string) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate calls and cost by endpoint and category",
		RunE: func(cmd *cobra.Command, args []string) error {
			from := startOfDay(time.Now())
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				from = t
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			rows, err := a.ledger.Summary(context.Background(), from)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Printf("No metered calls since %s.\n", from.Format(time.DateOnly))
				return nil
			}
			var calls, cost int
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENDPOINT\tCATEGORY\tCALLS\tCOST")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", r.Endpoint, r.Category, r.Calls, r.Cost)
				calls += r.Calls
				cost += r.Cost
			}
			fmt.Fprintf(w, "TOTAL\t\t%d\t%d\n", calls, cost)
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "start date in UTC (YYYY-MM-DD), default today")
	return cmd
}

func newLedgerGraphCmd(configPath *string) *cobra.Command {
	var (
		hours  int
		height int
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Plot metered calls per hour",
		RunE: func(cmd *cobra.Command, args []string) error {
			if hours < 2 {
				return fmt.Errorf("--hours must be at least 2")
			}
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			end := time.Now().UTC().Truncate(time.Hour)
			start := end.Add(-time.Duration(hours-1) * time.Hour)
			buckets, err := a.ledger.Hourly(context.Background(), start)
			if err != nil {
				return err
			}
			series := hourlySeries(buckets, start, hours)
			fmt.Println(asciigraph.Plot(series,
				asciigraph.Height(height),
				asciigraph.Caption(fmt.Sprintf("calls per hour since %s UTC", start.Format("2006-01-02 15:04"))),
			))
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "hours to plot")
	cmd.Flags().IntVar(&height, "height", 10, "graph height in rows")
	return cmd
}

// hourlySeries spreads buckets over n consecutive hours from start, with
// zero for hours that had no calls.
func hourlySeries(buckets []models.HourlyUsage, start time.Time, n int) []float64 {
	series := make([]float64, n)
	for _, b := range buckets {
		i := int(b.Hour.Sub(start) / time.Hour)
		if i >= 0 && i < n {
			series[i] = float64(b.Calls)
		}
	}
	return series
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
