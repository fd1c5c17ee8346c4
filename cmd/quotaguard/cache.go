package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var errCacheDisabled = errors.New("cache is disabled in config")

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache entries and hit rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cache == nil {
				return errCacheDisabled
			}

			s, err := a.cache.Stats(context.Background())
			if err != nil {
				return err
			}
			var rate float64
			if total := s.Hits + s.Misses; total > 0 {
				rate = float64(s.Hits) / float64(total) * 100
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ENTRIES\tHITS\tMISSES\tHIT RATE")
			fmt.Fprintf(w, "%d\t%d\t%d\t%.1f%%\n", s.Entries, s.Hits, s.Misses, rate)
			return w.Flush()
		},
	}

	var expiredOnly bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cache == nil {
				return errCacheDisabled
			}

			ctx := context.Background()
			if expiredOnly {
				n, err := a.cache.ClearExpired(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d expired entries.\n", n)
				return nil
			}
			if err := a.cache.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Println("Cache cleared.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&expiredOnly, "expired", false, "only remove entries past their TTL")

	cmd.AddCommand(statsCmd, clearCmd)
	return cmd
}
