package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func newAuditCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the admin action log",
	}

	var (
		action string
		actor  string
		since  string
		limit  int
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search limit changes and override toggles",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.AdminQueryOpts{
				Action:  models.AdminActionType(action),
				ActorID: actor,
				Limit:   limit,
			}
			if since != "" {
				t, err := time.Parse(time.DateOnly, since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			actions, err := a.audit.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				fmt.Println("No admin actions found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tACTOR\tBEFORE\tAFTER")
			for _, x := range actions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					x.CreatedAt.UTC().Format(time.DateTime), x.Action, x.ActorID, x.Before, x.After)
			}
			return w.Flush()
		},
	}
	searchCmd.Flags().StringVar(&action, "action", "", "LIMIT_CHANGE or OVERRIDE_TOGGLE")
	searchCmd.Flags().StringVar(&actor, "actor", "", "filter by actor")
	searchCmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	searchCmd.Flags().IntVar(&limit, "limit", 50, "maximum results")

	cmd.AddCommand(searchCmd)
	return cmd
}
