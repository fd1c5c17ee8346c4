package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func newFetchCmd(configPath *string) *cobra.Command {
	var (
		category string
		priority string
		cost     int
	)

	cmd := &cobra.Command{
		Use:     "fetch key=value...",
		Short:   "Fetch data through the cache and budget, like an API consumer would",
		Example: "  quotaguard fetch function=GLOBAL_QUOTE symbol=IBM --category quote --priority high",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args)
			if err != nil {
				return err
			}
			p, err := models.ParsePriority(priority)
			if err != nil {
				return err
			}

			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireOrchestrator(); err != nil {
				return err
			}
			if err := a.orch.ValidateCategory(category); err != nil {
				return err
			}

			res := a.orch.Fetch(context.Background(), models.FetchRequest{
				Params:   params,
				Category: category,
				Priority: p,
				Cost:     cost,
			})
			if !res.OK {
				stats := a.orch.GetUsageStats(context.Background())
				return fmt.Errorf("no data: request denied or provider failed (%d of %d calls left)", stats.Remaining, stats.Limit)
			}

			var out bytes.Buffer
			if err := json.Indent(&out, res.Data, "", "  "); err != nil {
				out.Reset()
				out.Write(res.Data)
			}
			out.WriteByte('\n')
			if _, err := os.Stdout.Write(out.Bytes()); err != nil {
				return err
			}
			source := "provider"
			if res.Cached {
				source = "cache"
			}
			fmt.Fprintf(os.Stderr, "served from %s\n", source)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "operation category (empty uses the default route)")
	cmd.Flags().StringVar(&priority, "priority", string(models.PriorityMedium), "critical, high, medium or low")
	cmd.Flags().IntVar(&cost, "cost", 1, "quota units the call consumes")
	return cmd
}

func parseParams(args []string) (map[string]string, error) {
	params := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q, want key=value", arg)
		}
		params[k] = v
	}
	return params, nil
}
