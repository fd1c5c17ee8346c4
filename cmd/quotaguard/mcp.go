package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/quotaguard/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only quota tools to an MCP client over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			src := mcp.Sources{
				Usage:  a.budget,
				Ledger: a.ledger,
				Audit:  a.audit,
			}
			if a.cache != nil {
				src.Cache = a.cache
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return mcp.New(src, version, a.log.Named("mcp")).Run(ctx, os.Stdin, os.Stdout)
		},
	}
}
