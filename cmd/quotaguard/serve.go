package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pario-ai/quotaguard/pkg/api"
	"github.com/pario-ai/quotaguard/pkg/config"
	"github.com/pario-ai/quotaguard/pkg/metrics"
	"github.com/pario-ai/quotaguard/pkg/scheduler"
)

func newServeCmd(configPath *string) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the housekeeping scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.requireOrchestrator(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			metrics.Register()
			metrics.ObserveBudget(a.budget.Stats(ctx))

			if a.cfg.Schedule.Enabled {
				var sweeper scheduler.Sweeper
				if a.cache != nil {
					sweeper = a.cache
				}
				sch := scheduler.New(a.budget, a.ledger, sweeper, a.log.Named("scheduler"))
				if err := sch.Register(a.cfg.Schedule); err != nil {
					return err
				}
				sch.Start()
				defer sch.Stop()
			}

			if !noWatch {
				go func() {
					err := config.Watch(ctx, *configPath, a.log, func(c *config.Config) {
						if err := a.orch.UpdateTuning(c); err != nil {
							a.log.Warn("config reload not applied", zap.Error(err))
						}
					})
					if err != nil {
						a.log.Warn("config watch disabled", zap.Error(err))
					}
				}()
			}

			a.log.Info("starting quotaguard",
				zap.String("version", version),
				zap.String("config", *configPath),
				zap.String("store", a.cfg.Budget.Store.Driver),
				zap.String("consistency", a.cfg.Budget.Consistency),
				zap.Bool("cache", a.cache != nil),
			)
			return api.New(a.orch, a.audit, a.log.Named("api")).ListenAndServe(ctx, a.cfg.Listen)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload thresholds and categories when the config file changes")
	return cmd
}
