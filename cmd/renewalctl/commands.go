package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/qhomebase/contract-renewal/internal/app"
	"github.com/qhomebase/contract-renewal/internal/app/service/outbox"
	"github.com/qhomebase/contract-renewal/internal/app/service/scheduler"
	"github.com/qhomebase/contract-renewal/pkg/config"
	"github.com/qhomebase/contract-renewal/pkg/logctx"
	"github.com/qhomebase/contract-renewal/pkg/tool"
)

// runWith builds the service graph with its background loops switched off,
// hands the requested components to fn and shuts the graph down again.
func runWith(cmd *cobra.Command, fn func(ctx context.Context) error, targets ...interface{}) error {
	a := fx.New(
		app.CoreModule,
		fx.Decorate(func(cfg *config.Config) *config.Config {
			c := *cfg
			c.Scheduler.Enabled = false
			c.Outbox.Enabled = false
			c.MetricsAddr = ""
			return &c
		}),
		fx.Populate(targets...),
		fx.NopLogger,
	)
	if err := a.Err(); err != nil {
		return err
	}
	startCtx, cancel := context.WithTimeout(cmd.Context(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
		defer cancel()
		_ = a.Stop(stopCtx)
	}()
	ctx := logctx.WithTraceID(cmd.Context(), tool.GenerateTraceID())
	return fn(ctx)
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and run the renewal jobs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show every job with its schedule and last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var runner *scheduler.Runner
			return runWith(cmd, func(ctx context.Context) error {
				jobs, err := runner.List(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s  %-16s  %-20s  %s\n", "Name", "Schedule", "Last run", "Result")
				for _, j := range jobs {
					last := "-"
					if j.LastRunAt != nil {
						last = j.LastRunAt.Format(time.RFC3339)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s  %-16s  %-20s  %s\n", j.Name, j.Schedule, last, j.LastResult)
				}
				return nil
			}, &runner)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "run <name>",
		Short: "Run one job now, regardless of its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var runner *scheduler.Runner
			return runWith(cmd, func(ctx context.Context) error {
				res, err := runner.RunNow(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], res)
				return nil
			}, &runner)
		},
	})
	return cmd
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Work with queued side effects",
	}

	drain := &cobra.Command{
		Use:   "drain",
		Short: "Dispatch due side effects until none are left",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			maxRounds, _ := cmd.Flags().GetInt("max-rounds")
			var d *outbox.Dispatcher
			var log *zap.SugaredLogger
			return runWith(cmd, func(ctx context.Context) error {
				total := 0
				for round := 0; round < maxRounds; round++ {
					n, err := d.RunOnce(ctx)
					if err != nil {
						return err
					}
					if n == 0 {
						break
					}
					total += n
				}
				log.Infow("outbox drained", "attempted", total)
				fmt.Fprintf(cmd.OutOrStdout(), "attempted %d tasks\n", total)
				return nil
			}, &d, &log)
		},
	}
	drain.Flags().Int("max-rounds", 20, "Stop after this many batches")
	cmd.AddCommand(drain)

	cmd.AddCommand(&cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue a failed side effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var svc *outbox.Service
			return runWith(cmd, func(ctx context.Context) error {
				if err := svc.Retry(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "task %s queued\n", args[0])
				return nil
			}, &svc)
		},
	})
	return cmd
}

// migrateCmd relies on the database module migrating while the graph is built.
func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			return runWith(cmd, func(context.Context) error {
				fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Database.Driver)
				return nil
			}, &cfg)
		},
	}
}
