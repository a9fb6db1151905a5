package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/racenotes/internal/api"
	"github.com/kalambet/racenotes/internal/app"
	"github.com/kalambet/racenotes/internal/schedule"
)

// pruneSchedule runs snapshot pruning once a day.
const pruneSchedule = "@daily"

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync race data on a schedule (foreground)",
		Long: `Sync race data on the configured cron schedule until interrupted.

The schedule (sync.schedule) accepts six-field cron expressions with a
seconds column, or descriptors such as @hourly and "@every 15m".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, _ := cmd.Flags().GetBool("now")
			return withApp(func(a *app.App) error {
				return runWatch(cmd.Context(), a, now)
			})
		},
	}
	cmd.Flags().Bool("now", false, "run one sync immediately before waiting for the schedule")
	return cmd
}

func runWatch(ctx context.Context, a *app.App, now bool) error {
	spec := a.Config.Sync.Schedule
	if err := schedule.Validate(spec); err != nil {
		return err
	}
	logger := a.Logger.Named("watch")

	runner := schedule.New(logger, ctx)
	syncJob := schedule.SyncJob(a.Races, nil, a.Config.Sync.Force, logger)
	if _, err := runner.Add(spec, syncJob); err != nil {
		return err
	}
	if a.Snapshots != nil && a.Config.Sync.PruneAfter > 0 {
		if _, err := runner.Add(pruneSchedule, schedule.PruneJob(a.Snapshots, nil, a.Config.Sync.PruneAfter, logger)); err != nil {
			return err
		}
	}

	if now {
		syncJob(ctx)
	}

	runner.Start()
	next, _ := schedule.NextRun(spec, time.Now())
	printStep("Watching %s (schedule %q, next sync %s)",
		a.Gateway.BaseURL(), spec, next.Format(time.RFC3339))
	<-ctx.Done()
	runner.Stop()
	fmt.Fprintln(stderr, "shutting down...")
	return nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve racenotes tools over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; keep notifications on stderr only.
			return withApp(func(a *app.App) error {
				mcpSrv := api.NewMCPServer(api.MCPDeps{
					Races:       a.Races,
					Annotations: a.Annotations,
					Betting:     a.Betting,
					Stats:       a.Stats,
					Version:     version,
				})
				stdioSrv := server.NewStdioServer(mcpSrv)
				a.Logger.Info("MCP server started (stdio transport)", zap.String("gateway", a.Gateway.BaseURL()))
				err := stdioSrv.Listen(cmd.Context(), os.Stdin, os.Stdout)
				if err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("MCP stdio server: %w", err)
				}
				return nil
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show gateway reachability and local configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				showStatus(cmd.Context(), a)
				return nil
			})
		},
	}
}

func showStatus(ctx context.Context, a *app.App) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := a.Gateway.Health(ctx); err != nil {
		printStatus("Gateway", "%s unreachable (%v)", a.Gateway.BaseURL(), err)
	} else {
		printStatus("Gateway", "%s reachable", a.Gateway.BaseURL())
	}
	printStatus("Autosave delay", "%s", a.Config.Autosave.Delay)
	printStatus("Sync schedule", "%s", a.Config.Sync.Schedule)

	if a.Snapshots == nil {
		printStatus("Snapshots", "disabled")
		return
	}
	dates, err := a.Snapshots.SnapshotDates(ctx)
	if err != nil {
		printStatus("Snapshots", "error (%v)", err)
	} else {
		printStatus("Snapshots", "%s", countLabel(len(dates), "date"))
	}
	printStatus("Data dir", "%s", a.Config.Storage.DataDir)
}

func countLabel(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
