package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	noColor    bool
	configPath string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "racenotes",
		Short:         "Handicapping notes and betting outcomes against race data",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/racenotes/config.json)")

	root.AddCommand(
		newRacesCmd(),
		newSyncCmd(),
		newCommentsCmd(),
		newNotesCmd(),
		newBetCmd(),
		newStatsCmd(),
		newWatchCmd(),
		newMCPCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		// Store failures were already shown as notifications.
		if !notifier.reported() {
			printError("%v", err)
		}
		stop()
		os.Exit(1)
	}
}
