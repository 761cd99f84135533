// Package main is the entry point for the tgbridge CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tgbridge",
		Short:         "Drive a telegram-cli process and bridge its contacts and messages",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().String("data-dir", "", "Override the data directory")
	root.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		sendCmd(),
		diagnoseCmd(),
		contactsCmd(),
		historyCmd(),
		infoCmd(),
	)
	return root
}

// runParams builds app parameters from the persistent flags.
func runParams(cmd *cobra.Command) app.RunParams {
	flags := cmd.Flags()
	cfgPath, _ := flags.GetString("config")
	dataDir, _ := flags.GetString("data-dir")
	level, _ := flags.GetString("log-level")
	return app.RunParams{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		LogLevel:   level,
		Version:    version,
		Commit:     commit,
		Date:       date,
		Stderr:     cmd.ErrOrStderr(),
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			printVersion(cmd.OutOrStdout())
		},
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "tgbridge %s (commit: %s, built: %s)\n", version, commit, date)
	mods := core.GetModules()
	if len(mods) == 0 {
		fmt.Fprintln(w, "\nNo compiled modules.")
		return
	}
	fmt.Fprintln(w, "\nCompiled modules:")
	for _, mod := range mods {
		fmt.Fprintf(w, "  %s\n", mod.ID)
	}
}

func startCmd() *cobra.Command {
	var watch time.Duration
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start tgbridge with all configured modules",
		Long: "Start tgbridge with all configured modules. SIGHUP or a change to the\n" +
			"configuration file reloads the log level and the sync schedules.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := runParams(cmd)
			params.WatchInterval = watch
			return app.Run(cmd.Context(), params)
		},
	}
	cmd.Flags().DurationVar(&watch, "watch-interval", 0, "How often to check the config file for changes (negative disables)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and provision its modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := runParams(cmd)
			params.ConfigPath = args[0]
			rt, err := app.Load(params)
			if err != nil {
				return err
			}
			defer rt.Close()

			ids := rt.App.Modules()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}
