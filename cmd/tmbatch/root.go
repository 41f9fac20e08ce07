package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var logLevelFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "tmbatch",
		Short:         "Batch template matching job generator for SLURM clusters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newCheckCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
