package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tmbatch/internal/logs"
)

type logsOptions struct {
	lines    int
	follow   bool
	runID    string
	tomogram string
	level    string
	raw      bool
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	opts := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Args:  cobra.NoArgs,
		Short: "Show the tmbatch run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return errors.New("paths.log_dir is not configured")
			}
			path := filepath.Join(cfg.Paths.LogDir, "tmbatch.log")
			filter := logs.Filter{RunID: opts.runID, TomogramID: opts.tomogram, MinLevel: opts.level}
			out := cmd.OutOrStdout()

			records, offset, err := logs.Tail(path, opts.lines, filter)
			if err != nil {
				return err
			}
			for _, rec := range records {
				printRecord(out, rec, opts.raw)
			}
			if !opts.follow {
				return nil
			}
			err = logs.Follow(cmd.Context(), path, offset, 250*time.Millisecond, filter, func(rec logs.Record) {
				printRecord(out, rec, opts.raw)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show (0 for all)")
	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Only show lines from this run id")
	cmd.Flags().StringVar(&opts.tomogram, "tomogram", "", "Only show lines for this tomogram id")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level to show (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Print the JSON lines unchanged")
	return cmd
}

func printRecord(out io.Writer, rec logs.Record, raw bool) {
	if raw || rec.Message == "" {
		fmt.Fprintln(out, rec.Raw)
		return
	}
	subject := rec.Component
	if rec.TomogramID != "" {
		subject = strings.TrimSpace(subject + " " + rec.TomogramID)
	}
	line := fmt.Sprintf("%s %-5s %s: %s", rec.Time, strings.ToUpper(rec.Level), subject, rec.Message)
	if rec.EventType != "" {
		line += " event_type=" + rec.EventType
	}
	fmt.Fprintln(out, line)
}
