package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"tmbatch/internal/config"
	"tmbatch/internal/ledger"
)

type historyOptions struct {
	outputDir string
	runID     string
	tomogram  string
	latest    bool
	limit     int
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Args:  cobra.NoArgs,
		Short: "Show submissions recorded in the output directory",
		Long: `Without filters, list recent runs with per-outcome counts. --run or
--tomogram lists individual submissions; --latest shows the most recent
outcome for every tomogram.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			outputDir := cfg.Paths.OutputDir
			if cmd.Flags().Changed("output-dir") {
				if outputDir, err = config.ExpandPath(opts.outputDir); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			store, err := ledger.OpenExisting(ledger.PathFor(outputDir))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					fmt.Fprintf(out, "No submission history in %s\n", outputDir)
					return nil
				}
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()
			return printHistory(cmd, store, opts, out)
		},
	}

	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Output directory holding the ledger (default: configured output_dir)")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Show submissions for one run id")
	cmd.Flags().StringVar(&opts.tomogram, "tomogram", "", "Show submissions for one tomogram id")
	cmd.Flags().BoolVar(&opts.latest, "latest", false, "Show the latest outcome for every tomogram")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum rows to show (0 for all)")
	return cmd
}

func printHistory(cmd *cobra.Command, store *ledger.Store, opts *historyOptions, out io.Writer) error {
	ctx := cmd.Context()
	switch {
	case opts.latest:
		entries, err := store.LatestByTomogram(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderEntries(entries))
	case opts.runID != "" || opts.tomogram != "":
		entries, err := store.List(ctx, ledger.Filter{RunID: opts.runID, TomogramID: opts.tomogram, Limit: opts.limit})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderEntries(entries))
	default:
		runs, err := store.Runs(ctx, opts.limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded")
			return nil
		}
		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				run.RunID,
				formatTimestamp(run.StartedAt),
				strconv.Itoa(run.Submitted),
				strconv.Itoa(run.Generated),
				strconv.Itoa(run.Skipped),
				strconv.Itoa(run.Failed),
			})
		}
		fmt.Fprintln(out, renderTable(
			[]string{"Run", "Started", "Submitted", "Generated", "Skipped", "Failed"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
		))
	}
	return nil
}

func renderEntries(entries []ledger.Entry) string {
	if len(entries) == 0 {
		return "No submissions recorded"
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		detail := e.JobID
		if e.Message != "" {
			detail = e.Message
		}
		rows = append(rows, []string{
			e.TomogramID,
			string(e.Status),
			e.Step,
			yesNo(e.DryRun),
			detail,
			formatTimestamp(e.CreatedAt),
		})
	}
	return renderTable([]string{"Tomogram", "Status", "Step", "Dry run", "Job / Error", "Recorded"}, rows, nil)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
