package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tmbatch/internal/config"
	"tmbatch/internal/preflight"
	"tmbatch/internal/services"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Args:  cobra.NoArgs,
		Short: "Check inputs, output directory, and queue tools before a run",
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
			in, err := resolveInputs(opts)
			if err != nil {
				return err
			}

			results := preflight.RunAll(cfg, preflight.Inputs{
				MetadataDir: in.metadataDir,
				VolumeDir:   in.volumeDir,
				MaskDir:     in.maskDir,
				Template:    in.template,
				Mask:        in.mask,
				IDList:      in.idList,
				OutputDir:   outputDir,
			})

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Preflight", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range preflightLines(results, colorize) {
				fmt.Fprintln(out, line)
			}
			if err := preflight.FirstBlocking(results); err != nil {
				return services.Wrap(services.ErrConfiguration, "check", "", "preflight failed", err)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.volumeDir, "mrc-dir", "", "Directory of tomogram volumes (.mrc)")
	flags.StringVar(&opts.metadataDir, "star-dir", "", "Directory of tilt-series metadata (.star)")
	flags.StringVar(&opts.maskDir, "bmask-dir", "", "Directory of per-tomogram masks")
	flags.StringVar(&opts.idList, "tomolist", "", "File listing tomogram identifiers")
	flags.StringVarP(&opts.template, "template", "t", "", "Template volume (.mrc)")
	flags.StringVarP(&opts.mask, "mask", "m", "", "Template mask volume (.mrc)")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Output directory (default: configured output_dir)")
	return cmd
}
