package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"tmbatch/internal/batch"
	"tmbatch/internal/config"
	"tmbatch/internal/fileset"
	"tmbatch/internal/jobspec"
	"tmbatch/internal/ledger"
	"tmbatch/internal/logging"
	"tmbatch/internal/preflight"
	"tmbatch/internal/services"
	"tmbatch/internal/slurm"
	"tmbatch/internal/tomoid"
)

type runOptions struct {
	volumeDir      string
	metadataDir    string
	maskDir        string
	idList         string
	outputDir      string
	dryRun         bool
	noTomogramMask bool
	validateOnly   bool
	metricsFile    string

	template         string
	mask             string
	particleDiameter float64
	diameterSet      bool
	angularSearch    string
	volumeSplit      []int
	voxelSize        float64
	gpuIDs           []string

	randomPhaseCorrection bool
	rngSeed               int
	perTiltWeighting      bool
	nonSphericalMask      bool
	spectralWhitening     bool
	ctfModel              string
	zAxisSymmetry         string
	amplitudeContrast     float64
	sphericalAberration   float64
	voltage               float64
	lowPass               float64
	highPass              float64

	partition     string
	ntasks        int
	nodes         int
	ntasksPerNode int
	cpusPerTask   int
	gres          string
	mailType      string
	memGB         int
	qos           string
	timeLimit     string
	submitCommand string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := &runOptions{}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate and submit template matching jobs for a tomogram batch",
		Long: `Collect tomogram identifiers, validate the first one, then write side
files and a submission script per tomogram under <output-dir>/tomo_<id>/ and
submit each script. A failure on one tomogram is reported and the batch moves on.`,
		Args: func(cmd *cobra.Command, args []string) error {
			return cobra.NoArgs(cmd, opts.takeVolumeSplit(args))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return runBatch(cmd, ctx, cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.volumeDir, "mrc-dir", "", "Directory of tomogram volumes (.mrc)")
	flags.StringVar(&opts.metadataDir, "star-dir", "", "Directory of tilt-series metadata (.star)")
	flags.StringVar(&opts.maskDir, "bmask-dir", "", "Directory of per-tomogram masks (default: none)")
	flags.StringVar(&opts.idList, "tomolist", "", "File listing tomogram identifiers, one per line (default: scan --mrc-dir)")
	flags.StringVar(&opts.outputDir, "output-dir", def.Paths.OutputDir, "Where to write scripts and results")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Generate scripts without submitting them")
	flags.BoolVar(&opts.noTomogramMask, "no-tomogram-mask", false, "Ignore tomogram masks even if --bmask-dir is set")
	flags.BoolVar(&opts.validateOnly, "validate-only", false, "Validate the first tomogram and exit")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write run counters to this node-exporter textfile")

	flags.StringVarP(&opts.template, "template", "t", "", "Template volume (.mrc)")
	flags.StringVarP(&opts.mask, "mask", "m", "", "Template mask volume (.mrc)")
	flags.Float64Var(&opts.particleDiameter, "particle-diameter", 0, "Particle diameter in Å for angular sampling")
	flags.StringVar(&opts.angularSearch, "angular-search", "", "Angular search step or angle list file (ignored when --particle-diameter is set)")
	flags.IntSliceVarP(&opts.volumeSplit, "volume-split", "s", nil, "Split each tomogram into sub-volumes, given as X Y Z or X,Y,Z")
	flags.Float64Var(&opts.voxelSize, "voxel-size", 0, "Voxel size in Å")
	flags.StringSliceVarP(&opts.gpuIDs, "gpu-ids", "g", def.Matching.GPUIDs, "GPU ids passed to the matching tool")

	flags.BoolVar(&opts.randomPhaseCorrection, "random-phase-correction", false, "Enable random phase correction")
	flags.IntVar(&opts.rngSeed, "rng-seed", def.Matching.RNGSeed, "Random seed for phase correction")
	flags.BoolVar(&opts.perTiltWeighting, "per-tilt-weighting", false, "Enable per-tilt weighting")
	flags.BoolVar(&opts.nonSphericalMask, "non-spherical-mask", false, "Enable non-spherical mask handling")
	flags.BoolVar(&opts.spectralWhitening, "spectral-whitening", false, "Enable spectral whitening")
	flags.StringVar(&opts.ctfModel, "tomogram-ctf-model", "", "Tomogram CTF model: phase-flip or wiener (default: none)")
	flags.StringVar(&opts.zAxisSymmetry, "z-axis-rotational-symmetry", "", "Z-axis rotational symmetry order (positive integer)")
	flags.Float64Var(&opts.amplitudeContrast, "amplitude-contrast", def.Matching.AmplitudeContrast, "Amplitude contrast fraction")
	flags.Float64Var(&opts.sphericalAberration, "spherical-aberration", def.Matching.SphericalAberration, "Spherical aberration in mm")
	flags.Float64Var(&opts.voltage, "voltage", def.Matching.Voltage, "Acceleration voltage in kV")
	flags.Float64Var(&opts.lowPass, "low-pass", 0, "Low-pass filter resolution in Å (default: none)")
	flags.Float64Var(&opts.highPass, "high-pass", 0, "High-pass filter resolution in Å (default: none)")

	flags.StringVar(&opts.partition, "partition", def.Slurm.Partition, "SLURM partition")
	flags.IntVar(&opts.ntasks, "ntasks", def.Slurm.NTasks, "SLURM ntasks")
	flags.IntVar(&opts.nodes, "nodes", def.Slurm.Nodes, "SLURM nodes")
	flags.IntVar(&opts.ntasksPerNode, "ntasks-per-node", def.Slurm.NTasksPerNode, "SLURM tasks per node")
	flags.IntVar(&opts.cpusPerTask, "cpus-per-task", def.Slurm.CPUsPerTask, "SLURM CPUs per task")
	flags.StringVar(&opts.gres, "gres", def.Slurm.Gres, "SLURM generic resources")
	flags.StringVar(&opts.mailType, "mail-type", def.Slurm.MailType, "SLURM mail type")
	flags.IntVar(&opts.memGB, "mem", def.Slurm.MemGB, "SLURM memory in GB")
	flags.StringVar(&opts.qos, "qos", def.Slurm.QOS, "SLURM quality of service")
	flags.StringVar(&opts.timeLimit, "time", def.Slurm.Time, "SLURM time limit")
	flags.StringVar(&opts.submitCommand, "submit-command", def.Slurm.SubmitCommand, "Queue submission command")

	for _, name := range []string{"mrc-dir", "star-dir", "template", "mask", "voxel-size"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

// applyOverrides copies explicitly set flags onto cfg. Flags left at their
// defaults never mask configured values.
func applyOverrides(flags *pflag.FlagSet, cfg *config.Config, opts *runOptions) error {
	changed := flags.Changed
	if changed("output-dir") {
		cfg.Paths.OutputDir = opts.outputDir
	}
	if changed("gpu-ids") {
		cfg.Matching.GPUIDs = opts.gpuIDs
	}
	if changed("rng-seed") {
		cfg.Matching.RNGSeed = opts.rngSeed
	}
	if changed("amplitude-contrast") {
		cfg.Matching.AmplitudeContrast = opts.amplitudeContrast
	}
	if changed("spherical-aberration") {
		cfg.Matching.SphericalAberration = opts.sphericalAberration
	}
	if changed("voltage") {
		cfg.Matching.Voltage = opts.voltage
	}

	s := &cfg.Slurm
	stringFlags := []struct {
		name   string
		target *string
		value  string
	}{
		{"partition", &s.Partition, opts.partition},
		{"gres", &s.Gres, opts.gres},
		{"mail-type", &s.MailType, opts.mailType},
		{"qos", &s.QOS, opts.qos},
		{"time", &s.Time, opts.timeLimit},
		{"submit-command", &s.SubmitCommand, opts.submitCommand},
	}
	for _, f := range stringFlags {
		if changed(f.name) {
			*f.target = strings.TrimSpace(f.value)
		}
	}
	intFlags := []struct {
		name   string
		target *int
		value  int
	}{
		{"ntasks", &s.NTasks, opts.ntasks},
		{"nodes", &s.Nodes, opts.nodes},
		{"ntasks-per-node", &s.NTasksPerNode, opts.ntasksPerNode},
		{"cpus-per-task", &s.CPUsPerTask, opts.cpusPerTask},
		{"mem", &s.MemGB, opts.memGB},
	}
	for _, f := range intFlags {
		if changed(f.name) {
			*f.target = f.value
		}
	}

	var err error
	if cfg.Paths.OutputDir, err = config.ExpandPath(cfg.Paths.OutputDir); err != nil {
		return err
	}
	return cfg.Validate()
}

type resolvedInputs struct {
	volumeDir   string
	metadataDir string
	maskDir     string
	idList      string
	template    string
	mask        string
}

// takeVolumeSplit folds the two positional values that follow a single
// `-s X` into the split, so `-s X Y Z` reads the same as `-s X,Y,Z`. It returns
// the arguments it did not consume.
func (o *runOptions) takeVolumeSplit(args []string) []string {
	if len(o.volumeSplit) != 1 || len(args) < 2 {
		return args
	}
	y, errY := strconv.Atoi(args[0])
	z, errZ := strconv.Atoi(args[1])
	if errY != nil || errZ != nil {
		return args
	}
	o.volumeSplit = append(o.volumeSplit, y, z)
	return args[2:]
}

func resolveInputs(opts *runOptions) (resolvedInputs, error) {
	var in resolvedInputs
	fields := []struct {
		target *string
		value  string
	}{
		{&in.volumeDir, opts.volumeDir},
		{&in.metadataDir, opts.metadataDir},
		{&in.maskDir, opts.maskDir},
		{&in.idList, opts.idList},
		{&in.template, opts.template},
		{&in.mask, opts.mask},
	}
	for _, f := range fields {
		expanded, err := config.ExpandPath(strings.TrimSpace(f.value))
		if err != nil {
			return resolvedInputs{}, err
		}
		*f.target = expanded
	}
	return in, nil
}

func buildJobConfig(cfg *config.Config, in resolvedInputs, opts *runOptions) (jobspec.JobConfig, error) {
	job := jobspec.FromConfig(cfg)
	job.Template = in.template
	job.Mask = in.mask
	if opts.diameterSet {
		job.Sampling = jobspec.ParticleDiameter(opts.particleDiameter)
	} else {
		job.Sampling = jobspec.ChooseSampling(opts.particleDiameter, strings.TrimSpace(opts.angularSearch))
	}
	job.VoxelSize = opts.voxelSize
	if len(opts.volumeSplit) > 0 {
		if len(opts.volumeSplit) != 3 {
			return jobspec.JobConfig{}, fmt.Errorf("%w: --volume-split takes exactly three values, got %d", jobspec.ErrInvalidConfig, len(opts.volumeSplit))
		}
		split := [3]int{opts.volumeSplit[0], opts.volumeSplit[1], opts.volumeSplit[2]}
		job.VolumeSplit = &split
	}
	job.RandomPhaseCorrection = opts.randomPhaseCorrection
	job.PerTiltWeighting = opts.perTiltWeighting
	job.NonSphericalMask = opts.nonSphericalMask
	job.SpectralWhitening = opts.spectralWhitening
	job.CTFModel = jobspec.CTFModel(strings.TrimSpace(opts.ctfModel))
	job.ZAxisSymmetry = strings.TrimSpace(opts.zAxisSymmetry)
	job.LowPass = opts.lowPass
	job.HighPass = opts.highPass
	job.UseTomogramMask = !opts.noTomogramMask
	return job, nil
}

func runBatch(cmd *cobra.Command, ctx *commandContext, baseCfg *config.Config, opts *runOptions) error {
	cfgCopy := *baseCfg
	cfg := &cfgCopy
	if err := applyOverrides(cmd.Flags(), cfg, opts); err != nil {
		return configError(err)
	}
	in, err := resolveInputs(opts)
	if err != nil {
		return configError(err)
	}
	opts.diameterSet = cmd.Flags().Changed("particle-diameter")

	logger, err := ctx.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	results := preflight.RunAll(cfg, preflight.Inputs{
		MetadataDir: in.metadataDir,
		VolumeDir:   in.volumeDir,
		MaskDir:     in.maskDir,
		Template:    in.template,
		Mask:        in.mask,
		IDList:      in.idList,
		OutputDir:   cfg.Paths.OutputDir,
	})
	if err := preflight.FirstBlocking(results); err != nil {
		return configError(err)
	}
	for _, w := range preflight.Warnings(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_warning",
			logging.String("check", w.Name),
			logging.String("detail", w.Detail),
		)
	}

	job, err := buildJobConfig(cfg, in, opts)
	if err != nil {
		return configError(err)
	}
	descriptor, err := jobspec.Compile(job)
	if err != nil {
		return configError(err)
	}

	matcher := tomoid.NewDefaultMatcher(cfg.Identifiers.Prefixes)
	ids, err := batch.Collect(cmd.Context(), batch.CollectOptions{
		ListFile:  in.idList,
		VolumeDir: in.volumeDir,
		Matcher:   matcher,
		Logger:    logger,
	})
	if err != nil {
		return configError(err)
	}

	maskDir := in.maskDir
	if opts.noTomogramMask {
		maskDir = ""
	}
	var submitter slurm.Submitter = slurm.New(cfg.Slurm.SubmitCommand)
	if opts.dryRun {
		submitter = slurm.DryRun{Binary: cfg.Slurm.SubmitCommand, Out: out}
	}
	metrics := batch.NewMetrics()

	runner, err := batch.New(batch.Config{
		Resolver: &fileset.Resolver{
			MetadataDir: in.metadataDir,
			VolumeDir:   in.volumeDir,
			MaskDir:     maskDir,
			Matcher:     matcher,
			Logger:      logger,
		},
		Descriptor: descriptor,
		Submitter:  submitter,
		LedgerPath: ledger.PathFor(cfg.Paths.OutputDir),
		Metrics:    metrics,
		Logger:     logger,
		OutputDir:  cfg.Paths.OutputDir,
		DryRun:     opts.dryRun,
	})
	if err != nil {
		return err
	}

	report, summary, err := runner.Execute(cmd.Context(), ids, opts.validateOnly)
	if report != nil {
		writeReport(out, *report, colorize)
	}
	if err != nil {
		return configError(err)
	}
	if opts.validateOnly {
		fmt.Fprintln(out, renderStatusLine("Validation", statusOK, fmt.Sprintf("%s passed; %d tomograms collected", report.ID, len(ids)), colorize))
		return nil
	}

	writeSummary(out, summary, colorize)
	if path := strings.TrimSpace(opts.metricsFile); path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			logging.WarnWithContext(logger, "metrics textfile not written", "metrics_write_failed",
				logging.String("path", path),
				logging.Error(err),
			)
		}
	}
	return nil
}

// configError tags failures that abort a run before any job is generated.
func configError(err error) error {
	if err == nil {
		return nil
	}
	if services.IsRunFatal(err) {
		return err
	}
	return services.Wrap(services.ErrConfiguration, "run", "", "invalid run configuration", err)
}

func writeReport(out io.Writer, report batch.Report, colorize bool) {
	for _, line := range renderSectionHeader("Validation: tomogram "+report.ID.String(), colorize) {
		fmt.Fprintln(out, line)
	}
	r := report.Ranges
	rows := [][]string{
		{"Tilt angles", formatNumber(r.Angles.Min), formatNumber(r.Angles.Max)},
		{"Defocus (µm)", formatNumber(r.Defocus.Min), formatNumber(r.Defocus.Max)},
		{"Exposure (e/Å²)", formatNumber(r.Exposure.Min), formatNumber(r.Exposure.Max)},
	}
	fmt.Fprintln(out, renderTable([]string{"Series", "Min", "Max"}, rows, []columnAlignment{alignLeft, alignRight, alignRight}))
	fmt.Fprintf(out, "Tilts:    %d\n", report.Tilts)
	fmt.Fprintf(out, "STAR:     %s\n", report.Files.MetadataPath)
	fmt.Fprintf(out, "MRC:      %s\n", report.Files.VolumePath)
	mask := report.Files.MaskPath
	if mask == "" {
		mask = "(none)"
	}
	fmt.Fprintf(out, "Mask:     %s\n", mask)
}

func writeSummary(out io.Writer, summary batch.Summary, colorize bool) {
	rows := make([][]string, 0, len(summary.Outcomes))
	for _, o := range summary.Outcomes {
		detail := o.JobID
		if o.Err != nil {
			detail = o.Err.Error()
		}
		rows = append(rows, []string{o.ID.String(), string(o.Status), o.Step, detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Tomogram", "Status", "Step", "Job / Error"}, rows, nil))

	kind := statusOK
	switch {
	case summary.Failed > 0:
		kind = statusError
	case summary.Skipped > 0:
		kind = statusWarn
	}
	message := fmt.Sprintf("%d submitted, %d generated, %d skipped, %d failed (run %s)",
		summary.Submitted, summary.Generated, summary.Skipped, summary.Failed, summary.RunID)
	fmt.Fprintln(out, renderStatusLine("Batch complete", kind, message, colorize))
}
