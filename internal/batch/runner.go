package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tmbatch/internal/fileset"
	"tmbatch/internal/fileutil"
	"tmbatch/internal/jobspec"
	"tmbatch/internal/ledger"
	"tmbatch/internal/logging"
	"tmbatch/internal/services"
	"tmbatch/internal/slurm"
	"tmbatch/internal/tiltseries"
	"tmbatch/internal/tomoid"
)

// LockFileName is the run lock inside the output directory.
const LockFileName = ".tmbatch.lock"

// Config wires a Runner. Ledger, Metrics, and Observer are optional.
type Config struct {
	Resolver   *fileset.Resolver
	Descriptor *jobspec.Descriptor
	Submitter  slurm.Submitter
	Ledger     *ledger.Store
	// LedgerPath is opened once the run holds its lock when Ledger is nil.
	LedgerPath string
	Metrics    *Metrics
	Logger     *slog.Logger
	OutputDir  string
	DryRun     bool
	// RunID defaults to a random UUID.
	RunID string
	// Observer is called after each tomogram finishes.
	Observer func(Outcome)
}

// Runner executes batch runs.
type Runner struct {
	cfg    Config
	runID  string
	logger *slog.Logger
	now    func() time.Time
	ledger *ledger.Store
}

// Outcome is the result of processing one tomogram.
type Outcome struct {
	ID         tomoid.TomogramID
	Status     ledger.Status
	Step       string
	ScriptPath string
	JobID      string
	Err        error
}

// Summary aggregates the outcomes of one run.
type Summary struct {
	RunID     string
	Outcomes  []Outcome
	Generated int
	Submitted int
	Failed    int
	Skipped   int
	Duration  time.Duration
}

// Total returns the number of tomograms processed.
func (s Summary) Total() int { return len(s.Outcomes) }

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case ledger.StatusGenerated:
		s.Generated++
	case ledger.StatusSubmitted:
		s.Submitted++
	case ledger.StatusFailed:
		s.Failed++
	case ledger.StatusSkipped:
		s.Skipped++
	}
}

// New validates cfg and returns a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Resolver == nil || cfg.Descriptor == nil || cfg.Submitter == nil {
		return nil, errors.New("batch runner requires resolver, descriptor, and submitter")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("batch runner requires an output directory")
	}
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := logging.NewComponentLogger(cfg.Logger, "batch")
	return &Runner{cfg: cfg, runID: runID, logger: logger, now: time.Now}, nil
}

// RunID returns the identifier attached to every log line and ledger row.
func (r *Runner) RunID() string { return r.runID }

// TomogramDir returns the per-tomogram output directory.
func TomogramDir(outputDir string, id tomoid.TomogramID) string {
	return filepath.Join(outputDir, "tomo_"+id.String())
}

func (r *Runner) context(ctx context.Context) context.Context {
	return services.WithRunID(ctx, r.runID)
}

// Execute runs the full state machine: validate the first identifier, stop
// there when validateOnly is set, otherwise process every identifier. The
// error is non-nil only for run-fatal conditions.
func (r *Runner) Execute(ctx context.Context, ids []tomoid.TomogramID, validateOnly bool) (*Report, Summary, error) {
	summary := Summary{RunID: r.runID}
	if len(ids) == 0 {
		return nil, summary, services.Wrap(services.ErrConfiguration, "collect", "", "no tomograms to process", nil)
	}
	report, err := r.Validate(ctx, ids[0])
	if err != nil {
		return nil, summary, err
	}
	if validateOnly {
		return &report, summary, nil
	}
	summary, err = r.Run(ctx, ids)
	return &report, summary, err
}

// Run processes ids in order. Per-tomogram failures are recorded in the
// summary and never returned; the error reports only setup failures such as
// a held lock.
func (r *Runner) Run(ctx context.Context, ids []tomoid.TomogramID) (Summary, error) {
	ctx = r.context(ctx)
	logger := logging.WithContext(ctx, r.logger)
	summary := Summary{RunID: r.runID}

	if err := os.MkdirAll(r.cfg.OutputDir, 0o755); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "run", "create output directory", r.cfg.OutputDir, err)
	}
	lockPath := filepath.Join(r.cfg.OutputDir, LockFileName)
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "run", "acquire lock", lockPath, err)
	}
	if !ok {
		return summary, services.Wrap(services.ErrConfiguration, "run", "acquire lock",
			"another tmbatch run is writing to "+r.cfg.OutputDir, nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logging.WarnWithContext(logger, "failed to release run lock", "lock_release_failed",
				logging.String("lock", lockPath),
				logging.Error(err),
			)
		}
	}()

	r.ledger = r.cfg.Ledger
	if r.ledger == nil && r.cfg.LedgerPath != "" {
		store, err := ledger.Open(r.cfg.LedgerPath)
		if err != nil {
			logging.WarnWithContext(logger, "ledger unavailable", "ledger_open_failed",
				logging.String("ledger", r.cfg.LedgerPath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "this run will not appear in history"),
			)
		} else {
			r.ledger = store
			defer func() {
				_ = store.Close()
				r.ledger = nil
			}()
		}
	}

	start := r.now()
	logger.Info("batch run started",
		logging.Int("tomograms", len(ids)),
		logging.String("output_dir", r.cfg.OutputDir),
		logging.Bool("dry_run", r.cfg.DryRun),
	)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			logging.WarnWithContext(logger, "batch run cancelled", "run_cancelled",
				logging.Int("remaining", len(ids)-summary.Total()),
				logging.String(logging.FieldImpact, "remaining tomograms were not processed"),
			)
			break
		}
		outcome := r.process(ctx, id)
		summary.add(outcome)
		r.record(ctx, outcome)
		r.cfg.Metrics.observe(outcome.Status)
		if r.cfg.Observer != nil {
			r.cfg.Observer(outcome)
		}
	}

	end := r.now()
	summary.Duration = end.Sub(start)
	r.cfg.Metrics.finish(end, summary.Duration)
	logger.Info("batch run finished",
		logging.Int("submitted", summary.Submitted),
		logging.Int("generated", summary.Generated),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Duration("elapsed", summary.Duration),
	)
	return summary, nil
}

func (r *Runner) process(ctx context.Context, id tomoid.TomogramID) Outcome {
	ctx = services.WithTomogramID(ctx, id.String())
	outcome := Outcome{ID: id}
	fail := func(status ledger.Status, step string, err error) Outcome {
		outcome.Status = status
		outcome.Step = step
		outcome.Err = err
		logger := logging.WithContext(services.WithStep(ctx, step), r.logger)
		if status == ledger.StatusSkipped {
			logging.WarnWithContext(logger, "tomogram skipped", "tomogram_skipped",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, hintFor(step)),
				logging.String(logging.FieldImpact, "no job generated for this tomogram"),
			)
			return outcome
		}
		logging.ErrorWithContext(logger, "tomogram failed", "tomogram_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hintFor(step)),
		)
		return outcome
	}

	set, err := r.cfg.Resolver.Resolve(ctx, id)
	if err != nil {
		return fail(ledger.StatusSkipped, "resolve", err)
	}

	series := tiltseries.Read(ctx, set.MetadataPath, r.logger)
	if series.Empty() {
		return fail(ledger.StatusSkipped, "metadata",
			fmt.Errorf("%w: no tilt data in %s", tiltseries.ErrMetadataRead, set.MetadataPath))
	}

	dir := TomogramDir(r.cfg.OutputDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(ledger.StatusFailed, "write", fmt.Errorf("create %s: %w", dir, err))
	}
	files, err := tiltseries.WriteSideFiles(dir, id, series)
	if err != nil {
		return fail(ledger.StatusFailed, "write", err)
	}

	target := jobspec.Target{
		ID:           id,
		VolumePath:   set.VolumePath,
		TiltFile:     files.TiltFile,
		ExposureFile: files.ExposureFile,
		DefocusFile:  files.DefocusFile,
		OutputDir:    dir,
		MaskPath:     set.MaskPath,
	}
	script, err := r.cfg.Descriptor.Script(target)
	if err != nil {
		return fail(ledger.StatusFailed, "script", err)
	}
	scriptPath := filepath.Join(dir, jobspec.ScriptName(id.String()))
	if err := fileutil.WriteFileAtomic(scriptPath, script, 0o755); err != nil {
		return fail(ledger.StatusFailed, "script", fmt.Errorf("write %s: %w", scriptPath, err))
	}
	outcome.ScriptPath = scriptPath

	logger := logging.WithContext(services.WithStep(ctx, "submit"), r.logger)
	logger.Info("submission script generated",
		logging.String("script", scriptPath),
		logging.Int("tilts", series.Len()),
		logging.Bool("tomogram_mask", set.HasMask()),
	)

	result, err := r.cfg.Submitter.Submit(ctx, scriptPath)
	if err != nil {
		return fail(ledger.StatusFailed, "submit", err)
	}
	outcome.Step = "submit"
	if result.DryRun {
		outcome.Status = ledger.StatusGenerated
		logger.Info("dry run; script not submitted", logging.String("command", joinCommand(result.Command)))
		return outcome
	}
	outcome.Status = ledger.StatusSubmitted
	outcome.JobID = result.JobID
	logger.Info("script submitted",
		logging.String("job_id", result.JobID),
		logging.String("stdout", result.Stdout),
	)
	return outcome
}

func (r *Runner) record(ctx context.Context, o Outcome) {
	if r.ledger == nil {
		return
	}
	entry := ledger.Entry{
		RunID:      r.runID,
		TomogramID: o.ID.String(),
		Status:     o.Status,
		Step:       o.Step,
		ScriptPath: o.ScriptPath,
		JobID:      o.JobID,
		DryRun:     r.cfg.DryRun,
	}
	if o.Err != nil {
		entry.Message = o.Err.Error()
	}
	if _, err := r.ledger.Record(ctx, entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, r.logger), "ledger write failed", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "history for this tomogram is incomplete"),
		)
	}
}

func hintFor(step string) string {
	switch step {
	case "resolve":
		return "check the metadata and volume directories contain a file for this identifier"
	case "metadata":
		return "check the STAR file has tilt angle, defocus U/V, and pre-exposure columns"
	case "write", "script":
		return "check the output directory is writable"
	case "submit":
		return "check the sbatch output above; the script was written and can be submitted by hand"
	default:
		return "check logs for details"
	}
}

func joinCommand(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += jobspec.ShellQuote(p)
	}
	return out
}
