// Package slurm hands generated scripts to the SLURM queue manager.
//
// Submission runs the configured command (sbatch by default) exactly once per
// script with no retry and no timeout. Exit status and captured output are
// returned to the caller for reporting; the job id is parsed from the
// "Submitted batch job N" line when present. DryRun implements the same
// Submitter interface without executing anything.
package slurm
