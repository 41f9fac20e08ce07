package slurm_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tmbatch/internal/slurm"
)

type stubExecutor struct {
	out   slurm.Output
	err   error
	calls int
	args  [][]string
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string) (slurm.Output, error) {
	s.calls++
	s.args = append(s.args, append([]string{binary}, args...))
	return s.out, s.err
}

func TestSubmitParsesJobID(t *testing.T) {
	exec := &stubExecutor{out: slurm.Output{Stdout: "Submitted batch job 49229449\n"}}
	client := slurm.New("", slurm.WithExecutor(exec))

	result, err := client.Submit(context.Background(), "out/tomo_1/submit_1.sh")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.JobID != "49229449" {
		t.Fatalf("expected job id 49229449, got %q", result.JobID)
	}
	if exec.calls != 1 {
		t.Fatalf("expected one call, got %d", exec.calls)
	}
	if got := exec.args[0]; len(got) != 2 || got[0] != "sbatch" || got[1] != "out/tomo_1/submit_1.sh" {
		t.Fatalf("unexpected command %v", got)
	}
}

func TestSubmitFailureIsNotRetried(t *testing.T) {
	exec := &stubExecutor{
		out: slurm.Output{Stderr: "sbatch: error: invalid partition\n", ExitCode: 1},
		err: errors.New("exit status 1"),
	}
	client := slurm.New("sbatch", slurm.WithExecutor(exec))

	result, err := client.Submit(context.Background(), "submit_2.sh")
	if !errors.Is(err, slurm.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}
	if result.ExitCode != 1 || result.Stderr != "sbatch: error: invalid partition" {
		t.Fatalf("unexpected result %+v", result)
	}
	if exec.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", exec.calls)
	}
}

func TestSubmitNonZeroExitWithoutError(t *testing.T) {
	exec := &stubExecutor{out: slurm.Output{ExitCode: 2, Stderr: "denied"}}
	_, err := slurm.New("sbatch", slurm.WithExecutor(exec)).Submit(context.Background(), "s.sh")
	if !errors.Is(err, slurm.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}
}

func TestSubmitRunsRealCommand(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "fake-sbatch")
	if err := os.WriteFile(fake, []byte("#!/bin/sh\necho \"Submitted batch job 77\"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	result, err := slurm.New(fake).Submit(context.Background(), "script.sh")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.JobID != "77" {
		t.Fatalf("expected job id 77, got %q", result.JobID)
	}

	failing := filepath.Join(dir, "failing-sbatch")
	if err := os.WriteFile(failing, []byte("#!/bin/sh\necho boom >&2\nexit 3\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	result, err = slurm.New(failing).Submit(context.Background(), "script.sh")
	if !errors.Is(err, slurm.ErrSubmission) {
		t.Fatalf("expected ErrSubmission, got %v", err)
	}
	if result.ExitCode != 3 || result.Stderr != "boom" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestDryRunNeverExecutes(t *testing.T) {
	var buf bytes.Buffer
	result, err := slurm.DryRun{Out: &buf}.Submit(context.Background(), "out/tomo_3/submit_3.sh")
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !result.DryRun || result.JobID != "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if buf.String() != "Would submit: sbatch out/tomo_3/submit_3.sh\n" {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseJobID(t *testing.T) {
	if got := slurm.ParseJobID("Submitted batch job 12 on cluster gpu"); got != "12" {
		t.Fatalf("got %q", got)
	}
	if got := slurm.ParseJobID("queued"); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
