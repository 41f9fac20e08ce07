package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmbatch/internal/config"
	"tmbatch/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	ds         testsupport.Dataset
	configPath string
	baseDir    string
	sbatch     string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	sbatch := filepath.Join(base, "bin", "fake-sbatch")
	testsupport.WriteText(t, sbatch, "#!/bin/sh\necho \"Submitted batch job 4242\"\n")
	if err := os.Chmod(sbatch, 0o755); err != nil {
		t.Fatalf("chmod fake sbatch: %v", err)
	}
	cfg.Slurm.SubmitCommand = sbatch

	configPath := filepath.Join(homeDir, ".config", "tmbatch", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		ds:         testsupport.NewDataset(t),
		configPath: configPath,
		baseDir:    base,
		sbatch:     sbatch,
	}
}

func (e *cliTestEnv) runArgs(extra ...string) []string {
	args := []string{
		"run",
		"--mrc-dir", e.ds.VolumeDir,
		"--star-dir", e.ds.MetadataDir,
		"--bmask-dir", e.ds.MaskDir,
		"-t", e.ds.Template,
		"-m", e.ds.Mask,
		"--particle-diameter", "250",
		"--voxel-size", "13.48",
	}
	return append(args, extra...)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\noutput_dir = %q\nlog_dir = %q\n\n[slurm]\nsubmit_command = %q\n\n[logging]\nlevel = %q\n",
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.Slurm.SubmitCommand,
		cfg.Logging.Level,
	)
	testsupport.WriteText(t, path, content)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
