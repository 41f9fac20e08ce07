package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tmbatch/internal/ledger"
	"tmbatch/internal/services"
)

func TestRunDryRunGeneratesScripts(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", true)
	env.ds.AddTomogram(t, "2", false)

	out, _, err := runCLI(t, env.runArgs("--dry-run"), env.configPath)
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	script := filepath.Join(env.cfg.Paths.OutputDir, "tomo_1", "submit_1.sh")
	requireContains(t, out, "Would submit: "+env.sbatch+" "+script)
	requireContains(t, out, "0 submitted, 2 generated, 0 skipped, 0 failed")

	data, err := os.ReadFile(script)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	requireContains(t, string(data), "--tomogram-mask "+filepath.Join(env.ds.MaskDir, "bmask_1.mrc"))
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "tomo_2", "2.tlt")); err != nil {
		t.Fatalf("expected side files for tomogram 2: %v", err)
	}
}

func TestRunNoTomogramMask(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", true)

	if _, _, err := runCLI(t, env.runArgs("--dry-run", "--no-tomogram-mask"), env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(env.cfg.Paths.OutputDir, "tomo_1", "submit_1.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "--tomogram-mask") {
		t.Fatalf("mask flag present despite --no-tomogram-mask:\n%s", data)
	}
}

func TestRunSubmitsAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)
	env.ds.AddTomogram(t, "3_2", false)
	metrics := filepath.Join(env.baseDir, "tmbatch.prom")

	out, _, err := runCLI(t, env.runArgs("--metrics-file", metrics, "--partition", "gpu-short"), env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "2 submitted, 0 generated")
	requireContains(t, out, "4242")

	data, err := os.ReadFile(filepath.Join(env.cfg.Paths.OutputDir, "tomo_3_2", "submit_3_2.sh"))
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, string(data), "#SBATCH --partition=gpu-short\n")
	requireContains(t, string(data), "#SBATCH -J pytom_3_2\n")

	prom, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	requireContains(t, string(prom), `tmbatch_tomograms_total{outcome="submitted"} 2`)

	if _, err := os.Stat(ledger.PathFor(env.cfg.Paths.OutputDir)); err != nil {
		t.Fatalf("expected ledger: %v", err)
	}
	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "Submitted")
	out, _, err = runCLI(t, []string{"history", "--latest"}, env.configPath)
	if err != nil {
		t.Fatalf("history --latest: %v", err)
	}
	requireContains(t, out, "3_2")
	requireContains(t, out, "4242")
}

func TestRunValidateOnly(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "5", false)

	out, _, err := runCLI(t, env.runArgs("--validate-only"), env.configPath)
	if err != nil {
		t.Fatalf("run --validate-only: %v", err)
	}
	requireContains(t, out, "Validation: tomogram 5")
	requireContains(t, out, "STAR:     "+filepath.Join(env.ds.MetadataDir, "Position_5.star"))
	requireContains(t, out, "Mask:     (none)")
	if _, err := os.Stat(env.cfg.Paths.OutputDir); !os.IsNotExist(err) {
		t.Fatalf("validate-only must not create the output directory, got %v", err)
	}
}

func TestRunValidationGateAborts(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)
	env.ds.AddTomogram(t, "2", false)
	if err := os.Remove(filepath.Join(env.ds.MetadataDir, "Position_1.star")); err != nil {
		t.Fatal(err)
	}

	_, _, err := runCLI(t, env.runArgs("--dry-run"), env.configPath)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "tomo_2")); !os.IsNotExist(err) {
		t.Fatalf("no tomogram may be processed after a failed gate, got %v", err)
	}
}

func TestRunRequiresSampling(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)

	args := env.runArgs("--dry-run")
	for i, a := range args {
		if a == "--particle-diameter" {
			args = append(args[:i], args[i+2:]...)
			break
		}
	}
	_, _, err := runCLI(t, args, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	requireContains(t, err.Error(), "particle diameter or angular search")
}

func TestRunRejectsMissingVolumeDir(t *testing.T) {
	env := setupCLITestEnv(t)
	args := env.runArgs("--dry-run")
	for i, a := range args {
		if a == "--mrc-dir" {
			args[i+1] = filepath.Join(env.baseDir, "missing")
		}
	}
	_, _, err := runCLI(t, args, env.configPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRunTomolist(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)
	env.ds.AddTomogram(t, "2", false)
	list := filepath.Join(env.baseDir, "ids.txt")
	if err := os.WriteFile(list, []byte("2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, env.runArgs("--dry-run", "--tomolist", list), env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "0 submitted, 1 generated")
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "tomo_1")); !os.IsNotExist(err) {
		t.Fatalf("tomogram 1 is not in the list, got %v", err)
	}
}

func TestHistoryWithoutLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No submission history")
}

func TestLogsFiltersByTomogram(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)
	env.ds.AddTomogram(t, "2", false)
	if err := os.Remove(filepath.Join(env.ds.VolumeDir, "rec_Position_2.mrc")); err != nil {
		t.Fatal(err)
	}
	list := filepath.Join(env.baseDir, "ids.txt")
	if err := os.WriteFile(list, []byte("1\n2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, env.runArgs("--dry-run", "--tomolist", list), env.configPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "--tomogram", "2", "--level", "warn"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "tomogram skipped")
	requireContains(t, out, "event_type=tomogram_skipped")
	if strings.Contains(out, "script generated") {
		t.Fatalf("unexpected info line in filtered output:\n%s", out)
	}
}

func TestRunRejectsNonPositiveDiameterWithAngularSearch(t *testing.T) {
	for _, diameter := range []string{"-5", "0"} {
		env := setupCLITestEnv(t)
		env.ds.AddTomogram(t, "1", false)

		args := env.runArgs("--dry-run", "--particle-diameter="+diameter, "--angular-search", "7")
		_, _, err := runCLI(t, args, env.configPath)
		if !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("diameter %s: expected configuration error, got %v", diameter, err)
		}
		requireContains(t, err.Error(), "particle diameter must be positive")
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, "tomo_1")); !os.IsNotExist(err) {
			t.Fatalf("diameter %s: no script may be written, got %v", diameter, err)
		}
	}
}

func TestRunVolumeSplitForms(t *testing.T) {
	forms := map[string][]string{
		"comma":  {"-s", "2,2,1"},
		"spaced": {"-s", "2", "2", "1"},
	}
	for name, split := range forms {
		env := setupCLITestEnv(t)
		env.ds.AddTomogram(t, "1", false)

		args := env.runArgs(append(split, "--dry-run")...)
		if _, _, err := runCLI(t, args, env.configPath); err != nil {
			t.Fatalf("%s: run: %v", name, err)
		}
		data, err := os.ReadFile(filepath.Join(env.cfg.Paths.OutputDir, "tomo_1", "submit_1.sh"))
		if err != nil {
			t.Fatalf("%s: read script: %v", name, err)
		}
		requireContains(t, string(data), "\n-s 2 2 1 \\\n")
	}
}

func TestCommandsRejectStrayArguments(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)

	cases := map[string][]string{
		"run":     env.runArgs("--dry-run", "stray"),
		"split":   env.runArgs("--dry-run", "-s", "2", "2", "1", "stray"),
		"history": {"history", "stray"},
		"logs":    {"logs", "stray"},
	}
	for name, args := range cases {
		_, _, err := runCLI(t, args, env.configPath)
		if err == nil || !strings.Contains(err.Error(), `unknown command "stray"`) {
			t.Fatalf("%s: expected stray argument to be rejected, got %v", name, err)
		}
	}
	if _, err := os.Stat(env.cfg.Paths.OutputDir); !os.IsNotExist(err) {
		t.Fatalf("rejected invocations must not write output, got %v", err)
	}
}

func TestRunMissingSubmitCommandFailsEachTomogram(t *testing.T) {
	env := setupCLITestEnv(t)
	env.ds.AddTomogram(t, "1", false)
	env.ds.AddTomogram(t, "2", false)
	env.cfg.Slurm.SubmitCommand = filepath.Join(env.baseDir, "bin", "no-such-sbatch")
	writeTestConfig(t, env.configPath, env.cfg)

	out, _, err := runCLI(t, env.runArgs(), env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	requireContains(t, out, "0 submitted, 0 generated, 0 skipped, 2 failed")
	for _, id := range []string{"1", "2"} {
		script := filepath.Join(env.cfg.Paths.OutputDir, "tomo_"+id, "submit_"+id+".sh")
		if _, err := os.Stat(script); err != nil {
			t.Fatalf("expected script for tomogram %s: %v", id, err)
		}
	}
}
