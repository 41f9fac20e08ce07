package jobspec_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tmbatch/internal/config"
	"tmbatch/internal/jobspec"
)

func baseConfig() jobspec.JobConfig {
	cfg := config.Default()
	job := jobspec.FromConfig(&cfg)
	job.Template = "/data/template.mrc"
	job.Mask = "/data/mask.mrc"
	job.Sampling = jobspec.ParticleDiameter(250)
	job.VoxelSize = 13.48
	return job
}

func target() jobspec.Target {
	return jobspec.Target{
		ID:           "12",
		VolumePath:   "/data/mrc/rec_Position_12.mrc",
		TiltFile:     "out/tomo_12/12.tlt",
		ExposureFile: "out/tomo_12/12_exposure.txt",
		DefocusFile:  "out/tomo_12/12_defocus.txt",
		OutputDir:    "out/tomo_12",
		MaskPath:     "/data/bmask/bmask_12.mrc",
	}
}

func mustCompile(t *testing.T, cfg jobspec.JobConfig) *jobspec.Descriptor {
	t.Helper()
	d, err := jobspec.Compile(cfg)
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	return d
}

func TestArgsMinimalOrder(t *testing.T) {
	d := mustCompile(t, baseConfig())
	want := []string{
		"-v", "/data/mrc/rec_Position_12.mrc",
		"-a", "out/tomo_12/12.tlt",
		"--dose-accumulation", "out/tomo_12/12_exposure.txt",
		"--defocus", "out/tomo_12/12_defocus.txt",
		"-t", "/data/template.mrc",
		"-d", "out/tomo_12",
		"-m", "/data/mask.mrc",
		"--particle-diameter", "250",
		"--tomogram-mask", "/data/bmask/bmask_12.mrc",
		"--voxel-size-angstrom", "13.48",
		"-g", "0",
		"--amplitude-contrast", "0.07",
		"--spherical-aberration", "2.7",
		"--voltage", "300",
	}
	if diff := cmp.Diff(want, d.Args(target())); diff != "" {
		t.Fatalf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestArgsFullOrder(t *testing.T) {
	cfg := baseConfig()
	cfg.VolumeSplit = &[3]int{2, 2, 1}
	cfg.RandomPhaseCorrection = true
	cfg.RNGSeed = 7
	cfg.GPUIDs = []string{"0", "1"}
	cfg.ZAxisSymmetry = "6"
	cfg.PerTiltWeighting = true
	cfg.CTFModel = jobspec.CTFWiener
	cfg.NonSphericalMask = true
	cfg.SpectralWhitening = true
	cfg.LowPass = 35
	cfg.HighPass = 400

	got := mustCompile(t, cfg).Args(target())
	want := []string{
		"-v", "/data/mrc/rec_Position_12.mrc",
		"-a", "out/tomo_12/12.tlt",
		"--dose-accumulation", "out/tomo_12/12_exposure.txt",
		"--defocus", "out/tomo_12/12_defocus.txt",
		"-t", "/data/template.mrc",
		"-d", "out/tomo_12",
		"-m", "/data/mask.mrc",
		"--particle-diameter", "250",
		"--tomogram-mask", "/data/bmask/bmask_12.mrc",
		"-s", "2", "2", "1",
		"--voxel-size-angstrom", "13.48",
		"-r",
		"--rng-seed", "7",
		"-g", "0", "1",
		"--amplitude-contrast", "0.07",
		"--spherical-aberration", "2.7",
		"--voltage", "300",
		"--z-axis-rotational-symmetry", "6",
		"--per-tilt-weighting",
		"--tomogram-ctf-model", "wiener",
		"--non-spherical-mask",
		"--spectral-whitening",
		"--low-pass", "35",
		"--high-pass", "400",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Args mismatch (-want +got):\n%s", diff)
	}
}

func TestDiameterBeatsAngularSearch(t *testing.T) {
	cfg := baseConfig()
	cfg.Sampling = jobspec.ChooseSampling(180, "12.85")
	args := strings.Join(mustCompile(t, cfg).Args(target()), " ")
	if !strings.Contains(args, "--particle-diameter 180") {
		t.Fatalf("expected particle diameter flag, got %s", args)
	}
	if strings.Contains(args, "--angular-search") {
		t.Fatalf("angular search must be omitted when diameter is set, got %s", args)
	}

	cfg.Sampling = jobspec.ChooseSampling(0, "angles.txt")
	args = strings.Join(mustCompile(t, cfg).Args(target()), " ")
	if !strings.Contains(args, "--angular-search angles.txt") || strings.Contains(args, "--particle-diameter") {
		t.Fatalf("expected angular search only, got %s", args)
	}
}

func TestNegativeDiameterIsNotReplacedBySearch(t *testing.T) {
	sampling := jobspec.ChooseSampling(-5, "7")
	if sampling.Kind != jobspec.SamplingParticleDiameter {
		t.Fatalf("expected diameter sampling, got %+v", sampling)
	}
	cfg := baseConfig()
	cfg.Sampling = sampling
	_, err := jobspec.Compile(cfg)
	if !errors.Is(err, jobspec.ErrInvalidConfig) || !strings.Contains(err.Error(), "particle diameter must be positive") {
		t.Fatalf("expected diameter rejection, got %v", err)
	}
}

func TestCompileRejectsInvalidConfig(t *testing.T) {
	cases := map[string]func(*jobspec.JobConfig){
		"no sampling":    func(c *jobspec.JobConfig) { c.Sampling = jobspec.ChooseSampling(0, "") },
		"neg diameter":   func(c *jobspec.JobConfig) { c.Sampling = jobspec.ChooseSampling(-5, "7") },
		"no template":    func(c *jobspec.JobConfig) { c.Template = " " },
		"no mask":        func(c *jobspec.JobConfig) { c.Mask = "" },
		"no voxel size":  func(c *jobspec.JobConfig) { c.VoxelSize = 0 },
		"bad split":      func(c *jobspec.JobConfig) { c.VolumeSplit = &[3]int{2, 0, 1} },
		"bad ctf model":  func(c *jobspec.JobConfig) { c.CTFModel = "none" },
		"bad amplitude":  func(c *jobspec.JobConfig) { c.AmplitudeContrast = 1.5 },
		"bad nodes":      func(c *jobspec.JobConfig) { c.Slurm.Nodes = 0 },
		"spaced gres":    func(c *jobspec.JobConfig) { c.Slurm.Gres = "gpu: 1" },
		"negative seed":  func(c *jobspec.JobConfig) { c.RNGSeed = -1 },
		"blank gpu id":   func(c *jobspec.JobConfig) { c.GPUIDs = []string{"0 1"} },
		"empty timespec": func(c *jobspec.JobConfig) { c.Slurm.Time = "" },
	}
	for name, mutate := range cases {
		cfg := baseConfig()
		mutate(&cfg)
		if _, err := jobspec.Compile(cfg); !errors.Is(err, jobspec.ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	cfg := baseConfig()
	cfg.RandomPhaseCorrection = true
	cfg.CTFModel = jobspec.CTFPhaseFlip
	first := mustCompile(t, cfg)
	second := mustCompile(t, cfg)

	if diff := cmp.Diff(first.Args(target()), second.Args(target())); diff != "" {
		t.Fatalf("Args differ between compiles:\n%s", diff)
	}
	a, err := first.Script(target())
	if err != nil {
		t.Fatal(err)
	}
	b, err := second.Script(target())
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatal("scripts differ between compiles")
	}
}

func TestDescriptorIsolatedFromConfigMutation(t *testing.T) {
	cfg := baseConfig()
	cfg.GPUIDs = []string{"2"}
	cfg.VolumeSplit = &[3]int{1, 1, 1}
	d := mustCompile(t, cfg)
	before := d.Args(target())

	cfg.GPUIDs[0] = "9"
	cfg.VolumeSplit[0] = 4
	if diff := cmp.Diff(before, d.Args(target())); diff != "" {
		t.Fatalf("descriptor changed after config mutation:\n%s", diff)
	}
}

func TestSeedOnlyWithRandomPhaseCorrection(t *testing.T) {
	cfg := baseConfig()
	cfg.RNGSeed = 123
	args := strings.Join(mustCompile(t, cfg).Args(target()), " ")
	if strings.Contains(args, "--rng-seed") || strings.Contains(args, " -r ") {
		t.Fatalf("seed emitted without random-phase correction: %s", args)
	}
}

func TestGPUDefaultAndMaskRules(t *testing.T) {
	cfg := baseConfig()
	cfg.GPUIDs = nil
	cfg.UseTomogramMask = false
	args := strings.Join(mustCompile(t, cfg).Args(target()), " ")
	if !strings.Contains(args, "-g 0 ") {
		t.Fatalf("expected default gpu id, got %s", args)
	}
	if strings.Contains(args, "--tomogram-mask") {
		t.Fatalf("mask emitted while disabled: %s", args)
	}

	cfg.UseTomogramMask = true
	tgt := target()
	tgt.MaskPath = ""
	args = strings.Join(mustCompile(t, cfg).Args(tgt), " ")
	if strings.Contains(args, "--tomogram-mask") {
		t.Fatalf("mask emitted without a resolved mask: %s", args)
	}
}

func TestZAxisSymmetryTolerance(t *testing.T) {
	cases := map[string]string{
		"":    "",
		"abc": "",
		"0":   "",
		"-3":  "",
		"2.5": "",
		"+4":  "",
		" 6 ": "6",
		"012": "12",
	}
	for input, want := range cases {
		cfg := baseConfig()
		cfg.ZAxisSymmetry = input
		args := mustCompile(t, cfg).Args(target())
		got := ""
		for i, arg := range args {
			if arg == "--z-axis-rotational-symmetry" {
				got = args[i+1]
			}
		}
		if got != want {
			t.Fatalf("symmetry %q: got %q want %q", input, got, want)
		}
	}
}

func TestRenderScript(t *testing.T) {
	cfg := baseConfig()
	cfg.Slurm.QOS = ""
	tgt := target()
	tgt.OutputDir = "out dir/tomo_12"
	script, err := mustCompile(t, cfg).Script(tgt)
	if err != nil {
		t.Fatalf("Script returned error: %v", err)
	}
	want := `#!/bin/bash -l

#SBATCH -o pytom.out%j
#SBATCH -D ./
#SBATCH -J pytom_12
#SBATCH --partition=emgpu
#SBATCH --ntasks=1
#SBATCH --nodes=1
#SBATCH --ntasks-per-node=1
#SBATCH --cpus-per-task=4
#SBATCH --gres=gpu:1
#SBATCH --mail-type=none
#SBATCH --mem=128G
#SBATCH --time=05:00:00

ml purge
ml pytom-match-pick

pytom_match_template.py \
-v /data/mrc/rec_Position_12.mrc \
-a out/tomo_12/12.tlt \
--dose-accumulation out/tomo_12/12_exposure.txt \
--defocus out/tomo_12/12_defocus.txt \
-t /data/template.mrc \
-d 'out dir/tomo_12' \
-m /data/mask.mrc \
--particle-diameter 250 \
--tomogram-mask /data/bmask/bmask_12.mrc \
--voxel-size-angstrom 13.48 \
-g 0 \
--amplitude-contrast 0.07 \
--spherical-aberration 2.7 \
--voltage 300
`
	if diff := cmp.Diff(want, string(script)); diff != "" {
		t.Fatalf("script mismatch (-want +got):\n%s", diff)
	}
}

func TestShellQuote(t *testing.T) {
	cases := map[string]string{
		"/plain/path.mrc": "/plain/path.mrc",
		"with space":      "'with space'",
		"it's":            `'it'\''s'`,
		"":                "''",
	}
	for in, want := range cases {
		if got := jobspec.ShellQuote(in); got != want {
			t.Fatalf("ShellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
