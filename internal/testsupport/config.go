package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tmbatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.OutputDir = filepath.Join(base, "submission")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSubmitCommand overrides the queue submission binary.
func WithSubmitCommand(command string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Slurm.SubmitCommand = command
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, sbatch is stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"sbatch"}
		}
		StubBinaries(b.t, filepath.Join(b.baseDir, "bin"), names...)
	}
}

// StubBinaries writes `exit 0` scripts named names into dir and prepends dir
// to PATH for the duration of the test.
func StubBinaries(t testing.TB, dir string, names ...string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range names {
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.OutputDir)
}
