package preflight

import (
	"fmt"
	"strings"

	"tmbatch/internal/config"
	"tmbatch/internal/services"
)

// minFreeBytes is the free-space floor below which the output check warns.
const minFreeBytes = 64 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// Blocking reports whether the result must stop a run.
func (r Result) Blocking() bool { return !r.Passed && !r.Optional }

// Inputs names the paths a run reads and writes.
type Inputs struct {
	MetadataDir string
	VolumeDir   string
	MaskDir     string
	Template    string
	Mask        string
	IDList      string
	OutputDir   string
}

// RunAll executes every applicable check in a fixed order.
func RunAll(cfg *config.Config, in Inputs) []Result {
	results := []Result{
		CheckReadableDirectory("Volume directory", in.VolumeDir),
		CheckReadableDirectory("Metadata directory", in.MetadataDir),
	}
	if strings.TrimSpace(in.MaskDir) != "" {
		mask := CheckReadableDirectory("Mask directory", in.MaskDir)
		mask.Optional = true
		results = append(results, mask)
	}
	results = append(results,
		CheckReadableFile("Template", in.Template),
		CheckReadableFile("Mask", in.Mask),
	)
	if strings.TrimSpace(in.IDList) != "" {
		results = append(results, CheckReadableFile("Identifier list", in.IDList))
	}
	results = append(results,
		CheckOutputDirectory("Output directory", in.OutputDir),
		CheckFreeSpace("Output free space", in.OutputDir, minFreeBytes),
	)
	if cfg != nil {
		results = append(results, CheckSystemDeps(cfg)...)
	}
	return results
}

// FirstBlocking returns a configuration error for the first blocking result,
// or nil when the run may proceed.
func FirstBlocking(results []Result) error {
	for _, r := range results {
		if r.Blocking() {
			return services.Wrap(services.ErrConfiguration, "preflight", r.Name, r.Detail, nil)
		}
	}
	return nil
}

// Warnings returns the failed optional results.
func Warnings(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && r.Optional {
			out = append(out, r)
		}
	}
	return out
}

// Summary formats a one-line count of passed and failed checks.
func Summary(results []Result) string {
	passed, blocking, warned := 0, 0, 0
	for _, r := range results {
		switch {
		case r.Passed:
			passed++
		case r.Blocking():
			blocking++
		default:
			warned++
		}
	}
	return fmt.Sprintf("%d passed, %d failed, %d warnings", passed, blocking, warned)
}
