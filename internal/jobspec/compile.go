package jobspec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"tmbatch/internal/tomoid"
)

// ErrInvalidConfig marks a JobConfig that cannot be compiled.
var ErrInvalidConfig = errors.New("invalid job configuration")

const (
	defaultToolBinary = "pytom_match_template.py"
	defaultGPUID      = "0"
)

// Target carries the per-tomogram paths substituted into a Descriptor.
type Target struct {
	ID           tomoid.TomogramID
	VolumePath   string
	TiltFile     string
	ExposureFile string
	DefocusFile  string
	OutputDir    string
	// MaskPath is the resolved tomogram mask; empty when none was found.
	MaskPath string
}

// Descriptor is a compiled, immutable job configuration.
type Descriptor struct {
	cfg        JobConfig
	zSymmetry  string
	gpuIDs     []string
	modules    []string
	toolBinary string
}

// Compile validates cfg and returns a Descriptor. The config is copied; later
// changes to cfg do not affect the Descriptor.
func Compile(cfg JobConfig) (*Descriptor, error) {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(cfg.Template) == "" {
		addf("template path is required")
	}
	if strings.TrimSpace(cfg.Mask) == "" {
		addf("mask path is required")
	}
	switch cfg.Sampling.Kind {
	case SamplingParticleDiameter:
		if cfg.Sampling.Diameter <= 0 {
			addf("particle diameter must be positive")
		}
	case SamplingAngularSearch:
		if strings.TrimSpace(cfg.Sampling.Search) == "" {
			addf("angular search value is empty")
		}
	default:
		addf("one of particle diameter or angular search is required")
	}
	if cfg.VoxelSize <= 0 {
		addf("voxel size must be positive")
	}
	if cfg.VolumeSplit != nil {
		for i, n := range cfg.VolumeSplit {
			if n <= 0 {
				addf("volume split %c must be a positive integer", "XYZ"[i])
			}
		}
	}
	if cfg.RNGSeed < 0 {
		addf("rng seed must be non-negative")
	}
	for _, id := range cfg.GPUIDs {
		if strings.TrimSpace(id) == "" || strings.ContainsAny(id, " \t") {
			addf("gpu id %q is invalid", id)
		}
	}
	if cfg.AmplitudeContrast < 0 || cfg.AmplitudeContrast > 1 {
		addf("amplitude contrast must be between 0 and 1")
	}
	if cfg.SphericalAberration < 0 {
		addf("spherical aberration must be non-negative")
	}
	if cfg.Voltage <= 0 {
		addf("voltage must be positive")
	}
	switch cfg.CTFModel {
	case "", CTFPhaseFlip, CTFWiener:
	default:
		addf("tomogram ctf model %q must be %s or %s", cfg.CTFModel, CTFPhaseFlip, CTFWiener)
	}
	if cfg.LowPass < 0 || cfg.HighPass < 0 {
		addf("filter cutoffs must be non-negative")
	}
	problems = append(problems, validateSlurm(cfg.Slurm)...)

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	d := &Descriptor{
		cfg:        cfg,
		zSymmetry:  positiveInteger(cfg.ZAxisSymmetry),
		gpuIDs:     cloneNonEmpty(cfg.GPUIDs),
		modules:    cloneNonEmpty(cfg.Modules),
		toolBinary: strings.TrimSpace(cfg.ToolBinary),
	}
	if len(d.gpuIDs) == 0 {
		d.gpuIDs = []string{defaultGPUID}
	}
	if d.toolBinary == "" {
		d.toolBinary = defaultToolBinary
	}
	if cfg.VolumeSplit != nil {
		split := *cfg.VolumeSplit
		d.cfg.VolumeSplit = &split
	}
	d.cfg.GPUIDs = nil
	d.cfg.Modules = nil
	return d, nil
}

func validateSlurm(s Slurm) []string {
	var problems []string
	counts := []struct {
		name  string
		value int
	}{
		{"ntasks", s.NTasks},
		{"nodes", s.Nodes},
		{"ntasks-per-node", s.NTasksPerNode},
		{"cpus-per-task", s.CPUsPerTask},
		{"mem", s.MemGB},
	}
	for _, c := range counts {
		if c.value <= 0 {
			problems = append(problems, fmt.Sprintf("slurm %s must be positive", c.name))
		}
	}
	if strings.TrimSpace(s.Partition) == "" {
		problems = append(problems, "slurm partition is required")
	}
	if strings.TrimSpace(s.Time) == "" {
		problems = append(problems, "slurm time limit is required")
	}
	fields := []struct {
		name  string
		value string
	}{
		{"partition", s.Partition},
		{"gres", s.Gres},
		{"mail-type", s.MailType},
		{"qos", s.QOS},
		{"time", s.Time},
	}
	for _, f := range fields {
		if strings.ContainsAny(f.value, " \t\n") {
			problems = append(problems, fmt.Sprintf("slurm %s must not contain whitespace", f.name))
		}
	}
	return problems
}

// positiveInteger returns the canonical form of value when it is a positive
// integer literal, else "".
func positiveInteger(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return ""
		}
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func cloneNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Sampling returns the compiled sampling choice.
func (d *Descriptor) Sampling() Sampling { return d.cfg.Sampling }

// Slurm returns the resource directives.
func (d *Descriptor) Slurm() Slurm { return d.cfg.Slurm }

// GPUIDs returns the resolved GPU id list.
func (d *Descriptor) GPUIDs() []string { return append([]string(nil), d.gpuIDs...) }

// ToolBinary returns the matching tool invoked by the script.
func (d *Descriptor) ToolBinary() string { return d.toolBinary }

// Args returns the flat argument list for t, excluding the tool binary.
func (d *Descriptor) Args(t Target) []string {
	var args []string
	for _, group := range d.Groups(t) {
		args = append(args, group...)
	}
	return args
}

// Groups returns the arguments for t grouped as one flag with its values per
// entry, in emission order.
func (d *Descriptor) Groups(t Target) [][]string {
	c := d.cfg
	groups := [][]string{
		{"-v", t.VolumePath},
		{"-a", t.TiltFile},
		{"--dose-accumulation", t.ExposureFile},
		{"--defocus", t.DefocusFile},
		{"-t", c.Template},
		{"-d", t.OutputDir},
		{"-m", c.Mask},
	}

	switch c.Sampling.Kind {
	case SamplingParticleDiameter:
		groups = append(groups, []string{"--particle-diameter", formatFloat(c.Sampling.Diameter)})
	case SamplingAngularSearch:
		groups = append(groups, []string{"--angular-search", c.Sampling.Search})
	}

	if c.UseTomogramMask && t.MaskPath != "" {
		groups = append(groups, []string{"--tomogram-mask", t.MaskPath})
	}

	if s := c.VolumeSplit; s != nil {
		groups = append(groups, []string{"-s", strconv.Itoa(s[0]), strconv.Itoa(s[1]), strconv.Itoa(s[2])})
	}

	groups = append(groups, []string{"--voxel-size-angstrom", formatFloat(c.VoxelSize)})

	if c.RandomPhaseCorrection {
		groups = append(groups,
			[]string{"-r"},
			[]string{"--rng-seed", strconv.Itoa(c.RNGSeed)},
		)
	}

	groups = append(groups, append([]string{"-g"}, d.gpuIDs...))

	groups = append(groups,
		[]string{"--amplitude-contrast", formatFloat(c.AmplitudeContrast)},
		[]string{"--spherical-aberration", formatFloat(c.SphericalAberration)},
		[]string{"--voltage", formatFloat(c.Voltage)},
	)

	if d.zSymmetry != "" {
		groups = append(groups, []string{"--z-axis-rotational-symmetry", d.zSymmetry})
	}

	if c.PerTiltWeighting {
		groups = append(groups, []string{"--per-tilt-weighting"})
	}
	if c.CTFModel != "" {
		groups = append(groups, []string{"--tomogram-ctf-model", string(c.CTFModel)})
	}
	if c.NonSphericalMask {
		groups = append(groups, []string{"--non-spherical-mask"})
	}
	if c.SpectralWhitening {
		groups = append(groups, []string{"--spectral-whitening"})
	}
	if c.LowPass > 0 {
		groups = append(groups, []string{"--low-pass", formatFloat(c.LowPass)})
	}
	if c.HighPass > 0 {
		groups = append(groups, []string{"--high-pass", formatFloat(c.HighPass)})
	}
	return groups
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
