package jobspec

import (
	"tmbatch/internal/config"
)

// SamplingKind selects how angular sampling is specified.
type SamplingKind int

const (
	SamplingUnset SamplingKind = iota
	SamplingParticleDiameter
	SamplingAngularSearch
)

func (k SamplingKind) String() string {
	switch k {
	case SamplingParticleDiameter:
		return "particle-diameter"
	case SamplingAngularSearch:
		return "angular-search"
	default:
		return "unset"
	}
}

// Sampling is the mutually exclusive particle-diameter / angular-search
// choice. Build it with ChooseSampling, ParticleDiameter, or AngularSearch.
type Sampling struct {
	Kind     SamplingKind
	Diameter float64
	// Search is a step in degrees or a path to an angle list file.
	Search string
}

// ParticleDiameter samples angles from a particle diameter in Å.
func ParticleDiameter(d float64) Sampling {
	return Sampling{Kind: SamplingParticleDiameter, Diameter: d}
}

// AngularSearch samples angles from an explicit search value.
func AngularSearch(v string) Sampling {
	return Sampling{Kind: SamplingAngularSearch, Search: v}
}

// ChooseSampling resolves both optional inputs to a single choice. Any
// non-zero diameter wins over an angular search value, so a negative one
// reaches Compile and is rejected instead of falling through to the search.
func ChooseSampling(diameter float64, search string) Sampling {
	switch {
	case diameter != 0:
		return ParticleDiameter(diameter)
	case search != "":
		return AngularSearch(search)
	default:
		return Sampling{}
	}
}

// CTFModel is the tomogram CTF model passed to the tool. Empty means unset.
type CTFModel string

const (
	CTFPhaseFlip CTFModel = "phase-flip"
	CTFWiener    CTFModel = "wiener"
)

// Slurm holds the #SBATCH resource directives.
type Slurm struct {
	Partition     string
	NTasks        int
	Nodes         int
	NTasksPerNode int
	CPUsPerTask   int
	Gres          string
	MailType      string
	MemGB         int
	QOS           string
	Time          string
}

// JobConfig is the full set of tunables shared by every tomogram in a batch.
type JobConfig struct {
	Template string
	Mask     string
	Sampling Sampling

	VoxelSize   float64
	VolumeSplit *[3]int

	RandomPhaseCorrection bool
	RNGSeed               int
	GPUIDs                []string

	AmplitudeContrast   float64
	SphericalAberration float64
	Voltage             float64

	// ZAxisSymmetry is kept verbatim; only positive integer literals are
	// emitted.
	ZAxisSymmetry string

	PerTiltWeighting  bool
	CTFModel          CTFModel
	NonSphericalMask  bool
	SpectralWhitening bool
	LowPass           float64
	HighPass          float64

	// UseTomogramMask is false when masking is explicitly disabled.
	UseTomogramMask bool

	Slurm      Slurm
	Modules    []string
	ToolBinary string
}

// FromConfig seeds a JobConfig with the configured defaults. Per-run fields
// (template, mask, sampling, voxel size) are left for the caller.
func FromConfig(cfg *config.Config) JobConfig {
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	return JobConfig{
		RNGSeed:             cfg.Matching.RNGSeed,
		GPUIDs:              append([]string(nil), cfg.Matching.GPUIDs...),
		AmplitudeContrast:   cfg.Matching.AmplitudeContrast,
		SphericalAberration: cfg.Matching.SphericalAberration,
		Voltage:             cfg.Matching.Voltage,
		UseTomogramMask:     true,
		Slurm: Slurm{
			Partition:     cfg.Slurm.Partition,
			NTasks:        cfg.Slurm.NTasks,
			Nodes:         cfg.Slurm.Nodes,
			NTasksPerNode: cfg.Slurm.NTasksPerNode,
			CPUsPerTask:   cfg.Slurm.CPUsPerTask,
			Gres:          cfg.Slurm.Gres,
			MailType:      cfg.Slurm.MailType,
			MemGB:         cfg.Slurm.MemGB,
			QOS:           cfg.Slurm.QOS,
			Time:          cfg.Slurm.Time,
		},
		Modules:    append([]string(nil), cfg.Matching.Modules...),
		ToolBinary: cfg.Matching.ToolBinary,
	}
}
