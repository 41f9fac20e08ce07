package config

const (
	defaultConfigPath          = "~/.config/tmbatch/config.toml"
	defaultOutputDir           = "submission"
	defaultLogDir              = "~/.local/share/tmbatch/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultPartition           = "emgpu"
	defaultNTasks              = 1
	defaultNodes               = 1
	defaultNTasksPerNode       = 1
	defaultCPUsPerTask         = 4
	defaultGres                = "gpu:1"
	defaultMailType            = "none"
	defaultMemGB               = 128
	defaultQOS                 = "emgpu"
	defaultTime                = "05:00:00"
	defaultSubmitCommand       = "sbatch"
	defaultToolBinary          = "pytom_match_template.py"
	defaultRNGSeed             = 69
	defaultAmplitudeContrast   = 0.07
	defaultSphericalAberration = 2.7
	defaultVoltage             = 300
)

var (
	defaultModules  = []string{"purge", "pytom-match-pick"}
	defaultGPUIDs   = []string{"0"}
	defaultPrefixes = []string{"rec_Position_", "Position_"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Slurm: Slurm{
			Partition:     defaultPartition,
			NTasks:        defaultNTasks,
			Nodes:         defaultNodes,
			NTasksPerNode: defaultNTasksPerNode,
			CPUsPerTask:   defaultCPUsPerTask,
			Gres:          defaultGres,
			MailType:      defaultMailType,
			MemGB:         defaultMemGB,
			QOS:           defaultQOS,
			Time:          defaultTime,
			SubmitCommand: defaultSubmitCommand,
		},
		Matching: Matching{
			ToolBinary:          defaultToolBinary,
			Modules:             append([]string(nil), defaultModules...),
			GPUIDs:              append([]string(nil), defaultGPUIDs...),
			RNGSeed:             defaultRNGSeed,
			AmplitudeContrast:   defaultAmplitudeContrast,
			SphericalAberration: defaultSphericalAberration,
			Voltage:             defaultVoltage,
		},
		Identifiers: Identifiers{
			Prefixes: append([]string(nil), defaultPrefixes...),
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
