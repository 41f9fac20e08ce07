package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Slurm contains the queue-manager directive defaults written into every
// generated submission script.
type Slurm struct {
	Partition     string `toml:"partition"`
	NTasks        int    `toml:"ntasks"`
	Nodes         int    `toml:"nodes"`
	NTasksPerNode int    `toml:"ntasks_per_node"`
	CPUsPerTask   int    `toml:"cpus_per_task"`
	Gres          string `toml:"gres"`
	MailType      string `toml:"mail_type"`
	MemGB         int    `toml:"mem_gb"`
	QOS           string `toml:"qos"`
	Time          string `toml:"time"`
	// SubmitCommand is the queue-manager submission binary.
	SubmitCommand string `toml:"submit_command"`
}

// Matching contains defaults for the template-matching invocation.
type Matching struct {
	ToolBinary          string   `toml:"tool_binary"`
	Modules             []string `toml:"modules"`
	GPUIDs              []string `toml:"gpu_ids"`
	RNGSeed             int      `toml:"rng_seed"`
	AmplitudeContrast   float64  `toml:"amplitude_contrast"`
	SphericalAberration float64  `toml:"spherical_aberration"`
	Voltage             float64  `toml:"voltage"`
}

// Identifiers controls how tomogram identifiers are derived from filenames.
type Identifiers struct {
	// Prefixes are stripped from base names before the remainder is used as the
	// identifier. Longer prefixes win regardless of order.
	Prefixes []string `toml:"prefixes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tmbatch.
//
// Configuration sections:
//   - Paths: output tree and log directory
//   - Slurm: queue-manager directive defaults
//   - Matching: template-matching tool defaults
//   - Identifiers: filename prefix conventions
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Slurm       Slurm       `toml:"slurm"`
	Matching    Matching    `toml:"matching"`
	Identifiers Identifiers `toml:"identifiers"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tmbatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the log directory. The output tree is created
// lazily by the batch run so validate-only invocations leave no trace.
func (c *Config) EnsureDirectories() error {
	if dir := strings.TrimSpace(c.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
