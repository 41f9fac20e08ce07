package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slurmTimePattern = regexp.MustCompile(`^(\d+-)?\d{1,3}(:\d{2}){0,2}$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSlurm(); err != nil {
		return err
	}
	if err := c.validateMatching(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSlurm() error {
	s := c.Slurm
	if s.Partition == "" {
		return errors.New("slurm.partition must be set")
	}
	counts := []struct {
		name  string
		value int
	}{
		{"slurm.ntasks", s.NTasks},
		{"slurm.nodes", s.Nodes},
		{"slurm.ntasks_per_node", s.NTasksPerNode},
		{"slurm.cpus_per_task", s.CPUsPerTask},
		{"slurm.mem_gb", s.MemGB},
	}
	for _, count := range counts {
		if count.value <= 0 {
			return fmt.Errorf("%s must be positive", count.name)
		}
	}
	if !slurmTimePattern.MatchString(s.Time) {
		return fmt.Errorf("slurm.time %q is not a SLURM time limit (e.g. 05:00:00)", s.Time)
	}
	if strings.ContainsAny(s.Partition+s.Gres+s.QOS+s.MailType, " \t\n") {
		return errors.New("slurm directives must not contain whitespace")
	}
	return nil
}

func (c *Config) validateMatching() error {
	m := c.Matching
	if m.RNGSeed < 0 {
		return errors.New("matching.rng_seed must not be negative")
	}
	if m.AmplitudeContrast < 0 || m.AmplitudeContrast > 1 {
		return fmt.Errorf("matching.amplitude_contrast must be within [0, 1], got %g", m.AmplitudeContrast)
	}
	if m.SphericalAberration < 0 {
		return errors.New("matching.spherical_aberration must not be negative")
	}
	if m.Voltage <= 0 {
		return errors.New("matching.voltage must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}
