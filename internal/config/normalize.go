package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSlurm()
	c.normalizeMatching()
	c.normalizeIdentifiers()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(strings.TrimSpace(c.Paths.OutputDir)); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSlurm() {
	s := &c.Slurm
	s.Partition = strings.TrimSpace(s.Partition)
	s.Gres = strings.TrimSpace(s.Gres)
	s.MailType = strings.TrimSpace(s.MailType)
	if s.MailType == "" {
		s.MailType = defaultMailType
	}
	s.QOS = strings.TrimSpace(s.QOS)
	s.Time = strings.TrimSpace(s.Time)
	if s.Time == "" {
		s.Time = defaultTime
	}
	s.SubmitCommand = strings.TrimSpace(s.SubmitCommand)
	if s.SubmitCommand == "" {
		s.SubmitCommand = defaultSubmitCommand
	}
}

func (c *Config) normalizeMatching() {
	m := &c.Matching
	m.ToolBinary = strings.TrimSpace(m.ToolBinary)
	if m.ToolBinary == "" {
		m.ToolBinary = defaultToolBinary
	}
	m.Modules = trimList(m.Modules)
	m.GPUIDs = trimList(m.GPUIDs)
	if len(m.GPUIDs) == 0 {
		m.GPUIDs = append([]string(nil), defaultGPUIDs...)
	}
}

func (c *Config) normalizeIdentifiers() {
	seen := make(map[string]struct{}, len(c.Identifiers.Prefixes))
	prefixes := make([]string, 0, len(c.Identifiers.Prefixes))
	for _, prefix := range c.Identifiers.Prefixes {
		// Prefixes are matched verbatim; only surrounding whitespace is dropped.
		prefix = strings.TrimSpace(prefix)
		if prefix == "" {
			continue
		}
		if _, ok := seen[prefix]; ok {
			continue
		}
		seen[prefix] = struct{}{}
		prefixes = append(prefixes, prefix)
	}
	c.Identifiers.Prefixes = prefixes
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
