package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"tmbatch/internal/config"
	"tmbatch/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// newLogger builds the run logger. Log records go to stderr so stdout carries
// only reports and dry-run lines.
func (c *commandContext) newLogger(cfg *config.Config, console io.Writer) (*slog.Logger, error) {
	logger, err := logging.NewFromConfig(cfg, console)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
