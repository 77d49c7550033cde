package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"comic-tool/cmd/comic-tool/utils"
	"comic-tool/internal/config"
)

type commandContext struct {
	configFlag string
	verbose    bool
	logFormat  string
	// serving keeps info records, which commands otherwise hide.
	serving bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// logger builds the console logger for cmd. Records go to stderr so
// command output on stdout stays clean.
func (c *commandContext) logger(cmd *cobra.Command) *utils.SlogLogger {
	format, level := "text", "info"
	if c.config != nil {
		format, level = c.config.Logging.Format, c.config.Logging.Level
	}
	if c.logFormat != "" {
		format = c.logFormat
	}
	if !c.verbose && !c.serving && level == "info" {
		level = "warn"
	}
	return utils.NewLogger(utils.NewSlog(cmd.ErrOrStderr(), format, level, c.verbose))
}

// app wires the engine for one command invocation.
func (c *commandContext) app(cmd *cobra.Command) (*AppContext, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return NewAppContext(cmd.Context(), cfg, c.logger(cmd))
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
