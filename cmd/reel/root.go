package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/reel"
)

// commandContext loads the configuration once and shares it across
// subcommands.
type commandContext struct {
	configFlag *string

	once      sync.Once
	config    *reel.Config
	configErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*reel.Config, error) {
	c.once.Do(func() {
		path := ""
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := reel.LoadConfig(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) newLogger(cfg *reel.Config) *slog.Logger {
	if strings.EqualFold(cfg.Logging.Format, "json") {
		return reel.NewJSONLogger(cfg.Logging.SlogLevel())
	}
	return reel.NewLogger(cfg.Logging.SlogLevel())
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag)

	root := &cobra.Command{
		Use:   "reel",
		Short: "Generate video projects from natural language prompts",
		Long: "Reel turns a natural language prompt into a rendered video project.\n" +
			"It parses the prompt, generates script components and placeholder\n" +
			"images, and drives the rendering pipeline, checkpointing after every\n" +
			"step so interrupted runs can be resumed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	root.AddCommand(newRunCommand(ctx))
	root.AddCommand(newResumeCommand(ctx))
	root.AddCommand(newStatusCommand(ctx))
	root.AddCommand(newStepsCommand(ctx))
	return root
}
