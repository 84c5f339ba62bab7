package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var outputDir string
	var noCheckpoint bool

	cmd := &cobra.Command{
		Use:   "run \"<prompt>\"",
		Short: "Generate a video project from a prompt",
		Long: "Run executes the full generation workflow for a prompt: parsing,\n" +
			"naming, component generation, project structure, images, the\n" +
			"rendering pipeline, and quality validation.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.Paths.ProjectsRoot = outputDir
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
			}
			if noCheckpoint {
				cfg.Workflow.Checkpointing = false
			}

			lock, err := acquireLock(cfg.Paths.ProjectsRoot)
			if err != nil {
				return err
			}
			defer lock.Unlock()

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orch, closeLog, err := buildOrchestrator(cfg, ctx.newLogger(cfg))
			if err != nil {
				return err
			}
			defer closeLog()

			result, err := orch.Run(runCtx, args[0])
			return showResult(result, err)
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory where projects are created")
	cmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Disable checkpoint persistence")
	return cmd
}
