package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/reel"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <project-path>",
		Short: "Resume a paused workflow from its checkpoint",
		Long: "Resume restores the workflow state saved in a project's checkpoint\n" +
			"file and continues from the step where the run stopped. Completed\n" +
			"steps are not re-run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			projectPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			info, err := os.Stat(projectPath)
			if err != nil {
				return fmt.Errorf("project directory: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s is not a project directory", projectPath)
			}

			lock, err := acquireLock(projectPath)
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

			if err := orch.Resume(runCtx, projectPath); err != nil {
				if errors.Is(err, reel.ErrNoCheckpoint) {
					return fmt.Errorf("no checkpoint found in %s", projectPath)
				}
				return err
			}
			result, err := orch.RunFromState(runCtx)
			return showResult(result, err)
		},
	}
	return cmd
}
