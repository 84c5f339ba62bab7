package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/reel"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [project-path]",
		Short: "Show the checkpoint state of a project",
		Long: "Status reads a project's checkpoint and shows how far the workflow\n" +
			"got. Without a project path it lists the checkpoints saved before a\n" +
			"project directory existed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			checkpointer, err := reel.NewFileCheckpointer(cfg.Paths.CheckpointDir)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return listCheckpoints(cmd, checkpointer)
			}
			projectPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			return showProjectStatus(cmd, checkpointer, projectPath)
		},
	}
	return cmd
}

func showProjectStatus(cmd *cobra.Command, checkpointer *reel.FileCheckpointer, projectPath string) error {
	checkpoint, err := checkpointer.LoadCheckpoint(cmd.Context(), projectPath)
	if err != nil {
		if errors.Is(err, reel.ErrNoCheckpoint) {
			return fmt.Errorf("no checkpoint found in %s", projectPath)
		}
		return err
	}

	if checkpoint.ProjectData != nil {
		color.White("Project: %s", checkpoint.ProjectData.ProjectName)
	}
	color.White("Path: %s", projectPath)
	color.White("Checkpoint time: %s", checkpoint.CheckpointTime.Local().Format("2006-01-02 15:04:05"))
	if checkpoint.CurrentStep == reel.StepComplete {
		color.Green("Workflow complete.")
	} else {
		color.Yellow("Next step: %s", checkpoint.CurrentStep.DisplayName())
	}

	completed := make(map[reel.WorkflowStep]bool, len(checkpoint.CompletedSteps))
	for _, step := range checkpoint.CompletedSteps {
		completed[step] = true
	}
	failures := make(map[reel.WorkflowStep]string, len(checkpoint.FailedSteps))
	for _, failed := range checkpoint.FailedSteps {
		failures[failed.Step] = failed.Error
	}

	rows := make([]table.Row, 0, len(reel.Steps()))
	for i, step := range reel.Steps() {
		state := "pending"
		switch {
		case completed[step]:
			state = "done"
		case step == checkpoint.CurrentStep:
			state = "next"
		}
		rows = append(rows, table.Row{i + 1, step.String(), state, failures[step]})
	}
	fmt.Println(renderTable(table.Row{"#", "Step", "State", "Last Error"}, rows, 1))
	return nil
}

func listCheckpoints(cmd *cobra.Command, checkpointer *reel.FileCheckpointer) error {
	infos, err := checkpointer.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		color.White("No checkpoints found in %s", checkpointer.FallbackDir())
		return nil
	}

	rows := make([]table.Row, 0, len(infos))
	for _, info := range infos {
		name := info.ProjectName
		if name == "" {
			name = "(unnamed)"
		}
		rows = append(rows, table.Row{
			name,
			info.CurrentStep.String(),
			info.CompletedSteps,
			info.Errors,
			info.CheckpointTime.Local().Format("2006-01-02 15:04:05"),
			info.Path,
		})
	}
	fmt.Println(renderTable(table.Row{"Project", "Current Step", "Done", "Errors", "Saved", "Path"}, rows, 3, 4))
	return nil
}
