package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/reel"
)

// stepDescriptions is display copy for the steps command.
var stepDescriptions = map[reel.WorkflowStep]string{
	reel.StepParsing:             "Extract topic, style, duration and scene hints from the prompt",
	reel.StepNameGeneration:      "Derive a unique filesystem-safe project name",
	reel.StepComponentGeneration: "Generate scenes, shots, narration and image prompts",
	reel.StepProjectStructure:    "Create the project directory and save the components",
	reel.StepImageGeneration:     "Render the master sheet and per-shot images",
	reel.StepPipelineExecution:   "Run the rendering pipeline to produce the final video",
	reel.StepQualityValidation:   "Score the rendered video and project assets",
}

func newStepsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the workflow steps in execution order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([]table.Row, 0, len(reel.Steps()))
			for i, step := range reel.Steps() {
				rows = append(rows, table.Row{i + 1, step.String(), stepDescriptions[step]})
			}
			fmt.Println(renderTable(table.Row{"#", "Step", "Description"}, rows, 1))
			return nil
		},
	}
	return cmd
}
