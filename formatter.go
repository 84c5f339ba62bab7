package reel

import (
	"context"
	"time"

	"github.com/fatih/color"
)

// ConsoleHooks renders run events to the terminal. It implements RunHooks
// so the CLI can attach it like any other listener.
type ConsoleHooks struct{}

func NewConsoleHooks() *ConsoleHooks {
	return &ConsoleHooks{}
}

func (h *ConsoleHooks) OnStepStart(ctx context.Context, event *StepEvent) {
	color.Cyan("[%d/%d] %s...", event.StepIndex+1, event.TotalSteps, event.Step.DisplayName())
}

func (h *ConsoleHooks) OnStepComplete(ctx context.Context, event *StepEvent) {
	color.Green("[%d/%d] %s done in %v", event.StepIndex+1, event.TotalSteps,
		event.Step.DisplayName(), event.Duration.Round(time.Millisecond))
}

func (h *ConsoleHooks) OnStepFail(ctx context.Context, event *StepEvent) {
	color.Red("[%d/%d] %s failed: %v", event.StepIndex+1, event.TotalSteps,
		event.Step.DisplayName(), event.Error)
}

func (h *ConsoleHooks) OnWorkflowComplete(ctx context.Context, event *WorkflowEvent) {
	color.Green("Workflow completed in %v", event.Duration.Round(time.Millisecond))
	if event.ProjectPath != "" {
		color.White("Project: %s", event.ProjectPath)
	}
	if event.VideoPath != "" {
		color.White("Video: %s", event.VideoPath)
	}
}

func (h *ConsoleHooks) OnWorkflowFail(ctx context.Context, event *WorkflowEvent) {
	color.Red("Workflow %s after %v", event.Status, event.Duration.Round(time.Millisecond))
	for _, msg := range event.Errors {
		color.White("  - %s", msg)
	}
}
