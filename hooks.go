package reel

import (
	"context"
	"log/slog"
	"time"
)

// RunHooks is the callback interface for workflow run events. Hooks run
// synchronously on the run goroutine; a panicking hook is caught and
// logged, never propagated.
type RunHooks interface {
	// Step-level hooks
	OnStepStart(ctx context.Context, event *StepEvent)
	OnStepComplete(ctx context.Context, event *StepEvent)
	OnStepFail(ctx context.Context, event *StepEvent)

	// Workflow-level hooks
	OnWorkflowComplete(ctx context.Context, event *WorkflowEvent)
	OnWorkflowFail(ctx context.Context, event *WorkflowEvent)
}

// StepEvent provides context for step-level run events.
type StepEvent struct {
	RunID      string
	Step       WorkflowStep
	StepIndex  int
	TotalSteps int
	Attempt    int
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Error      error
}

// WorkflowEvent provides context for workflow-level run events.
type WorkflowEvent struct {
	RunID       string
	Status      RunStatus
	Prompt      string
	ProjectName string
	ProjectPath string
	VideoPath   string
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Errors      []string
	Error       error
}

// BaseRunHooks provides a default implementation that does nothing.
// Embed it to implement only the hooks you care about.
type BaseRunHooks struct{}

func (b *BaseRunHooks) OnStepStart(ctx context.Context, event *StepEvent) {
	// noop
}

func (b *BaseRunHooks) OnStepComplete(ctx context.Context, event *StepEvent) {
	// noop
}

func (b *BaseRunHooks) OnStepFail(ctx context.Context, event *StepEvent) {
	// noop
}

func (b *BaseRunHooks) OnWorkflowComplete(ctx context.Context, event *WorkflowEvent) {
	// noop
}

func (b *BaseRunHooks) OnWorkflowFail(ctx context.Context, event *WorkflowEvent) {
	// noop
}

// HookChain fans events out to multiple hook implementations in order.
type HookChain struct {
	hooks []RunHooks
}

// NewHookChain creates a chain from the given hooks.
func NewHookChain(hooks ...RunHooks) *HookChain {
	return &HookChain{hooks: hooks}
}

// Add appends a hook to the chain.
func (c *HookChain) Add(hook RunHooks) {
	c.hooks = append(c.hooks, hook)
}

func (c *HookChain) OnStepStart(ctx context.Context, event *StepEvent) {
	for _, hook := range c.hooks {
		hook.OnStepStart(ctx, event)
	}
}

func (c *HookChain) OnStepComplete(ctx context.Context, event *StepEvent) {
	for _, hook := range c.hooks {
		hook.OnStepComplete(ctx, event)
	}
}

func (c *HookChain) OnStepFail(ctx context.Context, event *StepEvent) {
	for _, hook := range c.hooks {
		hook.OnStepFail(ctx, event)
	}
}

func (c *HookChain) OnWorkflowComplete(ctx context.Context, event *WorkflowEvent) {
	for _, hook := range c.hooks {
		hook.OnWorkflowComplete(ctx, event)
	}
}

func (c *HookChain) OnWorkflowFail(ctx context.Context, event *WorkflowEvent) {
	for _, hook := range c.hooks {
		hook.OnWorkflowFail(ctx, event)
	}
}

// guardedHooks wraps another RunHooks so hook panics are contained. The
// orchestrator always dispatches through this wrapper.
type guardedHooks struct {
	hooks  RunHooks
	logger *slog.Logger
}

func (g *guardedHooks) dispatch(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("run hook panicked", "hook", name, "panic", r)
		}
	}()
	fn()
}

func (g *guardedHooks) OnStepStart(ctx context.Context, event *StepEvent) {
	g.dispatch("step_start", func() { g.hooks.OnStepStart(ctx, event) })
}

func (g *guardedHooks) OnStepComplete(ctx context.Context, event *StepEvent) {
	g.dispatch("step_complete", func() { g.hooks.OnStepComplete(ctx, event) })
}

func (g *guardedHooks) OnStepFail(ctx context.Context, event *StepEvent) {
	g.dispatch("step_fail", func() { g.hooks.OnStepFail(ctx, event) })
}

func (g *guardedHooks) OnWorkflowComplete(ctx context.Context, event *WorkflowEvent) {
	g.dispatch("workflow_complete", func() { g.hooks.OnWorkflowComplete(ctx, event) })
}

func (g *guardedHooks) OnWorkflowFail(ctx context.Context, event *WorkflowEvent) {
	g.dispatch("workflow_fail", func() { g.hooks.OnWorkflowFail(ctx, event) })
}
