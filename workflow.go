package reel

import "fmt"

// WorkflowStep identifies one stage of the project generation workflow.
type WorkflowStep string

const (
	StepParsing             WorkflowStep = "parsing"
	StepNameGeneration      WorkflowStep = "name_generation"
	StepComponentGeneration WorkflowStep = "component_generation"
	StepProjectStructure    WorkflowStep = "project_structure"
	StepImageGeneration     WorkflowStep = "image_generation"
	StepPipelineExecution   WorkflowStep = "pipeline_execution"
	StepQualityValidation   WorkflowStep = "quality_validation"

	// StepComplete marks a finished workflow. It is a terminal marker,
	// not an executable step, so Steps does not include it.
	StepComplete WorkflowStep = "complete"
)

// workflowOrder is the fixed execution order. Every run walks these steps
// front to back; there is no branching.
var workflowOrder = []WorkflowStep{
	StepParsing,
	StepNameGeneration,
	StepComponentGeneration,
	StepProjectStructure,
	StepImageGeneration,
	StepPipelineExecution,
	StepQualityValidation,
}

// Steps returns the executable workflow steps in execution order.
// The returned slice is a copy and may be modified by the caller.
func Steps() []WorkflowStep {
	steps := make([]WorkflowStep, len(workflowOrder))
	copy(steps, workflowOrder)
	return steps
}

// StepIndex returns the position of step in the execution order, or -1 if
// the step is not an executable step (including StepComplete).
func StepIndex(step WorkflowStep) int {
	for i, s := range workflowOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// NextStep returns the step following the given one, or StepComplete when
// the given step is the last executable step. Passing a non-executable
// step returns StepComplete.
func NextStep(step WorkflowStep) WorkflowStep {
	idx := StepIndex(step)
	if idx < 0 || idx == len(workflowOrder)-1 {
		return StepComplete
	}
	return workflowOrder[idx+1]
}

// ParseStep validates a step name read from external input such as a
// checkpoint file.
func ParseStep(name string) (WorkflowStep, error) {
	step := WorkflowStep(name)
	if step == StepComplete || StepIndex(step) >= 0 {
		return step, nil
	}
	return "", fmt.Errorf("unknown workflow step %q", name)
}

func (s WorkflowStep) String() string {
	return string(s)
}

// DisplayName returns a human-readable form of the step name for console
// output, e.g. "name_generation" becomes "Name Generation".
func (s WorkflowStep) DisplayName() string {
	out := make([]byte, 0, len(s))
	upper := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			out = append(out, ' ')
			upper = true
			continue
		}
		if upper && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		upper = false
		out = append(out, c)
	}
	return string(out)
}

// RunStatus describes the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final. Paused runs can be resumed
// from their checkpoint and are not terminal.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

func (s RunStatus) String() string {
	return string(s)
}
