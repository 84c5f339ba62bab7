package reel

import (
	"time"

	"github.com/deepnoodle-ai/reel/project"
)

// FailedStep records one step failure inside a workflow state.
type FailedStep struct {
	Step  WorkflowStep `json:"step"`
	Error string       `json:"error"`
}

// WorkflowState is the mutable record of a single workflow run. It is
// owned by exactly one run at a time: only the orchestrator and the
// recovery manager touch it, never concurrently.
type WorkflowState struct {
	CurrentStep         WorkflowStep   `json:"current_step"`
	CompletedSteps      []WorkflowStep `json:"completed_steps"`
	FailedSteps         []FailedStep   `json:"failed_steps"`
	ProjectData         *project.Data  `json:"project_data"`
	StartTime           time.Time      `json:"start_time"`
	EstimatedCompletion *time.Time     `json:"estimated_completion"`
}

// NewWorkflowState returns a fresh state positioned at the first step.
func NewWorkflowState(prompt string) *WorkflowState {
	return &WorkflowState{
		CurrentStep:    StepParsing,
		CompletedSteps: []WorkflowStep{},
		FailedSteps:    []FailedStep{},
		ProjectData:    project.NewData(prompt),
		StartTime:      time.Now(),
	}
}

// CompleteStep marks step done and advances the current step pointer.
// Completing a step twice is a no-op for the completed list.
func (s *WorkflowState) CompleteStep(step WorkflowStep) {
	if !s.Completed(step) {
		s.CompletedSteps = append(s.CompletedSteps, step)
	}
	s.CurrentStep = NextStep(step)
}

// RecordFailure appends a failure entry for step.
func (s *WorkflowState) RecordFailure(step WorkflowStep, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.FailedSteps = append(s.FailedSteps, FailedStep{Step: step, Error: msg})
}

// Completed reports whether step is in the completed list.
func (s *WorkflowState) Completed(step WorkflowStep) bool {
	for _, done := range s.CompletedSteps {
		if done == step {
			return true
		}
	}
	return false
}

// Done reports whether the workflow has reached its terminal step.
func (s *WorkflowState) Done() bool {
	return s.CurrentStep == StepComplete
}
