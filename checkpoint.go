package reel

import (
	"fmt"
	"time"

	"github.com/deepnoodle-ai/reel/project"
)

// errorHistoryLimit bounds how many error entries a checkpoint carries.
const errorHistoryLimit = 10

// CheckpointError is the persisted slice of an ErrorContext: enough to
// show a user what went wrong before a resume, without the stack trace and
// system state noise.
type CheckpointError struct {
	Type      ErrorType    `json:"error_type"`
	Message   string       `json:"error_message"`
	Step      WorkflowStep `json:"workflow_step"`
	Timestamp time.Time    `json:"timestamp"`
}

// Checkpoint contains a complete snapshot of workflow state, written after
// every completed step and on checkpoint-strategy failures.
type Checkpoint struct {
	CurrentStep         WorkflowStep      `json:"current_step"`
	CompletedSteps      []WorkflowStep    `json:"completed_steps"`
	FailedSteps         []FailedStep      `json:"failed_steps"`
	ProjectData         *project.Data     `json:"project_data"`
	StartTime           time.Time         `json:"start_time"`
	EstimatedCompletion *time.Time        `json:"estimated_completion"`
	CheckpointTime      time.Time         `json:"checkpoint_time"`
	ErrorHistory        []CheckpointError `json:"error_history"`
}

// NewCheckpoint snapshots state plus the most recent errors. Only the last
// errorHistoryLimit entries of history are kept.
func NewCheckpoint(state *WorkflowState, history []*ErrorContext) *Checkpoint {
	if len(history) > errorHistoryLimit {
		history = history[len(history)-errorHistoryLimit:]
	}
	entries := make([]CheckpointError, 0, len(history))
	for _, ec := range history {
		entries = append(entries, CheckpointError{
			Type:      ec.Type,
			Message:   ec.Message,
			Step:      ec.Step,
			Timestamp: ec.Timestamp,
		})
	}
	return &Checkpoint{
		CurrentStep:         state.CurrentStep,
		CompletedSteps:      append([]WorkflowStep{}, state.CompletedSteps...),
		FailedSteps:         append([]FailedStep{}, state.FailedSteps...),
		ProjectData:         state.ProjectData,
		StartTime:           state.StartTime,
		EstimatedCompletion: state.EstimatedCompletion,
		CheckpointTime:      time.Now(),
		ErrorHistory:        entries,
	}
}

// State reconstructs the workflow state the checkpoint was taken from.
func (c *Checkpoint) State() *WorkflowState {
	data := c.ProjectData
	if data == nil {
		data = project.NewData("")
	}
	return &WorkflowState{
		CurrentStep:         c.CurrentStep,
		CompletedSteps:      append([]WorkflowStep{}, c.CompletedSteps...),
		FailedSteps:         append([]FailedStep{}, c.FailedSteps...),
		ProjectData:         data,
		StartTime:           c.StartTime,
		EstimatedCompletion: c.EstimatedCompletion,
	}
}

// Validate checks that a loaded checkpoint names real workflow steps.
func (c *Checkpoint) Validate() error {
	if _, err := ParseStep(string(c.CurrentStep)); err != nil {
		return fmt.Errorf("checkpoint has invalid current step: %w", err)
	}
	for _, step := range c.CompletedSteps {
		if _, err := ParseStep(string(step)); err != nil {
			return fmt.Errorf("checkpoint has invalid completed step: %w", err)
		}
	}
	return nil
}
