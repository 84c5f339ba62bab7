package reel

import (
	"context"
	"time"
)

// EventKind labels a run log event.
type EventKind string

const (
	EventRunStarted       EventKind = "run_started"
	EventStepStarted      EventKind = "step_started"
	EventStepCompleted    EventKind = "step_completed"
	EventStepFailed       EventKind = "step_failed"
	EventRecoveryDecision EventKind = "recovery_decision"
	EventCheckpointSaved  EventKind = "checkpoint_saved"
	EventDegradedMode     EventKind = "degraded_mode"
	EventRunCompleted     EventKind = "run_completed"
	EventRunFailed        EventKind = "run_failed"
	EventRunPaused        EventKind = "run_paused"
	EventRunCancelled     EventKind = "run_cancelled"
)

// RunEvent is a single entry in a run's event log.
type RunEvent struct {
	RunID   string         `json:"run_id"`
	Time    time.Time      `json:"time"`
	Kind    EventKind      `json:"kind"`
	Step    WorkflowStep   `json:"step,omitempty"`
	Attempt int            `json:"attempt,omitempty"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// RunLogger records run events for later inspection.
type RunLogger interface {
	LogEvent(ctx context.Context, event *RunEvent) error
}
