package reel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWorkflowState(t *testing.T) {
	state := NewWorkflowState("make a video about coral reefs")
	require.Equal(t, StepParsing, state.CurrentStep)
	require.Empty(t, state.CompletedSteps)
	require.Empty(t, state.FailedSteps)
	require.Equal(t, "make a video about coral reefs", state.ProjectData.Prompt)
	require.False(t, state.StartTime.IsZero())
	require.Nil(t, state.EstimatedCompletion)
	require.False(t, state.Done())
}

func TestCompleteStepAdvances(t *testing.T) {
	state := NewWorkflowState("a long enough prompt")

	state.CompleteStep(StepParsing)
	require.Equal(t, StepNameGeneration, state.CurrentStep)
	require.True(t, state.Completed(StepParsing))

	// Completing the same step twice does not duplicate it.
	state.CompleteStep(StepParsing)
	require.Equal(t, []WorkflowStep{StepParsing}, state.CompletedSteps)

	for _, step := range Steps()[1:] {
		state.CompleteStep(step)
	}
	require.True(t, state.Done())
	require.Len(t, state.CompletedSteps, len(Steps()))
}

func TestRecordFailureKeepsEveryEntry(t *testing.T) {
	state := NewWorkflowState("a long enough prompt")
	state.RecordFailure(StepImageGeneration, errors.New("connection refused"))
	state.RecordFailure(StepImageGeneration, errors.New("connection refused again"))

	require.Len(t, state.FailedSteps, 2)
	require.Equal(t, StepImageGeneration, state.FailedSteps[0].Step)
	require.Equal(t, "connection refused", state.FailedSteps[0].Error)
	require.Equal(t, "connection refused again", state.FailedSteps[1].Error)
}
