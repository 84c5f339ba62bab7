package reel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingCheckpointer struct{}

func (failingCheckpointer) SaveCheckpoint(ctx context.Context, projectPath string, checkpoint *Checkpoint) (string, error) {
	return "", errors.New("disk full")
}

func (failingCheckpointer) LoadCheckpoint(ctx context.Context, projectPath string) (*Checkpoint, error) {
	return nil, errors.New("disk full")
}

func (failingCheckpointer) DeleteCheckpoint(ctx context.Context, projectPath string) error {
	return errors.New("disk full")
}

// A refused connection during image generation, first failure: classify
// as a recoverable network error and retry with adjusted parameters after
// a one second backoff.
func TestHandleConnectionRefusedDuringImageGeneration(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{})
	err := errors.New("Connection refused")
	errCtx := NewErrorContext(StepImageGeneration, "", err)

	action := m.Handle(err, errCtx)
	require.Equal(t, StrategyRetryAdjusted, action.Strategy)
	require.Equal(t, ErrorTypeNetwork, action.ErrorType)
	require.Equal(t, SeverityMedium, action.Severity)
	require.Equal(t, StepImageGeneration, action.Step)
	require.Equal(t, 0, action.Attempt)
	require.Equal(t, time.Second, action.Backoff)
	require.Equal(t, map[string]any{"timeout_multiplier": 2.0}, action.Parameters)
}

func TestHandleCountsAttemptsPerStepAndType(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{})
	netErr := errors.New("connection reset")

	for attempt := 0; attempt < 3; attempt++ {
		errCtx := NewErrorContext(StepImageGeneration, "", netErr)
		action := m.Handle(netErr, errCtx)
		require.Equal(t, attempt, action.Attempt)
		require.Equal(t, StrategyRetryAdjusted, action.Strategy)
		require.Equal(t, RetryBackoff(attempt), action.Backoff)
	}

	// The fourth network failure at the same step exhausts the budget.
	errCtx := NewErrorContext(StepImageGeneration, "", netErr)
	require.Equal(t, StrategyFallback, m.Handle(netErr, errCtx).Strategy)

	// A different step keeps its own counter.
	errCtx = NewErrorContext(StepNameGeneration, "", netErr)
	action := m.Handle(netErr, errCtx)
	require.Equal(t, 0, action.Attempt)
	require.Equal(t, StrategyRetryAdjusted, action.Strategy)

	// As does a different error type at the exhausted step.
	pipeErr := errors.New("render pipeline crashed")
	errCtx = NewErrorContext(StepImageGeneration, "", pipeErr)
	action = m.Handle(pipeErr, errCtx)
	require.Equal(t, 0, action.Attempt)
	require.Equal(t, StrategyRetry, action.Strategy)

	require.Equal(t, 4, m.Attempts(StepImageGeneration, ErrorTypeNetwork))
	require.Equal(t, 1, m.Attempts(StepNameGeneration, ErrorTypeNetwork))
	require.Equal(t, 1, m.Attempts(StepImageGeneration, ErrorTypePipeline))
	require.Len(t, m.History(), 6)
}

func TestExecuteRetry(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{})
	action := &RecoveryAction{Strategy: StrategyRetry, Step: StepParsing, Attempt: 0}

	result := m.Execute(context.Background(), action, NewWorkflowState("a long enough prompt"), "")
	require.True(t, result.Success)
	require.True(t, result.Retry)
	require.False(t, result.Paused)
}

func TestExecuteSkipAndFallback(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{})
	state := NewWorkflowState("a long enough prompt")

	result := m.Execute(context.Background(), &RecoveryAction{Strategy: StrategySkip, Step: StepQualityValidation}, state, "")
	require.True(t, result.Success)
	require.False(t, result.Retry)
	require.Contains(t, result.Message, "skipping quality_validation")

	result = m.Execute(context.Background(), &RecoveryAction{Strategy: StrategyFallback, Step: StepParsing}, state, "")
	require.True(t, result.Success)
	require.Contains(t, result.Message, "fallback")
}

func TestExecuteCheckpointPausesAndPersists(t *testing.T) {
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewRecoveryManager(RecoveryManagerOptions{Checkpointer: checkpointer})

	state := NewWorkflowState("make a video about volcanoes")
	state.CompleteStep(StepParsing)
	state.CompleteStep(StepNameGeneration)

	action := &RecoveryAction{Strategy: StrategyCheckpoint, Step: StepComponentGeneration}
	result := m.Execute(context.Background(), action, state, projectDir)

	require.False(t, result.Success)
	require.True(t, result.Paused)
	require.Equal(t, filepath.Join(projectDir, CheckpointFileName), result.CheckpointPath)
	_, statErr := os.Stat(result.CheckpointPath)
	require.NoError(t, statErr)
}

func TestExecuteCheckpointSaveFailure(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{Checkpointer: failingCheckpointer{}})
	action := &RecoveryAction{Strategy: StrategyCheckpoint, Step: StepProjectStructure}

	result := m.Execute(context.Background(), action, NewWorkflowState("a long enough prompt"), "")
	require.False(t, result.Success)
	require.False(t, result.Paused)
	require.Contains(t, result.Message, "failed to save checkpoint")
}

func TestExecuteAbort(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{})
	action := &RecoveryAction{Strategy: StrategyAbort, Step: StepPipelineExecution}

	result := m.Execute(context.Background(), action, NewWorkflowState("a long enough prompt"), "")
	require.False(t, result.Success)
	require.False(t, result.Retry)
	require.Contains(t, result.Message, "aborted at pipeline_execution")
}

func TestSaveCheckpointDisabled(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{Checkpointer: NewNullCheckpointer()})
	path, err := m.SaveCheckpoint(context.Background(), NewWorkflowState("a long enough prompt"), "")
	require.NoError(t, err)
	require.Empty(t, path)
}

func TestSaveAndLoadCheckpointRoundTrip(t *testing.T) {
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewRecoveryManager(RecoveryManagerOptions{Checkpointer: checkpointer})

	state := NewWorkflowState("make a video about deep sea creatures")
	state.CompleteStep(StepParsing)
	state.ProjectData.ProjectName = "deep-sea-creatures"

	failure := errors.New("connection refused")
	m.Handle(failure, NewErrorContext(StepNameGeneration, projectDir, failure))

	_, err = m.SaveCheckpoint(context.Background(), state, projectDir)
	require.NoError(t, err)

	restored := m.LoadCheckpoint(context.Background(), projectDir)
	require.NotNil(t, restored)
	require.Equal(t, StepNameGeneration, restored.CurrentStep)
	require.Equal(t, []WorkflowStep{StepParsing}, restored.CompletedSteps)
	require.Equal(t, "make a video about deep sea creatures", restored.ProjectData.Prompt)
	require.Equal(t, "deep-sea-creatures", restored.ProjectData.ProjectName)
}

func TestLoadCheckpointMissingReturnsNil(t *testing.T) {
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)
	m := NewRecoveryManager(RecoveryManagerOptions{Checkpointer: checkpointer})

	require.Nil(t, m.LoadCheckpoint(context.Background(), t.TempDir()))
}

func TestFormatNotification(t *testing.T) {
	m := NewRecoveryManager(RecoveryManagerOptions{})
	err := errors.New("Connection refused")
	errCtx := NewErrorContext(StepImageGeneration, "", err)
	action := m.Handle(err, errCtx)

	note := m.FormatNotification(errCtx, action)
	require.Equal(t,
		"Workflow error at Image Generation: Connection refused\n"+
			"Classification: network (medium severity)\n"+
			"Decision: retry_adjusted (attempt 1, waiting 1s)\n"+
			"Suggested actions:\n"+
			"  - Check your network connection\n"+
			"  - Verify the generation backend is reachable\n"+
			"  - Resume the workflow once connectivity is restored\n",
		note)
}

func TestCorrectiveActionsCoverEveryType(t *testing.T) {
	types := []ErrorType{
		ErrorTypeNetwork, ErrorTypeFileSystem, ErrorTypeParsing,
		ErrorTypeGeneration, ErrorTypeValidation, ErrorTypePipeline,
		ErrorTypeDependency, ErrorTypeResource, ErrorTypeUnknown,
	}
	for _, errType := range types {
		require.NotEmpty(t, CorrectiveActions(errType), "type %s", errType)
	}
}
