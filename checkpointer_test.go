package reel

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileCheckpointerProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	state := NewWorkflowState("make a video about coral reefs")
	state.CompleteStep(StepParsing)
	state.CompleteStep(StepNameGeneration)
	state.RecordFailure(StepComponentGeneration, errors.New("llm returned empty response"))
	state.ProjectData.ProjectName = "coral-reefs"
	state.ProjectData.ProjectPath = projectDir

	checkpoint := NewCheckpoint(state, []*ErrorContext{
		NewErrorContext(StepComponentGeneration, projectDir, errors.New("llm returned empty response")),
	})

	path, err := checkpointer.SaveCheckpoint(ctx, projectDir, checkpoint)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(projectDir, CheckpointFileName), path)

	loaded, err := checkpointer.LoadCheckpoint(ctx, projectDir)
	require.NoError(t, err)
	require.Equal(t, StepComponentGeneration, loaded.CurrentStep)
	require.Equal(t, []WorkflowStep{StepParsing, StepNameGeneration}, loaded.CompletedSteps)
	require.Len(t, loaded.FailedSteps, 1)
	require.Equal(t, "llm returned empty response", loaded.FailedSteps[0].Error)
	require.Equal(t, "coral-reefs", loaded.ProjectData.ProjectName)
	require.Len(t, loaded.ErrorHistory, 1)
	require.Equal(t, ErrorTypeGeneration, loaded.ErrorHistory[0].Type)
	require.WithinDuration(t, checkpoint.CheckpointTime, loaded.CheckpointTime, time.Second)
}

func TestFileCheckpointerPreservesUnknownProjectFields(t *testing.T) {
	ctx := context.Background()
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	// A checkpoint written by a newer release can carry project data
	// fields this version does not know about. They must survive a
	// load/save cycle.
	raw := `{
		"current_step": "project_structure",
		"completed_steps": ["parsing", "name_generation", "component_generation"],
		"failed_steps": [],
		"project_data": {
			"schema_version": 2,
			"prompt": "make a video about coral reefs",
			"project_name": "coral-reefs",
			"subtitle_tracks": [{"lang": "en"}]
		},
		"start_time": "2026-02-10T12:00:00Z",
		"estimated_completion": null,
		"checkpoint_time": "2026-02-10T12:05:00Z",
		"error_history": []
	}`
	path := filepath.Join(projectDir, CheckpointFileName)
	require.NoError(t, os.WriteFile(path, []byte(raw), 0644))

	loaded, err := checkpointer.LoadCheckpoint(ctx, projectDir)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.ProjectData.SchemaVersion)

	_, err = checkpointer.SaveCheckpoint(ctx, projectDir, loaded)
	require.NoError(t, err)

	rewritten, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(rewritten), "subtitle_tracks")
}

func TestFileCheckpointerFallbackSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	fallbackDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(fallbackDir)
	require.NoError(t, err)

	older := NewCheckpoint(NewWorkflowState("the first of two prompts"), nil)
	older.CheckpointTime = time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	olderPath, err := checkpointer.SaveCheckpoint(ctx, "", older)
	require.NoError(t, err)
	require.Equal(t, fallbackDir, filepath.Dir(olderPath))
	require.True(t, strings.HasPrefix(filepath.Base(olderPath), "checkpoint-"))
	require.True(t, strings.HasSuffix(olderPath, ".json"))

	// Push the first file's mtime into the past so the newest scan is
	// deterministic.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(olderPath, past, past))

	newer := NewCheckpoint(NewWorkflowState("the second of two prompts"), nil)
	newer.CheckpointTime = time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC)
	newerPath, err := checkpointer.SaveCheckpoint(ctx, "", newer)
	require.NoError(t, err)
	require.NotEqual(t, olderPath, newerPath)

	loaded, err := checkpointer.LoadCheckpoint(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "the second of two prompts", loaded.ProjectData.Prompt)
}

func TestFileCheckpointerLoadMissing(t *testing.T) {
	ctx := context.Background()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	_, err = checkpointer.LoadCheckpoint(ctx, t.TempDir())
	require.ErrorIs(t, err, ErrNoCheckpoint)

	// An empty fallback directory behaves the same.
	_, err = checkpointer.LoadCheckpoint(ctx, "")
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestFileCheckpointerRejectsCorruptCheckpoint(t *testing.T) {
	ctx := context.Background()
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	path := filepath.Join(projectDir, CheckpointFileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err = checkpointer.LoadCheckpoint(ctx, projectDir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"current_step": "rendering"}`), 0644))
	_, err = checkpointer.LoadCheckpoint(ctx, projectDir)
	require.ErrorContains(t, err, "invalid current step")
}

func TestFileCheckpointerDelete(t *testing.T) {
	ctx := context.Background()
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	checkpoint := NewCheckpoint(NewWorkflowState("a long enough prompt"), nil)
	path, err := checkpointer.SaveCheckpoint(ctx, projectDir, checkpoint)
	require.NoError(t, err)

	require.NoError(t, checkpointer.DeleteCheckpoint(ctx, projectDir))
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	// Deleting again is not an error.
	require.NoError(t, checkpointer.DeleteCheckpoint(ctx, projectDir))
}

func TestFileCheckpointerList(t *testing.T) {
	ctx := context.Background()
	fallbackDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(fallbackDir)
	require.NoError(t, err)

	older := NewCheckpoint(NewWorkflowState("the first of two prompts"), nil)
	older.CheckpointTime = time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC)
	older.ProjectData.ProjectName = "first"
	_, err = checkpointer.SaveCheckpoint(ctx, "", older)
	require.NoError(t, err)

	newer := NewCheckpoint(NewWorkflowState("the second of two prompts"), nil)
	newer.CheckpointTime = time.Date(2026, 2, 10, 11, 0, 0, 0, time.UTC)
	newer.ProjectData.ProjectName = "second"
	_, err = checkpointer.SaveCheckpoint(ctx, "", newer)
	require.NoError(t, err)

	// Files that are not checkpoints are ignored; corrupt checkpoints are
	// skipped.
	require.NoError(t, os.WriteFile(filepath.Join(fallbackDir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(fallbackDir, "checkpoint-corrupt.json"), []byte("{"), 0644))

	infos, err := checkpointer.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "second", infos[0].ProjectName)
	require.Equal(t, "first", infos[1].ProjectName)
	require.Equal(t, StepParsing, infos[0].CurrentStep)
	require.Equal(t, 0, infos[0].CompletedSteps)
}

func TestFileCheckpointerSummarize(t *testing.T) {
	ctx := context.Background()
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	state := NewWorkflowState("make a video about coral reefs")
	state.CompleteStep(StepParsing)
	state.ProjectData.ProjectName = "coral-reefs"
	state.ProjectData.ProjectPath = projectDir
	checkpoint := NewCheckpoint(state, []*ErrorContext{
		NewErrorContext(StepNameGeneration, projectDir, errors.New("connection refused")),
	})

	path, err := checkpointer.SaveCheckpoint(ctx, projectDir, checkpoint)
	require.NoError(t, err)

	info, err := checkpointer.Summarize(path)
	require.NoError(t, err)
	require.Equal(t, "coral-reefs", info.ProjectName)
	require.Equal(t, projectDir, info.ProjectPath)
	require.Equal(t, StepNameGeneration, info.CurrentStep)
	require.Equal(t, 1, info.CompletedSteps)
	require.Equal(t, 1, info.Errors)
}

func TestSaveCheckpointLeavesNoTemporaryFiles(t *testing.T) {
	ctx := context.Background()
	projectDir := t.TempDir()
	checkpointer, err := NewFileCheckpointer(t.TempDir())
	require.NoError(t, err)

	checkpoint := NewCheckpoint(NewWorkflowState("a long enough prompt"), nil)
	_, err = checkpointer.SaveCheckpoint(ctx, projectDir, checkpoint)
	require.NoError(t, err)

	entries, err := os.ReadDir(projectDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, CheckpointFileName, entries[0].Name())

	// The file on disk is valid indented JSON.
	data, err := os.ReadFile(filepath.Join(projectDir, CheckpointFileName))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Contains(t, decoded, "current_step")
}
