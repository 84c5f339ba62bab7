package reel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/reel/pipeline"
	"github.com/deepnoodle-ai/reel/project"
)

const testPrompt = "make a video about coral reefs"

// fakeStack implements every collaborator interface with scriptable
// failures, counted calls, and an optional blocking step for cancellation
// tests.
type fakeStack struct {
	calls       map[string]int
	failures    map[string][]error
	imagesUp    bool
	incoherent  bool
	blockStep   string
	blockSignal chan struct{}
	quality     *project.QualityReport
}

func newFakeStack() *fakeStack {
	return &fakeStack{
		calls:    map[string]int{},
		failures: map[string][]error{},
		imagesUp: true,
		quality:  &project.QualityReport{OverallScore: 4.2, Passed: true},
	}
}

// failNext queues errors to be returned by the next calls to a method.
func (f *fakeStack) failNext(method string, errs ...error) {
	f.failures[method] = append(f.failures[method], errs...)
}

func (f *fakeStack) invoke(ctx context.Context, method string) error {
	f.calls[method]++
	if f.blockStep == method {
		f.blockStep = ""
		close(f.blockSignal)
		<-ctx.Done()
		return ctx.Err()
	}
	if queue := f.failures[method]; len(queue) > 0 {
		err := queue[0]
		f.failures[method] = queue[1:]
		return err
	}
	return nil
}

func (f *fakeStack) Parse(ctx context.Context, text string) (*project.ParsedPrompt, error) {
	if err := f.invoke(ctx, "parse"); err != nil {
		return nil, err
	}
	return &project.ParsedPrompt{Topic: "coral reefs", RawText: text}, nil
}

func (f *fakeStack) Validate(parsed *project.ParsedPrompt) (bool, []string) {
	f.calls["validate"]++
	return true, nil
}

func (f *fakeStack) FillDefaults(parsed *project.ParsedPrompt) *project.ParsedPrompt {
	f.calls["fill_defaults"]++
	out := *parsed
	if out.Style == "" {
		out.Style = "cinematic"
	}
	if out.DurationSeconds == 0 {
		out.DurationSeconds = 60
	}
	if out.SceneCount == 0 {
		out.SceneCount = 1
	}
	return &out
}

func (f *fakeStack) Generate(ctx context.Context, parsed *project.ParsedPrompt) (string, error) {
	if err := f.invoke(ctx, "name"); err != nil {
		return "", err
	}
	return "coral-reefs", nil
}

func (f *fakeStack) GenerateAll(ctx context.Context, parsed *project.ParsedPrompt) (*project.Components, error) {
	if err := f.invoke(ctx, "components"); err != nil {
		return nil, err
	}
	return &project.Components{
		Script:       []project.Scene{{Index: 1, Title: "The Reef", DurationSeconds: 30}},
		Shots:        []project.Shot{{Scene: 1, Index: 1, Description: "wide shot", ImagePrompt: "a coral reef"}},
		Narration:    []project.NarrationCue{{Scene: 1, Text: "Beneath the waves."}},
		ImagePrompts: []string{"a coral reef"},
	}, nil
}

func (f *fakeStack) ValidateCoherence(components *project.Components) project.CoherenceReport {
	f.calls["coherence"]++
	if f.incoherent {
		return project.CoherenceReport{Coherent: false, Issues: []string{"scene 2 has no shots"}}
	}
	return project.CoherenceReport{Coherent: true}
}

func (f *fakeStack) CreateStructure(ctx context.Context, root, name string, components *project.Components) (string, error) {
	if err := f.invoke(ctx, "structure"); err != nil {
		return "", err
	}
	path := filepath.Join(root, name)
	for _, dir := range []string{path, filepath.Join(path, "images"), filepath.Join(path, "exports")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (f *fakeStack) SaveAll(ctx context.Context, path string, components *project.Components) error {
	return f.invoke(ctx, "save_all")
}

func (f *fakeStack) ValidateStructure(path string) project.StructureReport {
	f.calls["validate_structure"]++
	return project.StructureReport{Valid: true}
}

func (f *fakeStack) CheckAvailability(ctx context.Context) bool {
	f.calls["availability"]++
	return f.imagesUp
}

func (f *fakeStack) GenerateMasterSheet(ctx context.Context, path string, components *project.Components) ([]string, error) {
	if err := f.invoke(ctx, "master_sheet"); err != nil {
		return nil, err
	}
	return []string{filepath.Join(path, "images", "master_sheet.png")}, nil
}

func (f *fakeStack) GenerateAllShots(ctx context.Context, path string, components *project.Components) ([]string, error) {
	if err := f.invoke(ctx, "shots"); err != nil {
		return nil, err
	}
	return []string{filepath.Join(path, "images", "scene_01_shot_01.png")}, nil
}

func (f *fakeStack) ValidateFinalVideo(ctx context.Context, videoPath string, components *project.Components) (*project.QualityReport, error) {
	if err := f.invoke(ctx, "quality"); err != nil {
		return nil, err
	}
	report := *f.quality
	report.VideoPath = videoPath
	return &report, nil
}

// fakePipelineRunner stands in for the rendering CLI subprocess. Failure
// counts of -1 fail forever; positive counts fail that many times.
type fakePipelineRunner struct {
	calls    map[string]int
	failures map[string]int
}

func newFakePipelineRunner() *fakePipelineRunner {
	return &fakePipelineRunner{
		calls:    map[string]int{},
		failures: map[string]int{},
	}
}

func (r *fakePipelineRunner) Run(ctx context.Context, name string, args []string, dir string) (*pipeline.CommandResult, error) {
	step := args[0]
	projectPath := ""
	for i, arg := range args {
		if arg == "--project" && i+1 < len(args) {
			projectPath = args[i+1]
		}
	}
	r.calls[step]++

	if n := r.failures[step]; n != 0 {
		if n > 0 {
			r.failures[step] = n - 1
		}
		return &pipeline.CommandResult{Stderr: "synthetic failure", ExitCode: 1}, nil
	}

	switch step {
	case "qa":
		return &pipeline.CommandResult{Stdout: "Overall Score: 4.5/5.0\nStatus: PASSED"}, nil
	case "export":
		exportsDir := filepath.Join(projectPath, "exports")
		if err := os.MkdirAll(exportsDir, 0755); err != nil {
			return nil, err
		}
		video := make([]byte, 2048)
		copy(video[4:], "ftypisom")
		if err := os.WriteFile(filepath.Join(exportsDir, "final.mp4"), video, 0644); err != nil {
			return nil, err
		}
		return &pipeline.CommandResult{Stdout: "Video Path: exports/final.mp4"}, nil
	}
	return &pipeline.CommandResult{Stdout: "OK"}, nil
}

type testEnv struct {
	cfg    *Config
	stack  *fakeStack
	runner *fakePipelineRunner
	runLog *FileRunLogger
	events []string
	orch   *Orchestrator
}

// newTestEnv builds an orchestrator wired entirely to fakes and temp
// directories. The configure hook runs before construction.
func newTestEnv(t *testing.T, configure func(env *testEnv)) *testEnv {
	t.Helper()
	base := t.TempDir()

	cfg := DefaultConfig()
	cfg.Paths.ProjectsRoot = filepath.Join(base, "projects")
	cfg.Paths.CheckpointDir = filepath.Join(base, "checkpoints")
	cfg.Paths.RunLogDir = filepath.Join(base, "runs")
	cfg.Workflow.StepTimeout = Duration(30 * time.Second)
	cfg.Workflow.AverageStepDuration = Duration(10 * time.Millisecond)
	cfg.Pipeline.CLIPath = "reel-pipeline"

	env := &testEnv{
		cfg:    cfg,
		stack:  newFakeStack(),
		runner: newFakePipelineRunner(),
		runLog: NewFileRunLogger(cfg.Paths.RunLogDir),
	}
	if configure != nil {
		configure(env)
	}

	executor, err := pipeline.NewExecutor(pipeline.Options{
		CLIPath:              cfg.Pipeline.CLIPath,
		Grid:                 "2x2",
		CellSize:             256,
		QAThreshold:          3.0,
		MaxAutofixIterations: 1,
		Runner:               env.runner,
		Logger:               newDiscardLogger(),
	})
	require.NoError(t, err)

	env.orch, err = NewOrchestrator(OrchestratorOptions{
		Config:     cfg,
		Logger:     newDiscardLogger(),
		Parser:     env.stack,
		Namer:      env.stack,
		Components: env.stack,
		Builder:    env.stack,
		Images:     env.stack,
		Quality:    env.stack,
		Pipeline:   executor,
		RunLogger:  env.runLog,
		Hooks:      &recordingHooks{label: "hook", events: &env.events},
	})
	require.NoError(t, err)
	return env
}

func eventKinds(events []*RunEvent) []EventKind {
	kinds := make([]EventKind, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func countKind(kinds []EventKind, kind EventKind) int {
	n := 0
	for _, k := range kinds {
		if k == kind {
			n++
		}
	}
	return n
}

func TestRunHappyPath(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	result, err := env.orch.Run(ctx, testPrompt)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, RunStatusCompleted, result.Status)
	require.Equal(t, RunStatusCompleted, env.orch.Status())
	require.True(t, strings.HasPrefix(result.RunID, "run_"))
	require.Empty(t, result.Errors)
	require.Empty(t, result.StoppedAt)

	require.Equal(t, "coral-reefs", result.ProjectName)
	require.Equal(t, filepath.Join(env.cfg.Paths.ProjectsRoot, "coral-reefs"), result.ProjectPath)
	require.Equal(t, filepath.Join(result.ProjectPath, "exports", "final.mp4"), result.VideoPath)
	require.FileExists(t, result.VideoPath)
	require.NotNil(t, result.Quality)
	require.True(t, result.Quality.Passed)

	// Every collaborator ran exactly once.
	for _, method := range []string{"parse", "name", "components", "structure", "save_all", "master_sheet", "shots", "quality"} {
		require.Equal(t, 1, env.stack.calls[method], "method %s", method)
	}
	// The pipeline ran without the autofix loop.
	for _, step := range []string{"grid", "promote", "refine", "qa", "video_plan", "export"} {
		require.Equal(t, 1, env.runner.calls[step], "pipeline step %s", step)
	}
	require.Zero(t, env.runner.calls["autofix"])

	// A checkpoint of the finished run remains in the project directory.
	checkpointer, err := NewFileCheckpointer(env.cfg.Paths.CheckpointDir)
	require.NoError(t, err)
	checkpoint, err := checkpointer.LoadCheckpoint(ctx, result.ProjectPath)
	require.NoError(t, err)
	require.Equal(t, StepComplete, checkpoint.CurrentStep)
	require.Len(t, checkpoint.CompletedSteps, len(Steps()))

	// Progress reached the end.
	report := env.orch.Progress()
	require.Equal(t, float64(100), report.OverallPercent)
	require.Equal(t, len(Steps()), report.CompletedSteps)

	// Hooks fired in workflow order.
	require.Equal(t, "hook:start:parsing", env.events[0])
	require.Contains(t, env.events, "hook:complete:quality_validation")
	require.Equal(t, "hook:workflow_complete", env.events[len(env.events)-1])

	// The run log tells the whole story.
	history, err := env.runLog.History(ctx, env.orch.RunID())
	require.NoError(t, err)
	kinds := eventKinds(history)
	require.Equal(t, EventRunStarted, kinds[0])
	require.Equal(t, EventRunCompleted, kinds[len(kinds)-1])
	require.Equal(t, len(Steps()), countKind(kinds, EventStepCompleted))
	require.Equal(t, len(Steps()), countKind(kinds, EventCheckpointSaved))

	// The orchestrator is single use.
	_, err = env.orch.Run(ctx, testPrompt)
	require.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRunRejectsShortPrompt(t *testing.T) {
	env := newTestEnv(t, nil)

	result, err := env.orch.Run(context.Background(), "   too short ")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, RunStatusFailed, result.Status)
	require.Equal(t, StepParsing, result.StoppedAt)
	require.Equal(t, []string{ErrInvalidPrompt.Error()}, result.Errors)
	require.Equal(t, RunStatusFailed, env.orch.Status())
	require.Zero(t, env.stack.calls["parse"])
	require.Contains(t, env.events, "hook:workflow_fail:failed")
}

func TestRunRetriesTransientFailure(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.failNext("save_all", errors.New("transient disk glitch"))
	})
	ctx := context.Background()

	result, err := env.orch.Run(ctx, testPrompt)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Empty(t, result.Warnings)

	// The whole step re-ran, not just the failed call.
	require.Equal(t, 2, env.stack.calls["structure"])
	require.Equal(t, 2, env.stack.calls["save_all"])

	require.Len(t, env.orch.State().FailedSteps, 1)
	require.Equal(t, StepProjectStructure, env.orch.State().FailedSteps[0].Step)

	history, err := env.runLog.History(ctx, env.orch.RunID())
	require.NoError(t, err)
	kinds := eventKinds(history)
	require.Equal(t, 1, countKind(kinds, EventStepFailed))
	require.Equal(t, 1, countKind(kinds, EventRecoveryDecision))
}

func TestRunFallsBackWhenParsingFails(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.failNext("parse", errors.New("cannot parse prompt"))
	})

	result, err := env.orch.Run(context.Background(), testPrompt)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, env.stack.calls["parse"])
	require.NotEmpty(t, result.Warnings)
	require.Contains(t, result.Warnings[0], "fallback")

	// The fallback prompt is built from the raw text and defaulted.
	parsed := env.orch.State().ProjectData.Parsed
	require.NotNil(t, parsed)
	require.Equal(t, testPrompt, parsed.RawText)
	require.Equal(t, "cinematic", parsed.Style)
}

func TestRunDegradedImagesWhenBackendUnavailable(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.imagesUp = false
	})
	ctx := context.Background()

	result, err := env.orch.Run(ctx, testPrompt)
	require.NoError(t, err)
	require.True(t, result.Success)

	require.Zero(t, env.stack.calls["master_sheet"])
	require.Zero(t, env.stack.calls["shots"])

	data := env.orch.State().ProjectData
	require.True(t, data.DegradedImages)
	require.Len(t, data.ImagePaths, 2)
	require.FileExists(t, filepath.Join(result.ProjectPath, "images", "master_sheet.png"))
	require.FileExists(t, filepath.Join(result.ProjectPath, "images", "scene_01_shot_01.png"))

	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "placeholder") {
			found = true
		}
	}
	require.True(t, found, "expected a placeholder warning, got %v", result.Warnings)

	history, err := env.runLog.History(ctx, env.orch.RunID())
	require.NoError(t, err)
	require.Equal(t, 1, countKind(eventKinds(history), EventDegradedMode))
}

func TestRunWarnsOnIncoherentComponents(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.incoherent = true
	})

	result, err := env.orch.Run(context.Background(), testPrompt)
	require.NoError(t, err)
	require.True(t, result.Success)

	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "coherence") {
			found = true
		}
	}
	require.True(t, found, "expected a coherence warning, got %v", result.Warnings)
}

func TestRunSkipsFailedQualityValidation(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.failNext("quality", errors.New("scoring failed: invalid video stream"))
	})

	result, err := env.orch.Run(context.Background(), testPrompt)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Nil(t, result.Quality)

	found := false
	for _, warning := range result.Warnings {
		if strings.Contains(warning, "skipping quality_validation") {
			found = true
		}
	}
	require.True(t, found, "expected a skip warning, got %v", result.Warnings)
}

func TestRunPausesOnRepeatedPipelineFailure(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.runner.failures["grid"] = -1
	})
	ctx := context.Background()

	result, err := env.orch.Run(ctx, testPrompt)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, RunStatusPaused, result.Status)
	require.Equal(t, RunStatusPaused, env.orch.Status())
	require.Equal(t, StepPipelineExecution, result.StoppedAt)

	// One plain retry, then pause with a checkpoint.
	require.Equal(t, 2, env.runner.calls["grid"])
	require.Equal(t, filepath.Join(result.ProjectPath, CheckpointFileName), result.CheckpointPath)
	require.FileExists(t, result.CheckpointPath)

	require.Contains(t, env.events, "hook:workflow_fail:paused")
	history, err := env.runLog.History(ctx, env.orch.RunID())
	require.NoError(t, err)
	require.Equal(t, 1, countKind(eventKinds(history), EventRunPaused))
}

func TestResumeContinuesFromCheckpoint(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.runner.failures["grid"] = -1
	})
	ctx := context.Background()

	paused, err := env.orch.Run(ctx, testPrompt)
	require.NoError(t, err)
	require.Equal(t, RunStatusPaused, paused.Status)

	// A fresh orchestrator picks the run up from the project checkpoint
	// once the pipeline works again.
	stack := newFakeStack()
	runner := newFakePipelineRunner()
	executor, err := pipeline.NewExecutor(pipeline.Options{
		CLIPath: env.cfg.Pipeline.CLIPath,
		Runner:  runner,
		Logger:  newDiscardLogger(),
	})
	require.NoError(t, err)

	resumedOrch, err := NewOrchestrator(OrchestratorOptions{
		Config:     env.cfg,
		Logger:     newDiscardLogger(),
		Parser:     stack,
		Namer:      stack,
		Components: stack,
		Builder:    stack,
		Images:     stack,
		Quality:    stack,
		Pipeline:   executor,
		RunLogger:  env.runLog,
	})
	require.NoError(t, err)

	require.NoError(t, resumedOrch.Resume(ctx, paused.ProjectPath))
	require.Equal(t, RunStatusRunning, resumedOrch.Status())

	result, err := resumedOrch.RunFromState(ctx)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, RunStatusCompleted, result.Status)
	require.Equal(t, paused.ProjectPath, result.ProjectPath)
	require.FileExists(t, result.VideoPath)

	// Completed steps were not re-run.
	require.Zero(t, stack.calls["parse"])
	require.Zero(t, stack.calls["name"])
	require.Zero(t, stack.calls["components"])
	require.Zero(t, stack.calls["structure"])
	require.Zero(t, stack.calls["master_sheet"])
	require.Equal(t, 1, stack.calls["quality"])
	require.Equal(t, 1, runner.calls["grid"])
}

func TestRunAbortsOnCriticalFailure(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.failNext("components", &Error{
			Type:     ErrorTypeResource,
			Severity: SeverityCritical,
			Message:  "gpu memory exhausted",
		})
	})
	ctx := context.Background()

	result, err := env.orch.Run(ctx, testPrompt)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, RunStatusFailed, result.Status)
	require.Equal(t, StepComponentGeneration, result.StoppedAt)
	require.NotEmpty(t, result.Errors)
	require.Contains(t, result.Errors[0], "component generation failed")

	// No retry on a critical failure.
	require.Equal(t, 1, env.stack.calls["components"])
	require.Contains(t, env.events, "hook:workflow_fail:failed")

	history, err := env.runLog.History(ctx, env.orch.RunID())
	require.NoError(t, err)
	kinds := eventKinds(history)
	require.Equal(t, EventRunFailed, kinds[len(kinds)-1])
}

func TestCancelStopsRun(t *testing.T) {
	env := newTestEnv(t, func(env *testEnv) {
		env.stack.blockStep = "components"
		env.stack.blockSignal = make(chan struct{})
	})
	ctx := context.Background()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := env.orch.Run(ctx, testPrompt)
		done <- outcome{result, err}
	}()

	<-env.stack.blockSignal
	require.True(t, env.orch.Cancel())
	require.False(t, env.orch.Cancel(), "cancelling twice reports false")

	finished := <-done
	require.NoError(t, finished.err)
	require.False(t, finished.result.Success)
	require.Equal(t, RunStatusCancelled, finished.result.Status)
	require.Equal(t, RunStatusCancelled, env.orch.Status())
	require.Equal(t, StepComponentGeneration, finished.result.StoppedAt)

	// The final state was checkpointed for a later resume. The project
	// directory does not exist yet, so it lands in the fallback dir.
	require.NotEmpty(t, finished.result.CheckpointPath)
	require.FileExists(t, finished.result.CheckpointPath)
	require.Equal(t, env.cfg.Paths.CheckpointDir, filepath.Dir(finished.result.CheckpointPath))

	history, err := env.runLog.History(ctx, env.orch.RunID())
	require.NoError(t, err)
	require.Equal(t, 1, countKind(eventKinds(history), EventRunCancelled))
}

func TestCancelBeforeRunReportsFalse(t *testing.T) {
	env := newTestEnv(t, nil)
	require.False(t, env.orch.Cancel())
}

func TestResumeWithoutCheckpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	err := env.orch.Resume(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestRunFromStateWithoutResume(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.orch.RunFromState(context.Background())
	require.ErrorIs(t, err, ErrNotRunning)
}

func TestNewOrchestratorValidation(t *testing.T) {
	stack := newFakeStack()
	base := OrchestratorOptions{
		Parser:     stack,
		Namer:      stack,
		Components: stack,
		Builder:    stack,
		Quality:    stack,
	}

	missingParser := base
	missingParser.Parser = nil
	_, err := NewOrchestrator(missingParser)
	require.ErrorContains(t, err, "prompt parser")

	missingQuality := base
	missingQuality.Quality = nil
	_, err = NewOrchestrator(missingQuality)
	require.ErrorContains(t, err, "quality validator")

	// Without an injected pipeline the CLI path must be configured.
	_, err = NewOrchestrator(base)
	require.ErrorContains(t, err, "cli path")
}
