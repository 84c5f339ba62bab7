package reel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/deepnoodle-ai/reel/pipeline"
	"github.com/deepnoodle-ai/reel/progress"
	"github.com/deepnoodle-ai/reel/project"
	"go.jetify.com/typeid"
)

// minPromptLength is the shortest prompt accepted by Run.
const minPromptLength = 10

// NewRunID returns a new identifier for a workflow run.
func NewRunID() string {
	id, err := typeid.WithPrefix("run")
	if err != nil {
		panic(fmt.Sprintf("failed to generate run id: %v", err))
	}
	return id.String()
}

// OrchestratorOptions are the options used to create an Orchestrator.
type OrchestratorOptions struct {
	Config       *Config
	Logger       *slog.Logger
	Parser       PromptParser
	Namer        NameGenerator
	Components   ComponentGenerator
	Builder      ProjectBuilder
	Images       ImageBackend
	Quality      QualityValidator
	Pipeline     *pipeline.Executor
	Checkpointer Checkpointer
	RunLogger    RunLogger
	Hooks        RunHooks
	Monitor      *progress.Monitor
}

// Orchestrator runs the seven-step project generation workflow. One
// orchestrator drives at most one run; create a new one per run.
type Orchestrator struct {
	mutex        sync.Mutex
	config       *Config
	logger       *slog.Logger
	parser       PromptParser
	namer        NameGenerator
	components   ComponentGenerator
	builder      ProjectBuilder
	images       ImageBackend
	quality      QualityValidator
	pipeline     *pipeline.Executor
	checkpointer Checkpointer
	recovery     *RecoveryManager
	runLogger    RunLogger
	hooks        *guardedHooks
	monitor      *progress.Monitor

	runID     string
	status    RunStatus
	state     *WorkflowState
	started   bool
	cancelRun context.CancelFunc
}

// NewOrchestrator creates a workflow orchestrator. The parser, namer,
// component generator, project builder, and quality validator are
// required. A nil image backend means every run uses placeholder images.
// A nil pipeline executor is built from the configuration.
func NewOrchestrator(opts OrchestratorOptions) (*Orchestrator, error) {
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = newDiscardLogger()
	}
	if opts.Parser == nil {
		return nil, errors.New("a prompt parser is required")
	}
	if opts.Namer == nil {
		return nil, errors.New("a name generator is required")
	}
	if opts.Components == nil {
		return nil, errors.New("a component generator is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("a project builder is required")
	}
	if opts.Quality == nil {
		return nil, errors.New("a quality validator is required")
	}
	if opts.Pipeline == nil {
		executor, err := pipeline.NewExecutor(pipeline.Options{
			Interpreter:          opts.Config.Pipeline.Interpreter,
			CLIPath:              opts.Config.Pipeline.CLIPath,
			Grid:                 opts.Config.Pipeline.Grid,
			CellSize:             opts.Config.Pipeline.CellSize,
			QAThreshold:          opts.Config.Pipeline.QAThreshold,
			MaxAutofixIterations: opts.Config.Pipeline.MaxAutofixIterations,
			StepTimeout:          opts.Config.Pipeline.StepTimeout.Std(),
			Logger:               opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build pipeline executor: %w", err)
		}
		opts.Pipeline = executor
	}
	if opts.Checkpointer == nil {
		if opts.Config.Workflow.Checkpointing {
			checkpointer, err := NewFileCheckpointer(opts.Config.Paths.CheckpointDir)
			if err != nil {
				return nil, err
			}
			opts.Checkpointer = checkpointer
		} else {
			opts.Checkpointer = NewNullCheckpointer()
		}
	}
	if opts.RunLogger == nil {
		opts.RunLogger = NewNullRunLogger()
	}
	if opts.Hooks == nil {
		opts.Hooks = &BaseRunHooks{}
	}

	runID := NewRunID()
	logger := opts.Logger.With("run_id", runID)

	if opts.Monitor == nil {
		opts.Monitor = progress.NewMonitor(progress.MonitorOptions{
			Logger:              logger,
			AverageStepDuration: opts.Config.Workflow.AverageStepDuration.Std(),
		})
	}

	return &Orchestrator{
		config:       opts.Config,
		logger:       logger,
		parser:       opts.Parser,
		namer:        opts.Namer,
		components:   opts.Components,
		builder:      opts.Builder,
		images:       opts.Images,
		quality:      opts.Quality,
		pipeline:     opts.Pipeline,
		checkpointer: opts.Checkpointer,
		recovery: NewRecoveryManager(RecoveryManagerOptions{
			Checkpointer: opts.Checkpointer,
			Logger:       logger,
		}),
		runLogger: opts.RunLogger,
		hooks:     &guardedHooks{hooks: opts.Hooks, logger: logger},
		monitor:   opts.Monitor,
		runID:     runID,
		status:    RunStatusPending,
	}, nil
}

// RunID returns the identifier for this run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// Status returns the current run status.
func (o *Orchestrator) Status() RunStatus {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.status
}

// State returns the workflow state. Treat it as read-only while the run
// is in flight.
func (o *Orchestrator) State() *WorkflowState {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return o.state
}

// Progress returns a snapshot of per-step and overall progress.
func (o *Orchestrator) Progress() progress.Report {
	return o.monitor.WorkflowProgress()
}

// OnProgress subscribes a callback to progress updates.
func (o *Orchestrator) OnProgress(cb progress.Callback) {
	o.monitor.OnUpdate(cb)
}

// Run executes the workflow for a prompt. Prompt validation failures are
// fatal immediately: no recovery is attempted and the returned result
// carries the validation error.
func (o *Orchestrator) Run(ctx context.Context, prompt string) (*Result, error) {
	if err := o.start(); err != nil {
		return nil, err
	}
	startTime := time.Now()

	prompt = strings.TrimSpace(prompt)
	if len(prompt) < minPromptLength {
		result := &Result{
			RunID:     o.runID,
			Status:    RunStatusFailed,
			StoppedAt: StepParsing,
			Duration:  time.Since(startTime),
		}
		result.addError(ErrInvalidPrompt)
		o.setStatus(RunStatusFailed)
		o.logEvent(ctx, EventRunFailed, StepParsing, 0, ErrInvalidPrompt.Error(), nil)
		o.hooks.OnWorkflowFail(ctx, o.workflowEvent(result, ErrInvalidPrompt))
		return result, nil
	}

	o.mutex.Lock()
	o.state = NewWorkflowState(prompt)
	o.mutex.Unlock()

	return o.run(ctx, startTime)
}

// Resume loads the checkpoint for a project directory and restores the
// workflow state. It reconstructs state only: call RunFromState to
// continue execution from the restored current step.
func (o *Orchestrator) Resume(ctx context.Context, projectPath string) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.started {
		return ErrAlreadyRunning
	}
	state := o.recovery.LoadCheckpoint(ctx, projectPath)
	if state == nil {
		return ErrNoCheckpoint
	}
	o.state = state
	o.started = true
	o.status = RunStatusRunning
	return nil
}

// RunFromState continues execution of a state restored by Resume.
// Completed steps are not re-run.
func (o *Orchestrator) RunFromState(ctx context.Context) (*Result, error) {
	o.mutex.Lock()
	if !o.started || o.state == nil {
		o.mutex.Unlock()
		return nil, ErrNotRunning
	}
	o.mutex.Unlock()
	return o.run(ctx, time.Now())
}

// Cancel stops an in-flight run. It transitions the run to CANCELLED and
// cancels the run context, which kills any in-flight pipeline subprocess;
// the run goroutine saves the final checkpoint. Returns false when the
// workflow is not running.
func (o *Orchestrator) Cancel() bool {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.status != RunStatusRunning || o.cancelRun == nil {
		return false
	}
	o.status = RunStatusCancelled
	o.cancelRun()
	return true
}

// start guards against double execution.
func (o *Orchestrator) start() error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if o.started {
		return ErrAlreadyRunning
	}
	o.started = true
	o.status = RunStatusRunning
	return nil
}

func (o *Orchestrator) setStatus(status RunStatus) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.status = status
}

func (o *Orchestrator) projectPath() string {
	if o.state != nil && o.state.ProjectData != nil {
		return o.state.ProjectData.ProjectPath
	}
	return ""
}

// run walks the remaining steps of the workflow in order.
func (o *Orchestrator) run(ctx context.Context, startTime time.Time) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mutex.Lock()
	o.cancelRun = cancel
	state := o.state
	o.mutex.Unlock()

	result := &Result{RunID: o.runID}

	steps := Steps()
	o.monitor.Start(len(steps))
	for _, done := range state.CompletedSteps {
		o.monitor.UpdateStep(done.String(), 100, "restored from checkpoint")
		o.monitor.CompleteStep(done.String(), nil)
	}

	o.logger.Info("workflow run starting",
		"current_step", state.CurrentStep,
		"completed_steps", len(state.CompletedSteps))
	o.logEvent(runCtx, EventRunStarted, state.CurrentStep, 0, "", map[string]any{
		"prompt":          state.ProjectData.Prompt,
		"completed_steps": len(state.CompletedSteps),
	})

	if !state.Done() && StepIndex(state.CurrentStep) < 0 {
		return o.finishFailed(ctx, result, state.CurrentStep, startTime,
			fmt.Errorf("cannot run from unknown step %q", state.CurrentStep))
	}

	for i := StepIndex(state.CurrentStep); i >= 0 && i < len(steps); i = StepIndex(state.CurrentStep) {
		step := steps[i]
		if runCtx.Err() != nil {
			return o.finishCancelled(ctx, result, step, startTime)
		}
		outcome := o.runStepWithRecovery(runCtx, state, step, i, result)
		switch {
		case outcome.cancelled:
			return o.finishCancelled(ctx, result, step, startTime)
		case outcome.paused:
			result.CheckpointPath = outcome.checkpointPath
			return o.finishPaused(ctx, result, step, startTime, outcome.err)
		case outcome.err != nil:
			return o.finishFailed(ctx, result, step, startTime, outcome.err)
		}
	}

	return o.finishCompleted(ctx, result, startTime)
}

// stepOutcome reports how a step (including its retries) ended.
type stepOutcome struct {
	err            error
	paused         bool
	cancelled      bool
	checkpointPath string
}

// runStepWithRecovery runs one step, consulting the recovery manager on
// each failure until the step succeeds, is skipped or replaced by a
// fallback, or the run stops.
func (o *Orchestrator) runStepWithRecovery(ctx context.Context, state *WorkflowState, step WorkflowStep, index int, result *Result) stepOutcome {
	for attempt := 0; ; attempt++ {
		event := &StepEvent{
			RunID:      o.runID,
			Step:       step,
			StepIndex:  index,
			TotalSteps: len(workflowOrder),
			Attempt:    attempt,
			StartTime:  time.Now(),
		}
		o.hooks.OnStepStart(ctx, event)
		o.logEvent(ctx, EventStepStarted, step, attempt, "", nil)
		o.monitor.UpdateStep(step.String(), 0, "running "+step.DisplayName())

		err := o.executeStep(ctx, state, step, result)
		event.EndTime = time.Now()
		event.Duration = event.EndTime.Sub(event.StartTime)

		if err == nil {
			o.completeStep(ctx, state, step, nil)
			o.hooks.OnStepComplete(ctx, event)
			o.logEvent(ctx, EventStepCompleted, step, attempt, "", map[string]any{
				"duration_ms": event.Duration.Milliseconds(),
			})
			return stepOutcome{}
		}

		event.Error = err
		state.RecordFailure(step, err)
		o.monitor.FailStep(step.String(), err.Error())
		o.hooks.OnStepFail(ctx, event)
		o.logEvent(ctx, EventStepFailed, step, attempt, err.Error(), nil)

		if ctx.Err() != nil {
			return stepOutcome{cancelled: true, err: err}
		}

		errCtx := NewErrorContext(step, o.projectPath(), err)
		action := o.recovery.Handle(err, errCtx)
		o.logger.Warn("step failed",
			"step", step,
			"error", err,
			"error_type", action.ErrorType,
			"severity", action.Severity,
			"strategy", action.Strategy,
			"attempt", action.Attempt)
		o.logEvent(ctx, EventRecoveryDecision, step, attempt, err.Error(), map[string]any{
			"error_type": string(action.ErrorType),
			"severity":   string(action.Severity),
			"strategy":   string(action.Strategy),
		})

		recovery := o.recovery.Execute(ctx, action, state, o.projectPath())
		switch {
		case recovery.Retry:
			if action.Backoff > 0 {
				if err := sleepContext(ctx, action.Backoff); err != nil {
					return stepOutcome{cancelled: true, err: err}
				}
			}
		case action.Strategy == StrategySkip, action.Strategy == StrategyFallback:
			if fbErr := o.applyFallback(ctx, state, step, action.Strategy); fbErr != nil {
				return stepOutcome{err: fmt.Errorf("%s failed and no fallback was possible: %w", step, fbErr)}
			}
			result.warn(fmt.Sprintf("%s: %s", recovery.Message, err))
			o.completeStep(ctx, state, step, nil)
			o.hooks.OnStepComplete(ctx, event)
			o.logEvent(ctx, EventStepCompleted, step, attempt, recovery.Message, nil)
			return stepOutcome{}
		case recovery.Paused:
			result.addError(err)
			o.logEvent(ctx, EventCheckpointSaved, step, attempt, recovery.CheckpointPath, nil)
			return stepOutcome{paused: true, err: err, checkpointPath: recovery.CheckpointPath}
		default:
			result.addError(err)
			return stepOutcome{err: err}
		}
	}
}

// completeStep advances the state, refreshes the completion estimate, and
// checkpoints.
func (o *Orchestrator) completeStep(ctx context.Context, state *WorkflowState, step WorkflowStep, stepResult any) {
	o.monitor.CompleteStep(step.String(), stepResult)
	state.CompleteStep(step)
	if remaining := o.monitor.EstimateRemaining(); remaining > 0 {
		estimate := time.Now().Add(remaining)
		state.EstimatedCompletion = &estimate
	}
	if path, err := o.recovery.SaveCheckpoint(ctx, state, o.projectPath()); err != nil {
		o.logger.Warn("checkpoint save failed", "step", step, "error", err)
	} else if path != "" {
		o.logEvent(ctx, EventCheckpointSaved, step, 0, path, nil)
	}
}

// executeStep dispatches one workflow step to its collaborator. Steps
// other than pipeline execution run under the configured per-step
// deadline; the pipeline applies its own per-invocation timeouts.
func (o *Orchestrator) executeStep(ctx context.Context, state *WorkflowState, step WorkflowStep, result *Result) error {
	if timeout := o.config.Workflow.StepTimeout.Std(); timeout > 0 && step != StepPipelineExecution {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	data := state.ProjectData
	switch step {
	case StepParsing:
		parsed, err := o.parser.Parse(ctx, data.Prompt)
		if err != nil {
			return fmt.Errorf("prompt parsing failed: %w", err)
		}
		if ok, problems := o.parser.Validate(parsed); !ok {
			return fmt.Errorf("parsed prompt is invalid: %s", strings.Join(problems, "; "))
		}
		data.Parsed = o.parser.FillDefaults(parsed)

	case StepNameGeneration:
		name, err := o.namer.Generate(ctx, data.Parsed)
		if err != nil {
			return fmt.Errorf("name generation failed: %w", err)
		}
		data.ProjectName = name
		result.ProjectName = name

	case StepComponentGeneration:
		components, err := o.components.GenerateAll(ctx, data.Parsed)
		if err != nil {
			return fmt.Errorf("component generation failed: %w", err)
		}
		if report := o.components.ValidateCoherence(components); !report.Coherent {
			result.warn("component coherence issues: " + strings.Join(report.Issues, "; "))
		}
		data.Components = components

	case StepProjectStructure:
		path, err := o.builder.CreateStructure(ctx, o.config.Paths.ProjectsRoot, data.ProjectName, data.Components)
		if err != nil {
			return fmt.Errorf("project structure creation failed: %w", err)
		}
		if err := o.builder.SaveAll(ctx, path, data.Components); err != nil {
			return fmt.Errorf("saving project components failed: %w", err)
		}
		if report := o.builder.ValidateStructure(path); !report.Valid {
			return fmt.Errorf("project structure is invalid: %s", strings.Join(report.Errors, "; "))
		}
		data.ProjectPath = path
		result.ProjectPath = path

	case StepImageGeneration:
		return o.generateImages(ctx, data, result)

	case StepPipelineExecution:
		res := o.pipeline.ExecuteWithAutofix(ctx, data.ProjectPath)
		for _, warning := range res.Warnings {
			result.warn(warning)
		}
		data.Pipeline = map[string]any{}
		for key, value := range res.Metadata {
			data.Pipeline[key] = value
		}
		if res.QAMetadata != nil {
			data.Pipeline["qa"] = res.QAMetadata
		}
		if !res.Success {
			if res.Err != nil {
				return fmt.Errorf("pipeline execution failed: %w", res.Err)
			}
			return fmt.Errorf("pipeline execution failed: %s", strings.Join(res.Errors, "; "))
		}
		data.VideoPath = res.VideoPath
		result.VideoPath = res.VideoPath

	case StepQualityValidation:
		report, err := o.quality.ValidateFinalVideo(ctx, data.VideoPath, data.Components)
		if err != nil {
			return fmt.Errorf("quality validation failed: %w", err)
		}
		data.Quality = report
		result.Quality = report
		if !report.Passed {
			result.warn(fmt.Sprintf("final video scored %.1f/5.0, below the quality bar", report.OverallScore))
		}

	default:
		return fmt.Errorf("unknown workflow step %q", step)
	}
	return nil
}

// generateImages renders images through the configured backend, falling
// back to locally generated placeholders when the backend is unavailable.
func (o *Orchestrator) generateImages(ctx context.Context, data *project.Data, result *Result) error {
	if o.images != nil && o.images.CheckAvailability(ctx) {
		sheet, err := o.images.GenerateMasterSheet(ctx, data.ProjectPath, data.Components)
		if err != nil {
			return fmt.Errorf("master sheet generation failed: %w", err)
		}
		shots, err := o.images.GenerateAllShots(ctx, data.ProjectPath, data.Components)
		if err != nil {
			return fmt.Errorf("shot image generation failed: %w", err)
		}
		data.ImagePaths = append(sheet, shots...)
		data.DegradedImages = false
		return nil
	}

	o.logger.Warn("image backend unavailable, entering degraded mode")
	o.logEvent(ctx, EventDegradedMode, StepImageGeneration, 0, "image backend unavailable", nil)
	result.warn("image backend unavailable, generated placeholder images")

	paths, err := o.writePlaceholders(data)
	if err != nil {
		return fmt.Errorf("placeholder image generation failed: %w", err)
	}
	data.ImagePaths = paths
	data.DegradedImages = true
	return nil
}

// writePlaceholders renders deterministic placeholder images for the
// master sheet and every shot.
func (o *Orchestrator) writePlaceholders(data *project.Data) ([]string, error) {
	imagesDir := filepath.Join(data.ProjectPath, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, err
	}

	var paths []string
	sheetPath := filepath.Join(imagesDir, "master_sheet.png")
	if err := WritePlaceholderPNG(sheetPath, data.ProjectName, 1536, 864); err != nil {
		return nil, err
	}
	paths = append(paths, sheetPath)

	if data.Components != nil {
		for _, shot := range data.Components.Shots {
			name := fmt.Sprintf("scene_%02d_shot_%02d.png", shot.Scene, shot.Index)
			shotPath := filepath.Join(imagesDir, name)
			if err := WritePlaceholderPNG(shotPath, shot.ImagePrompt, 1024, 576); err != nil {
				return nil, err
			}
			paths = append(paths, shotPath)
		}
	}
	return paths, nil
}

// applyFallback substitutes a degraded result for a failed step so the
// workflow can continue. Steps with nothing sensible to substitute return
// an error, which fails the run.
func (o *Orchestrator) applyFallback(ctx context.Context, state *WorkflowState, step WorkflowStep, strategy Strategy) error {
	data := state.ProjectData
	if strategy == StrategySkip {
		return nil
	}
	switch step {
	case StepParsing:
		data.Parsed = o.parser.FillDefaults(&project.ParsedPrompt{
			Topic:   fallbackTopic(data.Prompt),
			RawText: data.Prompt,
		})
	case StepNameGeneration:
		data.ProjectName = fmt.Sprintf("untitled-%s", time.Now().Format("20060102-150405"))
	case StepComponentGeneration:
		data.Components = fallbackComponents(data)
	case StepProjectStructure:
		path := filepath.Join(o.config.Paths.ProjectsRoot, data.ProjectName)
		for _, dir := range []string{path, filepath.Join(path, "images"), filepath.Join(path, "exports")} {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		data.ProjectPath = path
	case StepImageGeneration:
		paths, err := o.writePlaceholders(data)
		if err != nil {
			return err
		}
		data.ImagePaths = paths
		data.DegradedImages = true
	case StepPipelineExecution, StepQualityValidation:
		// Nothing to substitute; the run continues without a validated
		// video and the warning records it.
	}
	return nil
}

// fallbackTopic derives a short topic from raw prompt text.
func fallbackTopic(prompt string) string {
	words := strings.Fields(prompt)
	if len(words) > 6 {
		words = words[:6]
	}
	return strings.Join(words, " ")
}

// fallbackComponents builds a minimal single-scene component set from
// whatever prompt data survived.
func fallbackComponents(data *project.Data) *project.Components {
	topic := data.Prompt
	if data.Parsed != nil && data.Parsed.Topic != "" {
		topic = data.Parsed.Topic
	}
	return &project.Components{
		Script: []project.Scene{{
			Index:           1,
			Title:           topic,
			Description:     data.Prompt,
			DurationSeconds: 60,
		}},
		Shots: []project.Shot{{
			Scene:       1,
			Index:       1,
			Description: data.Prompt,
			ImagePrompt: topic,
		}},
		Narration:    []project.NarrationCue{{Scene: 1, Text: data.Prompt}},
		ImagePrompts: []string{topic},
	}
}

// finishCompleted finalizes a successful run.
func (o *Orchestrator) finishCompleted(ctx context.Context, result *Result, startTime time.Time) (*Result, error) {
	o.mutex.Lock()
	state := o.state
	o.status = RunStatusCompleted
	o.cancelRun = nil
	o.mutex.Unlock()

	result.Success = true
	result.Status = RunStatusCompleted
	result.Duration = time.Since(startTime)
	fillResultFromData(result, state.ProjectData)

	o.logger.Info("workflow completed",
		"duration", result.Duration,
		"project_path", result.ProjectPath,
		"video_path", result.VideoPath)
	o.logEvent(ctx, EventRunCompleted, StepComplete, 0, "", map[string]any{
		"duration_ms": result.Duration.Milliseconds(),
		"video_path":  result.VideoPath,
	})
	o.hooks.OnWorkflowComplete(ctx, o.workflowEvent(result, nil))
	return result, nil
}

// finishFailed finalizes a failed run.
func (o *Orchestrator) finishFailed(ctx context.Context, result *Result, step WorkflowStep, startTime time.Time, cause error) (*Result, error) {
	o.setStatus(RunStatusFailed)
	o.mutex.Lock()
	state := o.state
	o.cancelRun = nil
	o.mutex.Unlock()

	result.Success = false
	result.Status = RunStatusFailed
	result.StoppedAt = step
	result.Duration = time.Since(startTime)
	if len(result.Errors) == 0 {
		result.addError(cause)
	}
	fillResultFromData(result, state.ProjectData)

	o.logger.Error("workflow failed", "step", step, "error", cause)
	o.logEvent(ctx, EventRunFailed, step, 0, errorMessage(cause), nil)
	o.hooks.OnWorkflowFail(ctx, o.workflowEvent(result, cause))
	return result, nil
}

// finishPaused finalizes a run paused by a checkpoint strategy.
func (o *Orchestrator) finishPaused(ctx context.Context, result *Result, step WorkflowStep, startTime time.Time, cause error) (*Result, error) {
	o.setStatus(RunStatusPaused)
	o.mutex.Lock()
	state := o.state
	o.cancelRun = nil
	o.mutex.Unlock()

	result.Success = false
	result.Status = RunStatusPaused
	result.StoppedAt = step
	result.Duration = time.Since(startTime)
	fillResultFromData(result, state.ProjectData)

	o.logger.Warn("workflow paused for user intervention",
		"step", step,
		"checkpoint_path", result.CheckpointPath,
		"error", cause)
	o.logEvent(ctx, EventRunPaused, step, 0, errorMessage(cause), map[string]any{
		"checkpoint_path": result.CheckpointPath,
	})
	o.hooks.OnWorkflowFail(ctx, o.workflowEvent(result, cause))
	return result, nil
}

// finishCancelled finalizes a cancelled run, saving a final checkpoint.
func (o *Orchestrator) finishCancelled(ctx context.Context, result *Result, step WorkflowStep, startTime time.Time) (*Result, error) {
	o.setStatus(RunStatusCancelled)
	o.mutex.Lock()
	state := o.state
	o.cancelRun = nil
	o.mutex.Unlock()

	result.Success = false
	result.Status = RunStatusCancelled
	result.StoppedAt = step
	result.Duration = time.Since(startTime)
	result.addError(fmt.Errorf("workflow cancelled at %s", step))
	fillResultFromData(result, state.ProjectData)

	if path, err := o.recovery.SaveCheckpoint(ctx, state, o.projectPath()); err != nil {
		o.logger.Warn("checkpoint save failed during cancellation", "error", err)
	} else if path != "" {
		result.CheckpointPath = path
	}

	o.logger.Warn("workflow cancelled", "step", step)
	o.logEvent(ctx, EventRunCancelled, step, 0, "", map[string]any{
		"checkpoint_path": result.CheckpointPath,
	})
	o.hooks.OnWorkflowFail(ctx, o.workflowEvent(result, context.Canceled))
	return result, nil
}

func (o *Orchestrator) workflowEvent(result *Result, cause error) *WorkflowEvent {
	prompt := ""
	o.mutex.Lock()
	if o.state != nil && o.state.ProjectData != nil {
		prompt = o.state.ProjectData.Prompt
	}
	status := o.status
	o.mutex.Unlock()

	return &WorkflowEvent{
		RunID:       o.runID,
		Status:      status,
		Prompt:      prompt,
		ProjectName: result.ProjectName,
		ProjectPath: result.ProjectPath,
		VideoPath:   result.VideoPath,
		EndTime:     time.Now(),
		Duration:    result.Duration,
		Errors:      result.Errors,
		Error:       cause,
	}
}

func (o *Orchestrator) logEvent(ctx context.Context, kind EventKind, step WorkflowStep, attempt int, message string, fields map[string]any) {
	event := &RunEvent{
		RunID:   o.runID,
		Time:    time.Now(),
		Kind:    kind,
		Step:    step,
		Attempt: attempt,
		Message: message,
		Fields:  fields,
	}
	if err := o.runLogger.LogEvent(ctx, event); err != nil {
		o.logger.Warn("failed to write run log event", "kind", kind, "error", err)
	}
}

func fillResultFromData(result *Result, data *project.Data) {
	if data == nil {
		return
	}
	if result.ProjectName == "" {
		result.ProjectName = data.ProjectName
	}
	if result.ProjectPath == "" {
		result.ProjectPath = data.ProjectPath
	}
	if result.VideoPath == "" {
		result.VideoPath = data.VideoPath
	}
	if result.Quality == nil {
		result.Quality = data.Quality
	}
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
