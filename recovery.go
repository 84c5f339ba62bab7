package reel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// AttemptKey identifies a retry counter: failures are counted per
// (step, error type) pair, so a network blip at image generation does not
// consume the retry budget of a later pipeline failure.
type AttemptKey struct {
	Step WorkflowStep
	Type ErrorType
}

// RecoveryManagerOptions configures a RecoveryManager.
type RecoveryManagerOptions struct {
	Checkpointer Checkpointer
	Logger       *slog.Logger
}

// RecoveryManager turns failures into bounded recovery decisions and owns
// checkpoint durability. One manager serves one workflow run; attempt
// counters and error history accumulate for the life of the run.
type RecoveryManager struct {
	mutex        sync.Mutex
	checkpointer Checkpointer
	logger       *slog.Logger
	attempts     map[AttemptKey]int
	history      []*ErrorContext
}

// NewRecoveryManager creates a RecoveryManager. A nil checkpointer
// disables persistence; a nil logger discards logs.
func NewRecoveryManager(opts RecoveryManagerOptions) *RecoveryManager {
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.Logger == nil {
		opts.Logger = newDiscardLogger()
	}
	return &RecoveryManager{
		checkpointer: opts.Checkpointer,
		logger:       opts.Logger,
		attempts:     map[AttemptKey]int{},
	}
}

// Handle classifies a failure and decides what to do about it. It reads
// the (step, type) attempt counter, computes the strategy for that attempt
// number, increments the counter, and records the error context in the
// run's history.
func (m *RecoveryManager) Handle(err error, errCtx *ErrorContext) *RecoveryAction {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	errType, severity := Classify(err)
	key := AttemptKey{Step: errCtx.Step, Type: errType}
	attempt := m.attempts[key]
	strategy := StrategyFor(errType, severity, errCtx.Step, attempt)
	m.attempts[key] = attempt + 1
	m.history = append(m.history, errCtx)

	action := &RecoveryAction{
		Strategy:  strategy,
		ErrorType: errType,
		Severity:  severity,
		Step:      errCtx.Step,
		Attempt:   attempt,
	}
	if strategy == StrategyRetryAdjusted {
		action.Backoff = RetryBackoff(attempt)
		action.Parameters = adjustedParameters(errType)
	}

	m.logger.Debug("workflow error classified",
		"step", errCtx.Step,
		"error_type", errType,
		"severity", severity,
		"strategy", strategy,
		"attempt", attempt)
	return action
}

// RecoveryResult reports what Execute did with a recovery action.
type RecoveryResult struct {
	Success        bool   `json:"success"`
	Retry          bool   `json:"retry"`
	Paused         bool   `json:"paused"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
	Message        string `json:"message"`
}

// Execute interprets a recovery action. Retry strategies recommend a
// retry to the caller's loop (the caller sleeps the backoff). Skip and
// fallback report success without retry. Checkpoint persists state and
// pauses the run. Abort reports failure. The checkpoint save is the only
// I/O performed here.
func (m *RecoveryManager) Execute(ctx context.Context, action *RecoveryAction, state *WorkflowState, projectPath string) *RecoveryResult {
	switch action.Strategy {
	case StrategyRetry, StrategyRetryAdjusted:
		return &RecoveryResult{
			Success: true,
			Retry:   true,
			Message: fmt.Sprintf("retry recommended for %s (attempt %d)", action.Step, action.Attempt+1),
		}
	case StrategySkip:
		return &RecoveryResult{
			Success: true,
			Message: fmt.Sprintf("skipping %s and continuing", action.Step),
		}
	case StrategyFallback:
		return &RecoveryResult{
			Success: true,
			Message: fmt.Sprintf("using fallback result for %s", action.Step),
		}
	case StrategyCheckpoint:
		path, err := m.SaveCheckpoint(ctx, state, projectPath)
		if err != nil {
			m.logger.Error("checkpoint save failed during recovery", "error", err)
			return &RecoveryResult{
				Success: false,
				Message: fmt.Sprintf("failed to save checkpoint: %v", err),
			}
		}
		return &RecoveryResult{
			Success:        false,
			Paused:         true,
			CheckpointPath: path,
			Message:        "workflow paused for user intervention",
		}
	}
	return &RecoveryResult{
		Success: false,
		Message: fmt.Sprintf("workflow aborted at %s", action.Step),
	}
}

// SaveCheckpoint snapshots state plus the trailing error history and hands
// it to the checkpointer. Returns the path written, which is empty when
// checkpointing is disabled.
func (m *RecoveryManager) SaveCheckpoint(ctx context.Context, state *WorkflowState, projectPath string) (string, error) {
	m.mutex.Lock()
	checkpoint := NewCheckpoint(state, m.history)
	m.mutex.Unlock()

	path, err := m.checkpointer.SaveCheckpoint(ctx, projectPath, checkpoint)
	if err != nil {
		return "", err
	}
	if path != "" {
		m.logger.Info("checkpoint saved", "path", path, "step", state.CurrentStep)
	}
	return path, nil
}

// LoadCheckpoint restores the workflow state saved for a project. A
// missing or unreadable checkpoint returns nil after logging; loading
// never fails the caller.
func (m *RecoveryManager) LoadCheckpoint(ctx context.Context, projectPath string) *WorkflowState {
	checkpoint, err := m.checkpointer.LoadCheckpoint(ctx, projectPath)
	if err != nil {
		m.logger.Warn("no checkpoint loaded", "project_path", projectPath, "error", err)
		return nil
	}
	m.logger.Info("checkpoint loaded",
		"project_path", projectPath,
		"current_step", checkpoint.CurrentStep,
		"completed_steps", len(checkpoint.CompletedSteps))
	return checkpoint.State()
}

// History returns a copy of the error contexts recorded so far.
func (m *RecoveryManager) History() []*ErrorContext {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	out := make([]*ErrorContext, len(m.history))
	copy(out, m.history)
	return out
}

// Attempts returns the current attempt count for a (step, type) pair.
func (m *RecoveryManager) Attempts(step WorkflowStep, errType ErrorType) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.attempts[AttemptKey{Step: step, Type: errType}]
}

// FormatNotification renders a human-readable account of a failure and
// the decision taken. Deterministic given its inputs.
func (m *RecoveryManager) FormatNotification(errCtx *ErrorContext, action *RecoveryAction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow error at %s: %s\n", errCtx.Step.DisplayName(), errCtx.Message)
	fmt.Fprintf(&b, "Classification: %s (%s severity)\n", action.ErrorType, action.Severity)
	fmt.Fprintf(&b, "Decision: %s", action.Strategy)
	if action.Strategy.Retryable() {
		fmt.Fprintf(&b, " (attempt %d", action.Attempt+1)
		if action.Backoff > 0 {
			fmt.Fprintf(&b, ", waiting %s", action.Backoff)
		}
		b.WriteString(")")
	}
	b.WriteString("\n")
	actions := CorrectiveActions(action.ErrorType)
	if len(actions) > 0 {
		b.WriteString("Suggested actions:\n")
		for _, a := range actions {
			fmt.Fprintf(&b, "  - %s\n", a)
		}
	}
	return b.String()
}

// CorrectiveActions suggests user-facing remedies for an error type.
func CorrectiveActions(errType ErrorType) []string {
	switch errType {
	case ErrorTypeNetwork:
		return []string{
			"Check your network connection",
			"Verify the generation backend is reachable",
			"Resume the workflow once connectivity is restored",
		}
	case ErrorTypeFileSystem:
		return []string{
			"Check permissions on the project directory",
			"Verify there is free disk space",
		}
	case ErrorTypeParsing:
		return []string{
			"Review the prompt for unusual formatting",
			"Retry with a simpler prompt",
		}
	case ErrorTypeGeneration:
		return []string{
			"Check the generation backend status",
			"Retry with a shorter or simpler prompt",
		}
	case ErrorTypeValidation:
		return []string{
			"Review the quality report in the project directory",
			"Lower the QA threshold if the output is acceptable",
		}
	case ErrorTypePipeline:
		return []string{
			"Verify the pipeline CLI path in the configuration",
			"Inspect the step output in the run log",
		}
	case ErrorTypeDependency:
		return []string{
			"Install the missing dependency",
			"Verify the interpreter and CLI versions match the configuration",
		}
	case ErrorTypeResource:
		return []string{
			"Free up disk space or memory",
			"Resume the workflow from its checkpoint once resources are available",
		}
	}
	return []string{
		"Inspect the run log for details",
		"Resume from the last checkpoint after investigating",
	}
}
