// Package pipeline drives the external rendering CLI through its fixed step
// sequence, with a quality-gated autofix loop, and validates the resulting
// video artifact.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StepResult captures a single pipeline step invocation.
type StepResult struct {
	Step      Step           `json:"step"`
	Success   bool           `json:"success"`
	Output    string         `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	ExitCode  int            `json:"exit_code"`
	Duration  time.Duration  `json:"duration"`
	RequestID string         `json:"request_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Options configures an Executor.
type Options struct {
	// Interpreter optionally runs the CLI through an interpreter such as
	// python3. Empty means the CLI path is executed directly.
	Interpreter string

	// CLIPath is the rendering CLI to invoke. Required.
	CLIPath string

	// WorkDir is the subprocess working directory. Empty inherits ours.
	WorkDir string

	// Grid is the contact-sheet layout passed to the grid step.
	Grid string

	// CellSize is the grid cell edge in pixels.
	CellSize int

	// QAThreshold is the minimum acceptable overall score out of 5.
	QAThreshold float64

	// MaxAutofixIterations bounds the quality-gated retry loop.
	MaxAutofixIterations int

	// StepTimeout bounds each subprocess invocation. Zero means no limit.
	StepTimeout time.Duration

	Runner CommandRunner
	Logger *slog.Logger
}

// Executor invokes the rendering CLI one step at a time.
type Executor struct {
	interpreter   string
	cliPath       string
	workDir       string
	grid          string
	cellSize      int
	qaThreshold   float64
	maxIterations int
	stepTimeout   time.Duration
	runner        CommandRunner
	logger        *slog.Logger
}

// NewExecutor creates an executor for the configured rendering CLI.
func NewExecutor(opts Options) (*Executor, error) {
	if strings.TrimSpace(opts.CLIPath) == "" {
		return nil, fmt.Errorf("pipeline cli path is required")
	}
	if opts.Grid == "" {
		opts.Grid = "3x3"
	}
	if opts.CellSize <= 0 {
		opts.CellSize = 512
	}
	if opts.QAThreshold <= 0 {
		opts.QAThreshold = 3.0
	}
	if opts.MaxAutofixIterations <= 0 {
		opts.MaxAutofixIterations = 3
	}
	if opts.Runner == nil {
		opts.Runner = commandRunner{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Executor{
		interpreter:   opts.Interpreter,
		cliPath:       opts.CLIPath,
		workDir:       opts.WorkDir,
		grid:          opts.Grid,
		cellSize:      opts.CellSize,
		qaThreshold:   opts.QAThreshold,
		maxIterations: opts.MaxAutofixIterations,
		stepTimeout:   opts.StepTimeout,
		runner:        opts.Runner,
		logger:        opts.Logger,
	}, nil
}

// QAThreshold returns the configured minimum passing score.
func (e *Executor) QAThreshold() float64 {
	return e.qaThreshold
}

// MaxAutofixIterations returns the autofix loop bound.
func (e *Executor) MaxAutofixIterations() int {
	return e.maxIterations
}

// ExecuteStep runs one pipeline step as a subprocess and parses its stdout
// into the result metadata.
func (e *Executor) ExecuteStep(ctx context.Context, step Step, projectPath string) *StepResult {
	requestID := uuid.NewString()
	result := &StepResult{Step: step, RequestID: requestID}

	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	name, args := e.command(step, projectPath)
	e.logger.Debug("running pipeline step",
		"step", step, "request_id", requestID, "command", name, "args", args)

	start := time.Now()
	run, err := e.runner.Run(ctx, name, args, e.workDir)
	result.Duration = time.Since(start)

	if run != nil {
		result.Output = run.Stdout
		result.ExitCode = run.ExitCode
		result.Metadata = e.parseStepOutput(step, run.Stdout)
		result.Metadata["request_id"] = requestID
	}
	if err != nil {
		result.Error = err.Error()
		e.logger.Error("pipeline step failed",
			"step", step, "request_id", requestID, "error", err)
		return result
	}
	if run.ExitCode != 0 {
		result.Error = fmt.Sprintf("%s exited with code %d: %s",
			step, run.ExitCode, firstLine(run.Stderr))
		e.logger.Error("pipeline step failed",
			"step", step, "request_id", requestID,
			"exit_code", run.ExitCode)
		return result
	}

	result.Success = true
	e.logger.Info("pipeline step completed",
		"step", step, "request_id", requestID, "duration", result.Duration)
	return result
}

// parseStepOutput builds step metadata from generic key/value lines plus the
// step-specific parsers.
func (e *Executor) parseStepOutput(step Step, output string) map[string]any {
	metadata := parseKeyValues(output)
	switch step {
	case StepQA:
		outcome := parseQAOutput(output)
		metadata["overall_score"] = outcome.OverallScore
		metadata["passed"] = outcome.Passed
		if len(outcome.CategoryScores) > 0 {
			metadata["category_scores"] = outcome.CategoryScores
		}
	case StepAutofix:
		metadata["fixes_applied"] = parseFixCount(output)
	}
	return metadata
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
