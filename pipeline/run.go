package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrQAThresholdNotMet indicates the autofix loop exhausted its iterations
// without reaching the quality threshold.
var ErrQAThresholdNotMet = errors.New("qa threshold not met")

// Result is the outcome of a full pipeline run.
type Result struct {
	Success       bool           `json:"success"`
	VideoPath     string         `json:"video_path,omitempty"`
	QAMetadata    map[string]any `json:"qa_metadata,omitempty"`
	Steps         []*StepResult  `json:"steps"`
	TotalDuration time.Duration  `json:"total_duration"`
	Errors        []string       `json:"errors,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`

	// Err is the terminal failure, when there was one, for errors.Is
	// checks. Its text is also present in Errors.
	Err error `json:"-"`
}

func newResult() *Result {
	return &Result{Metadata: map[string]any{}}
}

func (r *Result) fail(err error) *Result {
	r.Success = false
	r.Err = err
	r.Errors = append(r.Errors, err.Error())
	return r
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ExecuteFullPipeline runs GRID through EXPORT in order without the autofix
// loop. GRID and PROMOTE are load-bearing and abort the run when they fail;
// later step failures accumulate as warnings. The produced video is located
// and validated at the end.
func (e *Executor) ExecuteFullPipeline(ctx context.Context, projectPath string) *Result {
	result := newResult()
	start := time.Now()
	defer func() { result.TotalDuration = time.Since(start) }()

	for _, step := range fullPipelineOrder {
		stepResult := e.ExecuteStep(ctx, step, projectPath)
		result.Steps = append(result.Steps, stepResult)

		if err := ctx.Err(); err != nil {
			return result.fail(err)
		}
		if !stepResult.Success {
			if step == StepGrid || step == StepPromote {
				return result.fail(fmt.Errorf("pipeline step %s failed: %s", step, stepResult.Error))
			}
			result.warn("pipeline step %s failed: %s", step, stepResult.Error)
			continue
		}
		if step == StepQA {
			result.QAMetadata = stepResult.Metadata
		}
	}

	return e.finishWithVideo(result, projectPath)
}

// ExecuteWithAutofix runs the pipeline with the quality gate: after REFINE,
// QA must report a score at or above the threshold with a PASSED status, or
// AUTOFIX runs and QA is re-checked, up to the configured iteration bound.
func (e *Executor) ExecuteWithAutofix(ctx context.Context, projectPath string) *Result {
	result := newResult()
	start := time.Now()
	defer func() { result.TotalDuration = time.Since(start) }()

	for _, step := range []Step{StepGrid, StepPromote, StepRefine} {
		stepResult := e.ExecuteStep(ctx, step, projectPath)
		result.Steps = append(result.Steps, stepResult)

		if err := ctx.Err(); err != nil {
			return result.fail(err)
		}
		if !stepResult.Success {
			if step == StepRefine {
				result.warn("pipeline step %s failed: %s", step, stepResult.Error)
				continue
			}
			return result.fail(fmt.Errorf("pipeline step %s failed: %s", step, stepResult.Error))
		}
	}

	outcome, qaResult, err := e.runQA(ctx, result, projectPath)
	if err != nil {
		return result.fail(err)
	}

	iterations := 0
	var history []map[string]any
	for !qaPasses(outcome, e.qaThreshold) {
		if iterations >= e.maxIterations {
			result.Metadata["autofix_iterations"] = iterations
			result.Metadata["autofix_history"] = history
			return result.fail(fmt.Errorf(
				"%w after %d autofix iterations: final score %.1f below threshold %.1f",
				ErrQAThresholdNotMet, iterations, outcome.OverallScore, e.qaThreshold))
		}

		beforeScore := outcome.OverallScore
		fixResult := e.ExecuteStep(ctx, StepAutofix, projectPath)
		result.Steps = append(result.Steps, fixResult)
		iterations++

		if err := ctx.Err(); err != nil {
			return result.fail(err)
		}
		if !fixResult.Success {
			return result.fail(fmt.Errorf("pipeline step %s failed: %s", StepAutofix, fixResult.Error))
		}

		outcome, qaResult, err = e.runQA(ctx, result, projectPath)
		if err != nil {
			return result.fail(err)
		}

		history = append(history, map[string]any{
			"iteration":     iterations,
			"before_score":  beforeScore,
			"after_score":   outcome.OverallScore,
			"fixes_applied": fixResult.Metadata["fixes_applied"],
		})
		e.logger.Info("autofix iteration finished",
			"iteration", iterations,
			"before_score", beforeScore,
			"after_score", outcome.OverallScore)
	}

	result.QAMetadata = qaResult.Metadata
	result.Metadata["autofix_iterations"] = iterations
	if len(history) > 0 {
		result.Metadata["autofix_history"] = history
	}

	for _, step := range []Step{StepVideoPlan, StepExport} {
		stepResult := e.ExecuteStep(ctx, step, projectPath)
		result.Steps = append(result.Steps, stepResult)

		if err := ctx.Err(); err != nil {
			return result.fail(err)
		}
		if !stepResult.Success {
			result.warn("pipeline step %s failed: %s", step, stepResult.Error)
		}
	}

	return e.finishWithVideo(result, projectPath)
}

// runQA executes the QA step and parses its verdict. A subprocess-level
// failure makes the quality gate unevaluable and is returned as an error.
func (e *Executor) runQA(ctx context.Context, result *Result, projectPath string) (qaOutcome, *StepResult, error) {
	stepResult := e.ExecuteStep(ctx, StepQA, projectPath)
	result.Steps = append(result.Steps, stepResult)

	if err := ctx.Err(); err != nil {
		return qaOutcome{}, stepResult, err
	}
	if !stepResult.Success {
		return qaOutcome{}, stepResult, fmt.Errorf("pipeline step %s failed: %s", StepQA, stepResult.Error)
	}
	return parseQAOutput(stepResult.Output), stepResult, nil
}

func qaPasses(outcome qaOutcome, threshold float64) bool {
	return outcome.ScoreFound && outcome.OverallScore >= threshold && outcome.Passed
}

// finishWithVideo locates the exported video, validates it, and settles the
// final success flag.
func (e *Executor) finishWithVideo(result *Result, projectPath string) *Result {
	videoPath := locateVideo(projectPath, result.Steps)
	if videoPath == "" {
		return result.fail(fmt.Errorf("pipeline produced no video file under %s",
			filepath.Join(projectPath, "exports")))
	}

	validation, err := ValidateVideoFile(videoPath)
	if err != nil {
		return result.fail(fmt.Errorf("video validation failed: %w", err))
	}
	result.VideoPath = videoPath
	for _, issue := range validation.Errors {
		result.warn("video validation: %s", issue)
	}
	if !validation.Playable {
		result.warn("video has no recognized container signature: %s", videoPath)
	}

	result.Success = true
	return result
}

// locateVideo finds the exported video from step metadata, falling back to
// the most recently modified .mp4 under the project's exports directory.
func locateVideo(projectPath string, steps []*StepResult) string {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Step != StepExport {
			continue
		}
		for _, key := range []string{"video_path", "output_path", "output_file", "video"} {
			if value, ok := steps[i].Metadata[key].(string); ok && value != "" {
				if filepath.IsAbs(value) {
					return value
				}
				return filepath.Join(projectPath, value)
			}
		}
	}
	return newestVideo(filepath.Join(projectPath, "exports"))
}

func newestVideo(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(entry.Name()), ".mp4") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = filepath.Join(dir, entry.Name())
			newestMod = info.ModTime()
		}
	}
	return newest
}
