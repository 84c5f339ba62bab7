package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/gofrs/flock"

	"github.com/deepnoodle-ai/reel"
	"github.com/deepnoodle-ai/reel/generate"
)

// lockFileName guards a directory against concurrent runs.
const lockFileName = ".reel.lock"

// acquireLock takes the advisory lock for a directory, or fails when
// another reel process already holds it.
func acquireLock(dir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(dir, lockFileName))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lock.Path(), err)
	}
	if !held {
		return nil, fmt.Errorf("another reel run is already active in %s", dir)
	}
	return lock, nil
}

// buildOrchestrator wires the default collaborators into an orchestrator.
// The returned cleanup function releases the run log connection.
func buildOrchestrator(cfg *reel.Config, logger *slog.Logger) (*reel.Orchestrator, func(), error) {
	runLogger, closeLog, err := newRunLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	orch, err := reel.NewOrchestrator(reel.OrchestratorOptions{
		Config:     cfg,
		Logger:     logger,
		Parser:     generate.NewParser(),
		Namer:      generate.NewNamer(),
		Components: generate.NewComponentBuilder(),
		Builder:    generate.NewProjectLayout(),
		Images:     generate.NewPlaceholderImages(),
		Quality:    generate.NewArtifactValidator(cfg.Pipeline.QAThreshold),
		RunLogger:  runLogger,
		Hooks:      reel.NewConsoleHooks(),
	})
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return orch, closeLog, nil
}

// newRunLogger picks the run event sink: Postgres when a DSN is
// configured, JSONL files otherwise.
func newRunLogger(cfg *reel.Config) (reel.RunLogger, func(), error) {
	if dsn := cfg.RunLog.PostgresDSN; dsn != "" {
		logger, err := reel.OpenPostgresRunLogger(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open run log database: %w", err)
		}
		return logger, func() { _ = logger.Close() }, nil
	}
	return reel.NewFileRunLogger(cfg.Paths.RunLogDir), func() {}, nil
}

// showResult prints the run summary and converts non-completed outcomes
// into errors so the process exits non-zero.
func showResult(result *reel.Result, runErr error) error {
	if runErr != nil {
		return runErr
	}

	fmt.Println()
	color.White("Run %s finished in %v", result.RunID, result.Duration.Round(time.Millisecond))
	color.White("Status: %s", result.Status)
	if result.ProjectPath != "" {
		color.White("Project: %s", result.ProjectPath)
	}
	if result.VideoPath != "" {
		color.White("Video: %s", result.VideoPath)
	}
	if result.Quality != nil {
		line := color.Green
		if !result.Quality.Passed {
			line = color.Yellow
		}
		line("Quality: %.1f/5.0", result.Quality.OverallScore)
		for _, issue := range result.Quality.Issues {
			color.Yellow("  issue: %s", issue)
		}
	}
	for _, warning := range result.Warnings {
		color.Yellow("Warning: %s", warning)
	}
	for _, msg := range result.Errors {
		color.Red("Error: %s", msg)
	}

	switch result.Status {
	case reel.RunStatusCompleted:
		color.Green("Project generated successfully!")
		return nil
	case reel.RunStatusPaused:
		color.Yellow("Workflow paused at %s.", result.StoppedAt.DisplayName())
		if result.CheckpointPath != "" {
			color.Yellow("Checkpoint saved to %s", result.CheckpointPath)
		}
		if result.ProjectPath != "" {
			color.Yellow("Resume with: reel resume %s", result.ProjectPath)
		}
		showCorrectiveActions(result)
		return fmt.Errorf("run paused at %s", result.StoppedAt)
	case reel.RunStatusCancelled:
		return context.Canceled
	default:
		showCorrectiveActions(result)
		return fmt.Errorf("run failed at %s", result.StoppedAt)
	}
}

func showCorrectiveActions(result *reel.Result) {
	if len(result.Errors) == 0 {
		return
	}
	errType, _ := reel.Classify(errors.New(result.Errors[0]))
	actions := reel.CorrectiveActions(errType)
	if len(actions) == 0 {
		return
	}
	color.Cyan("Suggested actions:")
	for _, action := range actions {
		fmt.Printf("  - %s\n", action)
	}
}
