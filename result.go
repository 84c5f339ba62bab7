package reel

import (
	"time"

	"github.com/deepnoodle-ai/reel/project"
)

// Result is the final report of a workflow run.
type Result struct {
	Success        bool                   `json:"success"`
	RunID          string                 `json:"run_id"`
	Status         RunStatus              `json:"status"`
	StoppedAt      WorkflowStep           `json:"stopped_at,omitempty"`
	ProjectName    string                 `json:"project_name,omitempty"`
	ProjectPath    string                 `json:"project_path,omitempty"`
	VideoPath      string                 `json:"video_path,omitempty"`
	CheckpointPath string                 `json:"checkpoint_path,omitempty"`
	Quality        *project.QualityReport `json:"quality,omitempty"`
	Errors         []string               `json:"errors,omitempty"`
	Warnings       []string               `json:"warnings,omitempty"`
	Duration       time.Duration          `json:"duration"`
}

func (r *Result) addError(err error) {
	if err != nil {
		r.Errors = append(r.Errors, err.Error())
	}
}

func (r *Result) warn(msg string) {
	if msg != "" {
		r.Warnings = append(r.Warnings, msg)
	}
}
