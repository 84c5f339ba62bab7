package generate

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/deepnoodle-ai/reel/pipeline"
	"github.com/deepnoodle-ai/reel/project"
)

// DefaultQualityThreshold is the passing score when none is configured.
const DefaultQualityThreshold = 3.0

// ArtifactValidator scores the final video from artifact-level facts: the
// exported file itself, a playback heuristic, and the presence of the
// shot images the components call for. Scores are on a 0 to 5 scale; it
// does not decode media or judge content.
type ArtifactValidator struct {
	threshold float64
}

// NewArtifactValidator creates a validator that passes videos scoring at
// least threshold. A non-positive threshold uses DefaultQualityThreshold.
func NewArtifactValidator(threshold float64) *ArtifactValidator {
	if threshold <= 0 {
		threshold = DefaultQualityThreshold
	}
	return &ArtifactValidator{threshold: threshold}
}

// ValidateFinalVideo scores the exported video. A missing or undersized
// file is an error; everything else is reflected in the category scores
// and issue list.
func (v *ArtifactValidator) ValidateFinalVideo(ctx context.Context, videoPath string, components *project.Components) (*project.QualityReport, error) {
	if videoPath == "" {
		return nil, fmt.Errorf("no video to validate")
	}

	report := &project.QualityReport{
		VideoPath:      videoPath,
		CategoryScores: map[string]float64{},
	}

	validation, err := pipeline.ValidateVideoFile(videoPath)
	if err != nil {
		return nil, err
	}

	fileScore := 5.0
	if !validation.Playable {
		fileScore = 2.0
		report.Issues = append(report.Issues, "video container was not recognized")
	} else if len(validation.Errors) > 0 {
		fileScore = 3.0
	}
	report.Issues = append(report.Issues, validation.Errors...)
	report.CategoryScores["file"] = fileScore

	playbackScore := 5.0
	if err := pipeline.VerifyPlayback(videoPath); err != nil {
		playbackScore = 1.0
		report.Issues = append(report.Issues, fmt.Sprintf("playback check failed: %v", err))
	}
	report.CategoryScores["playback"] = playbackScore

	if components != nil && len(components.Shots) > 0 {
		report.CategoryScores["assets"] = v.scoreAssets(videoPath, components, report)
	}

	total := 0.0
	for _, score := range report.CategoryScores {
		total += score
	}
	report.OverallScore = math.Round(total/float64(len(report.CategoryScores))*10) / 10
	report.Passed = report.OverallScore >= v.threshold
	return report, nil
}

// scoreAssets checks that the shot images the components call for exist
// in the project's images directory. The project directory is the parent
// of the exports directory holding the video.
func (v *ArtifactValidator) scoreAssets(videoPath string, components *project.Components, report *project.QualityReport) float64 {
	projectDir := filepath.Dir(filepath.Dir(videoPath))
	found := 0
	for _, shot := range components.Shots {
		name := fmt.Sprintf("scene_%02d_shot_%02d.png", shot.Scene, shot.Index)
		if _, err := os.Stat(filepath.Join(projectDir, "images", name)); err == nil {
			found++
		} else {
			report.Issues = append(report.Issues, "missing shot image "+name)
		}
	}
	return 5.0 * float64(found) / float64(len(components.Shots))
}
