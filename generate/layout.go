package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/reel/project"
)

// projectDirs are the directories every project contains.
var projectDirs = []string{"script", "images", "exports", "audio"}

// Files written by SaveAll. The manifest sits at the project root; the
// script and shot list live under script/.
const (
	ProjectManifestName = "project.yaml"
	ScriptFileName      = "script.yaml"
	ShotsFileName       = "shots.yaml"
)

// ProjectLayout creates and validates the on-disk project structure and
// persists components as YAML.
type ProjectLayout struct{}

// NewProjectLayout creates a ProjectLayout.
func NewProjectLayout() *ProjectLayout {
	return &ProjectLayout{}
}

// projectManifest is the project.yaml payload.
type projectManifest struct {
	SchemaVersion        int       `yaml:"schema_version"`
	CreatedAt            time.Time `yaml:"created_at"`
	SceneCount           int       `yaml:"scene_count"`
	ShotCount            int       `yaml:"shot_count"`
	TotalDurationSeconds float64   `yaml:"total_duration_seconds"`
}

type scriptFile struct {
	Scenes    []project.Scene        `yaml:"scenes"`
	Narration []project.NarrationCue `yaml:"narration,omitempty"`
}

type shotsFile struct {
	Shots        []project.Shot `yaml:"shots"`
	ImagePrompts []string       `yaml:"image_prompts,omitempty"`
}

// CreateStructure creates the project directory tree under root and
// returns the project path. Existing directories are reused.
func (l *ProjectLayout) CreateStructure(ctx context.Context, root, name string, components *project.Components) (string, error) {
	if name == "" {
		return "", fmt.Errorf("project name is empty")
	}
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create project directory: %w", err)
	}
	for _, dir := range projectDirs {
		if err := os.MkdirAll(filepath.Join(path, dir), 0755); err != nil {
			return "", fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}
	return path, nil
}

// SaveAll writes the manifest, script, and shot list into an existing
// project directory.
func (l *ProjectLayout) SaveAll(ctx context.Context, path string, components *project.Components) error {
	if components == nil {
		return fmt.Errorf("no components to save")
	}

	total := 0.0
	for _, scene := range components.Script {
		total += scene.DurationSeconds
	}
	manifest := projectManifest{
		SchemaVersion:        project.SchemaVersion,
		CreatedAt:            time.Now().UTC(),
		SceneCount:           len(components.Script),
		ShotCount:            len(components.Shots),
		TotalDurationSeconds: total,
	}

	if err := writeYAML(filepath.Join(path, ProjectManifestName), manifest); err != nil {
		return err
	}
	if err := writeYAML(filepath.Join(path, "script", ScriptFileName), scriptFile{
		Scenes:    components.Script,
		Narration: components.Narration,
	}); err != nil {
		return err
	}
	return writeYAML(filepath.Join(path, "script", ShotsFileName), shotsFile{
		Shots:        components.Shots,
		ImagePrompts: components.ImagePrompts,
	})
}

// ValidateStructure checks that a project directory has the expected
// directories and saved files.
func (l *ProjectLayout) ValidateStructure(path string) project.StructureReport {
	var problems []string
	for _, dir := range projectDirs {
		info, err := os.Stat(filepath.Join(path, dir))
		if err != nil || !info.IsDir() {
			problems = append(problems, fmt.Sprintf("missing directory %s/", dir))
		}
	}
	for _, file := range []string{
		ProjectManifestName,
		filepath.Join("script", ScriptFileName),
		filepath.Join("script", ShotsFileName),
	} {
		info, err := os.Stat(filepath.Join(path, file))
		if err != nil || info.IsDir() {
			problems = append(problems, fmt.Sprintf("missing file %s", file))
		}
	}
	return project.StructureReport{Valid: len(problems) == 0, Errors: problems}
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
