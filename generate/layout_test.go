package generate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/deepnoodle-ai/reel/project"
)

func TestCreateStructureAndSaveAll(t *testing.T) {
	layout := NewProjectLayout()
	ctx := context.Background()
	root := t.TempDir()

	builder := NewComponentBuilder()
	components, err := builder.GenerateAll(ctx, &project.ParsedPrompt{
		Topic: "coral reefs", DurationSeconds: 40, SceneCount: 2,
	})
	require.NoError(t, err)

	path, err := layout.CreateStructure(ctx, root, "coral-reefs-ab12cd34", components)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "coral-reefs-ab12cd34"), path)
	for _, dir := range []string{"script", "images", "exports", "audio"} {
		info, err := os.Stat(filepath.Join(path, dir))
		require.NoError(t, err)
		require.True(t, info.IsDir())
	}

	require.NoError(t, layout.SaveAll(ctx, path, components))
	require.FileExists(t, filepath.Join(path, "project.yaml"))
	require.FileExists(t, filepath.Join(path, "script", "script.yaml"))
	require.FileExists(t, filepath.Join(path, "script", "shots.yaml"))

	report := layout.ValidateStructure(path)
	require.True(t, report.Valid, "errors: %v", report.Errors)
	require.Empty(t, report.Errors)
}

func TestSaveAllRoundTrip(t *testing.T) {
	layout := NewProjectLayout()
	ctx := context.Background()

	components := &project.Components{
		Script:       []project.Scene{{Index: 1, Title: "The Reef", DurationSeconds: 45}},
		Shots:        []project.Shot{{Scene: 1, Index: 1, Description: "wide shot", ImagePrompt: "a coral reef"}},
		Narration:    []project.NarrationCue{{Scene: 1, Text: "Beneath the waves."}},
		ImagePrompts: []string{"a coral reef"},
	}
	path, err := layout.CreateStructure(ctx, t.TempDir(), "reef", components)
	require.NoError(t, err)
	require.NoError(t, layout.SaveAll(ctx, path, components))

	var script scriptFile
	raw, err := os.ReadFile(filepath.Join(path, "script", ScriptFileName))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &script))
	require.Equal(t, components.Script, script.Scenes)
	require.Equal(t, components.Narration, script.Narration)

	var shots shotsFile
	raw, err = os.ReadFile(filepath.Join(path, "script", ShotsFileName))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &shots))
	require.Equal(t, components.Shots, shots.Shots)
	require.Equal(t, components.ImagePrompts, shots.ImagePrompts)

	var manifest projectManifest
	raw, err = os.ReadFile(filepath.Join(path, ProjectManifestName))
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(raw, &manifest))
	require.Equal(t, project.SchemaVersion, manifest.SchemaVersion)
	require.Equal(t, 1, manifest.SceneCount)
	require.Equal(t, 1, manifest.ShotCount)
	require.InDelta(t, 45.0, manifest.TotalDurationSeconds, 0.001)
	require.False(t, manifest.CreatedAt.IsZero())
}

func TestCreateStructureRequiresName(t *testing.T) {
	layout := NewProjectLayout()

	_, err := layout.CreateStructure(context.Background(), t.TempDir(), "", nil)
	require.Error(t, err)
}

func TestSaveAllRequiresComponents(t *testing.T) {
	layout := NewProjectLayout()

	require.Error(t, layout.SaveAll(context.Background(), t.TempDir(), nil))
}

func TestValidateStructureReportsMissingEntries(t *testing.T) {
	layout := NewProjectLayout()

	report := layout.ValidateStructure(t.TempDir())
	require.False(t, report.Valid)
	require.Contains(t, report.Errors, "missing directory script/")
	require.Contains(t, report.Errors, "missing file project.yaml")
}
