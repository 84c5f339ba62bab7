package reel

import (
	"context"

	"github.com/deepnoodle-ai/reel/project"
)

// The orchestrator drives the workflow through these collaborator
// interfaces. Production wiring supplies the implementations from the
// generate package; tests substitute fakes.

// PromptParser turns free-form prompt text into a structured request.
type PromptParser interface {
	// Parse extracts a structured prompt from raw text.
	Parse(ctx context.Context, text string) (*project.ParsedPrompt, error)

	// Validate reports whether a parsed prompt is usable, with reasons
	// when it is not.
	Validate(parsed *project.ParsedPrompt) (bool, []string)

	// FillDefaults completes missing fields with sensible defaults.
	FillDefaults(parsed *project.ParsedPrompt) *project.ParsedPrompt
}

// NameGenerator produces a filesystem-safe project name.
type NameGenerator interface {
	Generate(ctx context.Context, parsed *project.ParsedPrompt) (string, error)
}

// ComponentGenerator expands a parsed prompt into project components:
// script, shot list, narration, and image prompts.
type ComponentGenerator interface {
	GenerateAll(ctx context.Context, parsed *project.ParsedPrompt) (*project.Components, error)
	ValidateCoherence(components *project.Components) project.CoherenceReport
}

// ProjectBuilder creates and validates the on-disk project structure.
type ProjectBuilder interface {
	// CreateStructure creates the project directory tree under root and
	// returns the project path.
	CreateStructure(ctx context.Context, root, name string, components *project.Components) (string, error)

	// SaveAll persists the components into an existing project directory.
	SaveAll(ctx context.Context, path string, components *project.Components) error

	// ValidateStructure checks that a project directory has the expected
	// entries.
	ValidateStructure(path string) project.StructureReport
}

// ImageBackend renders the master sheet and per-shot images. Backends may
// be remote; CheckAvailability gates degraded mode.
type ImageBackend interface {
	CheckAvailability(ctx context.Context) bool
	GenerateMasterSheet(ctx context.Context, path string, components *project.Components) ([]string, error)
	GenerateAllShots(ctx context.Context, path string, components *project.Components) ([]string, error)
}

// QualityValidator scores the final rendered video.
type QualityValidator interface {
	ValidateFinalVideo(ctx context.Context, videoPath string, components *project.Components) (*project.QualityReport, error)
}
