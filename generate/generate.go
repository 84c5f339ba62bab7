// Package generate provides the default collaborator implementations the
// CLI wires into the orchestrator: a heuristic prompt parser, a project
// namer, a component builder, the on-disk project layout, an
// always-available placeholder image backend, and an artifact-level
// quality validator. Everything here is deterministic and local; none of
// it calls a model or a network service.
package generate

import "github.com/deepnoodle-ai/reel"

// Interface conformance checks.
var (
	_ reel.PromptParser       = (*Parser)(nil)
	_ reel.NameGenerator      = (*Namer)(nil)
	_ reel.ComponentGenerator = (*ComponentBuilder)(nil)
	_ reel.ProjectBuilder     = (*ProjectLayout)(nil)
	_ reel.ImageBackend       = (*PlaceholderImages)(nil)
	_ reel.QualityValidator   = (*ArtifactValidator)(nil)
)
