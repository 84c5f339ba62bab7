package reel

import (
	"context"
)

// Checkpointer persists workflow checkpoints keyed by project directory.
type Checkpointer interface {
	// SaveCheckpoint writes the checkpoint and returns the path it was
	// written to. An empty projectPath stores the checkpoint in a
	// fallback location.
	SaveCheckpoint(ctx context.Context, projectPath string, checkpoint *Checkpoint) (string, error)

	// LoadCheckpoint reads the checkpoint for a project directory.
	// Returns ErrNoCheckpoint when none exists.
	LoadCheckpoint(ctx context.Context, projectPath string) (*Checkpoint, error)

	// DeleteCheckpoint removes the checkpoint for a project directory.
	// Deleting a missing checkpoint is not an error.
	DeleteCheckpoint(ctx context.Context, projectPath string) error
}
