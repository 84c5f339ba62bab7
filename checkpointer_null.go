package reel

import "context"

// NullCheckpointer is a no-op implementation used when checkpointing is
// disabled.
type NullCheckpointer struct{}

func NewNullCheckpointer() *NullCheckpointer {
	return &NullCheckpointer{}
}

func (c *NullCheckpointer) SaveCheckpoint(ctx context.Context, projectPath string, checkpoint *Checkpoint) (string, error) {
	return "", nil
}

func (c *NullCheckpointer) LoadCheckpoint(ctx context.Context, projectPath string) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (c *NullCheckpointer) DeleteCheckpoint(ctx context.Context, projectPath string) error {
	return nil
}
