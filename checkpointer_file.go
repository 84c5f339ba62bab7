package reel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// CheckpointFileName is the checkpoint file written inside a project
// directory.
const CheckpointFileName = ".checkpoint.json"

// FileCheckpointer persists checkpoints to disk. Checkpoints for a known
// project land in the project directory itself; checkpoints taken before
// the project directory exists land as timestamped files in a fallback
// directory.
type FileCheckpointer struct {
	fallbackDir string
}

// NewFileCheckpointer creates a file-based checkpointer. An empty
// fallbackDir defaults to ~/.reel/checkpoints.
func NewFileCheckpointer(fallbackDir string) (*FileCheckpointer, error) {
	if fallbackDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		fallbackDir = filepath.Join(homeDir, ".reel", "checkpoints")
	}
	if err := os.MkdirAll(fallbackDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory %s: %w", fallbackDir, err)
	}
	return &FileCheckpointer{fallbackDir: fallbackDir}, nil
}

// FallbackDir returns the directory used for checkpoints saved before a
// project directory exists.
func (c *FileCheckpointer) FallbackDir() string {
	return c.fallbackDir
}

// SaveCheckpoint writes the checkpoint as indented JSON and returns the
// path written. The write is atomic: a temporary file is written, synced,
// and renamed over the destination, so a crash mid-save never corrupts an
// existing checkpoint.
func (c *FileCheckpointer) SaveCheckpoint(ctx context.Context, projectPath string, checkpoint *Checkpoint) (string, error) {
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path := c.savePath(projectPath, checkpoint.CheckpointTime)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	if err := atomicWriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	return path, nil
}

// LoadCheckpoint reads a checkpoint back. With a project path it reads the
// project's own checkpoint file; with an empty path it reads the newest
// checkpoint in the fallback directory. Returns ErrNoCheckpoint when
// nothing is there to load.
func (c *FileCheckpointer) LoadCheckpoint(ctx context.Context, projectPath string) (*Checkpoint, error) {
	path := filepath.Join(projectPath, CheckpointFileName)
	if projectPath == "" {
		newest, err := c.newestFallback()
		if err != nil {
			return nil, err
		}
		path = newest
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint %s: %w", path, err)
	}
	if err := checkpoint.Validate(); err != nil {
		return nil, err
	}
	return &checkpoint, nil
}

// DeleteCheckpoint removes a project's checkpoint file. Missing files are
// not an error.
func (c *FileCheckpointer) DeleteCheckpoint(ctx context.Context, projectPath string) error {
	err := os.Remove(filepath.Join(projectPath, CheckpointFileName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// CheckpointInfo summarizes one stored checkpoint for listings.
type CheckpointInfo struct {
	Path           string       `json:"path"`
	ProjectName    string       `json:"project_name,omitempty"`
	ProjectPath    string       `json:"project_path,omitempty"`
	CurrentStep    WorkflowStep `json:"current_step"`
	CompletedSteps int          `json:"completed_steps"`
	Errors         int          `json:"errors"`
	CheckpointTime time.Time    `json:"checkpoint_time"`
}

// List returns summaries of the checkpoints in the fallback directory,
// newest first. Unreadable files are skipped.
func (c *FileCheckpointer) List(ctx context.Context) ([]*CheckpointInfo, error) {
	entries, err := os.ReadDir(c.fallbackDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var infos []*CheckpointInfo
	for _, entry := range entries {
		if entry.IsDir() || !isFallbackCheckpoint(entry.Name()) {
			continue
		}
		info, err := c.summarize(filepath.Join(c.fallbackDir, entry.Name()))
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CheckpointTime.After(infos[j].CheckpointTime)
	})
	return infos, nil
}

// Summarize reads a single checkpoint file into a listing entry.
func (c *FileCheckpointer) Summarize(path string) (*CheckpointInfo, error) {
	return c.summarize(path)
}

func (c *FileCheckpointer) summarize(path string) (*CheckpointInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, err
	}
	info := &CheckpointInfo{
		Path:           path,
		CurrentStep:    checkpoint.CurrentStep,
		CompletedSteps: len(checkpoint.CompletedSteps),
		Errors:         len(checkpoint.ErrorHistory),
		CheckpointTime: checkpoint.CheckpointTime,
	}
	if checkpoint.ProjectData != nil {
		info.ProjectName = checkpoint.ProjectData.ProjectName
		info.ProjectPath = checkpoint.ProjectData.ProjectPath
	}
	return info, nil
}

func (c *FileCheckpointer) savePath(projectPath string, at time.Time) string {
	if projectPath != "" {
		return filepath.Join(projectPath, CheckpointFileName)
	}
	name := fmt.Sprintf("checkpoint-%s.json", at.UTC().Format("20060102-150405.000000"))
	return filepath.Join(c.fallbackDir, name)
}

// newestFallback finds the most recently written checkpoint file in the
// fallback directory.
func (c *FileCheckpointer) newestFallback() (string, error) {
	entries, err := os.ReadDir(c.fallbackDir)
	if err != nil {
		return "", fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	var newestPath string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !isFallbackCheckpoint(entry.Name()) {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if newestPath == "" || fi.ModTime().After(newestTime) {
			newestPath = filepath.Join(c.fallbackDir, entry.Name())
			newestTime = fi.ModTime()
		}
	}
	if newestPath == "" {
		return "", ErrNoCheckpoint
	}
	return newestPath, nil
}

func isFallbackCheckpoint(name string) bool {
	return strings.HasPrefix(name, "checkpoint-") && strings.HasSuffix(name, ".json")
}

// atomicWriteFile writes data to a temporary file in the destination
// directory, syncs it, and renames it into place.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
