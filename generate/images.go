package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepnoodle-ai/reel"
	"github.com/deepnoodle-ai/reel/project"
)

// Master sheet and shot frame sizes, both 16:9.
const (
	sheetWidth  = 1536
	sheetHeight = 864
	shotWidth   = 1024
	shotHeight  = 576
)

// PlaceholderImages is an ImageBackend that renders deterministic local
// placeholder images. It is always available and needs no network, which
// makes it the backend of last resort.
type PlaceholderImages struct{}

// NewPlaceholderImages creates a PlaceholderImages backend.
func NewPlaceholderImages() *PlaceholderImages {
	return &PlaceholderImages{}
}

// CheckAvailability always reports true.
func (b *PlaceholderImages) CheckAvailability(ctx context.Context) bool {
	return true
}

// GenerateMasterSheet writes images/master_sheet.png, labeled with the
// first scene title when one exists.
func (b *PlaceholderImages) GenerateMasterSheet(ctx context.Context, path string, components *project.Components) ([]string, error) {
	imagesDir := filepath.Join(path, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, err
	}
	label := "master sheet"
	if components != nil && len(components.Script) > 0 {
		label = components.Script[0].Title
	}
	sheetPath := filepath.Join(imagesDir, "master_sheet.png")
	if err := reel.WritePlaceholderPNG(sheetPath, label, sheetWidth, sheetHeight); err != nil {
		return nil, fmt.Errorf("failed to render master sheet: %w", err)
	}
	return []string{sheetPath}, nil
}

// GenerateAllShots writes one images/scene_XX_shot_XX.png per shot,
// labeled with the shot's image prompt.
func (b *PlaceholderImages) GenerateAllShots(ctx context.Context, path string, components *project.Components) ([]string, error) {
	if components == nil || len(components.Shots) == 0 {
		return nil, nil
	}
	imagesDir := filepath.Join(path, "images")
	if err := os.MkdirAll(imagesDir, 0755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(components.Shots))
	for _, shot := range components.Shots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("scene_%02d_shot_%02d.png", shot.Scene, shot.Index)
		shotPath := filepath.Join(imagesDir, name)
		if err := reel.WritePlaceholderPNG(shotPath, shot.ImagePrompt, shotWidth, shotHeight); err != nil {
			return nil, fmt.Errorf("failed to render shot image %s: %w", name, err)
		}
		paths = append(paths, shotPath)
	}
	return paths, nil
}
