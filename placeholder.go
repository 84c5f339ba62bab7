package reel

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"os"
)

// WritePlaceholderPNG writes a deterministic placeholder image: a solid
// fill derived from the label, framed by a contrasting border. Degraded
// mode uses these when no image backend is reachable, so the rest of the
// pipeline still has real files to work with.
func WritePlaceholderPNG(path, label string, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid placeholder size %dx%d", width, height)
	}

	fill := placeholderColor(label)
	border := color.RGBA{R: 255 - fill.R, G: 255 - fill.G, B: 255 - fill.B, A: 255}
	frame := 4
	if 2*frame >= width || 2*frame >= height {
		frame = 0
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := fill
			if x < frame || y < frame || x >= width-frame || y >= height-frame {
				c = border
			}
			img.SetRGBA(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create placeholder image: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode placeholder image: %w", err)
	}
	return f.Close()
}

// placeholderColor hashes the label into a mid-brightness color so distinct
// shots get visually distinct placeholders.
func placeholderColor(label string) color.RGBA {
	h := fnv.New32a()
	h.Write([]byte(label))
	v := h.Sum32()
	return color.RGBA{
		R: 64 + uint8(v%128),
		G: 64 + uint8((v>>8)%128),
		B: 64 + uint8((v>>16)%128),
		A: 255,
	}
}
