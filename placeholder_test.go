package reel

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWritePlaceholderPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, WritePlaceholderPNG(path, "a castle at dusk", 64, 36))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 36, img.Bounds().Dy())
}

func TestWritePlaceholderPNGDeterministic(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.png")
	second := filepath.Join(dir, "b.png")
	require.NoError(t, WritePlaceholderPNG(first, "same label", 32, 32))
	require.NoError(t, WritePlaceholderPNG(second, "same label", 32, 32))

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestWritePlaceholderPNGRejectsBadSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.png")
	require.Error(t, WritePlaceholderPNG(path, "label", 0, 36))
	require.Error(t, WritePlaceholderPNG(path, "label", 64, -1))
}

func TestWritePlaceholderPNGTinyImage(t *testing.T) {
	// Dimensions smaller than twice the border must still work.
	path := filepath.Join(t.TempDir(), "tiny.png")
	require.NoError(t, WritePlaceholderPNG(path, "tiny", 3, 3))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	require.Equal(t, 3, img.Bounds().Dx())
}
