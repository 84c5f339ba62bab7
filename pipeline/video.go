package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// minVideoSize is the smallest plausible video artifact. Anything under this
// is treated as a failed export rather than a video.
const minVideoSize = 1024

// VideoValidation describes the artifact-level checks on an exported video.
type VideoValidation struct {
	Path      string   `json:"path"`
	SizeBytes int64    `json:"size_bytes"`
	Playable  bool     `json:"playable"`
	Format    string   `json:"format,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

var knownVideoExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
	".mkv":  true,
}

// ValidateVideoFile checks that a video artifact exists, has a plausible
// size, and starts with a known container signature. A missing, unreadable,
// or undersized file is an error. An unrecognized signature only clears the
// playable flag, and an unexpected extension is recorded without failing
// validation on its own.
func ValidateVideoFile(path string) (*VideoValidation, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("video file does not exist: %s", path)
	}
	validation := &VideoValidation{Path: path, SizeBytes: info.Size()}

	if info.Size() < minVideoSize {
		return nil, fmt.Errorf("video file too small (%d bytes, need at least %d): %s",
			info.Size(), minVideoSize, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("video file is not readable: %w", err)
	}
	defer file.Close()

	header := make([]byte, 16)
	if _, err := file.Read(header); err != nil {
		return nil, fmt.Errorf("failed to read video header: %w", err)
	}

	validation.Format = detectContainer(header)
	validation.Playable = validation.Format != ""

	ext := strings.ToLower(filepath.Ext(path))
	if !knownVideoExtensions[ext] {
		validation.Errors = append(validation.Errors,
			fmt.Sprintf("unexpected video extension %q", ext))
	}
	return validation, nil
}

// detectContainer identifies the container from the file's leading bytes.
func detectContainer(header []byte) string {
	if len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")) {
		return "mp4"
	}
	if len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) &&
		bytes.Equal(header[8:12], []byte("AVI ")) {
		return "avi"
	}
	if len(header) >= 4 && bytes.Equal(header[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}) {
		return "mkv"
	}
	return ""
}

// VerifyPlayback is a best-effort readability check: the file can be opened
// and has content at its start and midpoint. It deliberately does not decode
// media.
func VerifyPlayback(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open video: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat video: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("video is empty: %s", path)
	}

	buf := make([]byte, 1)
	if _, err := file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("cannot read video start: %w", err)
	}
	if _, err := file.ReadAt(buf, info.Size()/2); err != nil {
		return fmt.Errorf("cannot read video midpoint: %w", err)
	}
	return nil
}
