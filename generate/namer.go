package generate

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/deepnoodle-ai/reel/project"
)

const (
	maxSlugLength    = 40
	nameSuffixLength = 8
)

// Namer derives a filesystem-safe project name from the parsed topic. A
// short random suffix keeps repeated topics from colliding on disk.
type Namer struct{}

// NewNamer creates a Namer.
func NewNamer() *Namer {
	return &Namer{}
}

// Generate returns "<topic-slug>-<suffix>". The slug is deterministic for
// a given topic; the suffix is eight hex characters of a fresh UUID.
func (n *Namer) Generate(ctx context.Context, parsed *project.ParsedPrompt) (string, error) {
	topic := ""
	if parsed != nil {
		topic = parsed.Topic
	}
	slug := Slugify(topic)
	if slug == "" {
		slug = "untitled"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:nameSuffixLength]
	return slug + "-" + suffix, nil
}

// Slugify lowercases text and reduces it to hyphen-separated alphanumeric
// runs, truncated to a filesystem-friendly length.
func Slugify(text string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(text) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pendingHyphen = b.Len() > 0
			continue
		}
		if pendingHyphen {
			b.WriteByte('-')
			pendingHyphen = false
		}
		b.WriteRune(r)
	}
	slug := b.String()
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}
