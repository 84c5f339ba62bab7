package generate

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/deepnoodle-ai/reel/project"
)

// Limits applied by Validate.
const (
	maxDurationSeconds = 600
	maxSceneCount      = 12
	maxTopicWords      = 8
	maxKeywords        = 8
)

var (
	minutesRe    = regexp.MustCompile(`(\d+)\s*(?:minutes?|mins?)\b`)
	secondsRe    = regexp.MustCompile(`(\d+)\s*(?:seconds?|secs?)\b`)
	sceneCountRe = regexp.MustCompile(`(\d+)\s*(?:scenes?|parts?|chapters?)\b`)
	aspectRe     = regexp.MustCompile(`\b(16:9|9:16|1:1)\b`)
	topicRe      = regexp.MustCompile(`(?:video|clip|short|film)\s+(?:about|of|on|showing)\s+(.+)`)
)

// knownStyles are recognized style words, checked in order; the first one
// present in the prompt wins.
var knownStyles = []string{
	"cinematic", "documentary", "anime", "cartoon", "minimalist",
	"retro", "noir", "vibrant", "corporate", "playful",
}

// stopWords are excluded from extracted keywords: prompt scaffolding,
// parameter words the regexes already consume, and common function words.
var stopWords = map[string]bool{
	"about": true, "after": true, "aspect": true, "before": true,
	"being": true, "both": true, "chapter": true, "chapters": true,
	"clip": true, "clips": true, "could": true, "create": true,
	"creating": true, "film": true, "films": true, "from": true,
	"generate": true, "generating": true, "have": true, "into": true,
	"lasting": true, "make": true, "making": true, "minute": true,
	"minutes": true, "need": true, "needs": true, "over": true,
	"part": true, "parts": true, "please": true, "portrait": true,
	"ratio": true, "scene": true, "scenes": true, "second": true,
	"seconds": true, "short": true, "shorts": true, "should": true,
	"show": true, "showing": true, "shows": true, "square": true,
	"style": true, "styled": true, "that": true, "their": true,
	"them": true, "then": true, "there": true, "these": true,
	"this": true, "those": true, "vertical": true, "video": true,
	"videos": true, "want": true, "wants": true, "what": true,
	"when": true, "where": true, "which": true, "while": true,
	"will": true, "with": true, "would": true,
}

var trailingFiller = map[string]bool{
	"a": true, "an": true, "and": true, "as": true, "at": true,
	"by": true, "for": true, "in": true, "lasting": true, "of": true,
	"on": true, "or": true, "over": true, "the": true, "to": true,
	"under": true, "with": true,
}

var leadingFiller = map[string]bool{
	"a": true, "an": true, "the": true,
}

const wordPunctuation = `.,!?;:'"()`

// Parser extracts a structured prompt from free-form text using simple
// pattern heuristics.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse extracts the topic, style, target duration, aspect ratio, and
// scene count hints from text. Fields with no hint in the text are left
// at their zero values; call FillDefaults to complete them.
func (p *Parser) Parse(ctx context.Context, text string) (*project.ParsedPrompt, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("prompt text is empty")
	}
	lower := strings.ToLower(trimmed)

	parsed := &project.ParsedPrompt{RawText: trimmed}

	duration := 0
	if m := minutesRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		duration += n * 60
	}
	if m := secondsRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		duration += n
	}
	parsed.DurationSeconds = duration

	if m := sceneCountRe.FindStringSubmatch(lower); m != nil {
		parsed.SceneCount, _ = strconv.Atoi(m[1])
	}

	parsed.AspectRatio = detectAspect(lower)

	for _, style := range knownStyles {
		if strings.Contains(lower, style) {
			parsed.Style = style
			break
		}
	}

	parsed.Topic = extractTopic(lower)
	parsed.Keywords = extractKeywords(lower)
	return parsed, nil
}

// Validate reports whether a parsed prompt is usable, with reasons when
// it is not.
func (p *Parser) Validate(parsed *project.ParsedPrompt) (bool, []string) {
	if parsed == nil {
		return false, []string{"no parsed prompt"}
	}
	var problems []string
	if parsed.Topic == "" {
		problems = append(problems, "no topic could be extracted")
	}
	if parsed.DurationSeconds < 0 {
		problems = append(problems, "duration is negative")
	}
	if parsed.DurationSeconds > maxDurationSeconds {
		problems = append(problems, fmt.Sprintf("duration %ds exceeds the %ds maximum",
			parsed.DurationSeconds, maxDurationSeconds))
	}
	if parsed.SceneCount < 0 {
		problems = append(problems, "scene count is negative")
	}
	if parsed.SceneCount > maxSceneCount {
		problems = append(problems, fmt.Sprintf("scene count %d exceeds the %d maximum",
			parsed.SceneCount, maxSceneCount))
	}
	return len(problems) == 0, problems
}

// FillDefaults returns a copy of parsed with missing fields completed:
// cinematic style, 60 seconds, 16:9, four scenes, and a topic derived
// from the raw text when extraction found none.
func (p *Parser) FillDefaults(parsed *project.ParsedPrompt) *project.ParsedPrompt {
	out := project.ParsedPrompt{}
	if parsed != nil {
		out = *parsed
	}
	if out.Topic == "" {
		out.Topic = extractTopic(strings.ToLower(out.RawText))
	}
	if out.Topic == "" {
		out.Topic = "untitled project"
	}
	if out.Style == "" {
		out.Style = "cinematic"
	}
	if out.DurationSeconds <= 0 {
		out.DurationSeconds = 60
	}
	if out.AspectRatio == "" {
		out.AspectRatio = "16:9"
	}
	if out.SceneCount <= 0 {
		out.SceneCount = 4
	}
	return &out
}

func detectAspect(lower string) string {
	if m := aspectRe.FindStringSubmatch(lower); m != nil {
		return m[1]
	}
	if strings.Contains(lower, "vertical") || strings.Contains(lower, "portrait") {
		return "9:16"
	}
	if strings.Contains(lower, "square") {
		return "1:1"
	}
	return ""
}

// extractTopic finds the subject of the prompt: the text after phrases
// like "video about", with parameter phrases and filler words stripped.
func extractTopic(lower string) string {
	tail := lower
	if m := topicRe.FindStringSubmatch(lower); m != nil {
		tail = m[1]
	}
	for _, re := range []*regexp.Regexp{minutesRe, secondsRe, sceneCountRe, aspectRe} {
		tail = re.ReplaceAllString(tail, "")
	}

	var words []string
	for _, word := range strings.Fields(tail) {
		word = strings.Trim(word, wordPunctuation)
		if word != "" {
			words = append(words, word)
		}
	}
	for len(words) > 0 && trailingFiller[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	for len(words) > 0 && leadingFiller[words[0]] {
		words = words[1:]
	}
	if len(words) > maxTopicWords {
		words = words[:maxTopicWords]
	}
	return strings.Join(words, " ")
}

func extractKeywords(lower string) []string {
	seen := map[string]bool{}
	var keywords []string
	for _, word := range strings.Fields(lower) {
		word = strings.Trim(word, wordPunctuation)
		if len(word) <= 3 || stopWords[word] || seen[word] {
			continue
		}
		if strings.ContainsAny(word, "0123456789") {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
