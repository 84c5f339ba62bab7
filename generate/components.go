package generate

import (
	"context"
	"fmt"
	"unicode"

	"github.com/deepnoodle-ai/reel/project"
)

// shotAngles cycle through the shots generated for each scene.
var shotAngles = []string{
	"wide establishing shot",
	"close-up detail shot",
	"slow tracking shot",
}

// ComponentBuilder expands a parsed prompt into script scenes, a shot
// list, narration cues, and image prompts. Output is deterministic for a
// given parsed prompt.
type ComponentBuilder struct{}

// NewComponentBuilder creates a ComponentBuilder.
func NewComponentBuilder() *ComponentBuilder {
	return &ComponentBuilder{}
}

// GenerateAll builds one scene per requested scene count, splitting the
// target duration evenly. Scenes longer than twenty seconds get a third
// shot.
func (g *ComponentBuilder) GenerateAll(ctx context.Context, parsed *project.ParsedPrompt) (*project.Components, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if parsed == nil || parsed.Topic == "" {
		return nil, fmt.Errorf("cannot generate components without a topic")
	}

	sceneCount := parsed.SceneCount
	if sceneCount < 1 {
		sceneCount = 1
	}
	duration := parsed.DurationSeconds
	if duration <= 0 {
		duration = 60
	}
	style := parsed.Style
	if style == "" {
		style = "cinematic"
	}
	perScene := float64(duration) / float64(sceneCount)

	components := &project.Components{}
	for i := 0; i < sceneCount; i++ {
		components.Script = append(components.Script, project.Scene{
			Index: i + 1,
			Title: sceneTitle(i, sceneCount, parsed.Topic),
			Description: fmt.Sprintf("Scene %d of %d exploring %s in a %s style.",
				i+1, sceneCount, parsed.Topic, style),
			DurationSeconds: perScene,
		})

		for s := 0; s < shotsForScene(perScene); s++ {
			angle := shotAngles[s%len(shotAngles)]
			prompt := fmt.Sprintf("%s, %s, %s style", parsed.Topic, angle, style)
			components.Shots = append(components.Shots, project.Shot{
				Scene:       i + 1,
				Index:       s + 1,
				Description: fmt.Sprintf("%s of %s", firstUpper(angle), parsed.Topic),
				ImagePrompt: prompt,
			})
			components.ImagePrompts = append(components.ImagePrompts, prompt)
		}

		components.Narration = append(components.Narration, project.NarrationCue{
			Scene: i + 1,
			Text:  narrationFor(i, sceneCount, parsed.Topic),
		})
	}
	return components, nil
}

// ValidateCoherence checks that the generated pieces agree with each
// other: scenes are numbered contiguously, every shot and narration cue
// references an existing scene, every scene has at least one shot, and
// the image prompt count matches the shot count.
func (g *ComponentBuilder) ValidateCoherence(components *project.Components) project.CoherenceReport {
	if components == nil {
		return project.CoherenceReport{Issues: []string{"no components generated"}}
	}
	var issues []string
	if len(components.Script) == 0 {
		issues = append(issues, "script has no scenes")
	}

	sceneSet := map[int]bool{}
	for i, scene := range components.Script {
		if scene.Index != i+1 {
			issues = append(issues, fmt.Sprintf("scene at position %d has index %d", i+1, scene.Index))
		}
		sceneSet[scene.Index] = true
	}

	shotsPerScene := map[int]int{}
	for _, shot := range components.Shots {
		if !sceneSet[shot.Scene] {
			issues = append(issues, fmt.Sprintf("shot %d references unknown scene %d", shot.Index, shot.Scene))
		}
		shotsPerScene[shot.Scene]++
	}
	for _, scene := range components.Script {
		if shotsPerScene[scene.Index] == 0 {
			issues = append(issues, fmt.Sprintf("scene %d has no shots", scene.Index))
		}
	}

	for _, cue := range components.Narration {
		if !sceneSet[cue.Scene] {
			issues = append(issues, fmt.Sprintf("narration cue references unknown scene %d", cue.Scene))
		}
	}

	if len(components.ImagePrompts) != len(components.Shots) {
		issues = append(issues, fmt.Sprintf("%d image prompts for %d shots",
			len(components.ImagePrompts), len(components.Shots)))
	}

	return project.CoherenceReport{Coherent: len(issues) == 0, Issues: issues}
}

func shotsForScene(sceneDuration float64) int {
	if sceneDuration > 20 {
		return 3
	}
	return 2
}

func sceneTitle(i, n int, topic string) string {
	switch {
	case n == 1:
		return firstUpper(topic)
	case i == 0:
		return "Introducing " + topic
	case i == n-1:
		return "Closing on " + topic
	default:
		return fmt.Sprintf("%s, part %d", firstUpper(topic), i+1)
	}
}

func narrationFor(i, n int, topic string) string {
	switch {
	case i == 0:
		return fmt.Sprintf("Our story begins with %s.", topic)
	case i == n-1:
		return fmt.Sprintf("And that is the story of %s.", topic)
	default:
		return fmt.Sprintf("There is more to %s than meets the eye.", topic)
	}
}

func firstUpper(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
