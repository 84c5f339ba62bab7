// Package project defines the typed payload a workflow run accumulates as it
// moves through its steps, along with the report types collaborators return.
package project

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion identifies the current Data layout. Loaders accept any file
// whose version is less than or equal to this and preserve fields they do
// not recognize, so checkpoints survive upgrades in both directions.
const SchemaVersion = 1

// ParsedPrompt is the structured interpretation of a user prompt.
type ParsedPrompt struct {
	Topic           string   `json:"topic" yaml:"topic"`
	Style           string   `json:"style,omitempty" yaml:"style,omitempty"`
	DurationSeconds int      `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty" yaml:"aspect_ratio,omitempty"`
	SceneCount      int      `json:"scene_count,omitempty" yaml:"scene_count,omitempty"`
	Keywords        []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	RawText         string   `json:"raw_text,omitempty" yaml:"raw_text,omitempty"`
}

// Scene is one segment of the project script.
type Scene struct {
	Index           int     `json:"index" yaml:"index"`
	Title           string  `json:"title" yaml:"title"`
	Description     string  `json:"description,omitempty" yaml:"description,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty" yaml:"duration_seconds,omitempty"`
}

// Shot is a single visual within a scene.
type Shot struct {
	Scene       int    `json:"scene" yaml:"scene"`
	Index       int    `json:"index" yaml:"index"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	ImagePrompt string `json:"image_prompt,omitempty" yaml:"image_prompt,omitempty"`
}

// NarrationCue pairs a scene with its narration text.
type NarrationCue struct {
	Scene int    `json:"scene" yaml:"scene"`
	Text  string `json:"text" yaml:"text"`
}

// Components holds everything generated for a project before rendering.
type Components struct {
	Script       []Scene        `json:"script" yaml:"script"`
	Shots        []Shot         `json:"shots" yaml:"shots"`
	Narration    []NarrationCue `json:"narration,omitempty" yaml:"narration,omitempty"`
	ImagePrompts []string       `json:"image_prompts,omitempty" yaml:"image_prompts,omitempty"`
}

// CoherenceReport is the result of checking that generated components agree
// with each other.
type CoherenceReport struct {
	Coherent bool     `json:"coherent"`
	Issues   []string `json:"issues,omitempty"`
}

// StructureReport is the result of validating an on-disk project layout.
type StructureReport struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// QualityReport is the outcome of final video validation.
type QualityReport struct {
	OverallScore   float64            `json:"overall_score"`
	Passed         bool               `json:"passed"`
	CategoryScores map[string]float64 `json:"category_scores,omitempty"`
	Issues         []string           `json:"issues,omitempty"`
	VideoPath      string             `json:"video_path,omitempty"`
}

// Data is the versioned payload carried across workflow steps and persisted
// inside checkpoints. Each step fills in its own fields; earlier fields are
// never overwritten by later steps.
type Data struct {
	SchemaVersion  int            `json:"schema_version"`
	Prompt         string         `json:"prompt,omitempty"`
	Parsed         *ParsedPrompt  `json:"parsed,omitempty"`
	ProjectName    string         `json:"project_name,omitempty"`
	ProjectPath    string         `json:"project_path,omitempty"`
	Components     *Components    `json:"components,omitempty"`
	ImagePaths     []string       `json:"image_paths,omitempty"`
	DegradedImages bool           `json:"degraded_images,omitempty"`
	VideoPath      string         `json:"video_path,omitempty"`
	Pipeline       map[string]any `json:"pipeline,omitempty"`
	Quality        *QualityReport `json:"quality,omitempty"`

	// Fields written by newer schema versions, preserved across a
	// load/save cycle.
	remainder map[string]json.RawMessage
}

// knownDataFields are the JSON keys owned by this schema version. Anything
// else encountered on load is carried in the remainder.
var knownDataFields = []string{
	"schema_version", "prompt", "parsed", "project_name", "project_path",
	"components", "image_paths", "degraded_images", "video_path",
	"pipeline", "quality",
}

// NewData returns a Data at the current schema version holding the prompt.
func NewData(prompt string) *Data {
	return &Data{SchemaVersion: SchemaVersion, Prompt: prompt}
}

// UnmarshalJSON decodes known fields and retains unknown ones.
func (d *Data) UnmarshalJSON(b []byte) error {
	type alias Data
	var a alias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, key := range knownDataFields {
		delete(raw, key)
	}
	*d = Data(a)
	if len(raw) > 0 {
		d.remainder = raw
	}
	return nil
}

// MarshalJSON encodes known fields plus any retained unknown fields.
func (d Data) MarshalJSON() ([]byte, error) {
	type alias Data
	b, err := json.Marshal(alias(d))
	if err != nil {
		return nil, err
	}
	if len(d.remainder) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for key, value := range d.remainder {
		if _, ok := merged[key]; !ok {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of the data.
func (d *Data) Clone() (*Data, error) {
	if d == nil {
		return nil, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to clone project data: %w", err)
	}
	var out Data
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to clone project data: %w", err)
	}
	return &out, nil
}
