package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

// The rendering CLI reports results as human-readable `Key: value` lines.
// Parsing is centralized here so a future structured output contract only
// changes this file.

var (
	keyValuePattern = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9 _/-]{0,40}):\s+(.+)$`)
	overallScoreRe  = regexp.MustCompile(`Overall Score:\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*5(?:\.0)?`)
	qaStatusRe      = regexp.MustCompile(`Status:.*\b(PASSED|FAILED)\b`)
	categoryScoreRe = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{0,30}) Score:\s*([0-9]+(?:\.[0-9]+)?)\s*/\s*5(?:\.0)?`)
	fixesAppliedRe  = regexp.MustCompile(`Fixes Applied:\s*([0-9]+)`)
)

// parseKeyValues extracts `Key: value` lines into a metadata map with
// lower_snake keys. Later occurrences of a key overwrite earlier ones.
func parseKeyValues(output string) map[string]any {
	metadata := map[string]any{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		match := keyValuePattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		key := normalizeKey(match[1])
		if key == "" {
			continue
		}
		metadata[key] = strings.TrimSpace(match[2])
	}
	return metadata
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// qaOutcome is the parsed result of a QA step.
type qaOutcome struct {
	OverallScore   float64
	Passed         bool
	ScoreFound     bool
	CategoryScores map[string]float64
}

// parseQAOutput extracts the overall score, pass/fail status, and any
// per-category scores from QA stdout.
func parseQAOutput(output string) qaOutcome {
	outcome := qaOutcome{CategoryScores: map[string]float64{}}

	if match := overallScoreRe.FindStringSubmatch(output); match != nil {
		if score, err := strconv.ParseFloat(match[1], 64); err == nil {
			outcome.OverallScore = score
			outcome.ScoreFound = true
		}
	}
	if match := qaStatusRe.FindStringSubmatch(output); match != nil {
		outcome.Passed = match[1] == "PASSED"
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		match := categoryScoreRe.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		name := normalizeKey(match[1])
		if name == "overall" {
			continue
		}
		if score, err := strconv.ParseFloat(match[2], 64); err == nil {
			outcome.CategoryScores[name] = score
		}
	}
	return outcome
}

// parseFixCount extracts the number of fixes AUTOFIX reported applying.
func parseFixCount(output string) int {
	match := fixesAppliedRe.FindStringSubmatch(output)
	if match == nil {
		return 0
	}
	count, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return count
}
