package pipeline

import "strconv"

// Step identifies one stage of the external rendering pipeline.
type Step string

const (
	StepGrid      Step = "grid"
	StepPromote   Step = "promote"
	StepRefine    Step = "refine"
	StepQA        Step = "qa"
	StepAutofix   Step = "autofix"
	StepVideoPlan Step = "video_plan"
	StepExport    Step = "export"
)

// fullPipelineOrder is the sequence ExecuteFullPipeline drives. AUTOFIX is
// excluded; it only runs inside the quality-gated loop.
var fullPipelineOrder = []Step{
	StepGrid,
	StepPromote,
	StepRefine,
	StepQA,
	StepVideoPlan,
	StepExport,
}

func (s Step) String() string {
	return string(s)
}

// command builds the subprocess name and argv for a step invocation. When an
// interpreter is configured the CLI path becomes the first argument,
// otherwise the CLI is invoked directly.
func (e *Executor) command(step Step, projectPath string) (string, []string) {
	args := []string{string(step), "--project", projectPath}
	switch step {
	case StepGrid:
		args = append(args, "--grid", e.grid, "--cell-size", strconv.Itoa(e.cellSize))
	case StepQA:
		args = append(args, "--threshold", strconv.FormatFloat(e.qaThreshold, 'f', 1, 64))
	}
	if e.interpreter != "" {
		return e.interpreter, append([]string{e.cliPath}, args...)
	}
	return e.cliPath, args
}
