package reel

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "90s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// PathsConfig holds the directories the tool works in.
type PathsConfig struct {
	ProjectsRoot  string `yaml:"projects_root"`
	CheckpointDir string `yaml:"checkpoint_dir"`
	RunLogDir     string `yaml:"run_log_dir"`
}

// WorkflowConfig tunes the orchestrator.
type WorkflowConfig struct {
	StepTimeout         Duration `yaml:"step_timeout"`
	AverageStepDuration Duration `yaml:"average_step_duration"`
	Checkpointing       bool     `yaml:"checkpointing"`
}

// PipelineConfig tunes the external rendering pipeline.
type PipelineConfig struct {
	Interpreter          string   `yaml:"interpreter"`
	CLIPath              string   `yaml:"cli_path"`
	Grid                 string   `yaml:"grid"`
	CellSize             int      `yaml:"cell_size"`
	QAThreshold          float64  `yaml:"qa_threshold"`
	MaxAutofixIterations int      `yaml:"max_autofix_iterations"`
	StepTimeout          Duration `yaml:"step_timeout"`
}

// RunLogConfig selects where run events are recorded. When PostgresDSN is
// set it takes precedence over the JSONL directory.
type RunLogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LoggingConfig controls diagnostic log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SlogLevel parses the configured level, defaulting to info.
func (c LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config encapsulates all configuration for the tool.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	RunLog   RunLogConfig   `yaml:"run_log"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfigPath is where LoadConfig looks when no path is given.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/reel/config.yaml")
}

// DefaultConfig returns the configuration used when no file is present.
// The pipeline CLI path has no default and must be configured.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			ProjectsRoot:  "~/reel-projects",
			CheckpointDir: "~/.reel/checkpoints",
			RunLogDir:     "~/.reel/runs",
		},
		Workflow: WorkflowConfig{
			StepTimeout:         Duration(5 * time.Minute),
			AverageStepDuration: Duration(90 * time.Second),
			Checkpointing:       true,
		},
		Pipeline: PipelineConfig{
			Interpreter:          "python3",
			Grid:                 "3x3",
			CellSize:             512,
			QAThreshold:          3.0,
			MaxAutofixIterations: 3,
			StepTimeout:          Duration(10 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults, expands paths,
// and validates the result. An empty path means the default location; a
// missing file at the default location is fine, defaults apply.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No config file, defaults apply.
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var gridPattern = regexp.MustCompile(`^[0-9]+x[0-9]+$`)

// Validate checks the configuration for values the workflow cannot run
// with. The pipeline CLI path is checked when the pipeline executor is
// built so status-style commands work without one.
func (c *Config) Validate() error {
	if c.Paths.ProjectsRoot == "" {
		return errors.New("paths.projects_root must not be empty")
	}
	if !gridPattern.MatchString(c.Pipeline.Grid) {
		return fmt.Errorf("pipeline.grid %q must look like 3x3", c.Pipeline.Grid)
	}
	if c.Pipeline.CellSize <= 0 {
		return fmt.Errorf("pipeline.cell_size must be positive, got %d", c.Pipeline.CellSize)
	}
	if c.Pipeline.QAThreshold < 0 || c.Pipeline.QAThreshold > 5 {
		return fmt.Errorf("pipeline.qa_threshold must be within [0, 5], got %g", c.Pipeline.QAThreshold)
	}
	if c.Pipeline.MaxAutofixIterations < 0 {
		return fmt.Errorf("pipeline.max_autofix_iterations must not be negative, got %d", c.Pipeline.MaxAutofixIterations)
	}
	return nil
}

// EnsureDirectories creates the configured working directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.ProjectsRoot, c.Paths.CheckpointDir, c.Paths.RunLogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.ProjectsRoot, err = expandPath(c.Paths.ProjectsRoot); err != nil {
		return err
	}
	if c.Paths.CheckpointDir, err = expandPath(c.Paths.CheckpointDir); err != nil {
		return err
	}
	if c.Paths.RunLogDir, err = expandPath(c.Paths.RunLogDir); err != nil {
		return err
	}
	if c.Pipeline.CLIPath, err = expandPath(c.Pipeline.CLIPath); err != nil {
		return err
	}
	return nil
}

// expandPath resolves a leading "~/" against the user's home directory.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
