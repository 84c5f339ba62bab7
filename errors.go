package reel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// ErrorType categorizes a workflow failure. The category, together with
// severity and the step the failure happened at, selects the recovery
// strategy.
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeFileSystem ErrorType = "file_system"
	ErrorTypeParsing    ErrorType = "parsing"
	ErrorTypeGeneration ErrorType = "generation"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypePipeline   ErrorType = "pipeline"
	ErrorTypeDependency ErrorType = "dependency"
	ErrorTypeResource   ErrorType = "resource"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Severity grades how dangerous a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Sentinel errors surfaced by the orchestrator and checkpointer. Callers
// test them with errors.Is.
var (
	ErrInvalidPrompt  = errors.New("prompt must be at least 10 characters")
	ErrAlreadyRunning = errors.New("workflow run already in progress")
	ErrNotRunning     = errors.New("workflow is not running")
	ErrNoCheckpoint   = errors.New("no checkpoint found")
)

// Error is a classified workflow failure. It supports Go's error wrapping
// patterns with the Unwrap method, so errors.Is and errors.As see through
// it to the original cause.
type Error struct {
	Type     ErrorType    `json:"type"`
	Severity Severity     `json:"severity"`
	Step     WorkflowStep `json:"step,omitempty"`
	Message  string       `json:"message"`
	Wrapped  error        `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("%s error at %s: %s", e.Type, e.Step, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the original cause for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// NewError classifies cause and attaches the step it failed at.
func NewError(step WorkflowStep, cause error) *Error {
	errType, severity := Classify(cause)
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Type:     errType,
		Severity: severity,
		Step:     step,
		Message:  msg,
		Wrapped:  cause,
	}
}

// ErrorContext captures everything known about a single failure at the
// moment it happened. Contexts are created once per failure and never
// mutated; the recovery manager keeps them in its error history and the
// checkpointer persists a trailing window of them.
type ErrorContext struct {
	Type        ErrorType      `json:"error_type"`
	Message     string         `json:"error_message"`
	StackTrace  string         `json:"stack_trace,omitempty"`
	Step        WorkflowStep   `json:"workflow_step"`
	ProjectPath string         `json:"project_path,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	SystemState map[string]any `json:"system_state,omitempty"`
}

// NewErrorContext snapshots a failure at the given step. The project path
// may be empty when the failure happened before the project directory was
// created.
func NewErrorContext(step WorkflowStep, projectPath string, err error) *ErrorContext {
	errType, _ := Classify(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &ErrorContext{
		Type:        errType,
		Message:     msg,
		StackTrace:  captureStack(),
		Step:        step,
		ProjectPath: projectPath,
		Timestamp:   time.Now(),
		SystemState: captureSystemState(),
	}
}

func captureStack() string {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func captureSystemState() map[string]any {
	wd, _ := os.Getwd()
	return map[string]any{
		"pid":         os.Getpid(),
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"working_dir": wd,
	}
}

// Keyword sets used by Classify. Categories are checked in a fixed
// precedence order and the first match wins, so a message mentioning both
// "connection" and "file" classifies as a network error.
var (
	networkKeywords = []string{
		"connection", "timeout", "timed out", "network", "dns",
		"unreachable", "refused", "socket", "tls",
	}
	fileSystemKeywords = []string{
		"file", "directory", "permission", "disk", "path", "read-only",
	}
	parsingKeywords = []string{
		"parse", "parsing", "syntax", "unmarshal", "decode", "invalid format",
		"yaml", "json",
	}
	generationKeywords = []string{
		"generation", "generate", "llm", "model", "inference", "token",
	}
	validationKeywords = []string{
		"validation", "invalid", "quality", "threshold", "score",
	}
	pipelineKeywords = []string{
		"pipeline", "subprocess", "exit status", "exit code", "command",
		"render",
	}
	dependencyKeywords = []string{
		"dependency", "not installed", "missing package", "import", "module",
	}
	resourceKeywords = []string{
		"memory", "resource", "quota", "space", "limit exceeded",
	}
)

// Classify maps an arbitrary error to an (ErrorType, Severity) pair. It is
// a pure function of the error's type and message: the same error always
// classifies the same way.
//
// File system errors mentioning a permission problem are high severity;
// dependency and resource errors are always high severity; everything else
// defaults to medium.
func Classify(err error) (ErrorType, Severity) {
	if err == nil {
		return ErrorTypeUnknown, SeverityLow
	}

	// An already-classified error keeps its classification.
	var werr *Error
	if errors.As(err, &werr) {
		return werr.Type, werr.Severity
	}

	// Typed checks run before message heuristics. Deadline expiry counts
	// as a network failure: the only blocking waits in the workflow are
	// subprocess and backend I/O.
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork, SeverityMedium
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorTypeNetwork, SeverityMedium
	}
	if errors.Is(err, fs.ErrPermission) {
		return ErrorTypeFileSystem, SeverityHigh
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ErrorTypeFileSystem, SeverityMedium
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return ErrorTypePipeline, SeverityMedium
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, networkKeywords):
		return ErrorTypeNetwork, SeverityMedium
	case containsAny(msg, fileSystemKeywords):
		if strings.Contains(msg, "permission") {
			return ErrorTypeFileSystem, SeverityHigh
		}
		return ErrorTypeFileSystem, SeverityMedium
	case containsAny(msg, parsingKeywords):
		return ErrorTypeParsing, SeverityMedium
	case containsAny(msg, generationKeywords):
		return ErrorTypeGeneration, SeverityMedium
	case containsAny(msg, validationKeywords):
		return ErrorTypeValidation, SeverityMedium
	case containsAny(msg, pipelineKeywords):
		return ErrorTypePipeline, SeverityMedium
	case containsAny(msg, dependencyKeywords):
		return ErrorTypeDependency, SeverityHigh
	case containsAny(msg, resourceKeywords):
		return ErrorTypeResource, SeverityHigh
	}
	return ErrorTypeUnknown, SeverityMedium
}

func containsAny(msg string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
