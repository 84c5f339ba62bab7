package reel

import "time"

// Strategy is the recovery decision for a classified failure.
type Strategy string

const (
	// StrategyRetry retries the failed step with unchanged parameters.
	StrategyRetry Strategy = "retry"

	// StrategyRetryAdjusted retries with adjusted parameters and an
	// exponential backoff delay.
	StrategyRetryAdjusted Strategy = "retry_adjusted"

	// StrategySkip moves on without the step's result.
	StrategySkip Strategy = "skip"

	// StrategyFallback substitutes a degraded result and continues.
	StrategyFallback Strategy = "fallback"

	// StrategyCheckpoint persists state and pauses for user intervention.
	StrategyCheckpoint Strategy = "checkpoint"

	// StrategyAbort fails the run immediately.
	StrategyAbort Strategy = "abort"
)

func (s Strategy) String() string {
	return string(s)
}

// Retryable reports whether the strategy asks the caller to run the step
// again.
func (s Strategy) Retryable() bool {
	return s == StrategyRetry || s == StrategyRetryAdjusted
}

// maxBackoff caps the exponential retry delay.
const maxBackoff = 60 * time.Second

// RetryBackoff computes the delay before retry number attempt, doubling
// per attempt and capped at maxBackoff: 1s, 2s, 4s, ... 60s.
func RetryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^6 = 64 already exceeds the cap, so clamp the exponent early and
	// avoid shifting past the width of the type.
	if attempt > 6 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// StrategyFor picks the recovery strategy for a classified failure. It is
// a pure function: severity rules first, then per-type rules that consult
// how many times this (step, type) pair has already failed.
func StrategyFor(errType ErrorType, severity Severity, step WorkflowStep, attempts int) Strategy {
	if severity == SeverityCritical {
		return StrategyAbort
	}
	if severity == SeverityHigh {
		// Dependency and resource problems never improve on retry or
		// pause; abort rather than checkpoint.
		if errType == ErrorTypeDependency || errType == ErrorTypeResource {
			return StrategyAbort
		}
		return StrategyCheckpoint
	}

	switch errType {
	case ErrorTypeNetwork:
		if attempts < 3 {
			return StrategyRetryAdjusted
		}
		return StrategyFallback
	case ErrorTypeFileSystem:
		if attempts < 1 {
			return StrategyRetry
		}
		return StrategyCheckpoint
	case ErrorTypeParsing:
		return StrategyFallback
	case ErrorTypeGeneration:
		if attempts < 2 {
			return StrategyRetryAdjusted
		}
		return StrategyFallback
	case ErrorTypeValidation:
		// Quality findings are advisory at the final gate only.
		if step == StepQualityValidation {
			return StrategySkip
		}
		return StrategyFallback
	case ErrorTypePipeline:
		if attempts < 1 {
			return StrategyRetry
		}
		return StrategyCheckpoint
	case ErrorTypeDependency, ErrorTypeResource:
		return StrategyAbort
	}

	// Unknown errors get one retry, then pause for a human.
	if attempts < 1 {
		return StrategyRetry
	}
	return StrategyCheckpoint
}

// adjustedParameters returns the per-type parameter overrides carried by a
// RETRY_ADJUSTED action.
func adjustedParameters(errType ErrorType) map[string]any {
	switch errType {
	case ErrorTypeNetwork:
		return map[string]any{"timeout_multiplier": 2.0}
	case ErrorTypeGeneration:
		return map[string]any{"temperature": 0.3, "simplify_prompt": true}
	}
	return nil
}

// RecoveryAction is the decision handed back to the orchestrator's retry
// loop for one failure.
type RecoveryAction struct {
	Strategy   Strategy       `json:"strategy"`
	ErrorType  ErrorType      `json:"error_type"`
	Severity   Severity       `json:"severity"`
	Step       WorkflowStep   `json:"step"`
	Attempt    int            `json:"attempt"`
	Backoff    time.Duration  `json:"backoff,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}
