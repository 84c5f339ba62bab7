// Package progress tracks per-step and overall completion for a workflow run
// and estimates time remaining.
package progress

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// StepStatus represents the lifecycle of a single tracked step.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
)

// remainingCapFactor bounds the extrapolated time remaining to a multiple of
// elapsed time. Early in a run the linear extrapolation is wildly unstable;
// the cap is a heuristic, not a guarantee.
const remainingCapFactor = 1000

// StepProgress describes one step's state at a point in time.
type StepProgress struct {
	Name      string        `json:"name"`
	Status    StepStatus    `json:"status"`
	Percent   float64       `json:"percent"`
	Message   string        `json:"message,omitempty"`
	StartTime time.Time     `json:"start_time,omitzero"`
	EndTime   time.Time     `json:"end_time,omitzero"`
	Duration  time.Duration `json:"duration,omitempty"`
	Result    any           `json:"result,omitempty"`
}

// Report is a read-only snapshot of overall workflow progress.
type Report struct {
	TotalSteps     int            `json:"total_steps"`
	CompletedSteps int            `json:"completed_steps"`
	CurrentStep    string         `json:"current_step,omitempty"`
	OverallPercent float64        `json:"overall_percent"`
	Elapsed        time.Duration  `json:"elapsed"`
	Remaining      time.Duration  `json:"remaining"`
	StartTime      time.Time      `json:"start_time,omitzero"`
	Steps          []StepProgress `json:"steps,omitempty"`
}

// Callback receives a fresh Report after each progress change.
type Callback func(Report)

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Logger *slog.Logger

	// AverageStepDuration is an optional hint used to estimate remaining
	// time before any measurable progress exists.
	AverageStepDuration time.Duration
}

// Monitor tracks progress for one workflow run. It is safe for concurrent
// use: the run loop mutates it while other goroutines request snapshots.
type Monitor struct {
	mutex       sync.Mutex
	logger      *slog.Logger
	totalSteps  int
	steps       map[string]*StepProgress
	order       []string
	currentStep string
	completed   int
	startTime   time.Time
	started     bool
	avgStepHint time.Duration
	callbacks   []Callback
	now         func() time.Time
}

// NewMonitor creates a progress monitor.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		logger:      opts.Logger,
		steps:       map[string]*StepProgress{},
		avgStepHint: opts.AverageStepDuration,
		now:         time.Now,
	}
}

// OnUpdate registers a callback invoked after every progress change.
// Callback panics are recovered and logged, never propagated.
func (m *Monitor) OnUpdate(cb Callback) {
	if cb == nil {
		return
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Start resets all per-step state and records the start time.
func (m *Monitor) Start(totalSteps int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if totalSteps < 0 {
		totalSteps = 0
	}
	m.totalSteps = totalSteps
	m.steps = map[string]*StepProgress{}
	m.order = nil
	m.currentStep = ""
	m.completed = 0
	m.startTime = m.now()
	m.started = true
}

// UpdateStep records progress for a step, creating it on first reference.
// Percent is clamped into [0, 100]. The step becomes the current step.
func (m *Monitor) UpdateStep(name string, percent float64, message string) {
	m.mutex.Lock()
	step := m.step(name)
	step.Percent = clampPercent(percent)
	if message != "" {
		step.Message = message
	}
	m.currentStep = name
	report, callbacks := m.snapshotLocked()
	m.mutex.Unlock()

	m.notify(report, callbacks)
}

// CompleteStep marks a step completed at 100% and records its duration.
// It intentionally does not change the current step; that moves on the next
// UpdateStep call so a UI keeps showing the step that just finished.
func (m *Monitor) CompleteStep(name string, result any) {
	m.mutex.Lock()
	step := m.step(name)
	step.Status = StepStatusCompleted
	step.Percent = 100
	step.EndTime = m.now()
	step.Duration = step.EndTime.Sub(step.StartTime)
	step.Result = result
	m.completed++
	report, callbacks := m.snapshotLocked()
	m.mutex.Unlock()

	m.notify(report, callbacks)
}

// FailStep marks a step failed, keeping its last reported percent.
func (m *Monitor) FailStep(name string, message string) {
	m.mutex.Lock()
	step := m.step(name)
	step.Status = StepStatusFailed
	if message != "" {
		step.Message = message
	}
	step.EndTime = m.now()
	step.Duration = step.EndTime.Sub(step.StartTime)
	report, callbacks := m.snapshotLocked()
	m.mutex.Unlock()

	m.notify(report, callbacks)
}

// OverallProgress returns aggregate progress in [0, 100]. Steps are equally
// weighted regardless of their real cost.
func (m *Monitor) OverallProgress() float64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.overallLocked()
}

// EstimateRemaining extrapolates time remaining from elapsed time and
// overall progress. With no measurable progress it falls back to the
// average-step-duration hint times the step count, or zero without a hint.
func (m *Monitor) EstimateRemaining() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.remainingLocked()
}

// Report returns a snapshot of overall progress without per-step detail.
func (m *Monitor) Report() Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	report, _ := m.snapshotLocked()
	return report
}

// WorkflowProgress returns a snapshot including per-step detail, ordered by
// first reference.
func (m *Monitor) WorkflowProgress() Report {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	report, _ := m.snapshotLocked()
	report.Steps = make([]StepProgress, 0, len(m.order))
	for _, name := range m.order {
		report.Steps = append(report.Steps, *m.steps[name])
	}
	return report
}

// step returns the named step, creating it in_progress on first reference.
// Callers must hold the mutex.
func (m *Monitor) step(name string) *StepProgress {
	if existing, ok := m.steps[name]; ok {
		return existing
	}
	created := &StepProgress{
		Name:      name,
		Status:    StepStatusInProgress,
		StartTime: m.now(),
	}
	m.steps[name] = created
	m.order = append(m.order, name)
	return created
}

func (m *Monitor) overallLocked() float64 {
	if m.totalSteps <= 0 {
		return 0
	}
	var sum float64
	for _, step := range m.steps {
		if step.Status == StepStatusCompleted {
			sum += 100
		} else {
			sum += step.Percent
		}
	}
	overall := sum / (float64(m.totalSteps) * 100) * 100
	return clampPercent(overall)
}

func (m *Monitor) remainingLocked() time.Duration {
	if !m.started {
		return 0
	}
	elapsed := m.now().Sub(m.startTime)
	overall := m.overallLocked()
	if overall < 0.001 {
		if m.avgStepHint > 0 {
			return m.avgStepHint * time.Duration(m.totalSteps)
		}
		return 0
	}
	remaining := time.Duration(float64(elapsed) * (100 - overall) / overall)
	if limit := elapsed * remainingCapFactor; remaining > limit {
		remaining = limit
	}
	return remaining
}

func (m *Monitor) snapshotLocked() (Report, []Callback) {
	var elapsed time.Duration
	if m.started {
		elapsed = m.now().Sub(m.startTime)
	}
	report := Report{
		TotalSteps:     m.totalSteps,
		CompletedSteps: m.completed,
		CurrentStep:    m.currentStep,
		OverallPercent: m.overallLocked(),
		Elapsed:        elapsed,
		Remaining:      m.remainingLocked(),
		StartTime:      m.startTime,
	}
	callbacks := make([]Callback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	return report, callbacks
}

// notify invokes callbacks outside the mutex so a callback may query the
// monitor. Panics are contained per callback.
func (m *Monitor) notify(report Report, callbacks []Callback) {
	for _, cb := range callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("progress callback panicked", "panic", r)
				}
			}()
			cb(report)
		}()
	}
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
