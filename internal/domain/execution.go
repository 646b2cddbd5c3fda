package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionStatus is the job-execution lifecycle state of spec.md §4.D.
type ExecutionStatus int

const (
	StatusPending ExecutionStatus = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
	StatusTimeout
	StatusWarning
)

func (s ExecutionStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusRunning:
		return "Running"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusCancelled:
		return "Cancelled"
	case StatusTimeout:
		return "Timeout"
	case StatusWarning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is one of the five terminal states.
func (s ExecutionStatus) IsTerminal() bool {
	return s != StatusPending && s != StatusRunning
}

// CountsAsCompletion reports whether a transition into s should bump
// Job.CompletedExecutions (the denominator for AvgDurationMs) — every
// terminal status except Cancelled, per the Open Questions resolution.
func (s ExecutionStatus) CountsAsCompletion() bool {
	return s.IsTerminal() && s != StatusCancelled
}

// LogLevelCounts tallies per-level log volume observed for an execution.
type LogLevelCounts struct {
	Trace    int64 `json:"trace"`
	Debug    int64 `json:"debug"`
	Info     int64 `json:"info"`
	Warning  int64 `json:"warning"`
	Error    int64 `json:"error"`
	Critical int64 `json:"critical"`
}

// Add increments the counter for the given level.
func (c *LogLevelCounts) Add(level LogLevel) {
	switch level {
	case LevelTrace:
		c.Trace++
	case LevelDebug:
		c.Debug++
	case LevelInfo:
		c.Info++
	case LevelWarning:
		c.Warning++
	case LevelError:
		c.Error++
	case LevelCritical:
		c.Critical++
	}
}

// Total returns the sum across all levels.
func (c LogLevelCounts) Total() int64 {
	return c.Trace + c.Debug + c.Info + c.Warning + c.Error + c.Critical
}

// JobExecution is one attempted run of a Job.
type JobExecution struct {
	ID             int64           `json:"id"`
	JobID          string          `json:"jobId"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	DurationMs     *int64          `json:"durationMs,omitempty"`
	Status         ExecutionStatus `json:"status"`
	ServerName     string          `json:"serverName"`
	TriggerType    string          `json:"triggerType,omitempty"`
	TriggeredBy    string          `json:"triggeredBy,omitempty"`
	CorrelationID  string          `json:"correlationId,omitempty"`
	Parameters     json.RawMessage `json:"parameters,omitempty"`
	ResultSummary  json.RawMessage `json:"resultSummary,omitempty"`
	ResultCode     *int            `json:"resultCode,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	ErrorCategory  string          `json:"errorCategory,omitempty"`
	LogCounts      LogLevelCounts  `json:"logCounts"`
}

// LogCount is the aggregate of LogCounts, mirroring spec.md §3's
// "aggregate logCount" attribute.
func (e *JobExecution) LogCount() int64 {
	return e.LogCounts.Total()
}

// Validate checks the static invariants of spec.md §3 that don't depend
// on a state transition (those live in internal/execution).
func (e *JobExecution) Validate() error {
	if e.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if e.CompletedAt != nil && e.CompletedAt.Before(e.StartedAt) {
		return fmt.Errorf("completedAt must not precede startedAt")
	}
	if (e.Status == StatusPending || e.Status == StatusRunning) && e.CompletedAt != nil {
		return fmt.Errorf("non-terminal execution must not have completedAt set")
	}
	if e.Status.IsTerminal() && e.CompletedAt == nil {
		return fmt.Errorf("terminal execution must have completedAt set")
	}
	for _, raw := range []json.RawMessage{e.Parameters, e.ResultSummary} {
		if len(raw) == 0 {
			continue
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("parameters/resultSummary must be valid JSON: %w", err)
		}
	}
	return nil
}
