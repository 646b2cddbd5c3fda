package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// JobType enumerates the kinds of agent-hosted work spec.md §3 names.
type JobType string

const (
	JobTypeUnknown        JobType = "Unknown"
	JobTypeExecutable     JobType = "Executable"
	JobTypePowerShell     JobType = "PowerShell"
	JobTypeVBScript       JobType = "VBScript"
	JobTypeDotNetAssembly JobType = "DotNetAssembly"
	JobTypeSqlJob         JobType = "SqlJob"
	JobTypeWindowsService JobType = "WindowsService"
	JobTypeOther          JobType = "Other"
)

// Job is the agent-chosen, string-keyed unit of scheduled work.
type Job struct {
	JobID          string    `json:"jobId"`
	DisplayName    string    `json:"displayName"`
	Description    string    `json:"description,omitempty"`
	Category       string    `json:"category,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	JobType        JobType   `json:"jobType"`
	ServerName     string    `json:"serverName,omitempty"`
	ExecutablePath string    `json:"executablePath,omitempty"`
	Schedule       string    `json:"schedule,omitempty"`
	IsActive       bool      `json:"isActive"`
	IsCritical     bool      `json:"isCritical"`

	// AllowConcurrent resolves the Open Question of spec.md §9: whether
	// StartExecution should reject overlapping runs of the same job.
	// Default true (the source's documented behavior: "unspecified -> allow").
	AllowConcurrent bool `json:"allowConcurrent"`

	LastExecutionID *int64        `json:"lastExecutionId,omitempty"`
	LastExecutionAt *time.Time    `json:"lastExecutionAt,omitempty"`
	LastStatus      ExecutionStatus `json:"lastStatus"`
	LastDurationMs  *int64        `json:"lastDurationMs,omitempty"`

	TotalExecutions     int64 `json:"totalExecutions"`
	SuccessCount        int64 `json:"successCount"`
	FailureCount        int64 `json:"failureCount"`

	// CompletedExecutions counts only terminal runs that represent a timed
	// completion (Completed/Failed/Warning/Timeout, NOT Cancelled) — the
	// denominator used to recompute AvgDurationMs, per the Open Questions
	// resolution in SPEC_FULL.md §4.D.
	CompletedExecutions int64 `json:"completedExecutions"`
	AvgDurationMs       int64 `json:"avgDurationMs"`

	ExpectedDurationMs *int64 `json:"expectedDurationMs,omitempty"`
	MaxDurationMs      *int64 `json:"maxDurationMs,omitempty"`

	Configuration json.RawMessage `json:"configuration,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// Validate checks field-level invariants for UpsertJob.
func (j *Job) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if j.SuccessCount+j.FailureCount > j.TotalExecutions {
		return fmt.Errorf("successCount+failureCount must not exceed totalExecutions")
	}
	if len(j.Configuration) > 0 {
		var v map[string]interface{}
		if err := json.Unmarshal(j.Configuration, &v); err != nil {
			return fmt.Errorf("configuration must be a JSON object: %w", err)
		}
	}
	return nil
}

// StubJob builds the autoviv placeholder referenced in spec.md §4.C.1 step 3.
func StubJob(jobID string, now time.Time) *Job {
	return &Job{
		JobID:           jobID,
		DisplayName:     jobID,
		JobType:         JobTypeUnknown,
		IsActive:        false,
		AllowConcurrent: true,
		LastStatus:      StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       "system:autovivify",
		UpdatedBy:       "system:autovivify",
	}
}
