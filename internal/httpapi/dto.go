package httpapi

import (
	"encoding/json"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/domain"
	"github.com/fleetwatch/fleetwatch/internal/execution"
	"github.com/fleetwatch/fleetwatch/internal/heartbeat"
)

// logIngestionResponse is spec.md §6's LogIngestionResult.
type logIngestionResponse struct {
	ID         int64     `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// batchLogRequest is spec.md §6's CreateLogRequest[].
type batchLogRequest struct {
	Entries []*domain.LogEntry `json:"entries"`
}

// rejectionDTO is one element of BatchLogResult.rejections.
type rejectionDTO struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// batchLogResponse is spec.md §6's BatchLogResult.
type batchLogResponse struct {
	AcceptedCount int            `json:"acceptedCount"`
	RejectedCount int            `json:"rejectedCount"`
	Rejections    []rejectionDTO `json:"rejections,omitempty"`
}

// searchLogsResponse is spec.md §6's paged LogEntryResponse.
type searchLogsResponse struct {
	Items      []*domain.LogEntry `json:"items"`
	TotalCount int                `json:"totalCount"`
	Page       int                `json:"page"`
	PageSize   int                `json:"pageSize"`
}

// upsertJobRequest is spec.md §6's "jobId + fields" UpsertJob input,
// decoded straight into domain.Job since its json tags already match
// the wire shape.
type upsertJobRequest = domain.Job

// startExecutionRequest is spec.md §4.D.1's StartExecution inputs.
type startExecutionRequest struct {
	JobID         string          `json:"jobId"`
	ServerName    string          `json:"serverName"`
	TriggerType   string          `json:"triggerType"`
	TriggeredBy   string          `json:"triggeredBy"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
}

func (r startExecutionRequest) toParams() execution.StartParams {
	return execution.StartParams{
		JobID:         r.JobID,
		ServerName:    r.ServerName,
		TriggerType:   r.TriggerType,
		TriggeredBy:   r.TriggeredBy,
		CorrelationID: r.CorrelationID,
		Parameters:    r.Parameters,
	}
}

// completeExecutionRequest is spec.md §4.D.2's CompleteExecution inputs.
type completeExecutionRequest struct {
	Status        domain.ExecutionStatus `json:"status"`
	ResultSummary json.RawMessage        `json:"resultSummary,omitempty"`
	ResultCode    *int                   `json:"resultCode,omitempty"`
	ErrorMessage  string                 `json:"errorMessage,omitempty"`
	ErrorCategory string                 `json:"errorCategory,omitempty"`
}

func (r completeExecutionRequest) toParams(executionID int64) execution.CompleteParams {
	return execution.CompleteParams{
		ExecutionID:   executionID,
		Status:        r.Status,
		ResultSummary: r.ResultSummary,
		ResultCode:    r.ResultCode,
		ErrorMessage:  r.ErrorMessage,
		ErrorCategory: r.ErrorCategory,
	}
}

// cancelExecutionRequest is spec.md §4.D.3's CancelExecution input.
type cancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// heartbeatRequest is spec.md §4.E.1's ProcessHeartbeat inputs.
type heartbeatRequest struct {
	ServerName   string          `json:"serverName"`
	IPAddress    string          `json:"ipAddress,omitempty"`
	AgentVersion string          `json:"agentVersion,omitempty"`
	AgentType    string          `json:"agentType,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

func (r heartbeatRequest) toParams() heartbeat.Params {
	return heartbeat.Params{
		ServerName:   r.ServerName,
		IPAddress:    r.IPAddress,
		AgentVersion: r.AgentVersion,
		AgentType:    r.AgentType,
		Metadata:     r.Metadata,
	}
}

// instanceActionRequest is spec.md §6's {id, note?} Acknowledge/Resolve input.
type instanceActionRequest struct {
	Note string `json:"note,omitempty"`
}

// runRetentionRequest is spec.md §6's RunRetention input. Only dryRun is
// accepted; it has no batchSize field, so decodeJSON rejects a body that
// carries one as an unknown field.
type runRetentionRequest struct {
	DryRun bool `json:"dryRun,omitempty"`
}

// runRetentionResponse is spec.md §6's {categoryCounts} or {deletedCount}.
type runRetentionResponse struct {
	DryRun            bool     `json:"dryRun"`
	TraceDebug        int      `json:"traceDebug"`
	Info              int      `json:"info"`
	WarningError      int      `json:"warningError"`
	AlertInstances    int      `json:"alertInstances"`
	AuditLogs         int      `json:"auditLogs"`
	RefreshTokens     int      `json:"refreshTokens"`
	DroppedPartitions []string `json:"droppedPartitions,omitempty"`
}
