// Package domain holds the persistent entities of fleetwatch: log
// entries, jobs, job executions, servers, and alerts. Types here are
// plain data — validation lives alongside each type, but lifecycle
// rules (state transitions, rollups) live in the owning component
// package (internal/execution, internal/alerts, ...).
package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogLevel mirrors the six levels of spec.md §3.
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

func (l LogLevel) Valid() bool {
	return l >= LevelTrace && l <= LevelCritical
}

func (l LogLevel) String() string {
	switch l {
	case LevelTrace:
		return "Trace"
	case LevelDebug:
		return "Debug"
	case LevelInfo:
		return "Info"
	case LevelWarning:
		return "Warning"
	case LevelError:
		return "Error"
	case LevelCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

const (
	MaxMessageLen        = 4000
	MaxAncillaryFieldLen = 256
)

// Exception captures the exception/stack-trace detail attached to a LogEntry.
type Exception struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	StackTrace string `json:"stackTrace,omitempty"`
	Source     string `json:"source,omitempty"`
}

// LogEntry is an immutable (post-insert) ingestion record.
type LogEntry struct {
	ID              int64           `json:"id"`
	Timestamp       time.Time       `json:"timestamp"`
	Level           LogLevel        `json:"level"`
	Message         string          `json:"message"`
	JobID           string          `json:"jobId,omitempty"`
	JobExecutionID  *int64          `json:"jobExecutionId,omitempty"`
	ServerName      string          `json:"serverName"`
	Category        string          `json:"category,omitempty"`
	SourceContext   string          `json:"sourceContext,omitempty"`
	CorrelationID   string          `json:"correlationId,omitempty"`
	TraceID         string          `json:"traceId,omitempty"`
	SpanID          string          `json:"spanId,omitempty"`
	ParentSpanID    string          `json:"parentSpanId,omitempty"`
	Exception       *Exception      `json:"exception,omitempty"`
	Properties      json.RawMessage `json:"properties,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Environment     string          `json:"environment,omitempty"`
	AppVersion      string          `json:"applicationVersion,omitempty"`
	ReceivedAt      time.Time       `json:"receivedAt"`
	ClientIP        string          `json:"clientIp,omitempty"`
}

// HasException is the derived attribute named in spec.md §3.
func (l *LogEntry) HasException() bool {
	return l.Exception != nil && l.Exception.Type != ""
}

// Validate checks the per-field invariants of spec.md §4.C.1 step 1.
// It does not stamp ReceivedAt/ClientIP/ID — the ingestion pipeline does that.
func (l *LogEntry) Validate() error {
	if !l.Level.Valid() {
		return fmt.Errorf("level must be in [0,5], got %d", l.Level)
	}
	if l.Message == "" {
		return fmt.Errorf("message is required")
	}
	if len(l.Message) > MaxMessageLen {
		return fmt.Errorf("message exceeds %d characters", MaxMessageLen)
	}
	if l.ServerName == "" {
		return fmt.Errorf("serverName is required")
	}
	if len(l.Properties) > 0 {
		var v map[string]interface{}
		if err := json.Unmarshal(l.Properties, &v); err != nil {
			return fmt.Errorf("properties must be a JSON object: %w", err)
		}
	}
	for _, s := range []struct {
		name, val string
	}{
		{"category", l.Category},
		{"sourceContext", l.SourceContext},
		{"correlationId", l.CorrelationID},
		{"environment", l.Environment},
		{"applicationVersion", l.AppVersion},
	} {
		if len(s.val) > MaxAncillaryFieldLen {
			return fmt.Errorf("%s exceeds %d characters", s.name, MaxAncillaryFieldLen)
		}
	}
	return nil
}

// PartitionKey returns the month-granularity partition suffix (YYYYMM)
// this entry belongs to, per spec.md §3's "partitioned by timestamp" invariant.
func (l *LogEntry) PartitionKey() string {
	return l.Timestamp.UTC().Format("200601")
}
