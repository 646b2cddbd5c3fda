package alerts

import (
	"encoding/json"
	"fmt"

	"github.com/fleetwatch/fleetwatch/internal/domain"
)

// ErrorThresholdCondition matches the ErrorThreshold row of spec.md §4.G's table.
type ErrorThresholdCondition struct {
	Threshold     int `json:"threshold"`
	WindowMinutes int `json:"windowMinutes"`
	Level         int `json:"level"`
}

// JobFailureCondition matches the JobFailure row.
type JobFailureCondition struct {
	Consecutive   int `json:"consecutive,omitempty"`
	WindowMinutes int `json:"windowMinutes,omitempty"`
}

// ServerOfflineCondition matches the ServerOffline row (no parameters).
type ServerOfflineCondition struct{}

// PerformanceWarningCondition matches the PerformanceWarning row.
type PerformanceWarningCondition struct {
	DurationMs   *int64   `json:"durationMs,omitempty"`
	PercentOfAvg *float64 `json:"percentOfAvg,omitempty"`
}

// CustomQueryCondition matches the CustomQuery row.
type CustomQueryCondition struct {
	Query string `json:"query"`
}

// PatternMatchCondition matches the PatternMatch row.
type PatternMatchCondition struct {
	Regex         string `json:"regex"`
	WindowMinutes int    `json:"windowMinutes"`
	Level         *int   `json:"level,omitempty"`
}

// decodeCondition dispatches Alert.Condition's stored JSON to the
// concrete condition type named by Alert.AlertType, per SPEC_FULL.md
// §4.G's "sum type dispatched by a typed decoder rather than
// reflection" rule (Design Notes §9).
func decodeCondition(alertType domain.AlertType, raw json.RawMessage) (interface{}, error) {
	switch alertType {
	case domain.AlertErrorThreshold:
		var c ErrorThresholdCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode ErrorThreshold condition: %w", err)
		}
		return c, nil
	case domain.AlertJobFailure:
		var c JobFailureCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode JobFailure condition: %w", err)
		}
		return c, nil
	case domain.AlertServerOffline:
		return ServerOfflineCondition{}, nil
	case domain.AlertPerformanceWarning:
		var c PerformanceWarningCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode PerformanceWarning condition: %w", err)
		}
		return c, nil
	case domain.AlertCustomQuery:
		var c CustomQueryCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode CustomQuery condition: %w", err)
		}
		return c, nil
	case domain.AlertPatternMatch:
		var c PatternMatchCondition
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode PatternMatch condition: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown alert type %q", alertType)
	}
}
