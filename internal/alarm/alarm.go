// Package alarm decodes and validates the inbound alarm-transition payload.
package alarm

import (
	"encoding/json"
	"fmt"
)

// ErrFormat marks a malformed input record.
type ErrFormat struct {
	Field string
}

func (e *ErrFormat) Error() string {
	return fmt.Sprintf("alarm data missing field %s", e.Field)
}

// SubAlarm carries one sub-alarm's metric definition and recent values.
type SubAlarm struct {
	MetricDefinition Metric `json:"metricDefinition"`
	CurrentValues    []any  `json:"currentValues"`
}

// Metric is one alarm metric: a name plus its dimension set.
type Metric struct {
	Name       string            `json:"name"`
	Dimensions map[string]string `json:"dimensions"`
}

// Raw is the inbound payload after log-value decoding (spec.md §3).
type Raw struct {
	AlarmID            string            `json:"alarmId"`
	AlarmDefinitionID  string            `json:"alarmDefinitionId"`
	AlarmName          string            `json:"alarmName"`
	NewState           string            `json:"newState"`
	OldState           string            `json:"oldState"`
	StateChangeReason  string            `json:"stateChangeReason"`
	Severity           string            `json:"severity"`
	Link               string            `json:"link"`
	LifecycleState     string            `json:"lifecycleState"`
	TenantID           string            `json:"tenantId"`
	Timestamp          int64             `json:"timestamp"` // milliseconds since epoch
	ActionsEnabled     bool              `json:"actionsEnabled"`
	Metrics            []Metric          `json:"metrics"`
	SubAlarms          []SubAlarm        `json:"subAlarms,omitempty"`
	AlarmDescription   string            `json:"alarmDescription"`
}

type envelope struct {
	Alarm json.RawMessage `json:"alarm-transitioned"`
}

var requiredFields = []string{
	"alarmId",
	"alarmDefinitionId",
	"alarmName",
	"newState",
	"oldState",
	"stateChangeReason",
	"severity",
	"link",
	"lifecycleState",
	"tenantId",
	"timestamp",
	"actionsEnabled",
}

// Parse decodes value as a JSON object containing key "alarm-transitioned"
// and validates that every required field is present.
func Parse(value []byte) (*Raw, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("invalid alarm JSON: %w", err)
	}
	if len(env.Alarm) == 0 {
		return nil, &ErrFormat{Field: "alarm-transitioned"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Alarm, &fields); err != nil {
		return nil, fmt.Errorf("invalid alarm JSON: %w", err)
	}
	for _, f := range requiredFields {
		if _, ok := fields[f]; !ok {
			return nil, &ErrFormat{Field: f}
		}
	}

	raw := &Raw{}
	if err := json.Unmarshal(env.Alarm, raw); err != nil {
		return nil, fmt.Errorf("invalid alarm JSON: %w", err)
	}
	return raw, nil
}
