package schemas

import (
	"encoding/json"
	"time"
)

// -- Workflow Step Ledger Schemas --

// StepStatus is the terminal status of a recorded step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepRecord is one write-only observability entry. Steps are not transactional with the
// browser action they describe.
type StepRecord struct {
	RunID      string          `json:"runId"`
	Index      int             `json:"index"`
	StepType   string          `json:"stepType"`
	Status     StepStatus      `json:"status"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	DurationMs int64           `json:"durationMs"`
	CreatedAt  time.Time       `json:"createdAt"`
}
