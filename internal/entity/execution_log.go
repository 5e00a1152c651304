package entity

import "time"

// RunStatus is the lifecycle state of one crawl execution.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
	RunStatusTimeout RunStatus = "timeout"
	RunStatusError   RunStatus = "error"
)

// ExecutionType records what triggered a run.
type ExecutionType string

const (
	ExecutionManual    ExecutionType = "manual"
	ExecutionScheduled ExecutionType = "scheduled"
)

// MaxLogMessageLength bounds the message stored with a finished execution.
const MaxLogMessageLength = 500

// ExecutionLog mirrors one row of the crawler execution log table.
type ExecutionLog struct {
	ID            int64          `json:"id"`
	StartTime     time.Time      `json:"start_time"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	Status        RunStatus      `json:"status"`
	ExecutionType ExecutionType  `json:"execution_type"`
	Environment   string         `json:"environment"`
	Command       string         `json:"command"`
	Parameters    map[string]any `json:"parameters,omitempty"`
	Pages         int            `json:"pages"`
	PostsCount    int            `json:"posts_count"`
	Message       string         `json:"message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
