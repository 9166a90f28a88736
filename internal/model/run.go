package model

import "time"

// Run status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Handle identifies a live resource (tensor or loaded model) held by the
// registry. Handles are process-unique and monotonically increasing; a
// handle is never reused while its resource is alive and the counter never
// resets.
type Handle int64

// TensorInfo describes a registered tensor: its handle plus the dtype and
// shape needed to interpret the underlying buffer.
type TensorInfo struct {
	ID    Handle  `json:"id"`
	DType DType   `json:"dtype"`
	Shape []int64 `json:"shape"`
}

// Run represents one asynchronous model execution request.
type Run struct {
	ID         string       `json:"id"`
	ModelID    Handle       `json:"model_id"`
	Status     string       `json:"status"`
	Outputs    []TensorInfo `json:"outputs,omitempty"`
	Error      string       `json:"error,omitempty"`
	DurationMS *int         `json:"duration_ms,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}
