package models

import "time"

// OperationKind names the background action an Operation tracks.
type OperationKind string

const (
	OpRegenerate OperationKind = "regenerate"
	OpFix        OperationKind = "fix"
	OpReevaluate OperationKind = "reevaluate"
	OpExecute    OperationKind = "execute"
	OpCompare    OperationKind = "compare"
	OpPin        OperationKind = "pin"
	OpUnpin      OperationKind = "unpin"
)

// OperationStatus is the lifecycle state of an Operation.
type OperationStatus string

const (
	OpRunning OperationStatus = "running"
	OpSuccess OperationStatus = "success"
	OpError   OperationStatus = "error"
)

// Operation is one tracked asynchronous action.
type Operation struct {
	ID          int64           `json:"id"`
	Kind        OperationKind   `json:"kind"`
	Description string          `json:"description"`
	Status      OperationStatus `json:"status"`
	StartTime   time.Time       `json:"start_time"`
	EndTime     time.Time       `json:"end_time,omitempty"`
	Message     string          `json:"message,omitempty"`
}

// Terminal reports whether the operation has finished.
func (o Operation) Terminal() bool {
	return o.Status == OpSuccess || o.Status == OpError
}

// Elapsed returns the running time, measured to now for running operations.
func (o Operation) Elapsed(now time.Time) time.Duration {
	if o.Terminal() {
		return o.EndTime.Sub(o.StartTime)
	}
	return now.Sub(o.StartTime)
}
