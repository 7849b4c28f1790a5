package models

import "time"

// AuditEntry is a persisted record of one finished Operation.
type AuditEntry struct {
	ID          int64           `json:"id"`
	SessionID   string          `json:"session_id"`
	OperationID int64           `json:"operation_id"`
	Kind        OperationKind   `json:"kind"`
	Description string          `json:"description"`
	Status      OperationStatus `json:"status"`
	Message     string          `json:"message,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Kind      OperationKind
	Status    OperationStatus
	SessionID string
	Since     time.Time
	Limit     int
}

// AuditStat holds aggregate counts for a kind/status combination.
type AuditStat struct {
	Kind   OperationKind
	Status OperationStatus
	Count  int
}

// AuditConfig controls the operation history log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}
