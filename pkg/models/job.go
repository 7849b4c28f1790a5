package models

import "time"

// JobStatus is the backend-reported state of a comparative job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transition will occur. Unknown
// statuses are treated as terminal so that polling always ends.
func (s JobStatus) Terminal() bool {
	return s != JobPending && s != JobRunning
}

// JobProgress reports how far a job has advanced.
type JobProgress struct {
	Current         int    `json:"current"`
	Total           int    `json:"total"`
	CurrentQuestion string `json:"current_question,omitempty"`
	Error           string `json:"error,omitempty"`
}

// JobSnapshot is one observation of a backend job.
type JobSnapshot struct {
	JobID       string      `json:"job_id"`
	Status      JobStatus   `json:"status"`
	RunIDs      []string    `json:"run_ids,omitempty"`
	QuestionIDs []string    `json:"question_ids,omitempty"`
	CreatedAt   time.Time   `json:"created_at,omitempty"`
	Progress    JobProgress `json:"progress"`
	ResultRef   string      `json:"results_path,omitempty"`
}

// ComparativeStanding is one model's aggregate in a comparative job.
type ComparativeStanding struct {
	ModelName    string  `json:"model_name"`
	AverageScore float64 `json:"average_score"`
	Total        int     `json:"total_questions"`
	Passed       int     `json:"passed_count"`
	PassRate     float64 `json:"pass_rate"`
}

// JobResults is the results payload of a completed job.
type JobResults struct {
	JobID       string                    `json:"job_id"`
	Leaderboard []ComparativeStanding     `json:"leaderboard"`
	ByQuestion  map[string]map[string]any `json:"by_question,omitempty"`
}
