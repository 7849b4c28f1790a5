package models

// MutationKind is a backend mutation on a single question response.
type MutationKind = OperationKind

// MutationRequest asks the backend to regenerate, fix, or re-evaluate one response.
type MutationRequest struct {
	Kind       MutationKind `json:"-"`
	RunID      string       `json:"run_id"`
	ModelName  string       `json:"model_name"`
	QuestionID string       `json:"question_id"`
}

// Key returns the cache key the mutation affects.
func (r MutationRequest) Key() CacheKey {
	return CacheKey{RunID: r.RunID, ModelName: r.ModelName}
}

// Fragment carries the parts of a bulk payload a mutation changed. A nil
// field means that part was not reported.
type Fragment struct {
	Question   *Question   `json:"question,omitempty"`
	Response   *Response   `json:"response,omitempty"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
}

// Empty reports whether the fragment carries no data.
func (f *Fragment) Empty() bool {
	return f == nil || (f.Question == nil && f.Response == nil && f.Evaluation == nil)
}

// MutationResult is the backend's answer to a MutationRequest.
type MutationResult struct {
	Message string    `json:"message"`
	Updated *Fragment `json:"updated,omitempty"`
}

// ExecutionResult is the outcome of running a response's code artifact.
type ExecutionResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
	Message  string `json:"message,omitempty"`
}

// StartJobRequest starts a comparative job across runs.
type StartJobRequest struct {
	RunIDs      []string `json:"run_ids"`
	QuestionIDs []string `json:"question_ids,omitempty"`
}
