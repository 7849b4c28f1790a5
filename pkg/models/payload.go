package models

import (
	"maps"
	"time"
)

// Question is one benchmark question.
type Question struct {
	ID       string `json:"id"`
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`
	Prompt   string `json:"prompt"`
	Expected string `json:"expected,omitempty"`
}

// Response is a model's answer to a question.
type Response struct {
	QuestionID       string    `json:"question_id"`
	Content          string    `json:"content"`
	Reasoning        string    `json:"reasoning,omitempty"`
	Version          int       `json:"version,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	Cost             float64   `json:"cost,omitempty"`
	LatencyMs        int64     `json:"latency_ms,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// Evaluation is the graded result for one response.
type Evaluation struct {
	Evaluator string  `json:"evaluator,omitempty"`
	Score     float64 `json:"score"`
	MaxScore  float64 `json:"max_score,omitempty"`
	Passed    bool    `json:"passed"`
	Feedback  string  `json:"feedback,omitempty"`
}

// Artifact is code extracted from a response, with its last execution output.
type Artifact struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Output   string `json:"output,omitempty"`
}

// BulkPayload aggregates everything a run/model pair produced, keyed by question id.
type BulkPayload struct {
	Questions   map[string]Question   `json:"questions"`
	Responses   map[string]Response   `json:"responses"`
	Evaluations map[string]Evaluation `json:"evaluations"`
}

// Clone returns a copy whose maps can be modified without affecting p.
func (p *BulkPayload) Clone() *BulkPayload {
	if p == nil {
		return nil
	}
	return &BulkPayload{
		Questions:   maps.Clone(p.Questions),
		Responses:   maps.Clone(p.Responses),
		Evaluations: maps.Clone(p.Evaluations),
	}
}

// Detail synthesizes a QuestionDetail from the payload. It reports false when
// the payload has no such question.
func (p *BulkPayload) Detail(questionID string) (QuestionDetail, bool) {
	if p == nil {
		return QuestionDetail{}, false
	}
	q, ok := p.Questions[questionID]
	if !ok {
		return QuestionDetail{}, false
	}
	d := QuestionDetail{Question: q}
	if r, ok := p.Responses[questionID]; ok {
		d.Response = &r
	}
	if e, ok := p.Evaluations[questionID]; ok {
		d.Evaluation = &e
	}
	return d, true
}

// QuestionDetail is the single-question view payload.
type QuestionDetail struct {
	Question   Question    `json:"question"`
	Response   *Response   `json:"response,omitempty"`
	Evaluation *Evaluation `json:"evaluations,omitempty"`
	Artifact   *Artifact   `json:"artifact,omitempty"`
	Versions   []int       `json:"versions,omitempty"`
}
