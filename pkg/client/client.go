// Package client talks to the benchmark backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/evalview/pkg/models"
)

// Client is an HTTP client for the benchmark backend. Requests carry no
// client-side timeout beyond the caller's context: long mutations are
// expected to keep their operation running until the backend answers.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// Options configures a Client.
type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q: scheme and host required", baseURL)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		token:   opts.Token,
		http:    opts.HTTPClient,
		logger:  opts.Logger.With("component", "client"),
	}, nil
}

// Leaderboard fetches the model leaderboard.
func (c *Client) Leaderboard(ctx context.Context) (models.Leaderboard, error) {
	var lb models.Leaderboard
	if err := c.do(ctx, http.MethodGet, "/api/leaderboard", nil, nil, "leaderboard", &lb); err != nil {
		return nil, err
	}
	return lb, nil
}

// Runs lists benchmark runs.
func (c *Client) Runs(ctx context.Context) ([]models.Run, error) {
	var runs []models.Run
	if err := c.do(ctx, http.MethodGet, "/api/runs", nil, nil, "runs", &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// Questions lists benchmark questions.
func (c *Client) Questions(ctx context.Context) ([]models.QuestionSummary, error) {
	var qs []models.QuestionSummary
	if err := c.do(ctx, http.MethodGet, "/api/questions", nil, nil, "questions", &qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// BulkData fetches every question, response, and evaluation for a run/model pair.
func (c *Client) BulkData(ctx context.Context, runID, modelName string) (*models.BulkPayload, error) {
	var p models.BulkPayload
	path := modelPath(runID, modelName) + "/bulk"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, "run/model "+runID+"/"+modelName, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Question fetches one question's detail. An empty version means latest.
func (c *Client) Question(ctx context.Context, runID, modelName, questionID, version string) (models.QuestionDetail, error) {
	var d models.QuestionDetail
	var q url.Values
	if version != "" {
		q = url.Values{"version": {version}}
	}
	path := modelPath(runID, modelName) + "/questions/" + url.PathEscape(questionID)
	if err := c.do(ctx, http.MethodGet, path, q, nil, "question "+questionID, &d); err != nil {
		return models.QuestionDetail{}, err
	}
	return d, nil
}

// Mutate asks the backend to regenerate, fix, or re-evaluate one response.
func (c *Client) Mutate(ctx context.Context, req models.MutationRequest) (models.MutationResult, error) {
	if err := ValidateMutation(req); err != nil {
		return models.MutationResult{}, err
	}
	var res models.MutationResult
	path := modelPath(req.RunID, req.ModelName) + "/questions/" + url.PathEscape(req.QuestionID) + "/" + string(req.Kind)
	if err := c.do(ctx, http.MethodPost, path, nil, req, "question "+req.QuestionID, &res); err != nil {
		return models.MutationResult{}, err
	}
	return res, nil
}

// Execute runs the code artifact extracted from one response.
func (c *Client) Execute(ctx context.Context, runID, modelName, questionID string) (models.ExecutionResult, error) {
	if err := requireIDs(runID, modelName, questionID); err != nil {
		return models.ExecutionResult{}, err
	}
	var res models.ExecutionResult
	path := modelPath(runID, modelName) + "/questions/" + url.PathEscape(questionID) + "/execute"
	if err := c.do(ctx, http.MethodPost, path, nil, struct{}{}, "question "+questionID, &res); err != nil {
		return models.ExecutionResult{}, err
	}
	return res, nil
}

// StartJob starts a comparative job and returns its id.
func (c *Client) StartJob(ctx context.Context, req models.StartJobRequest) (string, error) {
	if len(req.RunIDs) < 2 {
		return "", &ValidationError{Field: "run_ids", Reason: "at least two runs are required"}
	}
	var res struct {
		JobID string `json:"job_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/comparative-jobs", nil, req, "runs", &res); err != nil {
		return "", err
	}
	if res.JobID == "" {
		return "", &TransportError{Method: http.MethodPost, URL: c.baseURL + "/api/comparative-jobs", StatusCode: http.StatusOK, Detail: "response has no job_id"}
	}
	return res.JobID, nil
}

// JobStatus fetches the current snapshot of a job. It satisfies poller.Fetcher.
func (c *Client) JobStatus(ctx context.Context, jobID string) (models.JobSnapshot, error) {
	var s models.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/comparative-jobs/"+url.PathEscape(jobID), nil, nil, "job "+jobID, &s); err != nil {
		return models.JobSnapshot{}, err
	}
	if s.JobID == "" {
		s.JobID = jobID
	}
	return s, nil
}

// JobResults fetches the results of a completed job.
func (c *Client) JobResults(ctx context.Context, jobID string) (models.JobResults, error) {
	var r models.JobResults
	if err := c.do(ctx, http.MethodGet, "/api/comparative-jobs/"+url.PathEscape(jobID)+"/results", nil, nil, "job results "+jobID, &r); err != nil {
		return models.JobResults{}, err
	}
	return r, nil
}

// Jobs lists known comparative jobs.
func (c *Client) Jobs(ctx context.Context) ([]models.JobSnapshot, error) {
	var jobs []models.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/comparative-jobs", nil, nil, "jobs", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelJob asks the backend to stop a running job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodPost, "/api/comparative-jobs/"+url.PathEscape(jobID)+"/cancel", nil, struct{}{}, "job "+jobID, nil)
}

// SetPreference pins which run represents a model on the leaderboard.
func (c *Client) SetPreference(ctx context.Context, pref models.Preference) error {
	if pref.Model == "" {
		return &ValidationError{Field: "model", Reason: "required"}
	}
	return c.do(ctx, http.MethodPost, "/api/leaderboard/preferences", nil, pref, "model "+pref.Model, nil)
}

// ClearPreference unpins a model's leaderboard run.
func (c *Client) ClearPreference(ctx context.Context, modelName string) error {
	if modelName == "" {
		return &ValidationError{Field: "model", Reason: "required"}
	}
	return c.do(ctx, http.MethodDelete, "/api/leaderboard/preferences/"+url.PathEscape(modelName), nil, nil, "model "+modelName, nil)
}

// ValidateMutation checks a mutation request before it is sent.
func ValidateMutation(req models.MutationRequest) error {
	switch req.Kind {
	case models.OpRegenerate, models.OpFix, models.OpReevaluate:
	default:
		return &ValidationError{Field: "kind", Reason: fmt.Sprintf("unsupported mutation %q", req.Kind)}
	}
	return requireIDs(req.RunID, req.ModelName, req.QuestionID)
}

func requireIDs(runID, modelName, questionID string) error {
	switch {
	case runID == "":
		return &ValidationError{Field: "run_id", Reason: "required"}
	case modelName == "":
		return &ValidationError{Field: "model_name", Reason: "required"}
	case questionID == "":
		return &ValidationError{Field: "question_id", Reason: "required"}
	}
	return nil
}

func modelPath(runID, modelName string) string {
	return "/api/runs/" + url.PathEscape(runID) + "/models/" + url.PathEscape(modelName)
}

// do sends one request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, resource string, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method != http.MethodGet {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	c.logger.Debug("backend call", "method", method, "path", path, "status", resp.StatusCode, "latency", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &NotFoundError{Resource: resource, Detail: errorDetail(respBody)}
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return &ValidationError{Reason: orDefault(errorDetail(respBody), resp.Status)}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, Detail: errorDetail(respBody)}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &TransportError{Method: method, URL: target, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorDetail extracts a message from a JSON error body ({"detail": ...} or
// {"error": ...}), falling back to the trimmed raw body.
func errorDetail(body []byte) string {
	var e struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil {
		if s, ok := e.Detail.(string); ok && s != "" {
			return s
		}
		if e.Error != "" {
			return e.Error
		}
		if e.Detail != nil {
			b, _ := json.Marshal(e.Detail)
			return string(b)
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
