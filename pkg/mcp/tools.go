package mcp

import (
	"context"
	"encoding/json"

	"github.com/pario-ai/evalview/pkg/models"
)

// Tool argument structs.

type modelArgs struct {
	Model string `json:"model"`
	RunID string `json:"run_id"`
}

type questionArgs struct {
	Model      string `json:"model"`
	RunID      string `json:"run_id"`
	QuestionID string `json:"question_id"`
	Version    string `json:"version"`
}

type operationsArgs struct {
	Limit int `json:"limit"`
}

type jobArgs struct {
	JobID string `json:"job_id"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"evalview_leaderboard":   handleLeaderboard,
	"evalview_model_details": handleModelDetails,
	"evalview_question":      handleQuestion,
	"evalview_operations":    handleOperations,
	"evalview_cache_stats":   handleCacheStats,
	"evalview_job_status":    handleJobStatus,
}

var readOnly = &ToolAnnotations{ReadOnlyHint: true}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "evalview_leaderboard",
		Description: "Show the model leaderboard ranked by score.",
		InputSchema: objectSchema(nil),
		Annotations: readOnly,
	},
	{
		Name:        "evalview_model_details",
		Description: "Show per-question scores for one model in one run.",
		InputSchema: objectSchema(map[string]Property{
			"model":  stringProp("Model name"),
			"run_id": stringProp("Run ID"),
		}, "model", "run_id"),
		Annotations: readOnly,
	},
	{
		Name:        "evalview_question",
		Description: "Show a model's response to a question with its evaluation.",
		InputSchema: objectSchema(map[string]Property{
			"model":       stringProp("Model name"),
			"run_id":      stringProp("Run ID"),
			"question_id": stringProp("Question ID"),
			"version":     stringProp("Response version (optional, defaults to latest)"),
		}, "model", "run_id", "question_id"),
		Annotations: readOnly,
	},
	{
		Name:        "evalview_operations",
		Description: "List in-progress operations and recently finished ones.",
		InputSchema: objectSchema(map[string]Property{
			"limit": intProp("Maximum history entries (optional, default 20)"),
		}),
		Annotations: readOnly,
	},
	{
		Name:        "evalview_cache_stats",
		Description: "Show payload cache statistics (entries, hits, misses, hit rate).",
		InputSchema: objectSchema(nil),
		Annotations: readOnly,
	},
	{
		Name:        "evalview_job_status",
		Description: "Show the status and progress of a comparative job.",
		InputSchema: objectSchema(map[string]Property{
			"job_id": stringProp("Comparative job ID"),
		}, "job_id"),
		Annotations: readOnly,
	},
}

func handleLeaderboard(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	entries, err := s.viewer.Leaderboard(ctx)
	if err != nil {
		return errorResult("Error fetching leaderboard: " + err.Error())
	}
	return textResult(formatLeaderboard(entries))
}

func handleModelDetails(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args modelArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Model == "" || args.RunID == "" {
		return errorResult("model and run_id are required")
	}
	p, err := s.viewer.ModelPayload(ctx, models.CacheKey{RunID: args.RunID, ModelName: args.Model})
	if err != nil {
		return errorResult("Error fetching model details: " + err.Error())
	}
	return textResult(formatPayload(args.Model, args.RunID, p))
}

func handleQuestion(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args questionArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Model == "" || args.RunID == "" || args.QuestionID == "" {
		return errorResult("model, run_id and question_id are required")
	}
	view := models.ResponseView(args.Model, args.QuestionID, args.RunID).WithVersion(args.Version)
	d, err := s.viewer.QuestionDetail(ctx, view)
	if err != nil {
		return errorResult("Error fetching question: " + err.Error())
	}
	return textResult(formatDetail(d))
}

func handleOperations(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	var args operationsArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.Limit <= 0 {
		args.Limit = 20
	}
	text := formatOperations(s.viewer.Operations())
	if s.history == nil {
		return textResult(text + "\nOperation history is not configured.")
	}
	entries, err := s.history.Query(ctx, models.AuditQueryOpts{Limit: args.Limit})
	if err != nil {
		return errorResult("Error searching operation history: " + err.Error())
	}
	return textResult(text + "\n" + formatHistory(entries))
}

func handleCacheStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	return textResult(formatCacheStats(s.viewer.CacheStats()))
}

func handleJobStatus(ctx context.Context, s *Server, rawArgs json.RawMessage) ToolCallResult {
	if s.jobs == nil {
		return textResult("Job status is not configured.")
	}
	var args jobArgs
	if len(rawArgs) > 0 {
		_ = json.Unmarshal(rawArgs, &args)
	}
	if args.JobID == "" {
		return errorResult("job_id is required")
	}
	snap, err := s.jobs.JobStatus(ctx, args.JobID)
	if err != nil {
		return errorResult("Error fetching job status: " + err.Error())
	}
	return textResult(formatJob(snap))
}
