package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pario-ai/evalview/pkg/models"
)

// Viewer is the read side of a viewer session.
type Viewer interface {
	Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error)
	ModelPayload(ctx context.Context, key models.CacheKey) (*models.BulkPayload, error)
	QuestionDetail(ctx context.Context, view models.ViewState) (models.QuestionDetail, error)
	Operations() []models.Operation
	CacheStats() models.CacheStats
}

// JobStatuser reports the status of a comparative job.
type JobStatuser interface {
	JobStatus(ctx context.Context, jobID string) (models.JobSnapshot, error)
}

// History searches finished operations.
type History interface {
	Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error)
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	viewer  Viewer
	jobs    JobStatuser
	history History
	version string
	logger  *slog.Logger
}

// New creates a new MCP Server. jobs and history may be nil.
func New(v Viewer, jobs JobStatuser, history History, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		viewer:  v,
		jobs:    jobs,
		history: history,
		version: version,
		logger:  logger.With("component", "mcp"),
	}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("malformed request", "error", err)
			s.writeResponse(w, *rpcError(nil, CodeParseError, "parse error"))
			continue
		}

		resp := s.dispatch(ctx, &req)
		if resp == nil {
			continue
		}
		s.writeResponse(w, *resp)
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	return result(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: "evalview", Version: s.version},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	})
}

func (s *Server) handleToolsList(req *Request) *Response {
	return result(req.ID, ToolsListResult{Tools: allTools})
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}

	s.logger.Debug("tool call", "tool", params.Name)
	res := handler(ctx, s, params.Arguments)
	if res.IsError {
		s.logger.Warn("tool failed", "tool", params.Name, "error", res.Content[0].Text)
	}
	return result(req.ID, res)
}

func (s *Server) writeResponse(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
