package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pario-ai/evalview/pkg/models"
)

// Regenerate asks the backend for a new response and tracks it as an
// operation. It returns the operation id immediately.
func (s *Session) Regenerate(ctx context.Context, runID, modelName, questionID string) int64 {
	return s.mutate(ctx, models.OpRegenerate, runID, modelName, questionID)
}

// Fix asks the backend to repair a response's formatting.
func (s *Session) Fix(ctx context.Context, runID, modelName, questionID string) int64 {
	return s.mutate(ctx, models.OpFix, runID, modelName, questionID)
}

// Reevaluate asks the backend to grade a response again.
func (s *Session) Reevaluate(ctx context.Context, runID, modelName, questionID string) int64 {
	return s.mutate(ctx, models.OpReevaluate, runID, modelName, questionID)
}

func (s *Session) mutate(ctx context.Context, kind models.MutationKind, runID, modelName, questionID string) int64 {
	req := models.MutationRequest{Kind: kind, RunID: runID, ModelName: modelName, QuestionID: questionID}
	id := s.tracker.Begin(kind, fmt.Sprintf("%s %s/%s", capitalize(string(kind)), modelName, questionID))
	s.background(ctx, func(ctx context.Context) {
		res, err := s.api.Mutate(ctx, req)
		if err != nil {
			s.tracker.Complete(id, false, err.Error())
			return
		}
		msg := res.Message
		if msg == "" {
			msg = string(kind) + " complete"
		}
		s.tracker.Complete(id, true, msg)
		s.applyFragment(req, res.Updated)
		s.rerenderIfShowing(ctx, req.Key(), questionID)
	})
	return id
}

// applyFragment folds a mutation result into the cached payload. Without a
// fragment, or with nothing cached to patch, the key is invalidated: the
// next view refetches it and a fetch already in flight cannot store a
// payload that predates the mutation.
func (s *Session) applyFragment(req models.MutationRequest, f *models.Fragment) {
	key := req.Key()
	if f.Empty() {
		s.cache.Invalidate(key.RunID, key.ModelName)
		return
	}
	patched := s.cache.Patch(key, func(p *models.BulkPayload) {
		qid := req.QuestionID
		if f.Question != nil {
			if p.Questions == nil {
				p.Questions = make(map[string]models.Question)
			}
			p.Questions[qid] = *f.Question
		}
		if f.Response != nil {
			if p.Responses == nil {
				p.Responses = make(map[string]models.Response)
			}
			p.Responses[qid] = *f.Response
		}
		if f.Evaluation != nil {
			if p.Evaluations == nil {
				p.Evaluations = make(map[string]models.Evaluation)
			}
			p.Evaluations[qid] = *f.Evaluation
		}
	})
	if !patched {
		s.cache.Invalidate(key.RunID, key.ModelName)
	}
}

// rerenderIfShowing redraws the current view when it shows the mutated
// question or the model payload the question belongs to.
func (s *Session) rerenderIfShowing(ctx context.Context, key models.CacheKey, questionID string) {
	view := s.nav.Current()
	showsModel := false
	if k, ok := view.CacheKey(); ok && view.Kind == models.ViewModelDetails {
		showsModel = k == key
	}
	if !showsModel && !view.SameQuestion(key, questionID) {
		return
	}
	// Dispatch renders its own errors.
	_ = s.Dispatch(ctx, view)
}

// Execute runs a response's code artifact on the backend.
func (s *Session) Execute(ctx context.Context, runID, modelName, questionID string) int64 {
	id := s.tracker.Begin(models.OpExecute, fmt.Sprintf("Execute %s/%s", modelName, questionID))
	s.background(ctx, func(ctx context.Context) {
		res, err := s.api.Execute(ctx, runID, modelName, questionID)
		if err != nil {
			s.tracker.Complete(id, false, err.Error())
			return
		}
		s.tracker.Complete(id, res.Success, executionSummary(res))
		if out := strings.TrimSpace(res.Stdout); out != "" {
			s.renderer.Notify(LevelInfo, fmt.Sprintf("%s/%s output:\n%s", modelName, questionID, out))
		}
	})
	return id
}

func executionSummary(res models.ExecutionResult) string {
	if res.Message != "" {
		return res.Message
	}
	out := firstLine(res.Stdout)
	if !res.Success {
		if e := firstLine(res.Stderr); e != "" {
			out = e
		}
		return fmt.Sprintf("exit %d: %s", res.ExitCode, out)
	}
	if out == "" {
		return "executed"
	}
	return out
}

// Pin marks a run as the preferred one for a model on the leaderboard.
func (s *Session) Pin(ctx context.Context, modelName, runID string) int64 {
	id := s.tracker.Begin(models.OpPin, fmt.Sprintf("Pin %s to %s", modelName, runID))
	s.background(ctx, func(ctx context.Context) {
		err := s.api.SetPreference(ctx, models.Preference{Model: modelName, RunID: runID})
		s.finishPreference(ctx, id, err, fmt.Sprintf("%s pinned to %s", modelName, runID))
	})
	return id
}

// Unpin clears a model's preferred run.
func (s *Session) Unpin(ctx context.Context, modelName string) int64 {
	id := s.tracker.Begin(models.OpUnpin, "Unpin "+modelName)
	s.background(ctx, func(ctx context.Context) {
		err := s.api.ClearPreference(ctx, modelName)
		s.finishPreference(ctx, id, err, modelName+" unpinned")
	})
	return id
}

func (s *Session) finishPreference(ctx context.Context, id int64, err error, msg string) {
	if err != nil {
		s.tracker.Complete(id, false, err.Error())
		return
	}
	s.tracker.Complete(id, true, msg)
	if view := s.nav.Current(); view.Kind == models.ViewHome {
		_ = s.Dispatch(ctx, view)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
