package mcp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pario-ai/evalview/pkg/models"
)

// formatLeaderboard formats ranked entries as a text table.
func formatLeaderboard(entries []models.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "No models on the leaderboard."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-30s %-20s %8s %10s\n", "Rank", "Model", "Run", "Score", "Passed")
	b.WriteString(strings.Repeat("-", 76) + "\n")
	for i, e := range entries {
		model := e.Model
		if e.Pinned {
			model += " *"
		}
		fmt.Fprintf(&b, "%4d  %-30s %-20s %8.3f %10s\n",
			i+1, model, e.RunID, e.Score, fmt.Sprintf("%d/%d", e.Passed, e.Total))
	}
	return b.String()
}

// formatPayload formats one model's per-question results as a text table.
func formatPayload(model, runID string, p *models.BulkPayload) string {
	if p == nil || len(p.Responses) == 0 {
		return fmt.Sprintf("No responses for %s in run %s.", model, runID)
	}
	ids := make([]string, 0, len(p.Responses))
	for id := range p.Responses {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (run %s)\n", model, runID)
	fmt.Fprintf(&b, "%-20s %-15s %8s %7s\n", "Question", "Category", "Score", "Passed")
	b.WriteString(strings.Repeat("-", 53) + "\n")
	passed := 0
	for _, id := range ids {
		score, pass := "-", "-"
		if ev, ok := p.Evaluations[id]; ok {
			score = fmt.Sprintf("%.3f", ev.Score)
			pass = "no"
			if ev.Passed {
				pass = "yes"
				passed++
			}
		}
		fmt.Fprintf(&b, "%-20s %-15s %8s %7s\n", id, p.Questions[id].Category, score, pass)
	}
	fmt.Fprintf(&b, "%d of %d passed\n", passed, len(ids))
	return b.String()
}

// formatDetail formats a question, response, and evaluation as text.
func formatDetail(d models.QuestionDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question %s\n%s\n", d.Question.ID, d.Question.Prompt)
	if d.Question.Expected != "" {
		fmt.Fprintf(&b, "Expected: %s\n", d.Question.Expected)
	}
	b.WriteString("\nResponse")
	if d.Response == nil {
		b.WriteString("\n(no response)\n")
	} else {
		if d.Response.Version > 0 {
			fmt.Fprintf(&b, " (version %d)", d.Response.Version)
		}
		fmt.Fprintf(&b, "\n%s\n", d.Response.Content)
	}
	if d.Evaluation != nil {
		fmt.Fprintf(&b, "\nEvaluation: score %.3f, passed %t\n", d.Evaluation.Score, d.Evaluation.Passed)
		if d.Evaluation.Feedback != "" {
			b.WriteString(d.Evaluation.Feedback + "\n")
		}
	}
	return b.String()
}

// formatOperations formats in-progress and recently finished operations.
func formatOperations(ops []models.Operation) string {
	if len(ops) == 0 {
		return "No operations in progress.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-12s %-8s %s\n", "ID", "Kind", "Status", "Description")
	for _, op := range ops {
		fmt.Fprintf(&b, "%4d  %-12s %-8s %s", op.ID, op.Kind, op.Status, op.Description)
		if op.Message != "" {
			b.WriteString(" - " + op.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatHistory formats finished operations from the history log.
func formatHistory(entries []models.AuditEntry) string {
	if len(entries) == 0 {
		return "No operations recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-12s %-8s %s\n", "Finished", "Kind", "Status", "Description")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%-20s %-12s %-8s %s\n",
			e.FinishedAt.Format("2006-01-02 15:04:05"), e.Kind, e.Status, e.Description)
	}
	return b.String()
}

// formatJob formats a job snapshot as text.
func formatJob(j models.JobSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job %s: %s\n", j.JobID, j.Status)
	if len(j.RunIDs) > 0 {
		fmt.Fprintf(&b, "  Runs:     %s\n", strings.Join(j.RunIDs, ", "))
	}
	if j.Progress.Total > 0 {
		fmt.Fprintf(&b, "  Progress: %d/%d\n", j.Progress.Current, j.Progress.Total)
	}
	if j.Progress.CurrentQuestion != "" {
		fmt.Fprintf(&b, "  Current:  %s\n", j.Progress.CurrentQuestion)
	}
	if j.Progress.Error != "" {
		fmt.Fprintf(&b, "  Error:    %s\n", j.Progress.Error)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
}
