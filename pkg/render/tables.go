package render

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pario-ai/evalview/pkg/models"
)

const millisecond = time.Millisecond

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

// WriteLeaderboard writes ranked leaderboard entries as a table.
func WriteLeaderboard(w io.Writer, entries []models.LeaderboardEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No models on the leaderboard.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "MODEL", "RUN", "SCORE", "PASSED", "TOK/S", "LATENCY", "COST"})
	for i, e := range entries {
		model := e.Model
		if e.Pinned {
			model += " *"
		}
		tw.AppendRow(table.Row{
			i + 1,
			model,
			e.RunID,
			formatScore(e.Score, e.MaxScore),
			fmt.Sprintf("%d/%d", e.Passed, e.Total),
			orDash(e.TokensPerSecond > 0, fmt.Sprintf("%.1f", e.TokensPerSecond)),
			orDash(e.AvgLatencyMs > 0, fmt.Sprintf("%dms", e.AvgLatencyMs)),
			orDash(e.TotalCost > 0, fmt.Sprintf("$%.4f", e.TotalCost)),
		})
	}
	tw.Render()
}

// WriteRuns writes the run selector list.
func WriteRuns(w io.Writer, runs []models.Run, now time.Time) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"RUN", "CREATED", "MODELS", "QUESTIONS"})
	for _, r := range runs {
		created := "-"
		if !r.CreatedAt.IsZero() {
			created = humanize.RelTime(r.CreatedAt, now, "ago", "from now")
		}
		tw.AppendRow(table.Row{r.ID, created, strings.Join(r.Models, ", "), r.QuestionCount})
	}
	tw.Render()
}

// WriteQuestions writes the question selector list.
func WriteQuestions(w io.Writer, questions []models.QuestionSummary) {
	if len(questions) == 0 {
		fmt.Fprintln(w, "No questions found.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"QUESTION", "CATEGORY", "TITLE"})
	for _, q := range questions {
		tw.AppendRow(table.Row{q.ID, q.Category, truncateOneLine(q.Title, 70)})
	}
	tw.Render()
}

// WriteJobs writes job snapshots as a table.
func WriteJobs(w io.Writer, jobs []models.JobSnapshot, now time.Time) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No comparative jobs.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"JOB", "STATUS", "PROGRESS", "RUNS", "CREATED"})
	for _, j := range jobs {
		progress := "-"
		if j.Progress.Total > 0 {
			progress = fmt.Sprintf("%d/%d", j.Progress.Current, j.Progress.Total)
		}
		created := "-"
		if !j.CreatedAt.IsZero() {
			created = humanize.RelTime(j.CreatedAt, now, "ago", "from now")
		}
		tw.AppendRow(table.Row{j.JobID, j.Status, progress, strings.Join(j.RunIDs, ", "), created})
	}
	tw.Render()
}

// WriteJobResults writes a completed job's comparative standings.
func WriteJobResults(w io.Writer, res models.JobResults) {
	fmt.Fprintln(w, headerStyle.Render("Comparative job "+res.JobID))
	if len(res.Leaderboard) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	standings := append([]models.ComparativeStanding(nil), res.Leaderboard...)
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].AverageScore > standings[j].AverageScore
	})
	tw := newTable(w)
	tw.AppendHeader(table.Row{"#", "MODEL", "AVG SCORE", "PASSED", "PASS RATE"})
	for i, s := range standings {
		tw.AppendRow(table.Row{
			i + 1,
			s.ModelName,
			fmt.Sprintf("%.3f", s.AverageScore),
			fmt.Sprintf("%d/%d", s.Passed, s.Total),
			fmt.Sprintf("%.1f%%", s.PassRate*100),
		})
	}
	tw.Render()
}

// WriteAuditEntries writes operation history, newest first.
func WriteAuditEntries(w io.Writer, entries []models.AuditEntry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No operations recorded.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"FINISHED", "KIND", "STATUS", "DURATION", "DESCRIPTION", "MESSAGE"})
	for _, e := range entries {
		tw.AppendRow(table.Row{
			humanize.RelTime(e.FinishedAt, now, "ago", "from now"),
			e.Kind,
			e.Status,
			e.FinishedAt.Sub(e.StartedAt).Round(millisecond),
			e.Description,
			truncateOneLine(e.Message, 50),
		})
	}
	tw.Render()
}

// WriteAuditStats writes operation counts grouped by kind and status.
func WriteAuditStats(w io.Writer, stats []models.AuditStat) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No operations recorded.")
		return
	}
	tw := newTable(w)
	tw.AppendHeader(table.Row{"KIND", "STATUS", "COUNT"})
	for _, s := range stats {
		tw.AppendRow(table.Row{s.Kind, s.Status, humanize.Comma(int64(s.Count))})
	}
	tw.Render()
}

// WriteCacheStats writes payload cache counters.
func WriteCacheStats(w io.Writer, stats models.CacheStats, persisted int) {
	total := stats.Hits + stats.Misses
	rate := 0.0
	if total > 0 {
		rate = float64(stats.Hits) / float64(total) * 100
	}
	fmt.Fprintf(w, "Entries:   %s\n", humanize.Comma(stats.Entries))
	if persisted >= 0 {
		fmt.Fprintf(w, "Persisted: %s\n", humanize.Comma(int64(persisted)))
	}
	fmt.Fprintf(w, "Hits:      %s\n", humanize.Comma(stats.Hits))
	fmt.Fprintf(w, "Misses:    %s\n", humanize.Comma(stats.Misses))
	fmt.Fprintf(w, "Hit rate:  %.1f%%\n", rate)
}

func formatScore(score, max float64) string {
	if max > 0 {
		return fmt.Sprintf("%.2f/%.0f", score, max)
	}
	return fmt.Sprintf("%.3f", score)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(ok bool, s string) string {
	if !ok {
		return "-"
	}
	return s
}

func truncateOneLine(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
