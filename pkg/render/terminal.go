// Package render draws viewer state to a terminal.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/coordinator"
	"github.com/pario-ai/evalview/pkg/models"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// Options configures a Terminal.
type Options struct {
	// Format is FormatTable or FormatJSON.
	Format string
	Clock  clock.Clock
	// Quiet suppresses operation and job progress lines.
	Quiet bool
}

// Terminal writes views, operations, and notifications to w. It is safe for
// concurrent use.
type Terminal struct {
	mu    sync.Mutex
	w     io.Writer
	json  bool
	quiet bool
	clock clock.Clock

	opSeen  map[int64]models.OperationStatus
	jobSeen map[string]string
}

var _ coordinator.Renderer = (*Terminal)(nil)

// New creates a Terminal writing to w.
func New(w io.Writer, opts Options) *Terminal {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Terminal{
		w:       w,
		json:    opts.Format == FormatJSON,
		quiet:   opts.Quiet,
		clock:   opts.Clock,
		opSeen:  make(map[int64]models.OperationStatus),
		jobSeen: make(map[string]string),
	}
}

func (t *Terminal) Leaderboard(entries []models.LeaderboardEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.json {
		t.encode(entries)
		return
	}
	WriteLeaderboard(t.w, entries)
}

func (t *Terminal) ModelDetails(view models.ViewState, p *models.BulkPayload) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.json {
		t.encode(p)
		return
	}
	fmt.Fprintln(t.w, headerStyle.Render(fmt.Sprintf("%s  run %s", view.ModelName, view.RunID)))
	writePayload(t.w, p)
}

func (t *Terminal) Response(view models.ViewState, d models.QuestionDetail) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.json {
		t.encode(d)
		return
	}
	writeDetail(t.w, view, d)
}

func (t *Terminal) Error(view models.ViewState, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, errorStyle.Render(fmt.Sprintf("Error loading %s: %v", view, err)))
}

// Operations prints a line for every operation that started or finished
// since the previous call. Expiry prints nothing.
func (t *Terminal) Operations(ops []models.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	live := make(map[int64]bool, len(ops))
	for _, op := range ops {
		live[op.ID] = true
		if prev, ok := t.opSeen[op.ID]; ok && prev == op.Status {
			continue
		}
		t.opSeen[op.ID] = op.Status
		if !t.quiet {
			fmt.Fprintln(t.w, operationLine(op, t.clock))
		}
	}
	for id := range t.opSeen {
		if !live[id] {
			delete(t.opSeen, id)
		}
	}
}

// Jobs prints a line for every job whose status or progress changed.
func (t *Terminal) Jobs(jobs []models.JobSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, j := range jobs {
		line := jobLine(j)
		if t.jobSeen[j.JobID] == line {
			continue
		}
		t.jobSeen[j.JobID] = line
		if !t.quiet {
			fmt.Fprintln(t.w, line)
		}
	}
}

func (t *Terminal) Notify(level coordinator.Level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, levelStyle(level).Render(message))
}

// Println writes a plain line, serialized with everything else t prints.
func (t *Terminal) Println(a ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.w, a...)
}

// OperationsPanel writes one card per visible operation.
func (t *Terminal) OperationsPanel(ops []models.Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(ops) == 0 {
		fmt.Fprintln(t.w, mutedStyle.Render("No operations in progress."))
		return
	}
	for _, op := range ops {
		fmt.Fprintln(t.w, operationCard(op, t.clock))
	}
}

func (t *Terminal) encode(v any) {
	enc := json.NewEncoder(t.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(t.w, errorStyle.Render(err.Error()))
	}
}

func operationLine(op models.Operation, clk clock.Clock) string {
	line := fmt.Sprintf("%s %s", statusIcon(op.Status), op.Description)
	if op.Terminal() {
		line += fmt.Sprintf(" (%s)", op.Elapsed(clk.Now()).Round(millisecond))
		if op.Message != "" {
			line += ": " + op.Message
		}
	}
	return statusStyle(op.Status).Render(line)
}

func operationCard(op models.Operation, clk clock.Clock) string {
	body := fmt.Sprintf("%s %s\n%s", statusIcon(op.Status), op.Description,
		mutedStyle.Render(fmt.Sprintf("#%d  %s  started %s", op.ID, op.Status, humanize.RelTime(op.StartTime, clk.Now(), "ago", "from now"))))
	if op.Message != "" {
		body += "\n" + op.Message
	}
	style := cardStyle
	if op.Status == models.OpError {
		style = style.BorderForeground(danger)
	}
	return style.Render(body)
}

func jobLine(j models.JobSnapshot) string {
	line := fmt.Sprintf("job %s %s", j.JobID, j.Status)
	if j.Progress.Total > 0 {
		line += fmt.Sprintf(" %d/%d", j.Progress.Current, j.Progress.Total)
	}
	if j.Progress.CurrentQuestion != "" && !j.Status.Terminal() {
		line += " (" + j.Progress.CurrentQuestion + ")"
	}
	return jobStyle(j.Status).Render(line)
}

func writePayload(w io.Writer, p *models.BulkPayload) {
	if p == nil || len(p.Questions) == 0 && len(p.Responses) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("(no responses)"))
		return
	}
	ids := make(map[string]struct{})
	for id := range p.Questions {
		ids[id] = struct{}{}
	}
	for id := range p.Responses {
		ids[id] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	tw := newTable(w)
	tw.AppendHeader(table.Row{"QUESTION", "CATEGORY", "SCORE", "PASSED", "RESPONSE"})
	passed := 0
	for _, id := range sorted {
		q := p.Questions[id]
		score, pass := "-", "-"
		if ev, ok := p.Evaluations[id]; ok {
			score = formatScore(ev.Score, ev.MaxScore)
			pass = yesNo(ev.Passed)
			if ev.Passed {
				passed++
			}
		}
		preview := "-"
		if r, ok := p.Responses[id]; ok {
			preview = truncateOneLine(r.Content, 60)
		}
		tw.AppendRow(table.Row{id, q.Category, score, pass, preview})
	}
	tw.Render()
	fmt.Fprintf(w, "(%d questions, %d passed)\n", len(sorted), passed)
}

func writeDetail(w io.Writer, view models.ViewState, d models.QuestionDetail) {
	title := fmt.Sprintf("%s  %s  run %s", view.QuestionID, view.ModelName, view.RunID)
	if view.Version != "" {
		title += "  v" + view.Version
	}
	fmt.Fprintln(w, headerStyle.Render(title))

	fmt.Fprintln(w, sectionStyle.Render("Question"))
	fmt.Fprintln(w, d.Question.Prompt)
	if d.Question.Expected != "" {
		fmt.Fprintln(w, mutedStyle.Render("Expected: "+d.Question.Expected))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, sectionStyle.Render("Response"))
	if d.Response == nil {
		fmt.Fprintln(w, mutedStyle.Render("(no response)"))
	} else {
		fmt.Fprintln(w, d.Response.Content)
		meta := []string{}
		if d.Response.Version > 0 {
			meta = append(meta, fmt.Sprintf("version %d", d.Response.Version))
		}
		if d.Response.CompletionTokens > 0 {
			meta = append(meta, humanize.Comma(int64(d.Response.CompletionTokens))+" tokens")
		}
		if d.Response.LatencyMs > 0 {
			meta = append(meta, fmt.Sprintf("%dms", d.Response.LatencyMs))
		}
		if len(meta) > 0 {
			fmt.Fprintln(w, mutedStyle.Render(strings.Join(meta, " · ")))
		}
	}

	if d.Evaluation != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Evaluation"))
		style := successStyle
		if !d.Evaluation.Passed {
			style = errorStyle
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("%s  passed: %s", formatScore(d.Evaluation.Score, d.Evaluation.MaxScore), yesNo(d.Evaluation.Passed))))
		if d.Evaluation.Feedback != "" {
			fmt.Fprintln(w, d.Evaluation.Feedback)
		}
	}

	if d.Artifact != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, sectionStyle.Render("Artifact ("+d.Artifact.Language+")"))
		fmt.Fprintln(w, d.Artifact.Code)
		if d.Artifact.Output != "" {
			fmt.Fprintln(w, mutedStyle.Render(d.Artifact.Output))
		}
	}

	if len(d.Versions) > 1 {
		vs := make([]string, len(d.Versions))
		for i, v := range d.Versions {
			vs[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, mutedStyle.Render("Versions: "+strings.Join(vs, ", ")))
	}
}
