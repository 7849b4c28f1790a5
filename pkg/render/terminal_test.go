package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/coordinator"
	"github.com/pario-ai/evalview/pkg/models"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTerminal(format string) (*Terminal, *bytes.Buffer, *clock.Manual) {
	var buf bytes.Buffer
	clk := clock.NewManual(start)
	return New(&buf, Options{Format: format, Clock: clk}), &buf, clk
}

func TestLeaderboardTable(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)

	term.Leaderboard([]models.LeaderboardEntry{
		{Model: "gpt-4", RunID: "r1", Score: 0.91, Passed: 9, Total: 10, Pinned: true},
		{Model: "llama", RunID: "r2", Score: 0.5, Passed: 5, Total: 10},
	})

	out := buf.String()
	assert.Contains(t, out, "MODEL")
	assert.Contains(t, out, "gpt-4 *")
	assert.Contains(t, out, "9/10")
	assert.Less(t, strings.Index(out, "gpt-4"), strings.Index(out, "llama"))
}

func TestLeaderboardJSON(t *testing.T) {
	term, buf, _ := newTerminal(FormatJSON)

	term.Leaderboard([]models.LeaderboardEntry{{Model: "gpt-4", Score: 0.9}})

	var got []models.LeaderboardEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "gpt-4", got[0].Model)
}

func TestModelDetailsTable(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)

	term.ModelDetails(models.ModelDetails("m1", "r1"), &models.BulkPayload{
		Questions: map[string]models.Question{
			"q2": {ID: "q2", Category: "math"},
			"q1": {ID: "q1", Category: "code"},
		},
		Responses:   map[string]models.Response{"q1": {Content: "line one\nline two"}},
		Evaluations: map[string]models.Evaluation{"q1": {Score: 1, Passed: true}},
	})

	out := buf.String()
	assert.Contains(t, out, "m1  run r1")
	assert.Contains(t, out, "line one line two")
	assert.Contains(t, out, "(2 questions, 1 passed)")
	assert.Less(t, strings.Index(out, "q1"), strings.Index(out, "q2"))
}

func TestModelDetailsEmpty(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)

	term.ModelDetails(models.ModelDetails("m1", "r1"), &models.BulkPayload{})

	assert.Contains(t, buf.String(), "(no responses)")
}

func TestResponseSections(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)

	term.Response(models.ResponseView("m1", "q1", "r1").WithVersion("2"), models.QuestionDetail{
		Question:   models.Question{Prompt: "What is 2+2?", Expected: "4"},
		Response:   &models.Response{Content: "four", Version: 2, CompletionTokens: 1200},
		Evaluation: &models.Evaluation{Score: 0, Passed: false, Feedback: "expected a digit"},
		Artifact:   &models.Artifact{Language: "python", Code: "print(4)", Output: "4"},
		Versions:   []int{1, 2},
	})

	out := buf.String()
	for _, want := range []string{
		"q1  m1  run r1  v2",
		"What is 2+2?",
		"Expected: 4",
		"four",
		"1,200 tokens",
		"expected a digit",
		"Artifact (python)",
		"print(4)",
		"Versions: 1, 2",
	} {
		assert.Contains(t, out, want)
	}
}

func TestErrorLine(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)

	term.Error(models.ModelDetails("m1", "r1"), errors.New("connection refused"))

	assert.Contains(t, buf.String(), "Error loading model m1 @ r1: connection refused")
}

func TestOperationsPrintsTransitionsOnce(t *testing.T) {
	term, buf, clk := newTerminal(FormatTable)
	running := models.Operation{ID: 1, Kind: models.OpRegenerate, Description: "Regenerate m1/q1", Status: models.OpRunning, StartTime: start}

	term.Operations([]models.Operation{running})
	term.Operations([]models.Operation{running})
	assert.Equal(t, 1, strings.Count(buf.String(), "Regenerate m1/q1"))

	clk.Advance(1500 * time.Millisecond)
	done := running
	done.Status = models.OpSuccess
	done.Message = "done"
	done.EndTime = clk.Now()
	term.Operations([]models.Operation{done})

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "Regenerate m1/q1"))
	assert.Contains(t, out, "(1.5s): done")

	term.Operations(nil)
	assert.Equal(t, out, buf.String())
	assert.Empty(t, term.opSeen)
}

func TestQuietSuppressesProgress(t *testing.T) {
	var buf bytes.Buffer
	term := New(&buf, Options{Quiet: true})

	term.Operations([]models.Operation{{ID: 1, Description: "Fix", Status: models.OpRunning}})
	term.Jobs([]models.JobSnapshot{{JobID: "42", Status: models.JobRunning}})
	term.Notify(coordinator.LevelSuccess, "Comparative job 42 completed")

	assert.Equal(t, "Comparative job 42 completed\n", buf.String())
}

func TestJobsPrintOnChange(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)
	snap := models.JobSnapshot{JobID: "42", Status: models.JobRunning, Progress: models.JobProgress{Current: 1, Total: 4}}

	term.Jobs([]models.JobSnapshot{snap})
	term.Jobs([]models.JobSnapshot{snap})
	snap.Progress.Current = 2
	term.Jobs([]models.JobSnapshot{snap})

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "job 42"))
	assert.Contains(t, out, "job 42 running 2/4")
}

func TestOperationsPanel(t *testing.T) {
	term, buf, _ := newTerminal(FormatTable)

	term.OperationsPanel(nil)
	assert.Contains(t, buf.String(), "No operations in progress.")

	buf.Reset()
	term.OperationsPanel([]models.Operation{
		{ID: 3, Description: "Execute m1/q1", Status: models.OpError, Message: "exit 1", StartTime: start},
	})
	out := buf.String()
	assert.Contains(t, out, "Execute m1/q1")
	assert.Contains(t, out, "#3")
	assert.Contains(t, out, "exit 1")
}

func TestWriteCacheStats(t *testing.T) {
	var buf bytes.Buffer

	WriteCacheStats(&buf, models.CacheStats{Entries: 2, Hits: 3, Misses: 1}, -1)

	out := buf.String()
	assert.Contains(t, out, "Hit rate:  75.0%")
	assert.NotContains(t, out, "Persisted")
}

func TestWriteJobResultsSortsByScore(t *testing.T) {
	var buf bytes.Buffer

	WriteJobResults(&buf, models.JobResults{JobID: "42", Leaderboard: []models.ComparativeStanding{
		{ModelName: "low", AverageScore: 0.2},
		{ModelName: "high", AverageScore: 0.8, Passed: 4, Total: 5, PassRate: 0.8},
	}})

	out := buf.String()
	assert.Less(t, strings.Index(out, "high"), strings.Index(out, "low"))
	assert.Contains(t, out, "80.0%")
}
