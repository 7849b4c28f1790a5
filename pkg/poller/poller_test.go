package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/evalview/internal/testutil"
	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/models"
)

type step struct {
	status models.JobStatus
	err    error
}

// scriptedFetcher returns one scripted result per call, repeating the last.
type scriptedFetcher struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	before func(call int)
}

func (f *scriptedFetcher) JobStatus(_ context.Context, jobID string) (models.JobSnapshot, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	i := min(call-1, len(f.steps)-1)
	s := f.steps[i]
	before := f.before
	f.mu.Unlock()

	if before != nil {
		before(call)
	}
	if s.err != nil {
		return models.JobSnapshot{}, s.err
	}
	return models.JobSnapshot{JobID: jobID, Status: s.status}, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	updates   []models.JobSnapshot
	terminals []models.JobSnapshot
}

func (r *recorder) update(s models.JobSnapshot)   { r.updates = append(r.updates, s) }
func (r *recorder) terminal(s models.JobSnapshot) { r.terminals = append(r.terminals, s) }

func newTestPoller(t *testing.T, f Fetcher) (*Poller, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	return New(f, Options{Clock: clk, Logger: testutil.NewTestLogger(t)}), clk
}

func TestRunningThenCompleted(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: models.JobRunning}, {status: models.JobCompleted}}}
	p, clk := newTestPoller(t, f)
	rec := &recorder{}

	h := p.PollUntilTerminal(context.Background(), "42", rec.update, rec.terminal)

	clk.Advance(0)
	require.Len(t, rec.updates, 1)
	assert.Equal(t, models.JobRunning, rec.updates[0].Status)
	assert.Empty(t, rec.terminals)

	clk.Advance(DefaultInterval)
	require.Len(t, rec.updates, 2)
	assert.Equal(t, models.JobCompleted, rec.updates[1].Status)
	require.Len(t, rec.terminals, 1)
	assert.Equal(t, "42", rec.terminals[0].JobID)

	clk.Advance(10 * DefaultInterval)
	assert.Equal(t, 2, f.callCount(), "no poll after the terminal snapshot")
	assert.Equal(t, 0, clk.Pending())

	snap, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, snap.Status)
}

func TestFixedInterval(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: models.JobPending}}}
	p, clk := newTestPoller(t, f)
	h := p.PollUntilTerminal(context.Background(), "j", nil, nil)
	defer h.Cancel()

	clk.Advance(0)
	assert.Equal(t, 1, f.callCount())
	clk.Advance(DefaultInterval - time.Millisecond)
	assert.Equal(t, 1, f.callCount())
	clk.Advance(time.Millisecond)
	assert.Equal(t, 2, f.callCount())
	clk.Advance(3 * DefaultInterval)
	assert.Equal(t, 5, f.callCount())
}

func TestTransportErrorKeepsPolling(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: errors.New("connection refused")},
		{err: errors.New("connection reset")},
		{status: models.JobFailed},
	}}
	p, clk := newTestPoller(t, f)
	rec := &recorder{}

	p.PollUntilTerminal(context.Background(), "j", rec.update, rec.terminal)
	clk.Advance(0)
	clk.Advance(DefaultInterval)
	assert.Empty(t, rec.updates, "errors are not published")
	assert.Empty(t, rec.terminals)

	clk.Advance(DefaultInterval)
	require.Len(t, rec.terminals, 1)
	assert.Equal(t, models.JobFailed, rec.terminals[0].Status)
	assert.Equal(t, 3, f.callCount())
}

func TestCancelBeforeScheduledPoll(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: models.JobRunning}}}
	p, clk := newTestPoller(t, f)
	rec := &recorder{}

	h := p.PollUntilTerminal(context.Background(), "j", rec.update, rec.terminal)
	clk.Advance(0)
	require.Equal(t, 1, f.callCount())

	h.Cancel()
	clk.Advance(time.Minute)
	assert.Equal(t, 1, f.callCount(), "no poll fires after cancel")

	_, err := h.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCancelDuringInFlightPollDropsResult(t *testing.T) {
	var h *Handle
	f := &scriptedFetcher{steps: []step{{status: models.JobCompleted}}}
	f.before = func(int) { h.Cancel() }
	p, clk := newTestPoller(t, f)
	rec := &recorder{}

	h = p.PollUntilTerminal(context.Background(), "j", rec.update, rec.terminal)
	clk.Advance(0)

	assert.Equal(t, 1, f.callCount())
	assert.Empty(t, rec.updates, "late result is never applied")
	assert.Empty(t, rec.terminals)
	_, ok := h.Last()
	assert.False(t, ok)
}

func TestCancelFromUpdateCallback(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: models.JobRunning}}}
	p, clk := newTestPoller(t, f)

	var h *Handle
	h = p.PollUntilTerminal(context.Background(), "j", func(models.JobSnapshot) { h.Cancel() }, nil)
	clk.Advance(0)
	clk.Advance(time.Minute)
	assert.Equal(t, 1, f.callCount())
}

func TestContextCancellationStopsPolling(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: models.JobRunning}}}
	p, clk := newTestPoller(t, f)
	ctx, cancel := context.WithCancel(context.Background())

	h := p.PollUntilTerminal(ctx, "j", nil, nil)
	clk.Advance(0)
	cancel()
	clk.Advance(DefaultInterval)

	assert.Equal(t, 1, f.callCount())
	select {
	case <-h.Done():
	default:
		t.Fatal("handle should be done after context cancellation")
	}
}

func TestCancelledIsTerminal(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{status: models.JobCancelled}}}
	p, clk := newTestPoller(t, f)
	rec := &recorder{}

	h := p.PollUntilTerminal(context.Background(), "j", rec.update, rec.terminal)
	clk.Advance(0)
	require.Len(t, rec.terminals, 1)
	assert.Equal(t, models.JobCancelled, rec.terminals[0].Status)
	assert.Equal(t, 1, h.Polls())
}
