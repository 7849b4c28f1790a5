// Package poller watches a backend job until it reaches a terminal status.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/models"
)

// DefaultInterval is the fixed delay between polls.
const DefaultInterval = 2 * time.Second

// ErrCancelled is returned by Handle.Wait when polling was cancelled before
// the job finished.
var ErrCancelled = errors.New("polling cancelled")

// Fetcher reads the current state of a job.
type Fetcher interface {
	JobStatus(ctx context.Context, jobID string) (models.JobSnapshot, error)
}

// Options configures a Poller.
type Options struct {
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

// Poller schedules status polls for jobs. One Poller serves any number of jobs.
type Poller struct {
	fetcher  Fetcher
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// New creates a Poller.
func New(f Fetcher, opts Options) *Poller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{
		fetcher:  f,
		clock:    opts.Clock,
		interval: opts.Interval,
		logger:   opts.Logger.With("component", "poller"),
	}
}

// Interval returns the fixed delay between polls.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// PollUntilTerminal starts polling jobID. onUpdate receives every snapshot;
// onTerminal runs once, after onUpdate, for the first terminal snapshot.
// Either callback may be nil.
//
// At most one poll is in flight per handle: the next poll is scheduled only
// after the previous one has been handled. Transport errors are logged and
// retried on the next tick; only a terminal job status ends polling.
func (p *Poller) PollUntilTerminal(ctx context.Context, jobID string, onUpdate, onTerminal func(models.JobSnapshot)) *Handle {
	h := &Handle{
		p:          p,
		ctx:        ctx,
		jobID:      jobID,
		onUpdate:   onUpdate,
		onTerminal: onTerminal,
		done:       make(chan struct{}),
	}
	h.mu.Lock()
	h.timer = p.clock.AfterFunc(0, h.tick)
	h.mu.Unlock()
	p.logger.Debug("polling started", "job", jobID, "interval", p.interval)
	return h
}

// Handle controls one polling loop.
type Handle struct {
	p          *Poller
	ctx        context.Context
	jobID      string
	onUpdate   func(models.JobSnapshot)
	onTerminal func(models.JobSnapshot)

	mu        sync.Mutex
	timer     clock.Timer
	last      models.JobSnapshot
	polls     int
	cancelled bool
	finished  bool
	done      chan struct{}
	closeOnce sync.Once
}

// JobID returns the job being polled.
func (h *Handle) JobID() string {
	return h.jobID
}

// Cancel stops future polls. A poll already in flight completes but its
// result is dropped. Cancel after the job finished is a no-op.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.cancelled || h.finished {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()
	h.p.logger.Debug("polling cancelled", "job", h.jobID)
	h.close()
}

// Done is closed when polling ends for any reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the job reaches a terminal status or polling is cancelled.
func (h *Handle) Wait(ctx context.Context) (models.JobSnapshot, error) {
	select {
	case <-ctx.Done():
		return models.JobSnapshot{}, ctx.Err()
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return h.last, ErrCancelled
	}
	return h.last, nil
}

// Last returns the most recent snapshot, if any poll has succeeded.
func (h *Handle) Last() (models.JobSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last, h.last.JobID != "" || h.last.Status != ""
}

// Polls returns how many polls have been issued.
func (h *Handle) Polls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.polls
}

func (h *Handle) tick() {
	h.mu.Lock()
	if h.cancelled || h.finished {
		h.mu.Unlock()
		return
	}
	h.timer = nil
	h.polls++
	h.mu.Unlock()

	if err := h.ctx.Err(); err != nil {
		h.Cancel()
		return
	}

	snap, err := h.p.fetcher.JobStatus(h.ctx, h.jobID)

	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		h.p.logger.Debug("dropping late poll result", "job", h.jobID)
		return
	}
	if err != nil {
		h.timer = h.p.clock.AfterFunc(h.p.interval, h.tick)
		h.mu.Unlock()
		h.p.logger.Warn("poll job status", "job", h.jobID, "error", err)
		return
	}
	h.last = snap
	terminal := snap.Status.Terminal()
	if terminal {
		h.finished = true
	}
	h.mu.Unlock()

	if h.onUpdate != nil {
		h.onUpdate(snap)
	}

	if terminal {
		h.p.logger.Debug("job finished", "job", h.jobID, "status", snap.Status)
		if h.onTerminal != nil {
			h.onTerminal(snap)
		}
		h.close()
		return
	}

	h.mu.Lock()
	if !h.cancelled {
		h.timer = h.p.clock.AfterFunc(h.p.interval, h.tick)
	}
	h.mu.Unlock()
}

func (h *Handle) close() {
	h.closeOnce.Do(func() { close(h.done) })
}
