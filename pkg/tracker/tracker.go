// Package tracker assigns identity to background operations, records their
// status transitions, and expires finished operations after a grace period.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/models"
)

// DefaultGracePeriod is how long a finished operation stays visible.
const DefaultGracePeriod = 3 * time.Second

// Publisher receives the full ordered list of visible operations after every
// change. It is called without the tracker's lock held.
type Publisher func(ops []models.Operation)

// Recorder persists finished operations.
type Recorder interface {
	Record(ctx context.Context, op models.Operation) error
}

// Options configures a Tracker.
type Options struct {
	Clock       clock.Clock
	GracePeriod time.Duration
	Publish     Publisher
	Recorder    Recorder
	Logger      *slog.Logger
}

// Tracker owns the set of visible operations. Callers only hold ids.
type Tracker struct {
	mu     sync.Mutex
	nextID int64
	ops    map[int64]*models.Operation
	order  []int64
	timers map[int64]clock.Timer
	pubMu  sync.Mutex

	clock    clock.Clock
	grace    time.Duration
	publish  Publisher
	recorder Recorder
	logger   *slog.Logger
}

// New creates a Tracker. Zero-valued options fall back to the real clock,
// DefaultGracePeriod, no publisher, and slog.Default().
func New(opts Options) *Tracker {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		ops:      make(map[int64]*models.Operation),
		timers:   make(map[int64]clock.Timer),
		clock:    opts.Clock,
		grace:    opts.GracePeriod,
		publish:  opts.Publish,
		recorder: opts.Recorder,
		logger:   opts.Logger.With("component", "tracker"),
	}
}

// Begin starts tracking a running operation and returns its id. Ids are
// strictly increasing and never reused.
func (t *Tracker) Begin(kind models.OperationKind, description string) int64 {
	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.ops[id] = &models.Operation{
		ID:          id,
		Kind:        kind,
		Description: description,
		Status:      models.OpRunning,
		StartTime:   t.clock.Now(),
	}
	t.order = append(t.order, id)
	t.mu.Unlock()

	t.logger.Debug("operation started", "id", id, "kind", kind, "description", description)
	t.notify()
	return id
}

// Complete moves a running operation to success or error and schedules its
// removal after the grace period. Unknown or already finished ids are ignored.
func (t *Tracker) Complete(id int64, success bool, message string) {
	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok || op.Terminal() {
		t.mu.Unlock()
		return
	}
	op.Status = models.OpSuccess
	if !success {
		op.Status = models.OpError
	}
	op.Message = message
	op.EndTime = t.clock.Now()
	finished := *op
	t.timers[id] = t.clock.AfterFunc(t.grace, func() { t.remove(id) })
	t.mu.Unlock()

	level := slog.LevelInfo
	if !success {
		level = slog.LevelWarn
	}
	t.logger.Log(context.Background(), level, "operation finished",
		"id", id, "kind", finished.Kind, "status", finished.Status, "message", message,
		"elapsed", finished.Elapsed(finished.EndTime))

	if t.recorder != nil {
		if err := t.recorder.Record(context.Background(), finished); err != nil {
			t.logger.Warn("record operation", "id", id, "error", err)
		}
	}
	t.notify()
}

// Get returns a copy of the operation with id, if it is still visible.
func (t *Tracker) Get(id int64) (models.Operation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	op, ok := t.ops[id]
	if !ok {
		return models.Operation{}, false
	}
	return *op, true
}

// Active returns the visible operations, oldest first.
func (t *Tracker) Active() []models.Operation {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Running returns the number of operations that have not finished.
func (t *Tracker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, op := range t.ops {
		if !op.Terminal() {
			n++
		}
	}
	return n
}

// Close cancels pending expiry timers. Finished operations remain visible.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}

func (t *Tracker) remove(id int64) {
	t.mu.Lock()
	if _, ok := t.ops[id]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.ops, id)
	delete(t.timers, id)
	for i, x := range t.order {
		if x == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.mu.Unlock()

	t.logger.Debug("operation expired", "id", id)
	t.notify()
}

// notify publishes the current list. Publishes are serialized so a
// subscriber never sees an older list after a newer one.
func (t *Tracker) notify() {
	if t.publish == nil {
		return
	}
	t.pubMu.Lock()
	defer t.pubMu.Unlock()
	t.publish(t.Active())
}

// snapshotLocked requires t.mu.
func (t *Tracker) snapshotLocked() []models.Operation {
	out := make([]models.Operation, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.ops[id])
	}
	return out
}
