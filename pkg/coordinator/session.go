// Package coordinator decides, for every view, whether to serve it from
// cache or fetch it, and wraps backend mutations with operation tracking.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/evalview/pkg/cache"
	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/navigation"
	"github.com/pario-ai/evalview/pkg/poller"
	"github.com/pario-ai/evalview/pkg/tracker"
)

// API is the backend contract the coordinator consumes.
type API interface {
	Leaderboard(ctx context.Context) (models.Leaderboard, error)
	Runs(ctx context.Context) ([]models.Run, error)
	Questions(ctx context.Context) ([]models.QuestionSummary, error)
	BulkData(ctx context.Context, runID, modelName string) (*models.BulkPayload, error)
	Question(ctx context.Context, runID, modelName, questionID, version string) (models.QuestionDetail, error)
	Mutate(ctx context.Context, req models.MutationRequest) (models.MutationResult, error)
	Execute(ctx context.Context, runID, modelName, questionID string) (models.ExecutionResult, error)
	StartJob(ctx context.Context, req models.StartJobRequest) (string, error)
	JobStatus(ctx context.Context, jobID string) (models.JobSnapshot, error)
	CancelJob(ctx context.Context, jobID string) error
	SetPreference(ctx context.Context, pref models.Preference) error
	ClearPreference(ctx context.Context, modelName string) error
}

// Level classifies a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

// Renderer draws views and background state. It only ever receives plain
// data. Methods may be called from background goroutines.
type Renderer interface {
	Leaderboard(entries []models.LeaderboardEntry)
	// ModelDetails must treat p as read-only.
	ModelDetails(view models.ViewState, p *models.BulkPayload)
	Response(view models.ViewState, d models.QuestionDetail)
	Error(view models.ViewState, err error)
	Operations(ops []models.Operation)
	Jobs(jobs []models.JobSnapshot)
	Notify(level Level, message string)
}

// Options configures a Session.
type Options struct {
	API      API
	Renderer Renderer
	// Cache defaults to an in-memory store.
	Cache        *cache.Store
	Clock        clock.Clock
	PollInterval time.Duration
	GracePeriod  time.Duration
	Recorder     tracker.Recorder
	Logger       *slog.Logger
}

// Session is the state of one viewer session: navigation history, payload
// cache, tracked operations, and watched jobs. Independent Sessions share
// nothing.
type Session struct {
	api      API
	renderer Renderer
	cache    *cache.Store
	tracker  *tracker.Tracker
	poller   *poller.Poller
	nav      *navigation.Controller
	logger   *slog.Logger

	fetches singleflight.Group
	bg      sync.WaitGroup

	// watchMu serializes WatchJob so a job never gets two pollers.
	watchMu  sync.Mutex
	jobsMu   sync.Mutex
	jobs     map[string]*watchedJob
	jobOrder []string
	closed   bool
}

// New builds a Session.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Cache == nil {
		opts.Cache = cache.New(nil, opts.Logger)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	s := &Session{
		api:      opts.API,
		renderer: opts.Renderer,
		cache:    opts.Cache,
		logger:   opts.Logger.With("component", "coordinator"),
		jobs:     make(map[string]*watchedJob),
	}
	s.tracker = tracker.New(tracker.Options{
		Clock:       opts.Clock,
		GracePeriod: opts.GracePeriod,
		Publish:     opts.Renderer.Operations,
		Recorder:    opts.Recorder,
		Logger:      opts.Logger,
	})
	s.poller = poller.New(opts.API, poller.Options{
		Clock:    opts.Clock,
		Interval: opts.PollInterval,
		Logger:   opts.Logger,
	})
	s.nav = navigation.New(s, s.cache)
	return s
}

// Current returns the view being displayed.
func (s *Session) Current() models.ViewState {
	return s.nav.Current()
}

// History returns the views Back can return to, oldest first.
func (s *Session) History() []models.ViewState {
	return s.nav.History()
}

// Operations returns the visible tracked operations, oldest first.
func (s *Session) Operations() []models.Operation {
	return s.tracker.Active()
}

// Operation returns the tracked operation with id while it is visible.
func (s *Session) Operation(id int64) (models.Operation, bool) {
	return s.tracker.Get(id)
}

// CacheStats reports the payload cache's counters.
func (s *Session) CacheStats() models.CacheStats {
	return s.cache.Stats()
}

// Show navigates to view and renders it.
func (s *Session) Show(ctx context.Context, view models.ViewState) error {
	s.nav.Push(view)
	return s.Dispatch(ctx, view)
}

// Home clears history and renders the leaderboard.
func (s *Session) Home(ctx context.Context) error {
	s.nav.ResetToHome()
	return s.Dispatch(ctx, models.Home())
}

// Back returns to the previous view and renders it. It reports false when
// there is nothing to go back to.
func (s *Session) Back(ctx context.Context) (bool, error) {
	_, ok, err := s.nav.Back(ctx)
	return ok, err
}

// Refresh drops the current view's cached data and renders it again.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.nav.Refresh(ctx)
	return err
}

// Dispatch renders view. Errors are rendered in place of the view and also
// returned; they are never retried.
func (s *Session) Dispatch(ctx context.Context, view models.ViewState) error {
	var err error
	switch view.Kind {
	case models.ViewHome:
		err = s.renderHome(ctx, view)
	case models.ViewModelDetails:
		err = s.renderModel(ctx, view)
	case models.ViewResponse:
		err = s.renderResponse(ctx, view)
	}
	if err != nil {
		s.logger.Warn("render failed", "view", view.String(), "error", err)
		if s.stillCurrent(view) {
			s.renderer.Error(view, err)
		}
	}
	return err
}

func (s *Session) renderHome(ctx context.Context, view models.ViewState) error {
	lb, err := s.api.Leaderboard(ctx)
	if err != nil {
		return err
	}
	if s.stillCurrent(view) {
		s.renderer.Leaderboard(lb.Ranked())
	}
	return nil
}

func (s *Session) renderModel(ctx context.Context, view models.ViewState) error {
	key, _ := view.CacheKey()
	p, err := s.ModelPayload(ctx, key)
	if err != nil {
		return err
	}
	if s.stillCurrent(view) {
		s.renderer.ModelDetails(view, p)
	}
	return nil
}

func (s *Session) renderResponse(ctx context.Context, view models.ViewState) error {
	d, err := s.QuestionDetail(ctx, view)
	if err != nil {
		return err
	}
	if s.stillCurrent(view) {
		s.renderer.Response(view, d)
	}
	return nil
}

// stillCurrent guards every render that follows a suspension point: the
// user may have navigated elsewhere while the fetch was in flight.
func (s *Session) stillCurrent(view models.ViewState) bool {
	if s.nav.Current() == view {
		return true
	}
	s.logger.Debug("view changed while loading, dropping render", "view", view.String())
	return false
}

// ModelPayload resolves the bulk payload for key through the cache,
// fetching it on a miss. Concurrent misses for one key share a fetch.
func (s *Session) ModelPayload(ctx context.Context, key models.CacheKey) (*models.BulkPayload, error) {
	if p, ok := s.cache.Get(key.RunID, key.ModelName); ok {
		return p, nil
	}
	v, err, _ := s.fetches.Do(key.String(), func() (any, error) {
		return s.fetchBulk(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.BulkPayload), nil
}

// fetchBulk fetches and caches a payload unless an invalidation or newer
// write landed while it was in flight. A superseded result is never cached.
func (s *Session) fetchBulk(ctx context.Context, key models.CacheKey) (*models.BulkPayload, error) {
	for attempt := 0; attempt < 2; attempt++ {
		gen := s.cache.Generation(key)
		p, err := s.api.BulkData(ctx, key.RunID, key.ModelName)
		if err != nil {
			return nil, err
		}
		if s.cache.PutIfCurrent(key, gen, p) {
			return p, nil
		}
		if cur, ok := s.cache.Get(key.RunID, key.ModelName); ok {
			return cur, nil
		}
		s.logger.Debug("bulk fetch superseded, retrying", "key", key.String(), "attempt", attempt+1)
	}
	return nil, &StaleReferenceError{Key: key}
}

// QuestionDetail resolves a response view. Without a version override and
// with the question present in the cached payload, the detail is built from
// cache; otherwise a targeted fetch bypasses the bulk cache.
func (s *Session) QuestionDetail(ctx context.Context, view models.ViewState) (models.QuestionDetail, error) {
	if view.Version == "" {
		if p, ok := s.cache.Get(view.RunID, view.ModelName); ok {
			if d, ok := p.Detail(view.QuestionID); ok {
				return d, nil
			}
		}
	}
	return s.api.Question(ctx, view.RunID, view.ModelName, view.QuestionID, view.Version)
}

// Leaderboard fetches the leaderboard. It is never cached.
func (s *Session) Leaderboard(ctx context.Context) ([]models.LeaderboardEntry, error) {
	lb, err := s.api.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	return lb.Ranked(), nil
}

// Selectors loads runs and questions concurrently.
func (s *Session) Selectors(ctx context.Context) ([]models.Run, []models.QuestionSummary, error) {
	var runs []models.Run
	var questions []models.QuestionSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		runs, err = s.api.Runs(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = s.api.Questions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return runs, questions, nil
}

// Wait blocks until every background action, including watched jobs, has
// finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Close stops watching jobs, waits for in-flight actions, and cancels
// pending operation expiry.
func (s *Session) Close() {
	s.jobsMu.Lock()
	s.closed = true
	for _, j := range s.jobs {
		if j.handle != nil {
			j.handle.Cancel()
		}
	}
	s.jobsMu.Unlock()
	s.bg.Wait()
	s.tracker.Close()
}

// background runs fn detached from the caller: the caller's cancellation
// does not abort it, so every tracked operation reaches a terminal status.
func (s *Session) background(ctx context.Context, fn func(ctx context.Context)) {
	bg := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(bg)
	}()
}
