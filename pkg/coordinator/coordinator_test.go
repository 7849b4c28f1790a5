package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/evalview/internal/testutil"
	"github.com/pario-ai/evalview/pkg/clock"
	"github.com/pario-ai/evalview/pkg/models"
)

type fakeAPI struct {
	mu sync.Mutex

	leaderboard models.Leaderboard
	bulk        map[models.CacheKey]*models.BulkPayload
	bulkCalls   int
	// beforeBulk runs inside BulkData before the payload is returned.
	beforeBulk func(call int)

	details       map[string]models.QuestionDetail
	questionCalls int

	mutateResult models.MutationResult
	mutateErr    error
	mutateCtxErr error
	mutations    []models.MutationRequest

	execResult models.ExecutionResult

	startJobID  string
	startErr    error
	statuses    []models.JobStatus
	statusCalls int
	cancelled   []string

	prefs   []models.Preference
	cleared []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		leaderboard: models.Leaderboard{
			"m1": {Score: 0.9, RunID: "r1"},
			"m2": {Score: 0.7, RunID: "r1"},
		},
		bulk: map[models.CacheKey]*models.BulkPayload{
			{RunID: "r1", ModelName: "m1"}: {
				Questions:   map[string]models.Question{"q1": {ID: "q1", Prompt: "2+2?"}},
				Responses:   map[string]models.Response{"q1": {QuestionID: "q1", Content: "4"}},
				Evaluations: map[string]models.Evaluation{"q1": {Score: 1, Passed: true}},
			},
		},
		details: map[string]models.QuestionDetail{},
	}
}

func (f *fakeAPI) Leaderboard(context.Context) (models.Leaderboard, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaderboard, nil
}

func (f *fakeAPI) Runs(context.Context) ([]models.Run, error) {
	return []models.Run{{ID: "r1"}, {ID: "r2"}}, nil
}

func (f *fakeAPI) Questions(context.Context) ([]models.QuestionSummary, error) {
	return []models.QuestionSummary{{ID: "q1"}}, nil
}

func (f *fakeAPI) BulkData(_ context.Context, runID, modelName string) (*models.BulkPayload, error) {
	f.mu.Lock()
	f.bulkCalls++
	call := f.bulkCalls
	hook := f.beforeBulk
	p, ok := f.bulk[models.CacheKey{RunID: runID, ModelName: modelName}]
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if !ok {
		return nil, errors.New("no such payload")
	}
	return p.Clone(), nil
}

func (f *fakeAPI) Question(_ context.Context, runID, modelName, questionID, version string) (models.QuestionDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questionCalls++
	d, ok := f.details[questionID+"@"+version]
	if !ok {
		return models.QuestionDetail{}, fmt.Errorf("question %s not found", questionID)
	}
	return d, nil
}

func (f *fakeAPI) Mutate(ctx context.Context, req models.MutationRequest) (models.MutationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, req)
	f.mutateCtxErr = ctx.Err()
	return f.mutateResult, f.mutateErr
}

func (f *fakeAPI) Execute(context.Context, string, string, string) (models.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.execResult, nil
}

func (f *fakeAPI) StartJob(_ context.Context, req models.StartJobRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.startJobID, f.startErr
}

func (f *fakeAPI) JobStatus(_ context.Context, jobID string) (models.JobSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusCalls
	f.statusCalls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return models.JobSnapshot{JobID: jobID, Status: f.statuses[i]}, nil
}

func (f *fakeAPI) CancelJob(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

func (f *fakeAPI) SetPreference(_ context.Context, pref models.Preference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = append(f.prefs, pref)
	return nil
}

func (f *fakeAPI) ClearPreference(_ context.Context, modelName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, modelName)
	return nil
}

type notification struct {
	level   Level
	message string
}

type fakeRenderer struct {
	mu            sync.Mutex
	renders       []string
	lastResponse  models.QuestionDetail
	errs          []error
	ops           []models.Operation
	jobs          []models.JobSnapshot
	notifications []notification
}

func (r *fakeRenderer) Leaderboard(entries []models.LeaderboardEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, "home")
}

func (r *fakeRenderer) ModelDetails(view models.ViewState, _ *models.BulkPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, view.String())
}

func (r *fakeRenderer) Response(view models.ViewState, d models.QuestionDetail) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, view.String())
	r.lastResponse = d
}

func (r *fakeRenderer) Error(_ models.ViewState, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *fakeRenderer) Operations(ops []models.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = ops
}

func (r *fakeRenderer) Jobs(jobs []models.JobSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = jobs
}

func (r *fakeRenderer) Notify(level Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, notification{level, message})
}

func (r *fakeRenderer) rendered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.renders...)
}

func (r *fakeRenderer) count(level Level) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notifications {
		if note.level == level {
			n++
		}
	}
	return n
}

func newSession(t *testing.T, api *fakeAPI) (*Session, *fakeRenderer, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	r := &fakeRenderer{}
	s := New(Options{
		API:          api,
		Renderer:     r,
		Clock:        clk,
		PollInterval: 2 * time.Second,
		GracePeriod:  3 * time.Second,
		Logger:       testutil.NewTestLogger(t),
	})
	t.Cleanup(s.Close)
	return s, r, clk
}

var (
	m1r1 = models.ModelDetails("m1", "r1")
	q1   = models.ResponseView("m1", "q1", "r1")
	key  = models.CacheKey{RunID: "r1", ModelName: "m1"}
)

func TestModelDetailsFetchedOnceThenCached(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	ctx := context.Background()

	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Home(ctx))
	require.NoError(t, s.Show(ctx, m1r1))

	assert.Equal(t, 1, api.bulkCalls)
	assert.Equal(t, []string{m1r1.String(), "home", m1r1.String()}, r.rendered())
	stats := s.CacheStats()
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestResponseServedFromCachedPayload(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	ctx := context.Background()

	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Show(ctx, q1))

	assert.Equal(t, 0, api.questionCalls)
	require.NotNil(t, r.lastResponse.Response)
	assert.Equal(t, "4", r.lastResponse.Response.Content)
	assert.Equal(t, "2+2?", r.lastResponse.Question.Prompt)
}

func TestResponseFetchedWhenNotCached(t *testing.T) {
	api := newFakeAPI()
	api.details["q1@"] = models.QuestionDetail{Question: models.Question{ID: "q1"}, Response: &models.Response{Content: "fetched"}}
	s, r, _ := newSession(t, api)

	require.NoError(t, s.Show(context.Background(), q1))

	assert.Equal(t, 1, api.questionCalls)
	assert.Equal(t, 0, api.bulkCalls)
	assert.Equal(t, "fetched", r.lastResponse.Response.Content)
}

func TestResponseVersionBypassesCache(t *testing.T) {
	api := newFakeAPI()
	api.details["q1@2"] = models.QuestionDetail{Response: &models.Response{Content: "older", Version: 2}}
	s, r, _ := newSession(t, api)
	ctx := context.Background()

	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Show(ctx, q1.WithVersion("2")))

	assert.Equal(t, 1, api.questionCalls)
	assert.Equal(t, "older", r.lastResponse.Response.Content)
}

func TestBackWalksHistory(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	ctx := context.Background()

	require.NoError(t, s.Home(ctx))
	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Show(ctx, q1))
	assert.Len(t, s.History(), 2)

	ok, err := s.Back(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Back(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, models.Home(), s.Current())
	assert.Empty(t, s.History())

	ok, err = s.Back(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	renders := r.rendered()
	assert.Equal(t, []string{"home", m1r1.String(), q1.String(), m1r1.String(), "home"}, renders)
}

func TestRefreshRefetchesCurrentView(t *testing.T) {
	api := newFakeAPI()
	s, _, _ := newSession(t, api)
	ctx := context.Background()

	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Refresh(ctx))

	assert.Equal(t, 2, api.bulkCalls)
}

func TestRenderDroppedWhenViewChangedDuringFetch(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	api.beforeBulk = func(int) { s.nav.Push(models.Home()) }

	require.NoError(t, s.Show(context.Background(), m1r1))

	assert.Empty(t, r.rendered())
	assert.Equal(t, int64(1), s.CacheStats().Entries)
}

func TestSupersededFetchRetriesOnce(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	api.beforeBulk = func(call int) {
		if call == 1 {
			s.cache.Invalidate("r1", "m1")
		}
	}

	require.NoError(t, s.Show(context.Background(), m1r1))

	assert.Equal(t, 2, api.bulkCalls)
	assert.Equal(t, []string{m1r1.String()}, r.rendered())
	assert.Equal(t, int64(1), s.CacheStats().Entries)
}

func TestSupersededFetchBecomesStaleReference(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	api.beforeBulk = func(int) { s.cache.Invalidate("r1", "m1") }

	err := s.Show(context.Background(), m1r1)

	var stale *StaleReferenceError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, key, stale.Key)
	assert.Equal(t, 2, api.bulkCalls)
	assert.Equal(t, int64(0), s.CacheStats().Entries)
	require.Len(t, r.errs, 1)
	assert.Empty(t, r.rendered())
}

func TestFetchErrorRenderedInPlace(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)

	err := s.Show(context.Background(), models.ModelDetails("missing", "r1"))

	require.Error(t, err)
	require.Len(t, r.errs, 1)
	assert.Equal(t, 1, api.bulkCalls)
}

func TestRegeneratePatchesCacheAndRerenders(t *testing.T) {
	api := newFakeAPI()
	api.mutateResult = models.MutationResult{
		Message: "regenerated",
		Updated: &models.Fragment{Response: &models.Response{QuestionID: "q1", Content: "four", Version: 2}},
	}
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Show(ctx, q1))

	id := s.Regenerate(ctx, "r1", "m1", "q1")
	s.Wait()

	op, ok := s.Operation(id)
	require.True(t, ok)
	assert.Equal(t, models.OpSuccess, op.Status)
	assert.Equal(t, "regenerated", op.Message)
	assert.Equal(t, models.OpRegenerate, api.mutations[0].Kind)

	p, ok := s.cache.Get("r1", "m1")
	require.True(t, ok)
	assert.Equal(t, "four", p.Responses["q1"].Content)
	assert.True(t, p.Evaluations["q1"].Passed)

	assert.Equal(t, "four", r.lastResponse.Response.Content)
	assert.Equal(t, 1, api.bulkCalls)
	assert.Equal(t, 0, api.questionCalls)
}

func TestMutationWithoutFragmentInvalidates(t *testing.T) {
	api := newFakeAPI()
	api.mutateResult = models.MutationResult{Message: "fixed"}
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.Show(ctx, m1r1))

	s.Fix(ctx, "r1", "m1", "q1")
	s.Wait()

	// The model view shows the mutated payload, so it refetches and redraws.
	assert.Equal(t, 2, api.bulkCalls)
	assert.Equal(t, int64(1), s.CacheStats().Entries)
	assert.Equal(t, []string{m1r1.String(), m1r1.String()}, r.rendered())
}

func TestMutationRerendersModelView(t *testing.T) {
	api := newFakeAPI()
	api.mutateResult = models.MutationResult{Updated: &models.Fragment{Evaluation: &models.Evaluation{Score: 0.25}}}
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.Show(ctx, m1r1))

	s.Reevaluate(ctx, "r1", "m1", "q1")
	s.Wait()

	assert.Equal(t, 1, api.bulkCalls)
	assert.Equal(t, []string{m1r1.String(), m1r1.String()}, r.rendered())
	p, ok := s.cache.Get("r1", "m1")
	require.True(t, ok)
	assert.InDelta(t, 0.25, p.Evaluations["q1"].Score, 1e-9)
}

func TestMutationOnOtherModelDoesNotRerender(t *testing.T) {
	api := newFakeAPI()
	api.mutateResult = models.MutationResult{Message: "fixed"}
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.Show(ctx, m1r1))

	s.Fix(ctx, "r1", "m2", "q1")
	s.Wait()

	assert.Equal(t, 1, api.bulkCalls)
	assert.Equal(t, []string{m1r1.String()}, r.rendered())
}

func TestMutationDuringFetchSupersedesFetchedPayload(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	api.beforeBulk = func(call int) {
		if call != 1 {
			return
		}
		// The backend answers the first fetch with the pre-mutation payload.
		api.mu.Lock()
		api.mutateResult = models.MutationResult{
			Updated: &models.Fragment{Response: &models.Response{QuestionID: "q1", Content: "four"}},
		}
		api.bulk[key] = api.bulk[key].Clone()
		api.bulk[key].Responses["q1"] = models.Response{QuestionID: "q1", Content: "four"}
		api.mu.Unlock()

		s.Regenerate(ctx, "r1", "m1", "q1")
		require.Eventually(t, func() bool { return s.cache.Generation(key) > 0 }, time.Second, time.Millisecond)
	}

	require.NoError(t, s.Show(ctx, m1r1))
	s.Wait()

	assert.GreaterOrEqual(t, api.bulkCalls, 2)
	p, ok := s.cache.Get("r1", "m1")
	require.True(t, ok)
	assert.Equal(t, "four", p.Responses["q1"].Content)
	assert.Equal(t, []string{m1r1.String(), m1r1.String()}, r.rendered())
}

func TestMutationOnOtherQuestionDoesNotRerender(t *testing.T) {
	api := newFakeAPI()
	api.mutateResult = models.MutationResult{Updated: &models.Fragment{Evaluation: &models.Evaluation{Score: 0.5}}}
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.Show(ctx, m1r1))
	require.NoError(t, s.Show(ctx, q1))

	id := s.Reevaluate(ctx, "r1", "m1", "q9")
	s.Wait()

	op, _ := s.Operation(id)
	assert.Equal(t, "reevaluate complete", op.Message)
	assert.Len(t, r.rendered(), 2)
	p, _ := s.cache.Get("r1", "m1")
	assert.InDelta(t, 0.5, p.Evaluations["q9"].Score, 1e-9)
}

func TestMutationFailureExpiresAfterGrace(t *testing.T) {
	api := newFakeAPI()
	api.mutateErr = errors.New("backend exploded")
	s, r, clk := newSession(t, api)

	id := s.Regenerate(context.Background(), "r1", "m1", "q1")
	s.Wait()

	op, ok := s.Operation(id)
	require.True(t, ok)
	assert.Equal(t, models.OpError, op.Status)
	assert.Contains(t, op.Message, "backend exploded")
	assert.Empty(t, r.errs)

	clk.Advance(2 * time.Second)
	assert.Len(t, s.Operations(), 1)
	clk.Advance(time.Second)
	assert.Empty(t, s.Operations())

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Empty(t, r.ops)
}

func TestMutationOutlivesCallerContext(t *testing.T) {
	api := newFakeAPI()
	s, _, _ := newSession(t, api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	id := s.Regenerate(ctx, "r1", "m1", "q1")
	s.Wait()

	op, _ := s.Operation(id)
	assert.Equal(t, models.OpSuccess, op.Status)
	assert.NoError(t, api.mutateCtxErr)
}

func TestExecuteFailureSummary(t *testing.T) {
	api := newFakeAPI()
	api.execResult = models.ExecutionResult{ExitCode: 1, Stderr: "Traceback\nNameError"}
	s, _, _ := newSession(t, api)

	id := s.Execute(context.Background(), "r1", "m1", "q1")
	s.Wait()

	op, _ := s.Operation(id)
	assert.Equal(t, models.OpError, op.Status)
	assert.Equal(t, "exit 1: Traceback", op.Message)
}

func TestPinRerendersHome(t *testing.T) {
	api := newFakeAPI()
	s, r, _ := newSession(t, api)
	ctx := context.Background()
	require.NoError(t, s.Home(ctx))

	s.Pin(ctx, "m1", "r2")
	s.Wait()
	s.Unpin(ctx, "m2")
	s.Wait()

	assert.Equal(t, []models.Preference{{Model: "m1", RunID: "r2"}}, api.prefs)
	assert.Equal(t, []string{"m2"}, api.cleared)
	assert.Equal(t, []string{"home", "home", "home"}, r.rendered())
}

func TestComparisonJobNotifiesOnce(t *testing.T) {
	api := newFakeAPI()
	api.startJobID = "42"
	api.statuses = []models.JobStatus{models.JobRunning, models.JobCompleted}
	s, r, clk := newSession(t, api)

	id := s.StartComparison(context.Background(), []string{"r1", "r2"}, nil)
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)

	clk.Advance(0)
	assert.Equal(t, 1, api.statusCalls)
	assert.Equal(t, 0, r.count(LevelSuccess))
	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, models.JobRunning, jobs[0].Status)
	op, _ := s.Operation(id)
	assert.Equal(t, models.OpRunning, op.Status)

	clk.Advance(2 * time.Second)
	s.Wait()
	assert.Equal(t, 2, api.statusCalls)
	assert.Equal(t, 1, r.count(LevelSuccess))
	op, _ = s.Operation(id)
	assert.Equal(t, models.OpSuccess, op.Status)

	// Only the operation's expiry timer remains; no further poll.
	clk.Advance(10 * time.Second)
	assert.Equal(t, 2, api.statusCalls)
	assert.Equal(t, 1, r.count(LevelSuccess))
	assert.Equal(t, models.JobCompleted, s.Jobs()[0].Status)
}

func TestComparisonStartFailure(t *testing.T) {
	api := newFakeAPI()
	api.startErr = errors.New("need at least two runs")
	s, _, _ := newSession(t, api)

	id := s.StartComparison(context.Background(), []string{"r1"}, nil)
	s.Wait()

	op, _ := s.Operation(id)
	assert.Equal(t, models.OpError, op.Status)
	assert.Empty(t, s.Jobs())
}

func TestFailedJobCompletesOperationWithError(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []models.JobStatus{models.JobFailed}
	s, r, clk := newSession(t, api)

	id := s.WatchJob(context.Background(), "7")
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(0)
	s.Wait()

	op, _ := s.Operation(id)
	assert.Equal(t, models.OpError, op.Status)
	assert.Equal(t, 1, r.count(LevelError))
}

func TestCloseStopsWatchingJobs(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []models.JobStatus{models.JobRunning}
	s, _, clk := newSession(t, api)

	id := s.WatchJob(context.Background(), "9")
	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(0)
	assert.Equal(t, id, s.WatchJob(context.Background(), "9"))

	s.Close()

	op, _ := s.Operation(id)
	assert.Equal(t, models.OpError, op.Status)
	clk.Advance(time.Minute)
	assert.Equal(t, 1, api.statusCalls)
}

func TestWatchJobTwiceBeforePollingStarts(t *testing.T) {
	api := newFakeAPI()
	api.statuses = []models.JobStatus{models.JobRunning}
	s, _, clk := newSession(t, api)
	ctx := context.Background()

	first := s.WatchJob(ctx, "9")
	second := s.WatchJob(ctx, "9")

	assert.Equal(t, first, second)
	assert.Len(t, s.Operations(), 1)
	assert.Len(t, s.Jobs(), 1)

	require.Eventually(t, func() bool { return clk.Pending() == 1 }, time.Second, time.Millisecond)
	clk.Advance(0)
	assert.Equal(t, 1, api.statusCalls)
	assert.Equal(t, first, s.WatchJob(ctx, "9"))
}

func TestCancelJob(t *testing.T) {
	api := newFakeAPI()
	s, _, _ := newSession(t, api)

	require.NoError(t, s.CancelJob(context.Background(), "42"))
	assert.Equal(t, []string{"42"}, api.cancelled)
}

func TestSelectorsLoadConcurrently(t *testing.T) {
	s, _, _ := newSession(t, newFakeAPI())

	runs, questions, err := s.Selectors(context.Background())
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	assert.Len(t, questions, 1)
}
