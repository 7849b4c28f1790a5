// Package navigation keeps the viewer's history of views.
package navigation

import (
	"context"
	"sync"

	"github.com/pario-ai/evalview/pkg/models"
)

// Dispatcher renders a view.
type Dispatcher interface {
	Dispatch(ctx context.Context, view models.ViewState) error
}

// Invalidator drops cached data for a composite key.
type Invalidator interface {
	Invalidate(runID, modelName string)
}

// Controller is the history state machine. It starts at Home with an empty
// history and lives for the whole session. The top of the history stack is
// never equal to the current view.
type Controller struct {
	mu      sync.Mutex
	current models.ViewState
	history []models.ViewState

	dispatcher  Dispatcher
	invalidator Invalidator
}

// New creates a Controller at Home. invalidator may be nil.
func New(d Dispatcher, inv Invalidator) *Controller {
	return &Controller{
		current:     models.Home(),
		dispatcher:  d,
		invalidator: inv,
	}
}

// Current returns the view being displayed.
func (c *Controller) Current() models.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// History returns the prior views, oldest first.
func (c *Controller) History() []models.ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ViewState, len(c.history))
	copy(out, c.history)
	return out
}

// Depth returns the number of views back() can return to.
func (c *Controller) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

// Push makes view current and remembers the previous view. Pushing the view
// that is already current changes nothing and reports false.
func (c *Controller) Push(view models.ViewState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view == c.current {
		return false
	}
	c.history = append(c.history, c.current)
	c.current = view
	return true
}

// Back pops the previous view, makes it current, and renders it afresh. It
// reports false, doing nothing, when the history is empty.
func (c *Controller) Back(ctx context.Context) (models.ViewState, bool, error) {
	c.mu.Lock()
	n := len(c.history)
	if n == 0 {
		cur := c.current
		c.mu.Unlock()
		return cur, false, nil
	}
	view := c.history[n-1]
	c.history = c.history[:n-1]
	c.current = view
	c.mu.Unlock()

	return view, true, c.dispatch(ctx, view)
}

// ResetToHome clears the history and makes Home current. It does not render.
func (c *Controller) ResetToHome() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.current = models.Home()
}

// Refresh invalidates the cache entry behind the current view, if it has
// one, and renders the view again.
func (c *Controller) Refresh(ctx context.Context) (models.ViewState, error) {
	view := c.Current()
	if key, ok := view.CacheKey(); ok && c.invalidator != nil {
		c.invalidator.Invalidate(key.RunID, key.ModelName)
	}
	return view, c.dispatch(ctx, view)
}

func (c *Controller) dispatch(ctx context.Context, view models.ViewState) error {
	if c.dispatcher == nil {
		return nil
	}
	return c.dispatcher.Dispatch(ctx, view)
}
