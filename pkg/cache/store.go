// Package cache holds bulk payloads keyed by (run, model) so repeated
// navigation to the same model is served without a network round trip.
package cache

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pario-ai/evalview/pkg/models"
)

// Backing persists payloads across sessions. Errors from a Backing are
// logged and never surface to Store callers.
type Backing interface {
	Load(key models.CacheKey) (*models.BulkPayload, bool, error)
	Save(key models.CacheKey, p *models.BulkPayload) error
	Delete(key models.CacheKey) error
}

// Store maps a composite key to the last payload written for it. Entries
// never expire on their own; they leave only through Invalidate or Clear.
//
// Every write and invalidation advances the key's generation, so a caller
// that read Generation before a slow fetch can tell whether its result has
// been superseded in the meantime.
type Store struct {
	mu      sync.Mutex
	entries map[models.CacheKey]*models.BulkPayload
	gens    map[models.CacheKey]uint64
	last    models.CacheKey
	hasLast bool
	backing Backing
	logger  *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Store. backing may be nil for a purely in-memory store.
func New(backing Backing, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[models.CacheKey]*models.BulkPayload),
		gens:    make(map[models.CacheKey]uint64),
		backing: backing,
		logger:  logger.With("component", "cache"),
	}
}

// Get returns the payload stored for (runID, modelName). The returned value
// is shared; callers must not modify it.
func (s *Store) Get(runID, modelName string) (*models.BulkPayload, bool) {
	key := models.CacheKey{RunID: runID, ModelName: modelName}

	s.mu.Lock()
	p, ok := s.entries[key]
	s.mu.Unlock()
	if ok {
		s.hits.Add(1)
		return p, true
	}

	if s.backing != nil {
		p, ok, err := s.backing.Load(key)
		if err != nil {
			s.logger.Warn("load persisted payload", "key", key.String(), "error", err)
		}
		if ok {
			s.mu.Lock()
			// A write may have landed while loading; it wins.
			if cur, exists := s.entries[key]; exists {
				p = cur
			} else {
				s.entries[key] = p
			}
			s.mu.Unlock()
			s.hits.Add(1)
			return p, true
		}
	}

	s.misses.Add(1)
	return nil, false
}

// Put replaces the entry for (runID, modelName) wholesale and records the
// key as most recently accessed.
func (s *Store) Put(runID, modelName string, p *models.BulkPayload) {
	key := models.CacheKey{RunID: runID, ModelName: modelName}
	s.mu.Lock()
	s.putLocked(key, p)
	s.mu.Unlock()
	s.save(key, p)
}

// Invalidate removes the entry for (runID, modelName). It is a no-op when no
// entry exists.
func (s *Store) Invalidate(runID, modelName string) {
	key := models.CacheKey{RunID: runID, ModelName: modelName}
	s.mu.Lock()
	delete(s.entries, key)
	s.gens[key]++
	s.mu.Unlock()

	if s.backing != nil {
		if err := s.backing.Delete(key); err != nil {
			s.logger.Warn("delete persisted payload", "key", key.String(), "error", err)
		}
	}
	s.logger.Debug("invalidated", "key", key.String())
}

// Generation returns the current write generation of key.
func (s *Store) Generation(key models.CacheKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

// PutIfCurrent writes p only if key is still at generation gen. It reports
// whether the write happened.
func (s *Store) PutIfCurrent(key models.CacheKey, gen uint64, p *models.BulkPayload) bool {
	s.mu.Lock()
	if s.gens[key] != gen {
		s.mu.Unlock()
		s.logger.Debug("discarding superseded payload", "key", key.String(), "generation", gen)
		return false
	}
	s.putLocked(key, p)
	s.mu.Unlock()
	s.save(key, p)
	return true
}

// Patch applies fn to a copy of the entry for key and stores the copy. It
// reports false, without calling fn, when there is no entry to patch.
func (s *Store) Patch(key models.CacheKey, fn func(*models.BulkPayload)) bool {
	s.mu.Lock()
	cur, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return false
	}
	next := cur.Clone()
	fn(next)
	s.putLocked(key, next)
	s.mu.Unlock()
	s.save(key, next)
	return true
}

// LastAccessed returns the key most recently written by Put.
func (s *Store) LastAccessed() (models.CacheKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Len returns the number of in-memory entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stats returns hit/miss counters and the in-memory entry count.
func (s *Store) Stats() models.CacheStats {
	return models.CacheStats{
		Entries: int64(s.Len()),
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}
}

// Clear drops every in-memory entry. Generations advance so in-flight
// fetches cannot repopulate cleared keys.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		s.gens[key]++
	}
	s.entries = make(map[models.CacheKey]*models.BulkPayload)
	s.hasLast = false
}

// putLocked requires s.mu.
func (s *Store) putLocked(key models.CacheKey, p *models.BulkPayload) {
	s.entries[key] = p
	s.gens[key]++
	s.last = key
	s.hasLast = true
}

func (s *Store) save(key models.CacheKey, p *models.BulkPayload) {
	if s.backing == nil {
		return
	}
	if err := s.backing.Save(key, p); err != nil {
		s.logger.Warn("persist payload", "key", key.String(), "error", err)
	}
}
