package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/pario-ai/evalview/pkg/models"
	"github.com/pario-ai/evalview/pkg/poller"
)

type watchedJob struct {
	opID     int64
	snapshot models.JobSnapshot
	handle   *poller.Handle
	notified bool
	// starting is set between WatchJob and the poller taking over.
	starting bool
}

// StartComparison starts a comparative job across runIDs and watches it
// until it reaches a terminal status. The returned operation completes when
// the job does.
func (s *Session) StartComparison(ctx context.Context, runIDs, questionIDs []string) int64 {
	id := s.tracker.Begin(models.OpCompare, "Compare "+strings.Join(runIDs, ", "))
	s.background(ctx, func(ctx context.Context) {
		jobID, err := s.api.StartJob(ctx, models.StartJobRequest{RunIDs: runIDs, QuestionIDs: questionIDs})
		if err != nil {
			s.tracker.Complete(id, false, err.Error())
			return
		}
		s.logger.Info("comparative job started", "job_id", jobID, "runs", runIDs)
		s.renderer.Notify(LevelInfo, fmt.Sprintf("Comparative job %s started", jobID))
		s.watch(ctx, jobID, id)
	})
	return id
}

// WatchJob polls an existing job until it is terminal. Watching a job that
// is already being polled, or about to be, returns the existing operation id.
func (s *Session) WatchJob(ctx context.Context, jobID string) int64 {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	s.jobsMu.Lock()
	if j, ok := s.jobs[jobID]; ok && j.active() {
		s.jobsMu.Unlock()
		return j.opID
	}
	s.jobsMu.Unlock()

	id := s.tracker.Begin(models.OpCompare, "Watch job "+jobID)

	s.jobsMu.Lock()
	j := s.jobLocked(jobID)
	j.opID = id
	j.starting = true
	s.jobsMu.Unlock()

	s.background(ctx, func(ctx context.Context) {
		s.watch(ctx, jobID, id)
	})
	return id
}

func (j *watchedJob) active() bool {
	return j.starting || (j.handle != nil && !finished(j.handle))
}

// jobLocked returns the entry for jobID, creating it if needed. It requires
// s.jobsMu.
func (s *Session) jobLocked(jobID string) *watchedJob {
	j, ok := s.jobs[jobID]
	if !ok {
		j = &watchedJob{snapshot: models.JobSnapshot{JobID: jobID, Status: models.JobPending}}
		s.jobs[jobID] = j
		s.jobOrder = append(s.jobOrder, jobID)
	}
	return j
}

// watch registers the job and blocks until polling ends.
func (s *Session) watch(ctx context.Context, jobID string, opID int64) {
	s.jobsMu.Lock()
	if s.closed {
		if j, ok := s.jobs[jobID]; ok && j.opID == opID {
			j.starting = false
		}
		s.jobsMu.Unlock()
		s.tracker.Complete(opID, false, fmt.Sprintf("stopped watching job %s", jobID))
		return
	}
	j := s.jobLocked(jobID)
	j.opID = opID
	j.starting = false
	j.notified = false
	j.handle = s.poller.PollUntilTerminal(ctx, jobID,
		func(snap models.JobSnapshot) { s.jobUpdated(snap) },
		func(snap models.JobSnapshot) { s.jobFinished(snap) },
	)
	h := j.handle
	s.jobsMu.Unlock()

	if _, err := h.Wait(ctx); err != nil {
		s.tracker.Complete(opID, false, fmt.Sprintf("stopped watching job %s", jobID))
	}
}

func finished(h *poller.Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

func (s *Session) jobUpdated(snap models.JobSnapshot) {
	s.jobsMu.Lock()
	if j, ok := s.jobs[snap.JobID]; ok {
		j.snapshot = snap
	}
	s.jobsMu.Unlock()
	s.renderer.Jobs(s.Jobs())
}

// jobFinished completes the watching operation and notifies once per watch.
func (s *Session) jobFinished(snap models.JobSnapshot) {
	s.jobsMu.Lock()
	j, ok := s.jobs[snap.JobID]
	if !ok || j.notified {
		s.jobsMu.Unlock()
		return
	}
	j.notified = true
	j.snapshot = snap
	opID := j.opID
	s.jobsMu.Unlock()

	s.logger.Info("comparative job finished", "job_id", snap.JobID, "status", snap.Status)
	if snap.Status == models.JobCompleted {
		msg := fmt.Sprintf("Comparative job %s completed", snap.JobID)
		s.tracker.Complete(opID, true, msg)
		s.renderer.Notify(LevelSuccess, msg)
		return
	}
	msg := fmt.Sprintf("Comparative job %s %s", snap.JobID, snap.Status)
	if snap.Progress.Error != "" {
		msg += ": " + snap.Progress.Error
	}
	s.tracker.Complete(opID, false, msg)
	s.renderer.Notify(LevelError, msg)
}

// CancelJob asks the backend to cancel a job. A watched job reaches its
// terminal status through the next poll.
func (s *Session) CancelJob(ctx context.Context, jobID string) error {
	if err := s.api.CancelJob(ctx, jobID); err != nil {
		return fmt.Errorf("cancel job %s: %w", jobID, err)
	}
	return nil
}

// Jobs returns the latest snapshot of every watched job, in the order they
// were first watched.
func (s *Session) Jobs() []models.JobSnapshot {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	out := make([]models.JobSnapshot, 0, len(s.jobOrder))
	for _, id := range s.jobOrder {
		out = append(out, s.jobs[id].snapshot)
	}
	return out
}
