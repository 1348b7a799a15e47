package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"transcription-studio/internal/domain"
)

// ErrUnknownModel is returned when a transition targets a model outside the session.
var ErrUnknownModel = errors.New("model not tracked in session")

// Tracker owns the job map of one session and enforces per-job transitions.
// Entries are replaced whole; readers never observe a partially updated job.
type Tracker struct {
	mu      sync.RWMutex
	session domain.Session
	now     func() time.Time
}

// NewTracker creates a tracker for the given session. The session is copied.
func NewTracker(session domain.Session) *Tracker {
	cloned := session.Clone()
	if cloned.JobsByModel == nil {
		cloned.JobsByModel = map[domain.Model]domain.TranscriptionJob{}
	}
	return &Tracker{session: cloned, now: func() time.Time { return time.Now().UTC() }}
}

// Put inserts a fresh job for its model, replacing any prior entry.
// The new job must be pending.
func (t *Tracker) Put(job domain.TranscriptionJob) error {
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("new job for %s must be pending, got %s", job.Model, job.Status)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.session.JobsByModel[job.Model] = job
	t.session.UpdatedAt = job.UpdatedAt
	return nil
}

// Processing moves the model's job from pending to processing.
func (t *Tracker) Processing(model domain.Model) (domain.TranscriptionJob, error) {
	return t.transition(model, domain.JobStatusProcessing, func(job *domain.TranscriptionJob) {})
}

// Complete settles the model's job with a caption.
func (t *Tracker) Complete(model domain.Model, caption domain.Caption) (domain.TranscriptionJob, error) {
	return t.transition(model, domain.JobStatusCompleted, func(job *domain.TranscriptionJob) {
		result := caption
		job.Result = &result
		job.Error = ""
	})
}

// Fail settles the model's job with a failure reason.
func (t *Tracker) Fail(model domain.Model, reason string) (domain.TranscriptionJob, error) {
	return t.transition(model, domain.JobStatusFailed, func(job *domain.TranscriptionJob) {
		job.Result = nil
		job.Error = reason
	})
}

// Job returns the current job for a model.
func (t *Tracker) Job(model domain.Model) (domain.TranscriptionJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.session.JobsByModel[model]
	return job, ok
}

// Snapshot returns an independent copy of the session.
func (t *Tracker) Snapshot() domain.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.session.Clone()
}

// transition validates and applies one state change as a whole-entry replacement.
func (t *Tracker) transition(model domain.Model, to domain.JobStatus, apply func(*domain.TranscriptionJob)) (domain.TranscriptionJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.session.JobsByModel[model]
	if !ok {
		return domain.TranscriptionJob{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	if !IsValidTransition(current.Status, to) {
		return domain.TranscriptionJob{}, fmt.Errorf("invalid transition for %s: %s -> %s", model, current.Status, to)
	}

	next := current
	next.Status = to
	apply(&next)
	next.UpdatedAt = t.now()
	if next.UpdatedAt.Before(current.UpdatedAt) {
		next.UpdatedAt = current.UpdatedAt
	}

	t.session.JobsByModel[model] = next
	t.session.UpdatedAt = next.UpdatedAt
	return next, nil
}

// IsValidTransition enforces pending -> processing -> {completed, failed}.
func IsValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusPending:
		return to == domain.JobStatusProcessing
	case domain.JobStatusProcessing:
		return to == domain.JobStatusCompleted || to == domain.JobStatusFailed
	default:
		return false
	}
}
