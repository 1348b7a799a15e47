package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"transcription-studio/internal/domain"
	"transcription-studio/internal/jobs"
	"transcription-studio/internal/transcribe"
)

// Backends resolves a model to its transcriber.
type Backends interface {
	Get(model domain.Model) (transcribe.Transcriber, bool)
}

// Persistence receives session snapshots and the final clear.
type Persistence interface {
	Snapshot(ctx context.Context, session domain.Session)
	Clear(ctx context.Context) error
}

// Recorder stores every job transition in the records store.
type Recorder interface {
	Record(ctx context.Context, job domain.TranscriptionJob) error
}

// Publisher receives progress events.
type Publisher interface {
	Publish(event jobs.Event) jobs.Event
}

// Options wires the orchestrator. Only Backends is required.
type Options struct {
	Backends    Backends
	Persistence Persistence
	Recorder    Recorder
	Events      Publisher
	Logger      *slog.Logger
	Now         func() time.Time
}

// Result is the settled outcome of one run: exactly one job per requested model.
type Result struct {
	Session domain.Session                             `json:"session"`
	Jobs    map[domain.Model]domain.TranscriptionJob `json:"jobs"`
}

// Succeeded counts completed jobs.
func (r Result) Succeeded() int {
	return len(lo.PickBy(r.Jobs, func(_ domain.Model, job domain.TranscriptionJob) bool {
		return job.Status == domain.JobStatusCompleted
	}))
}

// Orchestrator fans one audio asset out to several backends and joins on all of them.
type Orchestrator struct {
	backends    Backends
	persistence Persistence
	recorder    Recorder
	events      Publisher
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.Mutex
	running  bool
	tracker  *jobs.Tracker
	cleared  bool
	selected domain.Model
}

// New creates an orchestrator from options.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		backends:    opts.Backends,
		persistence: opts.Persistence,
		recorder:    opts.Recorder,
		events:      opts.Events,
		logger:      logger,
		now:         now,
	}
}

// Run submits audio to every model concurrently and returns once all jobs are terminal.
// Backend failures never abort siblings; they settle their own job as failed.
// When no job completed, the populated Result is returned together with ErrAllFailed.
func (o *Orchestrator) Run(ctx context.Context, audio domain.AudioAsset, prompt string, models []domain.Model) (Result, error) {
	models, backends, err := o.validate(audio, models)
	if err != nil {
		return Result{}, err
	}

	if err := o.acquire(); err != nil {
		return Result{}, err
	}
	defer o.release()

	started := o.now()
	session := domain.Session{
		ID:               uuid.NewString(),
		AudioFingerprint: audio.Fingerprint(),
		AudioName:        audio.Name,
		SelectedModels:   models,
		Prompt:           prompt,
		JobsByModel:      map[domain.Model]domain.TranscriptionJob{},
		StartedAt:        started,
		UpdatedAt:        started,
	}
	tracker := jobs.NewTracker(session)

	o.mu.Lock()
	o.tracker = tracker
	o.cleared = false
	o.selected = ""
	o.mu.Unlock()

	hookCtx := context.WithoutCancel(ctx)
	for _, model := range models {
		job := o.newJob(session.ID, model, prompt, 1)
		if err := tracker.Put(job); err != nil {
			return Result{}, err
		}
		o.record(hookCtx, job)
		o.publish(session.ID, job, "")
	}
	o.snapshot(hookCtx, tracker)

	o.logger.Info("transcription run started",
		"session_id", session.ID,
		"audio", session.AudioFingerprint,
		"models", models,
	)

	var wg sync.WaitGroup
	for _, model := range models {
		wg.Add(1)
		go o.dispatch(ctx, &wg, tracker, backends[model], audio, prompt)
	}
	wg.Wait()

	result := o.finish(hookCtx, tracker)
	o.logger.Info("transcription run settled",
		"session_id", session.ID,
		"succeeded", result.Succeeded(),
		"total", len(result.Jobs),
	)
	if result.Succeeded() == 0 {
		return result, ErrAllFailed
	}
	return result, nil
}

// Retry resubmits one model of the current session as a new attempt.
// The previous job keeps its own record; the new job replaces it in the session.
func (o *Orchestrator) Retry(ctx context.Context, audio domain.AudioAsset, model domain.Model) (domain.TranscriptionJob, error) {
	if len(audio.Data) == 0 {
		return domain.TranscriptionJob{}, &ValidationError{Field: "audio", Message: "audio file is required"}
	}
	backend, ok := o.backends.Get(model)
	if !ok {
		return domain.TranscriptionJob{}, &ValidationError{Field: "model", Message: fmt.Sprintf("model %s is not available", model)}
	}

	if err := o.acquire(); err != nil {
		return domain.TranscriptionJob{}, err
	}
	defer o.release()

	o.mu.Lock()
	tracker := o.tracker
	o.mu.Unlock()
	if tracker == nil {
		return domain.TranscriptionJob{}, ErrNoSession
	}

	previous, ok := tracker.Job(model)
	if !ok {
		return domain.TranscriptionJob{}, &ValidationError{Field: "model", Message: fmt.Sprintf("model %s is not part of the session", model)}
	}
	if previous.Status == domain.JobStatusCompleted {
		return domain.TranscriptionJob{}, &ValidationError{Field: "model", Message: fmt.Sprintf("model %s already completed", model)}
	}

	session := tracker.Snapshot()
	if session.AudioFingerprint != "" && session.AudioFingerprint != audio.Fingerprint() {
		return domain.TranscriptionJob{}, &ValidationError{Field: "audio", Message: "audio does not match the session"}
	}

	hookCtx := context.WithoutCancel(ctx)
	job := o.newJob(session.ID, model, previous.Prompt, previous.Attempt+1)
	if err := tracker.Put(job); err != nil {
		return domain.TranscriptionJob{}, err
	}
	o.record(hookCtx, job)
	o.publish(session.ID, job, "retry")
	o.snapshot(hookCtx, tracker)

	var wg sync.WaitGroup
	wg.Add(1)
	o.dispatch(ctx, &wg, tracker, backend, audio, job.Prompt)

	o.finish(hookCtx, tracker)
	settled, _ := tracker.Job(model)
	return settled, nil
}

// Restore makes a recovered snapshot the current session without re-issuing any call.
// It returns the models whose jobs never settled.
func (o *Orchestrator) Restore(session domain.Session) ([]domain.Model, error) {
	if session.ID == "" {
		return nil, ErrNoSession
	}
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()

	o.mu.Lock()
	o.tracker = jobs.NewTracker(session)
	o.cleared = false
	o.selected = ""
	o.mu.Unlock()

	incomplete := session.Incomplete()
	o.logger.Info("session restored", "session_id", session.ID, "incomplete", incomplete)
	o.publishSession(session.ID, fmt.Sprintf("restored with %d incomplete", len(incomplete)))
	return incomplete, nil
}

// Current returns a copy of the current session.
func (o *Orchestrator) Current() (domain.Session, bool) {
	o.mu.Lock()
	tracker := o.tracker
	o.mu.Unlock()
	if tracker == nil {
		return domain.Session{}, false
	}
	return tracker.Snapshot(), true
}

// Running reports whether a run or retry is in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Select accepts one completed model result as the chosen transcription.
func (o *Orchestrator) Select(model domain.Model) (domain.TranscriptionJob, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tracker == nil {
		return domain.TranscriptionJob{}, ErrNoSession
	}
	job, ok := o.tracker.Job(model)
	if !ok || job.Status != domain.JobStatusCompleted {
		return domain.TranscriptionJob{}, &ValidationError{Field: "model", Message: fmt.Sprintf("model %s has no completed result", model)}
	}
	o.selected = model
	return job, nil
}

// Selection returns the accepted job, if any.
func (o *Orchestrator) Selection() (domain.TranscriptionJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.tracker == nil || o.selected == "" {
		return domain.TranscriptionJob{}, false
	}
	return o.tracker.Job(o.selected)
}

// ClearSelection drops the accepted result.
func (o *Orchestrator) ClearSelection() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.selected = ""
}

func (o *Orchestrator) validate(audio domain.AudioAsset, models []domain.Model) ([]domain.Model, map[domain.Model]transcribe.Transcriber, error) {
	if len(audio.Data) == 0 {
		return nil, nil, &ValidationError{Field: "audio", Message: "audio file is required"}
	}

	models = lo.Uniq(lo.Filter(models, func(model domain.Model, _ int) bool {
		return strings.TrimSpace(string(model)) != ""
	}))
	if len(models) == 0 {
		return nil, nil, &ValidationError{Field: "models", Message: "select at least one model"}
	}

	backends := make(map[domain.Model]transcribe.Transcriber, len(models))
	for _, model := range models {
		backend, ok := o.backends.Get(model)
		if !ok {
			return nil, nil, &ValidationError{Field: "models", Message: fmt.Sprintf("model %s is not available", model)}
		}
		backends[model] = backend
	}
	return models, backends, nil
}

func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return ErrRunInProgress
	}
	o.running = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.running = false
}

func (o *Orchestrator) newJob(sessionID string, model domain.Model, prompt string, attempt int) domain.TranscriptionJob {
	now := o.now()
	return domain.TranscriptionJob{
		ID:         uuid.NewString(),
		SessionKey: sessionID,
		Model:      model,
		Status:     domain.JobStatusPending,
		Prompt:     prompt,
		Attempt:    attempt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// dispatch drives one job from pending to a terminal state. A panicking backend
// settles its job as failed.
func (o *Orchestrator) dispatch(
	ctx context.Context,
	wg *sync.WaitGroup,
	tracker *jobs.Tracker,
	backend transcribe.Transcriber,
	audio domain.AudioAsset,
	prompt string,
) {
	defer wg.Done()

	model := backend.Model()
	hookCtx := context.WithoutCancel(ctx)
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("backend panicked", "model", model, "panic", r)
			if job, err := tracker.Fail(model, fmt.Sprintf("backend panicked: %v", r)); err == nil {
				o.settled(hookCtx, tracker, job)
			}
		}
	}()

	job, err := tracker.Processing(model)
	if err != nil {
		o.logger.Error("job transition rejected", "model", model, "error", err)
		return
	}
	o.settled(hookCtx, tracker, job)

	resp, err := backend.Transcribe(ctx, transcribe.Request{Audio: audio, Prompt: prompt})
	var caption domain.Caption
	if err == nil {
		caption, err = transcribe.Normalize(model, resp)
	}

	if err != nil {
		o.logger.Warn("transcription failed", "session_id", job.SessionKey, "model", model, "error", err)
		job, err = tracker.Fail(model, err.Error())
	} else {
		job, err = tracker.Complete(model, caption)
	}
	if err != nil {
		o.logger.Error("job transition rejected", "model", model, "error", err)
		return
	}
	o.settled(hookCtx, tracker, job)
}

// settled runs the per-transition hooks: progress event, snapshot, record.
func (o *Orchestrator) settled(ctx context.Context, tracker *jobs.Tracker, job domain.TranscriptionJob) {
	o.publish(job.SessionKey, job, "")
	o.snapshot(ctx, tracker)
	o.record(ctx, job)
}

// finish clears the snapshot once when every job succeeded and returns the result.
func (o *Orchestrator) finish(ctx context.Context, tracker *jobs.Tracker) Result {
	session := tracker.Snapshot()
	result := Result{Session: session, Jobs: session.JobsByModel}

	allSucceeded := session.AllTerminal() && session.Succeeded() == len(session.SelectedModels)
	o.mu.Lock()
	shouldClear := allSucceeded && !o.cleared && tracker == o.tracker
	if shouldClear {
		o.cleared = true
	}
	o.mu.Unlock()

	if shouldClear && o.persistence != nil {
		if err := o.persistence.Clear(ctx); err != nil {
			o.logger.Warn("session clear failed", "session_id", session.ID, "error", err)
		}
	}

	o.publishSession(session.ID, fmt.Sprintf("%d of %d completed", session.Succeeded(), len(session.SelectedModels)))
	return result
}

func (o *Orchestrator) snapshot(ctx context.Context, tracker *jobs.Tracker) {
	if o.persistence == nil {
		return
	}
	o.persistence.Snapshot(ctx, tracker.Snapshot())
}

func (o *Orchestrator) record(ctx context.Context, job domain.TranscriptionJob) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, job); err != nil {
		o.logger.Warn("job record failed", "job_id", job.ID, "model", job.Model, "error", err)
	}
}

func (o *Orchestrator) publish(sessionID string, job domain.TranscriptionJob, message string) {
	if o.events == nil {
		return
	}
	event := jobs.Event{
		SessionID: sessionID,
		JobID:     job.ID,
		Model:     job.Model,
		Type:      jobs.EventTypeStatus,
		Status:    job.Status,
		Message:   message,
	}
	switch job.Status {
	case domain.JobStatusCompleted:
		event.Type = jobs.EventTypeResult
		if job.Result != nil {
			event.Segments = len(job.Result.Segments)
		}
	case domain.JobStatusFailed:
		event.Type = jobs.EventTypeError
		event.Message = job.Error
	}
	o.events.Publish(event)
}

func (o *Orchestrator) publishSession(sessionID, message string) {
	if o.events == nil {
		return
	}
	o.events.Publish(jobs.Event{SessionID: sessionID, Type: jobs.EventTypeSession, Message: message})
}
