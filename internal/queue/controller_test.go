package queue

import (
	"context"
	"errors"
	"testing"

	"transcription-studio/internal/domain"
	"transcription-studio/internal/jobs"
	"transcription-studio/internal/orchestrator"
)

// fakeRunner records which assets were run.
type fakeRunner struct {
	run   func(audio domain.AudioAsset) error
	names []string
}

func (f *fakeRunner) Run(_ context.Context, audio domain.AudioAsset, _ string, _ []domain.Model) (orchestrator.Result, error) {
	f.names = append(f.names, audio.Name)
	if f.run == nil {
		return orchestrator.Result{}, nil
	}
	return orchestrator.Result{}, f.run(audio)
}

func assets(names ...string) []domain.AudioAsset {
	out := make([]domain.AudioAsset, 0, len(names))
	for _, name := range names {
		out = append(out, domain.AudioAsset{Name: name, Size: 1, Data: []byte("x")})
	}
	return out
}

// TestProcessSkipThenExhausted walks enqueue, process, skip, then a no-op.
func TestProcessSkipThenExhausted(t *testing.T) {
	runner := &fakeRunner{}
	c := New(Options{Runner: runner})
	c.Enqueue(assets("a", "b"))

	processed, err := c.ProcessNext(context.Background())
	if err != nil || !processed {
		t.Fatalf("ProcessNext() = %v, %v", processed, err)
	}
	if c.State().Cursor != 1 {
		t.Fatalf("cursor = %d, want 1", c.State().Cursor)
	}

	c.Skip()
	if c.State().Cursor != 2 {
		t.Fatalf("cursor = %d, want 2", c.State().Cursor)
	}

	processed, err = c.ProcessNext(context.Background())
	if err != nil || processed {
		t.Fatalf("exhausted ProcessNext() = %v, %v", processed, err)
	}
	if len(runner.names) != 1 || runner.names[0] != "a" {
		t.Fatalf("runs = %v, want [a]", runner.names)
	}

	c.Skip()
	if c.State().Cursor != 2 {
		t.Fatalf("cursor after exhausted skip = %d, want 2", c.State().Cursor)
	}
}

// TestProcessNextAdvancesOnFailure checks the cursor moves regardless of outcome.
func TestProcessNextAdvancesOnFailure(t *testing.T) {
	runner := &fakeRunner{run: func(domain.AudioAsset) error { return orchestrator.ErrAllFailed }}
	c := New(Options{Runner: runner})
	c.Enqueue(assets("a", "b"))

	processed, err := c.ProcessNext(context.Background())
	if !errors.Is(err, orchestrator.ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !processed || c.State().Cursor != 1 || c.State().Current != "b" {
		t.Fatalf("state = %+v processed=%v", c.State(), processed)
	}
}

// TestProcessNextRejectedStartKeepsCursor leaves the item for later.
func TestProcessNextRejectedStartKeepsCursor(t *testing.T) {
	runner := &fakeRunner{run: func(domain.AudioAsset) error { return orchestrator.ErrRunInProgress }}
	c := New(Options{Runner: runner})
	c.Enqueue(assets("a"))

	processed, err := c.ProcessNext(context.Background())
	if !errors.Is(err, orchestrator.ErrRunInProgress) || processed {
		t.Fatalf("ProcessNext() = %v, %v", processed, err)
	}
	if c.State().Cursor != 0 {
		t.Fatalf("cursor = %d, want 0", c.State().Cursor)
	}
}

// TestEnqueueReplacesItems checks replace-and-rewind semantics.
func TestEnqueueReplacesItems(t *testing.T) {
	c := New(Options{Runner: &fakeRunner{}})
	c.Enqueue(assets("a", "b", "c"))
	c.Skip()
	c.Skip()

	c.Enqueue(assets("x"))
	state := c.State()
	if len(state.Items) != 1 || state.Items[0] != "x" || state.Cursor != 0 || state.Remaining != 1 {
		t.Fatalf("state = %+v", state)
	}
}

// TestResetIsIdempotent checks reset clears items and selection every time.
func TestResetIsIdempotent(t *testing.T) {
	resets := 0
	events := jobs.NewEventBus(10)
	c := New(Options{Runner: &fakeRunner{}, OnReset: func() { resets++ }, Events: events})
	c.Enqueue(assets("a", "b"))
	c.Skip()

	c.Reset()
	c.Reset()

	state := c.State()
	if len(state.Items) != 0 || state.Cursor != 0 || state.Remaining != 0 {
		t.Fatalf("state = %+v", state)
	}
	if resets != 2 {
		t.Fatalf("resets = %d, want 2", resets)
	}
	for _, event := range events.Since(0) {
		if event.Type != jobs.EventTypeQueue {
			t.Fatalf("event type = %s, want queue", event.Type)
		}
	}
}

// TestProcessNextUsesRequest passes the configured prompt and models.
func TestProcessNextUsesRequest(t *testing.T) {
	var gotPrompt string
	var gotModels []domain.Model
	runner := runnerFunc(func(_ context.Context, _ domain.AudioAsset, prompt string, models []domain.Model) (orchestrator.Result, error) {
		gotPrompt, gotModels = prompt, models
		return orchestrator.Result{}, nil
	})
	c := New(Options{
		Runner:  runner,
		Request: func() (string, []domain.Model) { return "p", []domain.Model{domain.ModelPhi4} },
	})
	c.Enqueue(assets("a"))

	if _, err := c.ProcessNext(context.Background()); err != nil {
		t.Fatalf("ProcessNext() error = %v", err)
	}
	if gotPrompt != "p" || len(gotModels) != 1 || gotModels[0] != domain.ModelPhi4 {
		t.Fatalf("request = %q %v", gotPrompt, gotModels)
	}
}

// TestProcessNextBusy rejects overlapping calls.
func TestProcessNextBusy(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	runner := runnerFunc(func(context.Context, domain.AudioAsset, string, []domain.Model) (orchestrator.Result, error) {
		close(started)
		<-release
		return orchestrator.Result{}, nil
	})
	c := New(Options{Runner: runner})
	c.Enqueue(assets("a", "b"))

	done := make(chan struct{})
	go func() {
		_, _ = c.ProcessNext(context.Background())
		close(done)
	}()
	<-started

	if _, err := c.ProcessNext(context.Background()); !errors.Is(err, ErrQueueBusy) {
		t.Fatalf("err = %v, want ErrQueueBusy", err)
	}
	if !c.State().Processing {
		t.Fatal("state should report processing")
	}
	close(release)
	<-done

	if c.State().Cursor != 1 {
		t.Fatalf("cursor = %d, want 1", c.State().Cursor)
	}
}

// TestResetDuringProcessingDoesNotAdvance keeps the emptied queue at zero.
func TestResetDuringProcessingDoesNotAdvance(t *testing.T) {
	var c *Controller
	runner := runnerFunc(func(context.Context, domain.AudioAsset, string, []domain.Model) (orchestrator.Result, error) {
		c.Reset()
		return orchestrator.Result{}, nil
	})
	c = New(Options{Runner: runner})
	c.Enqueue(assets("a"))

	if _, err := c.ProcessNext(context.Background()); err != nil {
		t.Fatalf("ProcessNext() error = %v", err)
	}
	if c.State().Cursor != 0 {
		t.Fatalf("cursor = %d, want 0", c.State().Cursor)
	}
}

type runnerFunc func(ctx context.Context, audio domain.AudioAsset, prompt string, models []domain.Model) (orchestrator.Result, error)

func (f runnerFunc) Run(ctx context.Context, audio domain.AudioAsset, prompt string, models []domain.Model) (orchestrator.Result, error) {
	return f(ctx, audio, prompt, models)
}
