package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"transcription-studio/internal/domain"
	"transcription-studio/internal/jobs"
	"transcription-studio/internal/orchestrator"
)

// ErrQueueBusy rejects ProcessNext while another item is being processed.
var ErrQueueBusy = errors.New("queue is already processing an item")

// Runner executes one generate action for one audio asset.
type Runner interface {
	Run(ctx context.Context, audio domain.AudioAsset, prompt string, models []domain.Model) (orchestrator.Result, error)
}

// Publisher receives queue progress events.
type Publisher interface {
	Publish(event jobs.Event) jobs.Event
}

// Options wires the controller. Runner and Request are required.
type Options struct {
	Runner Runner
	// Request supplies the prompt and model selection used for each item.
	Request func() (string, []domain.Model)
	// OnReset clears caller-held selection state.
	OnReset func()
	Events  Publisher
	Logger  *slog.Logger
}

// State is a read-only view of the queue.
type State struct {
	Items      []string `json:"items"`
	Cursor     int      `json:"cursor"`
	Remaining  int      `json:"remaining"`
	Current    string   `json:"current,omitempty"`
	Processing bool     `json:"processing"`
}

// Controller walks a list of audio assets one at a time through the runner.
type Controller struct {
	runner  Runner
	request func() (string, []domain.Model)
	onReset func()
	events  Publisher
	logger  *slog.Logger

	mu         sync.Mutex
	items      []domain.AudioAsset
	cursor     int
	generation int
	processing bool
}

// New creates an empty controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	request := opts.Request
	if request == nil {
		request = func() (string, []domain.Model) { return "", domain.DefaultModels }
	}
	return &Controller{
		runner:  opts.Runner,
		request: request,
		onReset: opts.OnReset,
		events:  opts.Events,
		logger:  logger,
	}
}

// Enqueue replaces the queue contents and rewinds the cursor.
func (c *Controller) Enqueue(items []domain.AudioAsset) {
	c.mu.Lock()
	c.items = append([]domain.AudioAsset(nil), items...)
	c.cursor = 0
	c.generation++
	c.mu.Unlock()

	c.publish(fmt.Sprintf("queued %d files", len(items)))
}

// ProcessNext runs the item at the cursor and advances by one whatever the outcome.
// It reports false without running anything when the queue is exhausted.
// A rejected start (ErrRunInProgress) leaves the cursor in place.
func (c *Controller) ProcessNext(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return false, ErrQueueBusy
	}
	if c.cursor >= len(c.items) {
		c.mu.Unlock()
		return false, nil
	}
	item := c.items[c.cursor]
	index := c.cursor
	generation := c.generation
	c.processing = true
	c.mu.Unlock()

	prompt, models := c.request()
	c.logger.Info("processing queued file", "index", index, "file", item.Name)
	_, err := c.runner.Run(ctx, item, prompt, models)

	c.mu.Lock()
	c.processing = false
	started := !errors.Is(err, orchestrator.ErrRunInProgress)
	if started && generation == c.generation && c.cursor == index {
		c.cursor++
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("queued file finished with error", "file", item.Name, "error", err)
		c.publish(fmt.Sprintf("%s: %v", item.Name, err))
	} else {
		c.publish(fmt.Sprintf("%s: done", item.Name))
	}
	return started, err
}

// Skip advances past the current item without running it.
func (c *Controller) Skip() {
	c.mu.Lock()
	skipped := ""
	if c.cursor < len(c.items) {
		skipped = c.items[c.cursor].Name
		c.cursor++
	}
	c.mu.Unlock()

	if skipped != "" {
		c.publish("skipped " + skipped)
	}
}

// Reset empties the queue and clears caller selection. Safe to call repeatedly.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.items = nil
	c.cursor = 0
	c.generation++
	c.mu.Unlock()

	if c.onReset != nil {
		c.onReset()
	}
	c.publish("queue reset")
}

// State returns a copy of the queue position.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(c.items))
	for _, item := range c.items {
		names = append(names, item.Name)
	}
	state := State{
		Items:      names,
		Cursor:     c.cursor,
		Remaining:  len(c.items) - c.cursor,
		Processing: c.processing,
	}
	if c.cursor < len(c.items) {
		state.Current = c.items[c.cursor].Name
	}
	return state
}

func (c *Controller) publish(message string) {
	if c.events == nil {
		return
	}
	c.events.Publish(jobs.Event{Type: jobs.EventTypeQueue, Message: message})
}
